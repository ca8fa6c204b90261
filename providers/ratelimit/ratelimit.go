// Package ratelimit wraps a provider.Backend with a process-local,
// AIMD-style token bucket so a burst of concurrent agent calls (e.g. a
// Parallel Aggregation block) cannot exceed a configured tokens-per-minute
// budget for a single credential.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/agentmesh/orchestrator/provider"
)

// Limiter applies an adaptive token bucket on top of a provider.Backend. It
// estimates the cost of each call from the combined length of the system
// prompt and user message, blocks the caller until capacity is available,
// and backs off its effective tokens-per-minute budget when the wrapped
// backend reports provider.ErrorKindRateLimited.
type Limiter struct {
	mu sync.Mutex

	backend provider.Backend
	limiter *rate.Limiter

	currentTPM   float64
	minTPM       float64
	maxTPM       float64
	recoveryRate float64
}

// New wraps backend with an adaptive rate limiter configured with an
// initial tokens-per-minute budget and an upper bound. When maxTPM is zero
// or less than initialTPM, it is clamped to initialTPM.
func New(backend provider.Backend, initialTPM, maxTPM float64) *Limiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	return &Limiter{
		backend:      backend,
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: 1.1,
	}
}

// Invoke implements provider.Backend. It reserves an estimated token cost
// from the bucket before delegating to the wrapped backend, and on a
// rate-limited error halves the effective budget (multiplicative decrease)
// before returning the error to the caller.
func (l *Limiter) Invoke(ctx context.Context, systemPrompt, userMessage string, toolsEnabled bool, onEvent provider.OnEvent) (string, error) {
	cost := estimateTokens(systemPrompt) + estimateTokens(userMessage)
	if cost < 1 {
		cost = 1
	}
	if err := l.limiter.WaitN(ctx, cost); err != nil {
		return "", err
	}

	out, err := l.backend.Invoke(ctx, systemPrompt, userMessage, toolsEnabled, onEvent)
	if err != nil {
		if pe, ok := provider.AsError(err); ok && pe.Kind() == provider.ErrorKindRateLimited {
			l.backoff()
		}
		return "", err
	}
	l.probe()
	return out, nil
}

func (l *Limiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currentTPM /= 2
	if l.currentTPM < l.minTPM {
		l.currentTPM = l.minTPM
	}
	l.limiter.SetLimit(rate.Limit(l.currentTPM / 60))
}

func (l *Limiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.currentTPM * l.recoveryRate
	if next > l.maxTPM {
		next = l.maxTPM
	}
	l.currentTPM = next
	l.limiter.SetLimit(rate.Limit(l.currentTPM / 60))
}

// estimateTokens is a rough, provider-agnostic token estimate (~4 chars per
// token) used only to size the rate-limiter reservation, never for billing.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
