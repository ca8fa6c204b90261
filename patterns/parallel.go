package patterns

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentmesh/orchestrator/agent"
	"github.com/agentmesh/orchestrator/events"
)

// Parallel dispatches every agent against the task concurrently. If an
// Aggregator is set, it is invoked once all agents complete, with a
// pretty-printed JSON dictionary of {agent_name: output} as its input.
type Parallel struct {
	Runtime    *agent.Runtime
	Agents     []*agent.Agent
	Aggregator *agent.Agent
	UserID     string
}

// Execute implements Executor. Chunks from different agents may interleave
// arbitrarily; chunks from a single agent are delivered in emission order
// because each agent's SendWithEvents call emits on its own goroutine.
func (p *Parallel) Execute(ctx context.Context, task string, onEvent EventFunc) (*Result, error) {
	result := &Result{
		Pattern:      "parallel",
		AgentResults: make(map[string]string, len(p.Agents)),
		Durations:    make(map[string]time.Duration, len(p.Agents)),
	}

	var emitMu sync.Mutex
	safeEmit := func(ev events.Event) {
		if onEvent == nil {
			return
		}
		emitMu.Lock()
		defer emitMu.Unlock()
		onEvent(ev)
	}

	for _, a := range p.Agents {
		emitStatus(safeEmit, a.Name, events.StatusWaiting)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range p.Agents {
		a := a
		g.Go(func() error {
			emitStatus(safeEmit, a.Name, events.StatusExecuting)
			start := time.Now()
			out, err := p.Runtime.SendWithEvents(gctx, a, task, "", p.UserID, chunkForwarder(safeEmit))
			duration := time.Since(start)
			if err != nil {
				return fmt.Errorf("parallel: agent %s: %w", a.Name, err)
			}
			emitStatusWithDuration(safeEmit, a.Name, events.StatusCompleted, duration)

			mu.Lock()
			result.AgentResults[a.Name] = out
			result.Durations[a.Name] = duration
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	if p.Aggregator == nil {
		if len(p.Agents) == 1 {
			result.FinalResult = result.AgentResults[p.Agents[0].Name]
		}
		return result, nil
	}

	payload, err := json.MarshalIndent(result.AgentResults, "", "  ")
	if err != nil {
		return result, fmt.Errorf("parallel: marshaling agent results for aggregator: %w", err)
	}

	emitStatus(safeEmit, p.Aggregator.Name, events.StatusAggregating)
	start := time.Now()
	out, err := p.Runtime.SendWithEvents(ctx, p.Aggregator, string(payload), "", p.UserID, chunkForwarder(safeEmit))
	duration := time.Since(start)
	if err != nil {
		return result, fmt.Errorf("parallel: aggregator %s: %w", p.Aggregator.Name, err)
	}
	emitStatusWithDuration(safeEmit, p.Aggregator.Name, events.StatusCompleted, duration)

	result.Durations[p.Aggregator.Name] = duration
	result.FinalResult = out
	return result, nil
}
