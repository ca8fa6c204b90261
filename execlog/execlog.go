// Package execlog is the durable record of one orchestration run: its
// status, timing, per-block partial results, and final error (if any). It
// is a single mutable-but-monotone run record rather than an event-append
// log, since the graph executor's incremental persistence needs
// read/update-in-place semantics.
package execlog

import (
	"context"
	"time"
)

// Status is the lifecycle state of an ExecutionLog. Transitions are
// monotone: once Completed, Failed, or Cancelled, a log never changes
// status again.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// maxErrorLen bounds the Error field to a reasonable limit.
const maxErrorLen = 4096

// ExecutionLog is the durable record of one run.
type ExecutionLog struct {
	ID          string
	DesignID    string
	Status      Status
	TriggerType string // "manual", "endpoint", or "direct"
	Input       string
	Results     map[string]string // per-block final output, keyed by block id
	FinalResult string
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration

	// AgentMessageCounts tracks completed sends per agent name, incremented
	// by the Graph Executor as blocks run; the basis for Executor.Summary's
	// per-agent message count.
	AgentMessageCounts map[string]int
}

// Store appends/updates/reads ExecutionLog records. Implementations must
// preserve Results round-trip-losslessly.
type Store interface {
	Create(ctx context.Context, log *ExecutionLog) error
	Update(ctx context.Context, log *ExecutionLog) error
	Get(ctx context.Context, id string) (*ExecutionLog, error)
}

// New constructs a running ExecutionLog for designID, recording how the run
// was triggered and the input it was given.
func New(id, designID, triggerType, input string) *ExecutionLog {
	return &ExecutionLog{
		ID:                 id,
		DesignID:           designID,
		Status:             StatusRunning,
		TriggerType:        triggerType,
		Input:              input,
		Results:            make(map[string]string),
		AgentMessageCounts: make(map[string]int),
		StartedAt:          time.Now(),
	}
}

// IncrementAgentMessage records one completed send for agent name. No-op
// for an empty name.
func (l *ExecutionLog) IncrementAgentMessage(name string) {
	if name == "" {
		return
	}
	if l.AgentMessageCounts == nil {
		l.AgentMessageCounts = make(map[string]int)
	}
	l.AgentMessageCounts[name]++
}

// SetBlockResult records blockID's output. Safe to call repeatedly as the
// Graph Executor completes blocks in topological order, each call
// representing the incremental persistence contract the Graph Executor relies on.
func (l *ExecutionLog) SetBlockResult(blockID, result string) {
	l.Results[blockID] = result
}

// Complete transitions the log to StatusCompleted, recording the run's
// final result. No-op if already terminal.
func (l *ExecutionLog) Complete(finalResult string) {
	if l.terminal() {
		return
	}
	l.Status = StatusCompleted
	l.FinalResult = finalResult
	l.CompletedAt = time.Now()
	l.Duration = l.CompletedAt.Sub(l.StartedAt)
}

// Fail transitions the log to StatusFailed, recording err truncated to
// maxErrorLen. No-op if already terminal.
func (l *ExecutionLog) Fail(err error) {
	if l.terminal() {
		return
	}
	l.Status = StatusFailed
	l.Error = truncate(err.Error(), maxErrorLen)
	l.CompletedAt = time.Now()
	l.Duration = l.CompletedAt.Sub(l.StartedAt)
}

// Cancel transitions the log to StatusCancelled with reason "cancelled"
// No-op if already terminal.
func (l *ExecutionLog) Cancel() {
	if l.terminal() {
		return
	}
	l.Status = StatusCancelled
	l.Error = "cancelled"
	l.CompletedAt = time.Now()
	l.Duration = l.CompletedAt.Sub(l.StartedAt)
}

func (l *ExecutionLog) terminal() bool {
	return l.Status == StatusCompleted || l.Status == StatusFailed || l.Status == StatusCancelled
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
