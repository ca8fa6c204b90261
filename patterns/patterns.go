// Package patterns implements the five orchestration patterns over the
// Agent Runtime: Sequential Pipeline, Parallel Aggregation, Hierarchical,
// Debate, and Dynamic Routing, plus the Reflection variant of Sequential.
//
// All five share the shape described by the executor contract: accept a
// task string and a per-event callback, dispatch one or more agents
// through an agent.Runtime, and return a structured Result.
package patterns

import (
	"context"
	"time"

	"github.com/agentmesh/orchestrator/agent"
	"github.com/agentmesh/orchestrator/events"
)

// EventFunc receives run events as a pattern executes. It must never block
// for long: the Graph Executor's single event queue is drained by one
// transport subscriber, and a slow callback stalls the whole run.
type EventFunc func(events.Event)

// Result is the structured outcome of a pattern execution: per-agent
// outputs, the run's final result, and per-agent durations. Meta carries
// pattern-specific detail (delegation fallback flag, selected specialists,
// debate utterances) that does not fit the common shape.
type Result struct {
	Pattern      string
	AgentResults map[string]string
	FinalResult  string
	Durations    map[string]time.Duration
	Meta         map[string]any
}

// Executor runs one pattern block against a task, forwarding events to
// onEvent, and returns the structured Result.
type Executor interface {
	Execute(ctx context.Context, task string, onEvent EventFunc) (*Result, error)
}

func emit(onEvent EventFunc, ev events.Event) {
	if onEvent == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	onEvent(ev)
}

func emitStatus(onEvent EventFunc, agentName string, status events.Status) {
	emit(onEvent, events.Event{Kind: events.KindStatus, Agent: agentName, Status: status})
}

func emitStatusWithDuration(onEvent EventFunc, agentName string, status events.Status, d time.Duration) {
	emit(onEvent, events.Event{Kind: events.KindStatus, Agent: agentName, Status: status, Duration: d})
}

func emitChunk(onEvent EventFunc, agentName, chunk string) {
	emit(onEvent, events.Event{Kind: events.KindChunk, Agent: agentName, Chunk: chunk})
}

// chunkForwarder adapts an agent.OnAgentEvent into the pattern-level
// EventFunc, translating chunk events only; status transitions around the
// call are emitted by the pattern executor itself so they carry accurate
// per-pattern semantics (waiting/routing/delegating/aggregating/etc.).
func chunkForwarder(onEvent EventFunc) agent.OnAgentEvent {
	return func(ev agent.AgentEvent) {
		if onEvent == nil {
			return
		}
		switch ev.Kind {
		case "chunk":
			emitChunk(onEvent, ev.Agent, ev.Chunk)
		}
	}
}

func findAgent(agents []*agent.Agent, name string) *agent.Agent {
	for _, a := range agents {
		if a.Name == name {
			return a
		}
	}
	return nil
}
