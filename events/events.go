// Package events defines the run event stream: the ordered sequence of
// start, status, chunk, workspace_info, complete, and error records
// produced by a graph run and consumed by live subscribers.
//
// Events are tagged with the producing agent's name at emission time and
// never routed through a shared "current agent" cursor, avoiding the
// interleaving hazard called out for callback-based implementations: with
// channel/struct events there is no cursor to desynchronize.
package events

import "time"

// Kind identifies the kind of a stream record.
type Kind string

const (
	KindStart         Kind = "start"
	KindStatus        Kind = "status"
	KindChunk         Kind = "chunk"
	KindWorkspaceInfo Kind = "workspace_info"
	KindComplete      Kind = "complete"
	KindError         Kind = "error"
)

// Status is the state reported by a KindStatus event.
type Status string

const (
	StatusWaiting         Status = "waiting"
	StatusExecuting       Status = "executing"
	StatusRouting         Status = "routing"
	StatusDelegating      Status = "delegating"
	StatusSynthesizing    Status = "synthesizing"
	StatusAggregating     Status = "aggregating"
	StatusCompleted       Status = "completed"
	StatusRoutingComplete Status = "routing_complete"
)

// Event is a single item on the run event stream.
type Event struct {
	Kind Kind

	// Agent is the name of the agent this event concerns; empty for
	// run-level events (start, complete, error).
	Agent string

	// Pattern names a pattern. The Graph Executor leaves it empty on the
	// run-level KindStart and KindComplete events it emits.
	Pattern string

	// Agents lists the participating agent names; set on KindStart.
	Agents []string

	// Status and Duration are set on KindStatus events. Duration is the
	// elapsed time for "completed"/"routing_complete" states; zero
	// otherwise.
	Status   Status
	Duration time.Duration

	// Chunk carries partial assistant text on KindChunk events.
	Chunk string

	// ExecutionID, ParentDir, and AgentMapping are set on
	// KindWorkspaceInfo events (see workspace.Workspace).
	ExecutionID  string
	ParentDir    string
	AgentMapping map[string]string

	// Result is set on KindComplete events.
	Result string

	// Err is set on KindError events.
	Err error

	Timestamp time.Time
}
