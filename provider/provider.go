// Package provider abstracts a single LLM turn behind one contract so the
// agent runtime and pattern executors never depend on a specific wire
// protocol. Two backends are contemplated: a streaming backend (token-level
// deltas, no tools) and a session backend (message-granular, tools enabled).
package provider

import "context"

// EventKind classifies an event emitted during a provider invocation.
type EventKind string

const (
	// EventChunk carries partial assistant text.
	EventChunk EventKind = "chunk"
	// EventToolCall carries a tool name and input requested by the model.
	// Only the session backend emits this kind.
	EventToolCall EventKind = "tool_call"
	// EventFinal is the terminal event, carrying the concatenated final text
	// and usage accounting. Exactly one is emitted per invocation.
	EventFinal EventKind = "final"
)

type (
	// Event is a single item emitted by Backend.Invoke while a turn is in
	// flight.
	Event struct {
		Kind EventKind

		// Chunk is set when Kind is EventChunk.
		Chunk string

		// ToolName and ToolInput are set when Kind is EventToolCall.
		ToolName  string
		ToolInput any

		// Final is set when Kind is EventFinal.
		Final *FinalResult
	}

	// FinalResult carries the terminal accounting for one provider
	// invocation.
	FinalResult struct {
		FinalText        string
		InputTokens      int
		OutputTokens     int
		CacheCreateTokens int
		CacheReadTokens  int
		Cost             float64
	}

	// OnEvent receives events as they are produced by a Backend. Callers
	// must not retain Event values; each delivery is only valid for the
	// duration of the call.
	OnEvent func(Event)

	// Backend hides a single LLM wire protocol behind one contract.
	//
	// Invoke sends systemPrompt/userMessage to the model and streams Events
	// through onEvent as they are produced, finishing with exactly one
	// EventFinal. It returns the concatenated final text, equal to
	// Event.Final.FinalText on success.
	Backend interface {
		Invoke(ctx context.Context, systemPrompt, userMessage string, toolsEnabled bool, onEvent OnEvent) (string, error)
	}

	// Kind identifies which concrete Backend should service a call.
	Kind string
)

const (
	// KindStreaming selects the token-level streaming backend. It never
	// surfaces EventToolCall.
	KindStreaming Kind = "streaming"
	// KindSession selects the message-granular, tool-enabled backend.
	KindSession Kind = "session"
)

// SelectBackend picks which Backend kind services a call, as a pure
// function of agent capability and credential availability:
//
//  1. If no credential is available for per-token streaming, use the
//     session backend.
//  2. Else if the agent has tools enabled, use the session backend.
//  3. Else use the streaming backend.
func SelectBackend(streamingCredentialAvailable, toolsEnabled bool) Kind {
	if !streamingCredentialAvailable {
		return KindSession
	}
	if toolsEnabled {
		return KindSession
	}
	return KindStreaming
}
