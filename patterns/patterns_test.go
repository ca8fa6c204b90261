package patterns

import (
	"context"

	"github.com/agentmesh/orchestrator/events"
	"github.com/agentmesh/orchestrator/provider"
)

// stubBackend returns canned replies keyed by system prompt (each test
// agent is given a distinct, identifying system prompt). Replies are
// consumed in FIFO order per system prompt, so an agent invoked more than
// once (e.g. a hierarchical manager's delegation then synthesis calls) can
// be scripted with successive responses. Each call emits one chunk and a
// final event so chunkForwarder has something to forward.
type stubBackend struct {
	replies map[string][]string

	// onInvoke, if set, is called with the system prompt and user message
	// for every Invoke, letting a test inspect exactly what was sent.
	onInvoke func(systemPrompt, userMessage string)
}

func (s *stubBackend) Invoke(ctx context.Context, systemPrompt, userMessage string, toolsEnabled bool, onEvent provider.OnEvent) (string, error) {
	if s.onInvoke != nil {
		s.onInvoke(systemPrompt, userMessage)
	}
	queue := s.replies[systemPrompt]
	var reply string
	if len(queue) > 0 {
		reply = queue[0]
		s.replies[systemPrompt] = queue[1:]
	}
	if onEvent != nil {
		onEvent(provider.Event{Kind: provider.EventChunk, Chunk: reply})
		onEvent(provider.Event{Kind: provider.EventFinal, Final: &provider.FinalResult{FinalText: reply}})
	}
	return reply, nil
}

type noopCredentials struct{}

func (noopCredentials) Resolve(ctx context.Context, userID string) (provider.Credential, error) {
	return provider.Credential{Kind: provider.CredentialUserScoped}, nil
}

func collectStatuses(evs *[]events.Event) EventFunc {
	return func(ev events.Event) {
		*evs = append(*evs, ev)
	}
}

func statusSequence(evs []events.Event) []string {
	var seq []string
	for _, ev := range evs {
		if ev.Kind == events.KindStatus {
			seq = append(seq, ev.Agent+":"+string(ev.Status))
		}
	}
	return seq
}
