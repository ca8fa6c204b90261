package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/orchestrator/provider"
)

type fakeBackend struct {
	name  string
	reply string
}

func (b *fakeBackend) Invoke(ctx context.Context, systemPrompt, userMessage string, toolsEnabled bool, onEvent provider.OnEvent) (string, error) {
	if onEvent != nil {
		onEvent(provider.Event{Kind: provider.EventChunk, Chunk: b.reply})
		onEvent(provider.Event{Kind: provider.EventFinal, Final: &provider.FinalResult{FinalText: b.reply}})
	}
	return b.reply, nil
}

type fakeCredentials struct {
	kind provider.CredentialKind
}

func (c fakeCredentials) Resolve(ctx context.Context, userID string) (provider.Credential, error) {
	return provider.Credential{Kind: c.kind}, nil
}

func TestSendSelectsStreamingWhenCredentialAvailableAndToolsDisabled(t *testing.T) {
	streaming := &fakeBackend{name: "streaming", reply: "healthy"}
	session := &fakeBackend{name: "session", reply: "should not be used"}
	rt := NewRuntime(streaming, session, fakeCredentials{kind: provider.CredentialUserScoped}, nil)

	a := New("Analyzer", RoleWorker, "Summarize the health of the system.", nil)
	out, err := rt.Send(context.Background(), a, "logins=1000", "", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "healthy", out)
}

func TestSendSelectsSessionWhenToolsEnabled(t *testing.T) {
	streaming := &fakeBackend{name: "streaming", reply: "should not be used"}
	session := &fakeBackend{name: "session", reply: "edited file"}
	rt := NewRuntime(streaming, session, fakeCredentials{kind: provider.CredentialUserScoped}, nil)

	a := New("Editor", RoleWorker, "You may edit files.", nil)
	out, err := rt.Send(context.Background(), a, "fix the bug", "", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "edited file", out)
}

func TestSendSelectsSessionWhenNoStreamingCredential(t *testing.T) {
	streaming := &fakeBackend{name: "streaming", reply: "should not be used"}
	session := &fakeBackend{name: "session", reply: "session reply"}
	rt := NewRuntime(streaming, session, fakeCredentials{kind: provider.CredentialSessionOnly}, nil)

	a := New("Analyzer", RoleWorker, "Summarize.", nil)
	out, err := rt.Send(context.Background(), a, "task", "", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "session reply", out)
}

func TestSendPrependsContextPreamble(t *testing.T) {
	var captured string
	backend := providerCaptureFunc(func(ctx context.Context, systemPrompt, userMessage string, toolsEnabled bool, onEvent provider.OnEvent) (string, error) {
		captured = userMessage
		return "ok", nil
	})
	rt := NewRuntime(backend, backend, fakeCredentials{kind: provider.CredentialUserScoped}, nil)
	a := New("Analyzer", RoleWorker, "Summarize.", nil)

	_, err := rt.Send(context.Background(), a, "Analyze this", "logins=1000", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Context: logins=1000\n\nTask: Analyze this", captured)
}

func TestSendAppendsAppendOnlyHistory(t *testing.T) {
	streaming := &fakeBackend{reply: "healthy"}
	rt := NewRuntime(streaming, streaming, fakeCredentials{kind: provider.CredentialUserScoped}, nil)
	a := New("Analyzer", RoleWorker, "Summarize.", nil)

	_, err := rt.Send(context.Background(), a, "task", "", "user-1")
	require.NoError(t, err)
	require.Len(t, a.History, 2)
	assert.Equal(t, "user", a.History[0].Speaker)
	assert.Equal(t, "assistant", a.History[1].Speaker)
	assert.Equal(t, "healthy", a.History[1].Text)
}

func TestSendWithEventsTagsEventsWithAgentName(t *testing.T) {
	streaming := &fakeBackend{reply: "healthy"}
	rt := NewRuntime(streaming, streaming, fakeCredentials{kind: provider.CredentialUserScoped}, nil)
	a := New("Analyzer", RoleWorker, "Summarize.", nil)

	var tagged []AgentEvent
	_, err := rt.SendWithEvents(context.Background(), a, "task", "", "user-1", func(ev AgentEvent) {
		tagged = append(tagged, ev)
	})
	require.NoError(t, err)
	require.NotEmpty(t, tagged)
	for _, ev := range tagged {
		assert.Equal(t, "Analyzer", ev.Agent)
	}
}

type providerCaptureFunc func(ctx context.Context, systemPrompt, userMessage string, toolsEnabled bool, onEvent provider.OnEvent) (string, error)

func (f providerCaptureFunc) Invoke(ctx context.Context, systemPrompt, userMessage string, toolsEnabled bool, onEvent provider.OnEvent) (string, error) {
	return f(ctx, systemPrompt, userMessage, toolsEnabled, onEvent)
}
