package patterns

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/orchestrator/agent"
)

// TestHierarchicalMalformedDelegationFallsBack covers the case where:
// the manager's delegation response is "not json", so both workers receive
// the original task and return "r1"/"r2"; the manager's synthesis call
// returns "done". Expected final_result: "done"; expected worker_results:
// {W1:"r1", W2:"r2"}.
func TestHierarchicalMalformedDelegationFallsBack(t *testing.T) {
	manager := agent.New("Manager", agent.RoleManager, "You manage workers.", nil)
	w1 := agent.New("W1", agent.RoleWorker, "Worker one.", nil)
	w2 := agent.New("W2", agent.RoleWorker, "Worker two.", nil)

	backend := &stubBackend{replies: map[string][]string{
		manager.SystemPrompt: {"not json", "done"},
		w1.SystemPrompt:      {"r1"},
		w2.SystemPrompt:      {"r2"},
	}}
	rt := agent.NewRuntime(backend, backend, noopCredentials{}, nil)

	h := &Hierarchical{Runtime: rt, Manager: manager, Workers: []*agent.Agent{w1, w2}, UserID: "u1"}
	result, err := h.Execute(context.Background(), "original task", nil)
	require.NoError(t, err)

	assert.Equal(t, "done", result.FinalResult)
	assert.Equal(t, map[string]string{"W1": "r1", "W2": "r2"}, result.Meta["worker_results"])
	assert.Equal(t, true, result.Meta["delegation_fallback"])
}

// TestHierarchicalValidDelegationDropsUnknownWorker covers the tie-break
// rule: a subtask naming a worker absent from the block is silently
// dropped.
func TestHierarchicalValidDelegationDropsUnknownWorker(t *testing.T) {
	manager := agent.New("Manager", agent.RoleManager, "You manage workers.", nil)
	w1 := agent.New("W1", agent.RoleWorker, "Worker one.", nil)

	delegation := `{"subtasks":[{"worker":"W1","task":"do part 1"},{"worker":"Ghost","task":"do part 2"}]}`
	backend := &stubBackend{replies: map[string][]string{
		manager.SystemPrompt: {delegation, "synthesized"},
		w1.SystemPrompt:      {"r1"},
	}}
	rt := agent.NewRuntime(backend, backend, noopCredentials{}, nil)

	h := &Hierarchical{Runtime: rt, Manager: manager, Workers: []*agent.Agent{w1}, UserID: "u1"}
	result, err := h.Execute(context.Background(), "original task", nil)
	require.NoError(t, err)

	assert.Equal(t, "synthesized", result.FinalResult)
	assert.Equal(t, map[string]string{"W1": "r1"}, result.Meta["worker_results"])
	assert.Equal(t, false, result.Meta["delegation_fallback"])
}
