package patterns

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/orchestrator/agent"
	"github.com/agentmesh/orchestrator/events"
)

// TestSequentialTwoAgents covers a Sequential block
// with agents Extractor then Analyzer; Extractor returns "logins=1000",
// Analyzer returns "healthy". Expected final_result: "healthy". Expected
// status sequence: Extractor:executing, Extractor:completed,
// Analyzer:executing, Analyzer:completed.
func TestSequentialTwoAgents(t *testing.T) {
	extractor := agent.New("Extractor", agent.RoleWorker, "Extract metrics from the input.", nil)
	analyzer := agent.New("Analyzer", agent.RoleWorker, "Summarize the health of the system.", nil)

	backend := &stubBackend{replies: map[string][]string{
		extractor.SystemPrompt: {"logins=1000"},
		analyzer.SystemPrompt:  {"healthy"},
	}}
	rt := agent.NewRuntime(backend, backend, noopCredentials{}, nil)

	seq := &Sequential{Runtime: rt, Agents: []*agent.Agent{extractor, analyzer}, UserID: "u1"}

	var evs []events.Event
	result, err := seq.Execute(context.Background(), "Analyze: logins=1000", collectStatuses(&evs))
	require.NoError(t, err)

	assert.Equal(t, "healthy", result.FinalResult)
	assert.Equal(t, "logins=1000", result.AgentResults["Extractor"])
	assert.Equal(t, "healthy", result.AgentResults["Analyzer"])
	assert.Equal(t, []string{
		"Extractor:executing", "Extractor:completed",
		"Analyzer:executing", "Analyzer:completed",
	}, statusSequence(evs))
}
