package graph

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/orchestrator/agent"
	"github.com/agentmesh/orchestrator/events"
	"github.com/agentmesh/orchestrator/execlog"
	"github.com/agentmesh/orchestrator/provider"
)

// memLogStore is a minimal execlog.Store for tests that need Run's log to
// be readable back out, e.g. via Summary.
type memLogStore struct {
	mu   sync.Mutex
	logs map[string]*execlog.ExecutionLog
}

func newMemLogStore() *memLogStore {
	return &memLogStore{logs: make(map[string]*execlog.ExecutionLog)}
}

func (s *memLogStore) Create(ctx context.Context, l *execlog.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[l.ID] = l
	return nil
}

func (s *memLogStore) Update(ctx context.Context, l *execlog.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[l.ID] = l
	return nil
}

func (s *memLogStore) Get(ctx context.Context, id string) (*execlog.ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[id]
	if !ok {
		return nil, assert.AnError
	}
	return l, nil
}

type constBackend struct{ reply string }

func (b constBackend) Invoke(ctx context.Context, systemPrompt, userMessage string, toolsEnabled bool, onEvent provider.OnEvent) (string, error) {
	return b.reply, nil
}

// scenarioFBackend returns canned replies for B1/B2's agents and echoes the
// input verbatim for B3's agent, identified by system prompt.
type scenarioFBackend struct {
	canned map[string]string
	echoOn string
}

func (b scenarioFBackend) Invoke(ctx context.Context, systemPrompt, userMessage string, toolsEnabled bool, onEvent provider.OnEvent) (string, error) {
	if systemPrompt == b.echoOn {
		return userMessage, nil
	}
	return b.canned[systemPrompt], nil
}

type noopCreds struct{}

func (noopCreds) Resolve(ctx context.Context, userID string) (provider.Credential, error) {
	return provider.Credential{Kind: provider.CredentialUserScoped}, nil
}

// TestGraphDAGWithTwoPredecessors covers a DAG where B1 and B2
// have no predecessors; B3's predecessors are B1 and B2. Stub outputs
// B1→"x", B2→"y", B3 echoes its input. Expected B3 input equals
// "x\n\n---\n\ny" and B3's output equals that same string.
func TestGraphDAGWithTwoPredecessors(t *testing.T) {
	design := &Design{
		Name: "two-predecessors",
		Blocks: []Block{
			{ID: "B1", Type: PatternSequential, Data: BlockData{Agents: []BlockAgent{{Name: "A1", SystemPrompt: "agent-b1"}}}},
			{ID: "B2", Type: PatternSequential, Data: BlockData{Agents: []BlockAgent{{Name: "A2", SystemPrompt: "agent-b2"}}}},
			{ID: "B3", Type: PatternSequential, Data: BlockData{Agents: []BlockAgent{{Name: "A3", SystemPrompt: "agent-b3"}}}},
		},
		Connections: []Connection{
			{ID: "c1", Source: ConnectionEndpoint{BlockID: "B1"}, Target: ConnectionEndpoint{BlockID: "B3"}},
			{ID: "c2", Source: ConnectionEndpoint{BlockID: "B2"}, Target: ConnectionEndpoint{BlockID: "B3"}},
		},
	}

	backend := scenarioFBackend{
		canned: map[string]string{"agent-b1": "x", "agent-b2": "y"},
		echoOn: "agent-b3",
	}
	rt := agent.NewRuntime(backend, backend, noopCreds{}, nil)
	exec := &Executor{Runtime: rt, UserID: "u1"}

	var evs []events.Event
	log, err := exec.Run(context.Background(), design, "seed", RunOptions{}, func(ev events.Event) { evs = append(evs, ev) })
	require.NoError(t, err)

	assert.Equal(t, "x", log.Results["B1"])
	assert.Equal(t, "y", log.Results["B2"])
	assert.Equal(t, "x\n\n---\n\ny", log.Results["B3"])
}

// TestGraphCycleRejected covers the boundary behavior: a design containing
// a cycle is rejected with InvalidError and no blocks are executed.
func TestGraphCycleRejected(t *testing.T) {
	design := &Design{
		Blocks: []Block{
			{ID: "B1", Type: PatternSequential, Data: BlockData{Agents: []BlockAgent{{Name: "A1"}}}},
			{ID: "B2", Type: PatternSequential, Data: BlockData{Agents: []BlockAgent{{Name: "A2"}}}},
		},
		Connections: []Connection{
			{ID: "c1", Source: ConnectionEndpoint{BlockID: "B1"}, Target: ConnectionEndpoint{BlockID: "B2"}},
			{ID: "c2", Source: ConnectionEndpoint{BlockID: "B2"}, Target: ConnectionEndpoint{BlockID: "B1"}},
		},
	}

	exec := &Executor{Runtime: agent.NewRuntime(constBackend{}, constBackend{}, noopCreds{}, nil)}
	ran := false
	_, err := exec.Run(context.Background(), design, "seed", RunOptions{}, func(ev events.Event) {
		if ev.Kind == events.KindStatus {
			ran = true
		}
	})
	require.Error(t, err)
	var invalid *InvalidError
	assert.ErrorAs(t, err, &invalid)
	assert.False(t, ran)
}

// TestRunHonorsExternallySuppliedExecutionID covers the id-threading
// contract a deployment Receipt relies on: a caller-supplied
// RunOptions.ExecutionID becomes the id the created ExecutionLog is
// persisted under, not a freshly generated one.
func TestRunHonorsExternallySuppliedExecutionID(t *testing.T) {
	design := &Design{
		Name:   "single-block",
		Blocks: []Block{{ID: "B1", Type: PatternSequential, Data: BlockData{Agents: []BlockAgent{{Name: "A1", SystemPrompt: "p"}}}}},
	}

	logs := newMemLogStore()
	rt := agent.NewRuntime(constBackend{reply: "ok"}, constBackend{reply: "ok"}, noopCreds{}, nil)
	exec := &Executor{Runtime: rt, Logs: logs, UserID: "u1"}

	log, err := exec.Run(context.Background(), design, "seed", RunOptions{ExecutionID: "given-id", TriggerType: "manual"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "given-id", log.ID)
	assert.Equal(t, "manual", log.TriggerType)

	stored, err := logs.Get(context.Background(), "given-id")
	require.NoError(t, err)
	assert.Equal(t, execlog.StatusCompleted, stored.Status)
}

// TestSummaryReflectsPerAgentMessagesAndDuration covers Summary deriving
// real data from a completed run's ExecutionLog, not a stub.
func TestSummaryReflectsPerAgentMessagesAndDuration(t *testing.T) {
	design := &Design{
		Name: "two-blocks",
		Blocks: []Block{
			{ID: "B1", Type: PatternSequential, Data: BlockData{Agents: []BlockAgent{{Name: "A1", SystemPrompt: "p1"}}}},
			{ID: "B2", Type: PatternSequential, Data: BlockData{Agents: []BlockAgent{{Name: "A2", SystemPrompt: "p2"}}}},
		},
		Connections: []Connection{
			{ID: "c1", Source: ConnectionEndpoint{BlockID: "B1"}, Target: ConnectionEndpoint{BlockID: "B2"}},
		},
	}

	logs := newMemLogStore()
	rt := agent.NewRuntime(constBackend{reply: "ok"}, constBackend{reply: "ok"}, noopCreds{}, nil)
	exec := &Executor{Runtime: rt, Logs: logs, UserID: "u1"}

	log, err := exec.Run(context.Background(), design, "seed", RunOptions{}, nil)
	require.NoError(t, err)

	summary, err := exec.Summary(context.Background(), log.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.BlockCount)
	assert.Equal(t, map[string]int{"A1": 1, "A2": 1}, summary.PerAgentMessages)
	assert.Equal(t, log.Duration, summary.TotalDuration)
}
