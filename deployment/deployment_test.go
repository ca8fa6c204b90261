package deployment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/orchestrator/events"
	"github.com/agentmesh/orchestrator/execlog"
	"github.com/agentmesh/orchestrator/graph"
	"github.com/agentmesh/orchestrator/storage"
)

type memDesignStore struct {
	designs map[string]*graph.Design
}

func (m *memDesignStore) Get(ctx context.Context, designID string) (*graph.Design, error) {
	d, ok := m.designs[designID]
	if !ok {
		return nil, assert.AnError
	}
	return d, nil
}

type memDeploymentStore struct {
	mu   sync.Mutex
	byID map[string]*Deployment
}

func (m *memDeploymentStore) Get(ctx context.Context, id string) (*Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byID[id]
	if !ok {
		return nil, assert.AnError
	}
	return d, nil
}

func (m *memDeploymentStore) GetByEndpointPath(ctx context.Context, path string) (*Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.byID {
		if d.EndpointPath == path {
			return d, nil
		}
	}
	return nil, assert.AnError
}

func (m *memDeploymentStore) ListScheduled(ctx context.Context) ([]*Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Deployment
	for _, d := range m.byID {
		if d.Schedule.Enabled {
			out = append(out, d)
		}
	}
	return out, nil
}

// memExecutionLogStore is an in-memory execlog.Store standing in for the
// host-provided store in tests that need the id a run actually persisted
// under to be readable back out.
type memExecutionLogStore struct {
	mu   sync.Mutex
	logs map[string]*execlog.ExecutionLog
}

func newMemExecutionLogStore() *memExecutionLogStore {
	return &memExecutionLogStore{logs: make(map[string]*execlog.ExecutionLog)}
}

func (s *memExecutionLogStore) Create(ctx context.Context, l *execlog.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[l.ID] = l
	return nil
}

func (s *memExecutionLogStore) Update(ctx context.Context, l *execlog.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[l.ID] = l
	return nil
}

func (s *memExecutionLogStore) Get(ctx context.Context, id string) (*execlog.ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[id]
	if !ok {
		return nil, assert.AnError
	}
	return l, nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition did not become true within %s", timeout)
}

// newTestService's runDesign simulates what graph.Executor.RunDesignFunc
// does: it persists the ExecutionLog under the caller-supplied
// executionID, so a test can assert that id is exactly the one handed back
// in the Receipt.
func newTestService(t *testing.T, input string) (*Service, *memDeploymentStore, *[]string) {
	designs := &memDesignStore{designs: map[string]*graph.Design{
		"design-1": {Name: "d1"},
	}}
	deployments := &memDeploymentStore{byID: map[string]*Deployment{
		"dep-1": {ID: "dep-1", DesignID: "design-1", EndpointPath: "/hooks/dep-1"},
	}}

	logs := newMemExecutionLogStore()

	var mu sync.Mutex
	var seen []string
	runDesign := func(ctx context.Context, design *graph.Design, in, executionID, triggerType string, onEvent func(events.Event)) (*execlog.ExecutionLog, error) {
		mu.Lock()
		seen = append(seen, design.Name+":"+in)
		mu.Unlock()
		log := execlog.New(executionID, "design-1", triggerType, in)
		_ = logs.Create(ctx, log)
		onEvent(events.Event{Kind: events.KindComplete})
		return log, nil
	}

	svc := NewService(designs, deployments, logs, events.NewBus(), runDesign, nil)
	return svc, deployments, &seen
}

func TestTriggerManualReturnsReceiptImmediately(t *testing.T) {
	svc, _, seen := newTestService(t, "hello")

	receipt, err := svc.TriggerManual(context.Background(), "dep-1", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.ExecutionID)
	assert.Equal(t, receipt.ExecutionID, receipt.LogID)
	assert.Contains(t, receipt.StatusURL, receipt.LogID)

	waitFor(t, time.Second, func() bool { return len(*seen) == 1 })
	assert.Equal(t, []string{"d1:hello"}, *seen)

	stored, err := svc.Logs.Get(context.Background(), receipt.LogID)
	require.NoError(t, err, "the log the run actually persisted must be reachable via the receipt's id")
	assert.Equal(t, receipt.LogID, stored.ID)
	assert.Equal(t, "manual", stored.TriggerType)
}

func TestTriggerEndpointLooksUpByPath(t *testing.T) {
	svc, _, seen := newTestService(t, "body")

	_, err := svc.TriggerEndpoint(context.Background(), "/hooks/dep-1", "body")
	require.NoError(t, err)

	waitFor(t, time.Second, func() bool { return len(*seen) == 1 })
	assert.Equal(t, []string{"d1:body"}, *seen)
}

func TestTriggerManualUnknownDeploymentErrors(t *testing.T) {
	svc, _, _ := newTestService(t, "")

	_, err := svc.TriggerManual(context.Background(), "missing", "")
	require.Error(t, err)
}

func TestTriggerManualPublishesEventsToBus(t *testing.T) {
	designs := &memDesignStore{designs: map[string]*graph.Design{"design-1": {Name: "d1"}}}
	deployments := &memDeploymentStore{byID: map[string]*Deployment{
		"dep-1": {ID: "dep-1", DesignID: "design-1"},
	}}

	runDesign := func(ctx context.Context, design *graph.Design, in, executionID, triggerType string, onEvent func(events.Event)) (*execlog.ExecutionLog, error) {
		onEvent(events.Event{Kind: events.KindStart})
		onEvent(events.Event{Kind: events.KindComplete})
		return execlog.New(executionID, "design-1", triggerType, in), nil
	}

	bus := events.NewBus()
	var mu sync.Mutex
	var received []events.Kind
	done := make(chan struct{})
	_, err := bus.Register(events.SubscriberFunc(func(ctx context.Context, ev events.Event) error {
		mu.Lock()
		received = append(received, ev.Kind)
		n := len(received)
		mu.Unlock()
		if n == 2 {
			close(done)
		}
		return nil
	}))
	require.NoError(t, err)

	svc := NewService(designs, deployments, nil, bus, runDesign, nil)
	_, err = svc.TriggerManual(context.Background(), "dep-1", "")
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published events")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []events.Kind{events.KindStart, events.KindComplete}, received)
}

var _ storage.DeploymentStore = (*memDeploymentStore)(nil)
var _ storage.DesignStore = (*memDesignStore)(nil)
