// Command orchestrator-demo wires the core packages together end to end:
// an in-memory design store, a canned provider backend behind a rate
// limiter, the Graph Executor instrumented with clue/OTEL telemetry, and a
// deployment.Service triggering it asynchronously, printing the run's
// event stream to stdout as it executes.
package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/agentmesh/orchestrator/agent"
	"github.com/agentmesh/orchestrator/deployment"
	"github.com/agentmesh/orchestrator/events"
	"github.com/agentmesh/orchestrator/execlog"
	"github.com/agentmesh/orchestrator/graph"
	"github.com/agentmesh/orchestrator/provider"
	"github.com/agentmesh/orchestrator/providers/ratelimit"
	"github.com/agentmesh/orchestrator/storage"
	"github.com/agentmesh/orchestrator/telemetry"
)

// cannedBackend replies with a fixed string per system prompt and emits a
// single chunk before the final event, enough to drive the full event
// stream without a real LLM call.
type cannedBackend struct {
	replies map[string]string
}

func (b cannedBackend) Invoke(ctx context.Context, systemPrompt, userMessage string, toolsEnabled bool, onEvent provider.OnEvent) (string, error) {
	reply, ok := b.replies[systemPrompt]
	if !ok {
		reply = fmt.Sprintf("(no canned reply for %q)", systemPrompt)
	}
	if onEvent != nil {
		onEvent(provider.Event{Kind: provider.EventChunk, Chunk: reply})
		onEvent(provider.Event{Kind: provider.EventFinal, Final: &provider.FinalResult{FinalText: reply, OutputTokens: len(reply) / 4}})
	}
	return reply, nil
}

// sessionOnlyCredentials always reports no streaming-capable credential, so
// SelectBackend always picks the session backend; the demo only wires one
// backend for both roles, so it doesn't matter which is picked.
type sessionOnlyCredentials struct{}

func (sessionOnlyCredentials) Resolve(ctx context.Context, userID string) (provider.Credential, error) {
	return provider.Credential{Kind: provider.CredentialSessionOnly}, nil
}

// memDesignStore is an in-memory storage.DesignStore backed by raw JSON, so
// Get exercises graph.ParseDesign (and therefore ValidateDesignJSON) the
// same way a host service's real store would.
type memDesignStore struct {
	raw map[string][]byte
}

func (s *memDesignStore) Get(ctx context.Context, designID string) (*graph.Design, error) {
	raw, ok := s.raw[designID]
	if !ok {
		return nil, fmt.Errorf("design %q not found", designID)
	}
	return graph.ParseDesign(raw)
}

// memDeploymentStore is an in-memory storage.DeploymentStore.
type memDeploymentStore struct {
	byID map[string]*storage.Deployment
}

func (s *memDeploymentStore) Get(ctx context.Context, id string) (*storage.Deployment, error) {
	d, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("deployment %q not found", id)
	}
	return d, nil
}

func (s *memDeploymentStore) GetByEndpointPath(ctx context.Context, path string) (*storage.Deployment, error) {
	for _, d := range s.byID {
		if d.EndpointPath == path {
			return d, nil
		}
	}
	return nil, fmt.Errorf("endpoint %q not found", path)
}

func (s *memDeploymentStore) ListScheduled(ctx context.Context) ([]*storage.Deployment, error) {
	return nil, nil
}

// memExecutionLogStore is an in-memory execlog.Store.
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
		return nil, fmt.Errorf("execution log %q not found", id)
	}
	return l, nil
}

func main() {
	extractorPrompt := "You extract structured facts from raw incident text."
	analyzerPrompt := "You analyze extracted facts and report overall system health."

	backend := cannedBackend{replies: map[string]string{
		extractorPrompt: `{"service":"checkout","errors":3}`,
		analyzerPrompt:  "healthy",
	}}

	// Wrap the backend in an adaptive token-bucket so a burst of concurrent
	// agent calls (e.g. a Parallel Aggregation block) cannot exceed a
	// tokens-per-minute budget for this process.
	limited := ratelimit.New(backend, 60000, 120000)

	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()
	tracer := telemetry.NewClueTracer()

	rt := agent.NewRuntimeWithTelemetry(limited, limited, sessionOnlyCredentials{}, logger, metrics, tracer)

	designJSON := []byte(`{
		"name": "incident-triage",
		"description": "Extract facts from an incident report, then assess system health.",
		"blocks": [
			{"id": "extract", "type": "sequential", "data": {"agents": [{"name": "Extractor", "system_prompt": "You extract structured facts from raw incident text."}]}},
			{"id": "analyze", "type": "sequential", "data": {"agents": [{"name": "Analyzer", "system_prompt": "You analyze extracted facts and report overall system health."}]}}
		],
		"connections": [
			{"id": "c1", "source": "extract", "target": "analyze"}
		]
	}`)

	designs := &memDesignStore{raw: map[string][]byte{"incident-triage": designJSON}}
	logs := newMemExecutionLogStore()

	bus := events.NewBus()
	_, err := bus.Register(events.SubscriberFunc(func(ctx context.Context, ev events.Event) error {
		fmt.Printf("[event] kind=%s status=%s result=%q\n", ev.Kind, ev.Status, ev.Result)
		return nil
	}))
	if err != nil {
		log.Fatalf("registering event subscriber: %v", err)
	}

	exec := &graph.Executor{Runtime: rt, Logs: logs, UserID: "demo-user", Metrics: metrics, Tracer: tracer, Logger: logger}

	deployments := &memDeploymentStore{byID: map[string]*storage.Deployment{
		"dep-1": {ID: "dep-1", DesignID: "incident-triage", EndpointPath: "/hooks/incident-triage"},
	}}
	svc := deployment.NewService(designs, deployments, logs, bus, exec.RunDesignFunc, logger)

	receipt, err := svc.TriggerManual(context.Background(), "dep-1", "3 checkout errors in the last 5 minutes")
	if err != nil {
		log.Fatalf("triggering deployment: %v", err)
	}
	fmt.Printf("submitted, status at %s\n", receipt.StatusURL)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		runLog, err := logs.Get(context.Background(), receipt.LogID)
		if err == nil && runLog.Status != execlog.StatusRunning {
			fmt.Printf("\nexecution %s status=%s trigger=%s results=%v final=%q duration=%s\n",
				runLog.ID, runLog.Status, runLog.TriggerType, runLog.Results, runLog.FinalResult, runLog.Duration)

			summary, err := exec.Summary(context.Background(), runLog.ID)
			if err != nil {
				log.Fatalf("summarizing run: %v", err)
			}
			fmt.Printf("summary: blocks=%d per_agent=%v total_duration=%s\n",
				summary.BlockCount, summary.PerAgentMessages, summary.TotalDuration)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	log.Fatal("timed out waiting for deployment run to complete")
}
