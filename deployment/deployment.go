// Package deployment implements the entry surface that binds a Design to
// manual, endpoint, and scheduled triggers, running the Graph Executor
// asynchronously and returning a
// submission receipt immediately.
package deployment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentmesh/orchestrator/events"
	"github.com/agentmesh/orchestrator/execlog"
	"github.com/agentmesh/orchestrator/graph"
	"github.com/agentmesh/orchestrator/storage"
	"github.com/agentmesh/orchestrator/telemetry"
)

// Deployment is re-exported from storage so callers of this package don't
// need a separate import for the same type.
type Deployment = storage.Deployment

// Receipt is returned immediately by a trigger call; the actual run
// proceeds asynchronously.
type Receipt struct {
	ExecutionID string
	LogID       string
	StatusURL   string
}

// Service triggers deployments by id or endpoint path, running each as a
// fire-and-forget graph execution.
type Service struct {
	Designs     storage.DesignStore
	Deployments storage.DeploymentStore
	Logs        execlog.Store
	Bus         events.Bus
	Logger      telemetry.Logger

	// RunDesign executes design against input under executionID, publishing
	// events to Bus. Injected so Service does not depend on graph.Executor's
	// concrete collaborators (Runtime, Workspaces, UserID), which the host
	// service constructs per deployment; graph.Executor.RunDesignFunc is the
	// adapter a host wires in here. executionID is the id trigger already
	// handed back to the caller in a Receipt, so the created ExecutionLog
	// must be persisted under that same id.
	RunDesign func(ctx context.Context, design *graph.Design, input, executionID, triggerType string, onEvent func(events.Event)) (*execlog.ExecutionLog, error)
}

// NewService constructs a Service. logger may be nil.
func NewService(designs storage.DesignStore, deployments storage.DeploymentStore, logs execlog.Store, bus events.Bus, runDesign func(context.Context, *graph.Design, string, string, string, func(events.Event)) (*execlog.ExecutionLog, error), logger telemetry.Logger) *Service {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Service{Designs: designs, Deployments: deployments, Logs: logs, Bus: bus, RunDesign: runDesign, Logger: logger}
}

// TriggerManual executes the deployment identified by deploymentID.
func (s *Service) TriggerManual(ctx context.Context, deploymentID, input string) (Receipt, error) {
	dep, err := s.Deployments.Get(ctx, deploymentID)
	if err != nil {
		return Receipt{}, fmt.Errorf("deployment: looking up %s: %w", deploymentID, err)
	}
	return s.trigger(ctx, dep, input, "manual")
}

// TriggerEndpoint executes the deployment bound to path. body is passed
// through verbatim as the run's input; it is not parsed or checked to be
// JSON, and an empty body gives an empty input.
func (s *Service) TriggerEndpoint(ctx context.Context, path, body string) (Receipt, error) {
	dep, err := s.Deployments.GetByEndpointPath(ctx, path)
	if err != nil {
		return Receipt{}, fmt.Errorf("deployment: looking up endpoint %q: %w", path, err)
	}
	return s.trigger(ctx, dep, body, "endpoint")
}

func (s *Service) trigger(ctx context.Context, dep *Deployment, input, triggerType string) (Receipt, error) {
	design, err := s.Designs.Get(ctx, dep.DesignID)
	if err != nil {
		return Receipt{}, fmt.Errorf("deployment: loading design %s: %w", dep.DesignID, err)
	}

	logID := uuid.NewString()
	receipt := Receipt{ExecutionID: logID, LogID: logID, StatusURL: fmt.Sprintf("/executions/%s", logID)}

	go func() {
		runCtx := context.Background()
		_, err := s.RunDesign(runCtx, design, input, logID, triggerType, func(ev events.Event) {
			if s.Bus != nil {
				_ = s.Bus.Publish(runCtx, ev)
			}
		})
		if err != nil {
			s.Logger.Error(runCtx, "deployment run failed", "deployment", dep.ID, "error", err)
		}
	}()

	return receipt, nil
}
