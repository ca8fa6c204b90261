// Package storage declares the external collaborator interfaces the core
// depends on. No implementation lives
// here: designs, deployments, execution logs, workspaces, credentials, and
// the model catalog are all owned by the host service.
package storage

import (
	"context"

	"github.com/agentmesh/orchestrator/execlog"
	"github.com/agentmesh/orchestrator/graph"
	"github.com/agentmesh/orchestrator/provider"
	"github.com/agentmesh/orchestrator/workspace"
)

// DesignStore reads an OrchestrationDesign by id, used when a Deployment is
// triggered and its design must be loaded before the Graph Executor runs.
type DesignStore interface {
	Get(ctx context.Context, designID string) (*graph.Design, error)
}

// DeploymentStore reads a Deployment by id or endpoint path, and lists
// deployments whose schedule is enabled for the Scheduler to poll.
type DeploymentStore interface {
	Get(ctx context.Context, deploymentID string) (*Deployment, error)
	GetByEndpointPath(ctx context.Context, path string) (*Deployment, error)
	ListScheduled(ctx context.Context) ([]*Deployment, error)
}

// Deployment is a named binding of a design to an entry surface. Declared
// here rather than in package
// deployment to avoid a storage<->deployment import cycle; package
// deployment re-exports it.
type Deployment struct {
	ID           string
	DesignID     string
	EndpointPath string
	Schedule     Schedule
}

// Schedule is a Deployment's optional scheduled-trigger configuration.
type Schedule struct {
	Enabled  bool
	CronExpr string
}

// ExecutionLogStore re-exports execlog.Store under the storage package so
// callers depending only on storage need not import execlog directly.
type ExecutionLogStore = execlog.Store

// WorkspaceStore re-exports workspace.Store.
type WorkspaceStore = workspace.Store

// CredentialStore re-exports provider.CredentialStore.
type CredentialStore = provider.CredentialStore

// ModelCatalog reads the default LLM model for a user/deployment.
type ModelCatalog interface {
	DefaultModel(ctx context.Context, userID string) (string, error)
}
