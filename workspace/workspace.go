// Package workspace materializes filesystem working copies of a source
// repository for a block's agents. Cloning shells out to the
// git binary via os/exec — grounded on kadirpekel-hector's dev.GitManager,
// the only git-invoking code anywhere in the retrieval pack.
package workspace

import (
	"context"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a Workspace record.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Mode is the creation mode for a block's workspace.
type Mode string

const (
	ModeNone     Mode = "none"
	ModeShared   Mode = "shared"
	ModeIsolated Mode = "isolated"
)

// Workspace is a materialized filesystem working copy for one block.
type Workspace struct {
	ID   string
	Mode Mode

	// Path is the workspace root: the configured project root (ModeNone),
	// the shared clone directory (ModeShared), or the isolated parent
	// directory (ModeIsolated).
	Path string

	// AgentMapping maps agent name to its relative subdirectory under Path.
	// Only set for ModeIsolated.
	AgentMapping map[string]string

	ExecutionID string
	Status      Status
}

// Store records Workspace lifecycle for persistence and bulk cleanup.
type Store interface {
	Create(ctx context.Context, ws *Workspace) error
	Get(ctx context.Context, id string) (*Workspace, error)
	List(ctx context.Context, executionID string) ([]*Workspace, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}

// ValidatePath enforces the safety rule that any absolute workspace
// path an agent's tools operate on must be under tempRoot. Used both by the
// Manager itself and by the (external) file-editor collaborator's
// authorization boundary check.
func ValidatePath(tempRoot, candidate string) error {
	cleanRoot := strings.TrimRight(tempRoot, "/")
	if candidate != cleanRoot && !strings.HasPrefix(candidate, cleanRoot+"/") {
		return fmt.Errorf("workspace: path %q is outside temp root %q", candidate, tempRoot)
	}
	return nil
}

// slugify replaces spaces and slashes in an agent name with underscores, so
// it is safe to use as a directory name.
func slugify(name string) string {
	r := strings.NewReplacer(" ", "_", "/", "_")
	return r.Replace(name)
}
