package workspace

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/agentmesh/orchestrator/telemetry"
)

// SSHMaterial is staged into each clone so subsequent push/pull by an
// agent's tools can authenticate.
type SSHMaterial struct {
	PrivateKey []byte
	PublicKey  []byte
	Config     []byte
}

// AcquireRequest describes the workspace a block needs. GitRepo empty means
// ModeNone; otherwise Isolate selects between Shared
// and Isolated mode.
type AcquireRequest struct {
	ExecutionID string
	GitRepo     string
	Isolate     bool
	AgentNames  []string
	SSH         *SSHMaterial
}

// Manager implements the three Workspace creation modes.
type Manager struct {
	// TempRoot is the prefix every cloned workspace lives under.
	TempRoot string
	// ProjectRoot is returned verbatim for ModeNone.
	ProjectRoot string
	Store       Store
	Logger      telemetry.Logger

	// runGit executes a git subcommand; overridable in tests.
	runGit func(dir string, args ...string) error
}

// NewManager constructs a Manager. logger may be nil.
func NewManager(tempRoot, projectRoot string, store Store, logger telemetry.Logger) *Manager {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	m := &Manager{TempRoot: tempRoot, ProjectRoot: projectRoot, Store: store, Logger: logger}
	m.runGit = m.execGit
	return m
}

// Acquire implements the three workspace creation modes: none, shared, and
// isolated.
func (m *Manager) Acquire(ctx context.Context, req AcquireRequest) (*Workspace, error) {
	if req.GitRepo == "" {
		ws := &Workspace{ID: uuid.NewString(), Mode: ModeNone, Path: m.ProjectRoot, ExecutionID: req.ExecutionID, Status: StatusActive}
		return ws, m.record(ctx, ws)
	}
	if req.Isolate {
		return m.acquireIsolated(ctx, req)
	}
	return m.acquireShared(ctx, req)
}

func (m *Manager) acquireShared(ctx context.Context, req AcquireRequest) (*Workspace, error) {
	dir := filepath.Join(m.TempRoot, fmt.Sprintf("orchestration_block_%s", uuid.NewString()))
	if err := m.cloneInto(ctx, req.GitRepo, dir, req.SSH); err != nil {
		_ = os.RemoveAll(dir)
		m.Logger.Error(ctx, "shared workspace clone failed", "repo", req.GitRepo, "execution_id", req.ExecutionID, "error", err)
		return nil, fmt.Errorf("workspace: shared clone: %w", err)
	}
	m.Logger.Info(ctx, "shared workspace cloned", "repo", req.GitRepo, "execution_id", req.ExecutionID, "path", dir)
	ws := &Workspace{ID: uuid.NewString(), Mode: ModeShared, Path: dir, ExecutionID: req.ExecutionID, Status: StatusActive}
	return ws, m.record(ctx, ws)
}

func (m *Manager) acquireIsolated(ctx context.Context, req AcquireRequest) (*Workspace, error) {
	parent := filepath.Join(m.TempRoot, fmt.Sprintf("orchestration_isolated_%s", uuid.NewString()))
	mapping := make(map[string]string, len(req.AgentNames))

	for _, name := range req.AgentNames {
		sub := slugify(name)
		dir := filepath.Join(parent, sub)
		if err := m.cloneInto(ctx, req.GitRepo, dir, req.SSH); err != nil {
			// Atomic failure: remove the entire parent, not just this clone.
			_ = os.RemoveAll(parent)
			m.Logger.Error(ctx, "isolated workspace clone failed", "repo", req.GitRepo, "agent", name, "execution_id", req.ExecutionID, "error", err)
			return nil, fmt.Errorf("workspace: isolated clone for agent %s: %w", name, err)
		}
		mapping[name] = sub
	}

	m.Logger.Info(ctx, "isolated workspace cloned", "repo", req.GitRepo, "execution_id", req.ExecutionID, "path", parent, "agents", len(mapping))
	ws := &Workspace{
		ID: uuid.NewString(), Mode: ModeIsolated, Path: parent, AgentMapping: mapping,
		ExecutionID: req.ExecutionID, Status: StatusActive,
	}
	return ws, m.record(ctx, ws)
}

// cloneInto performs a shallow clone of repo into dir, then stages SSH
// material into the resulting clone when provided. Cloning must run first:
// git clone refuses a dir that already exists and is non-empty, so staging
// ssh material into dir before the clone would make every SSH-carrying
// clone fail.
func (m *Manager) cloneInto(ctx context.Context, repo, dir string, ssh *SSHMaterial) error {
	if err := os.MkdirAll(filepath.Dir(dir), 0o700); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	if err := m.runGit(filepath.Dir(dir), "clone", "--depth", "1", repo, dir); err != nil {
		return fmt.Errorf("git clone: %w", err)
	}
	if ssh != nil {
		if err := stageSSHMaterial(dir, ssh); err != nil {
			return fmt.Errorf("staging ssh material: %w", err)
		}
	}
	return nil
}

func (m *Manager) execGit(dir string, args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// stageSSHMaterial writes private key, public key, and config with strict
// permission bits into dir's .ssh subdirectory.
func stageSSHMaterial(dir string, ssh *SSHMaterial) error {
	sshDir := filepath.Join(dir, ".ssh")
	if err := os.MkdirAll(sshDir, 0o700); err != nil {
		return err
	}
	if len(ssh.PrivateKey) > 0 {
		if err := os.WriteFile(filepath.Join(sshDir, "id_rsa"), ssh.PrivateKey, 0o600); err != nil {
			return err
		}
	}
	if len(ssh.PublicKey) > 0 {
		if err := os.WriteFile(filepath.Join(sshDir, "id_rsa.pub"), ssh.PublicKey, 0o644); err != nil {
			return err
		}
	}
	if len(ssh.Config) > 0 {
		if err := os.WriteFile(filepath.Join(sshDir, "config"), ssh.Config, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) record(ctx context.Context, ws *Workspace) error {
	if m.Store == nil {
		return nil
	}
	if err := ValidatePath(m.TempRoot, ws.Path); err != nil && ws.Mode != ModeNone {
		return err
	}
	return m.Store.Create(ctx, ws)
}

// Cleanup removes the workspace directory and marks it archived.
func (m *Manager) Cleanup(ctx context.Context, id string) error {
	if m.Store == nil {
		return fmt.Errorf("workspace: no store configured")
	}
	ws, err := m.Store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("workspace: looking up %s: %w", id, err)
	}
	if ws.Mode != ModeNone {
		if err := os.RemoveAll(ws.Path); err != nil {
			return fmt.Errorf("workspace: removing %s: %w", ws.Path, err)
		}
	}
	return m.Store.UpdateStatus(ctx, id, StatusArchived)
}

// CleanupExecution archives every workspace recorded for executionID.
func (m *Manager) CleanupExecution(ctx context.Context, executionID string) error {
	if m.Store == nil {
		return fmt.Errorf("workspace: no store configured")
	}
	all, err := m.Store.List(ctx, executionID)
	if err != nil {
		return fmt.Errorf("workspace: listing for execution %s: %w", executionID, err)
	}
	for _, ws := range all {
		if err := m.Cleanup(ctx, ws.ID); err != nil {
			return err
		}
	}
	return nil
}
