package deployment

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agentmesh/orchestrator/storage"
	"github.com/agentmesh/orchestrator/telemetry"
)

// SchedulerConfig configures a Scheduler's refresh cadence.
type SchedulerConfig struct {
	// RefreshInterval is how often the Scheduler re-reads ListScheduled to
	// pick up newly enabled, disabled, or re-scheduled deployments.
	RefreshInterval time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = time.Minute
	}
	return c
}

// Scheduler triggers deployments whose Schedule.Enabled is true on their
// cron expression, and periodically re-reads the deployment store so
// schedule changes take effect without a restart.
type Scheduler struct {
	deployments storage.DeploymentStore
	service     *Service
	config      SchedulerConfig
	logger      telemetry.Logger

	cron *cron.Cron

	mu        sync.Mutex
	running   bool
	entryIDs  map[string]cron.EntryID
	cronExprs map[string]string
	cancel    context.CancelFunc
}

// NewScheduler constructs a Scheduler. logger may be nil.
func NewScheduler(deployments storage.DeploymentStore, service *Service, config SchedulerConfig, logger telemetry.Logger) *Scheduler {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Scheduler{
		deployments: deployments,
		service:     service,
		config:      config.withDefaults(),
		logger:      logger,
		cron:        cron.New(cron.WithSeconds()),
		entryIDs:    make(map[string]cron.EntryID),
		cronExprs:   make(map[string]string),
	}
}

// Start begins the cron scheduler and the periodic refresh loop. It
// returns once the first refresh has populated entries from
// ListScheduled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	if err := s.refresh(ctx); err != nil {
		return err
	}
	s.cron.Start()

	go s.refreshLoop(ctx)
	return nil
}

// Stop halts the cron scheduler and refresh loop, waiting for any
// in-flight cron job to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-s.cron.Stop().Done()
}

func (s *Scheduler) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.refresh(ctx); err != nil {
				s.logger.Error(ctx, "scheduler refresh failed", "error", err)
			}
		}
	}
}

// refresh reconciles cron entries against the current set of enabled
// scheduled deployments: new ones are added, removed or disabled ones are
// dropped, and re-scheduled ones are replaced.
func (s *Scheduler) refresh(ctx context.Context) error {
	deps, err := s.deployments.ListScheduled(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(deps))
	for _, dep := range deps {
		if !dep.Schedule.Enabled {
			continue
		}
		seen[dep.ID] = true

		if entryID, exists := s.entryIDs[dep.ID]; exists {
			if s.cronExprs[dep.ID] == dep.Schedule.CronExpr {
				continue
			}
			s.cron.Remove(entryID)
			delete(s.entryIDs, dep.ID)
			delete(s.cronExprs, dep.ID)
		}

		dep := dep
		id, err := s.cron.AddFunc(dep.Schedule.CronExpr, func() { s.runScheduled(dep) })
		if err != nil {
			s.logger.Error(ctx, "invalid cron expression, skipping deployment", "deployment", dep.ID, "cron_expr", dep.Schedule.CronExpr, "error", err)
			continue
		}
		s.entryIDs[dep.ID] = id
		s.cronExprs[dep.ID] = dep.Schedule.CronExpr
	}

	for id, entryID := range s.entryIDs {
		if !seen[id] {
			s.cron.Remove(entryID)
			delete(s.entryIDs, id)
			delete(s.cronExprs, id)
		}
	}
	return nil
}

func (s *Scheduler) runScheduled(dep *Deployment) {
	ctx := context.Background()
	if _, err := s.service.TriggerManual(ctx, dep.ID, ""); err != nil {
		s.logger.Error(ctx, "scheduled trigger failed", "deployment", dep.ID, "error", err)
	}
}
