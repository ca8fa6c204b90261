package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/orchestrator/agent"
	"github.com/agentmesh/orchestrator/events"
	"github.com/agentmesh/orchestrator/execlog"
	"github.com/agentmesh/orchestrator/patterns"
	"github.com/agentmesh/orchestrator/telemetry"
	"github.com/agentmesh/orchestrator/workspace"
)

// separator joins predecessor outputs when threading context between
// blocks.
const separator = "\n\n---\n\n"

// Executor runs a full Design: topological ordering, per-block context
// threading, workspace acquisition, and incremental ExecutionLog
// persistence. The current design runs blocks strictly in topological
// order and never runs two blocks at once; parallelism exists only inside
// the Parallel Aggregation pattern. Metrics, Tracer, and Logger are optional; a nil value
// falls back to a no-op implementation at point of use, since Executor has
// no constructor and is always built as a struct literal.
type Executor struct {
	Runtime    *agent.Runtime
	Workspaces *workspace.Manager
	Logs       execlog.Store
	UserID     string

	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
	Logger  telemetry.Logger
}

// RunOptions customizes a Run call. ExecutionID lets a caller that already
// issued an id (e.g. deployment.Service's Receipt) force the created
// ExecutionLog to carry that same id, so the id a caller is handed up
// front always resolves to the log the run actually persists. An empty
// ExecutionID generates one internally, as before.
type RunOptions struct {
	ExecutionID string
	TriggerType string // "manual", "endpoint", or "direct"; defaults to "direct"
}

// Summary is a read-only, derived view over an ExecutionLog: block count,
// per-agent message count, and total duration. It derives entirely from
// the log; it is never itself persisted.
type Summary struct {
	ExecutionID      string
	BlockCount       int
	PerAgentMessages map[string]int
	TotalDuration    time.Duration
}

// Run validates design, computes its topological order, and executes each
// block in turn, threading predecessor outputs and persisting incremental
// results to the ExecutionLog. onEvent receives the full run event stream
// (start/workspace_info/status/chunk/complete/error).
func (e *Executor) Run(ctx context.Context, design *Design, initialInput string, opts RunOptions, onEvent func(events.Event)) (*execlog.ExecutionLog, error) {
	if err := ValidateDesign(design); err != nil {
		return nil, err
	}
	order, err := TopologicalOrder(design)
	if err != nil {
		return nil, err
	}

	executionID := opts.ExecutionID
	if executionID == "" {
		executionID = uuid.NewString()
	}
	triggerType := opts.TriggerType
	if triggerType == "" {
		triggerType = "direct"
	}

	ctx, span := e.tracer().Start(ctx, "graph.run")
	span.AddEvent("design", "name", design.Name, "execution_id", executionID)
	defer span.End()

	log := execlog.New(executionID, design.Name, triggerType, initialInput)
	if e.Logs != nil {
		if err := e.Logs.Create(ctx, log); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("graph: creating execution log: %w", err)
		}
	}

	allAgentNames := make([]string, 0)
	for _, b := range design.Blocks {
		for _, a := range b.Data.Agents {
			allAgentNames = append(allAgentNames, a.Name)
		}
	}
	emitEvent(onEvent, events.Event{Kind: events.KindStart, Agents: allAgentNames})

	outputs := make(map[string]string, len(order))
	priorResults := make(map[string]any, len(order))
	trackingEvent := func(ev events.Event) {
		if ev.Kind == events.KindStatus && ev.Status == events.StatusCompleted && ev.Agent != "" {
			log.IncrementAgentMessage(ev.Agent)
			e.metrics().IncCounter("orchestrator.agent_invocations", 1, "agent", ev.Agent)
		}
		emitEvent(onEvent, ev)
	}

	for _, blockID := range order {
		block := design.BlockByID(blockID)
		if block == nil {
			err := fmt.Errorf("graph: internal error: block %q missing after validation", blockID)
			e.failRun(ctx, span, log, err, onEvent)
			return log, err
		}

		input := blockInput(design, block, initialInput, outputs)

		ws, err := e.acquireWorkspace(ctx, block, executionID, onEvent)
		if err != nil {
			e.failRun(ctx, span, log, err, onEvent)
			return log, err
		}

		blockCtx, blockSpan := e.tracer().Start(ctx, "graph.block")
		blockStart := time.Now()
		result, err := e.runBlock(blockCtx, block, input, priorResults, ws, trackingEvent)
		e.metrics().RecordTimer("orchestrator.block_duration", time.Since(blockStart), "block", block.ID, "pattern", string(block.Type))
		if err != nil {
			blockSpan.RecordError(err)
			blockSpan.End()
			e.metrics().IncCounter("orchestrator.block_failures", 1, "block", block.ID)
			e.failRun(ctx, span, log, err, onEvent)
			return log, err
		}
		blockSpan.End()

		outputs[blockID] = result.FinalResult
		priorResults[blockID] = result.FinalResult
		log.SetBlockResult(blockID, result.FinalResult)
		e.persist(ctx, log)
	}

	finalResult := ""
	if len(order) > 0 {
		finalResult = outputs[order[len(order)-1]]
	}
	log.Complete(finalResult)
	e.persist(ctx, log)
	e.logger().Info(ctx, "graph run completed", "execution_id", executionID, "design", design.Name)

	emitEvent(onEvent, events.Event{Kind: events.KindComplete, Result: finalResult})
	return log, nil
}

// failRun records err onto log, persists it, emits a KindError event, and
// marks span as failed. Shared by every Run error path so telemetry and
// persistence stay consistent.
func (e *Executor) failRun(ctx context.Context, span telemetry.Span, log *execlog.ExecutionLog, err error, onEvent func(events.Event)) {
	log.Fail(err)
	e.persist(ctx, log)
	span.RecordError(err)
	e.metrics().IncCounter("orchestrator.run_failures", 1, "design", log.DesignID)
	e.logger().Error(ctx, "graph run failed", "execution_id", log.ID, "error", err)
	emitEvent(onEvent, events.Event{Kind: events.KindError, Err: err})
}

// Summary derives a diagnostic view over a completed or in-progress
// ExecutionLog.
func (e *Executor) Summary(ctx context.Context, executionID string) (*Summary, error) {
	if e.Logs == nil {
		return nil, fmt.Errorf("graph: no execution log store configured")
	}
	log, err := e.Logs.Get(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("graph: reading execution log %s: %w", executionID, err)
	}
	return &Summary{
		ExecutionID:      executionID,
		BlockCount:       len(log.Results),
		PerAgentMessages: log.AgentMessageCounts,
		TotalDuration:    log.Duration,
	}, nil
}

// RunDesignFunc adapts Run to the signature deployment.Service expects for
// its RunDesign collaborator, so a deployment trigger carries its
// externally-issued id into the ExecutionLog Run creates.
func (e *Executor) RunDesignFunc(ctx context.Context, design *Design, input, executionID, triggerType string, onEvent func(events.Event)) (*execlog.ExecutionLog, error) {
	return e.Run(ctx, design, input, RunOptions{ExecutionID: executionID, TriggerType: triggerType}, onEvent)
}

func (e *Executor) persist(ctx context.Context, log *execlog.ExecutionLog) {
	if e.Logs == nil {
		return
	}
	_ = e.Logs.Update(ctx, log)
}

func (e *Executor) metrics() telemetry.Metrics {
	if e.Metrics == nil {
		return telemetry.NewNoopMetrics()
	}
	return e.Metrics
}

func (e *Executor) tracer() telemetry.Tracer {
	if e.Tracer == nil {
		return telemetry.NewNoopTracer()
	}
	return e.Tracer
}

func (e *Executor) logger() telemetry.Logger {
	if e.Logger == nil {
		return telemetry.NewNoopLogger()
	}
	return e.Logger
}

func (e *Executor) acquireWorkspace(ctx context.Context, block *Block, executionID string, onEvent func(events.Event)) (*workspace.Workspace, error) {
	if e.Workspaces == nil {
		return nil, nil
	}
	names := make([]string, 0, len(block.Data.Agents))
	for _, a := range block.Data.Agents {
		names = append(names, a.Name)
	}
	ws, err := e.Workspaces.Acquire(ctx, workspace.AcquireRequest{
		ExecutionID: executionID,
		GitRepo:     block.Data.GitRepo,
		Isolate:     block.Data.IsolateAgentWorkspaces,
		AgentNames:  names,
	})
	if err != nil {
		return nil, fmt.Errorf("graph: acquiring workspace for block %s: %w", block.ID, err)
	}
	if ws.Mode == workspace.ModeIsolated {
		emitEvent(onEvent, events.Event{
			Kind: events.KindWorkspaceInfo, ExecutionID: executionID,
			ParentDir: ws.Path, AgentMapping: ws.AgentMapping,
		})
	}
	return ws, nil
}

// blockInput computes the input a block receives: the run's initial input
// if it has no predecessors, otherwise the \n\n---\n\n-joined outputs of
// its source blocks, each JSON-pretty-printed if dict-valued (here: Go's
// outputs are always strings already, so no re-marshaling is needed beyond
// what patterns/graph already produce as text).
func blockInput(design *Design, block *Block, initialInput string, outputs map[string]string) string {
	var predecessorOutputs []string
	for _, c := range design.Connections {
		if c.Target.BlockOnly() != block.ID {
			continue
		}
		if out, ok := outputs[c.Source.BlockOnly()]; ok {
			predecessorOutputs = append(predecessorOutputs, out)
		}
	}

	var input string
	if len(predecessorOutputs) == 0 {
		input = initialInput
	} else {
		input = strings.Join(predecessorOutputs, separator)
	}
	if block.Data.Task != "" {
		input = block.Data.Task + "\n\n" + input
	}
	return input
}

func (e *Executor) runBlock(ctx context.Context, block *Block, input string, priorResults map[string]any, ws *workspace.Workspace, onEvent func(events.Event)) (*patterns.Result, error) {
	exec, err := e.buildExecutor(block, priorResults, ws)
	if err != nil {
		return nil, err
	}
	return exec.Execute(ctx, input, func(ev events.Event) { emitEvent(onEvent, ev) })
}

func (e *Executor) buildExecutor(block *Block, priorResults map[string]any, ws *workspace.Workspace) (patterns.Executor, error) {
	agents := make([]*agent.Agent, 0, len(block.Data.Agents))
	for _, a := range block.Data.Agents {
		systemPrompt := a.SystemPrompt
		if ws != nil && ws.Mode == workspace.ModeIsolated {
			systemPrompt = workspaceInstructionBlock(ws, a.Name) + systemPrompt
		}
		agents = append(agents, agent.New(a.Name, agent.Role(a.Role), systemPrompt, nil))
	}

	switch block.Type {
	case PatternSequential:
		return &patterns.Sequential{Runtime: e.Runtime, Agents: agents, UserID: e.UserID}, nil

	case PatternParallel:
		participants, aggregator := splitAggregator(agents)
		return &patterns.Parallel{Runtime: e.Runtime, Agents: participants, Aggregator: aggregator, UserID: e.UserID}, nil

	case PatternHierarchy:
		manager, workers, err := splitManager(agents, block.ID)
		if err != nil {
			return nil, err
		}
		return &patterns.Hierarchical{Runtime: e.Runtime, Manager: manager, Workers: workers, UserID: e.UserID}, nil

	case PatternDebate:
		rounds := block.Data.Rounds
		if rounds < 1 {
			rounds = 1
		}
		return &patterns.Debate{Runtime: e.Runtime, Debaters: agents, Topic: block.Data.Task, Rounds: rounds, UserID: e.UserID}, nil

	case PatternRouting:
		router, specialists, err := splitManager(agents, block.ID)
		if err != nil {
			return nil, err
		}
		return &patterns.Routing{Runtime: e.Runtime, Router: router, Specialists: specialists, UserID: e.UserID}, nil

	case PatternReflection:
		return &patterns.Reflection{
			Sequential:   patterns.Sequential{Runtime: e.Runtime, Agents: agents, UserID: e.UserID},
			PriorResults: priorResults,
		}, nil

	default:
		return nil, &InvalidError{Reason: fmt.Sprintf("block %q has unknown pattern %q", block.ID, block.Type)}
	}
}

// splitAggregator separates a "moderator"-role agent out as the Parallel
// block's aggregator; all others participate in the fan-out.
func splitAggregator(agents []*agent.Agent) (participants []*agent.Agent, aggregator *agent.Agent) {
	for _, a := range agents {
		if a.Role == agent.RoleModerator && aggregator == nil {
			aggregator = a
			continue
		}
		participants = append(participants, a)
	}
	return participants, aggregator
}

// splitManager separates the "manager"-role agent (the Hierarchical
// block's manager, or the Routing block's router) from the rest, which
// keep their declared order.
func splitManager(agents []*agent.Agent, blockID string) (manager *agent.Agent, rest []*agent.Agent, err error) {
	for _, a := range agents {
		if a.Role == agent.RoleManager && manager == nil {
			manager = a
			continue
		}
		rest = append(rest, a)
	}
	if manager == nil {
		return nil, nil, &InvalidError{Reason: fmt.Sprintf("block %q has no manager-role agent", blockID)}
	}
	return manager, rest, nil
}

// workspaceInstructionBlock is the isolated-mode preamble prepended to an
// agent's system prompt: it states the agent's relative
// working directory, instructs shell commands to use that relative path,
// and instructs editor tools to pass the workspace identifier.
func workspaceInstructionBlock(ws *workspace.Workspace, agentName string) string {
	sub, ok := ws.AgentMapping[agentName]
	if !ok {
		return ""
	}
	return fmt.Sprintf(
		"Your working directory for this task is %q, relative to workspace %s. "+
			"Run shell commands from that relative path. When using editor tools, "+
			"pass %s as the workspace identifier.\n\n",
		sub, ws.ID, ws.ID,
	)
}

func emitEvent(onEvent func(events.Event), ev events.Event) {
	if onEvent == nil {
		return
	}
	onEvent(ev)
}
