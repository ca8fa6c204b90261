package patterns

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentmesh/orchestrator/agent"
	"github.com/agentmesh/orchestrator/events"
)

// delegationPlan is the JSON object the manager is asked to emit during the
// delegation phase.
type delegationPlan struct {
	Subtasks []struct {
		Worker string `json:"worker"`
		Task   string `json:"task"`
	} `json:"subtasks"`
}

const delegationDirective = "Break this task into subtasks for your workers. " +
	"Respond with only a JSON object of the form " +
	`{"subtasks":[{"worker":"<name>","task":"<string>"}, ...]}.`

// Hierarchical delegates from a manager to an ordered set of workers, then
// asks the manager to synthesize the workers' outputs.
type Hierarchical struct {
	Runtime *agent.Runtime
	Manager *agent.Agent
	Workers []*agent.Agent
	UserID  string
}

// Execute implements Executor. If the manager's delegation response is not
// valid JSON, every worker falls back to receiving the original task
// unmodified. If the manager names a worker absent from Workers, that
// subtask is silently dropped.
func (h *Hierarchical) Execute(ctx context.Context, task string, onEvent EventFunc) (*Result, error) {
	result := &Result{
		Pattern:      "hierarchical",
		AgentResults: make(map[string]string, len(h.Workers)+1),
		Durations:    make(map[string]time.Duration, len(h.Workers)+1),
		Meta:         make(map[string]any),
	}

	emitStatus(onEvent, h.Manager.Name, events.StatusDelegating)
	start := time.Now()
	delegationMsg := fmt.Sprintf("%s\n\nTask: %s", delegationDirective, task)
	delegationResp, err := h.Runtime.SendWithEvents(ctx, h.Manager, delegationMsg, "", h.UserID, chunkForwarder(onEvent))
	delegationDuration := time.Since(start)
	if err != nil {
		return result, fmt.Errorf("hierarchical: manager %s delegation: %w", h.Manager.Name, err)
	}
	emitStatusWithDuration(onEvent, h.Manager.Name, events.StatusCompleted, delegationDuration)

	workerTasks, fallback := parseDelegation(delegationResp, h.Workers, task)
	result.Meta["delegation_fallback"] = fallback

	workerResults := make(map[string]string, len(h.Workers))
	for _, w := range h.Workers {
		wTask, ok := workerTasks[w.Name]
		if !ok {
			continue
		}
		emitStatus(onEvent, w.Name, events.StatusExecuting)
		wStart := time.Now()
		out, err := h.Runtime.SendWithEvents(ctx, w, wTask, "", h.UserID, chunkForwarder(onEvent))
		wDuration := time.Since(wStart)
		if err != nil {
			return result, fmt.Errorf("hierarchical: worker %s: %w", w.Name, err)
		}
		emitStatusWithDuration(onEvent, w.Name, events.StatusCompleted, wDuration)

		result.AgentResults[w.Name] = out
		result.Durations[w.Name] = wDuration
		workerResults[w.Name] = out
	}
	result.Meta["worker_results"] = workerResults

	payload, err := json.MarshalIndent(workerResults, "", "  ")
	if err != nil {
		return result, fmt.Errorf("hierarchical: marshaling worker results: %w", err)
	}
	synthesisMsg := fmt.Sprintf("Original task: %s\n\nWorker outputs:\n%s\n\nSynthesize a final result.", task, payload)

	emitStatus(onEvent, h.Manager.Name, events.StatusSynthesizing)
	synStart := time.Now()
	synthesis, err := h.Runtime.SendWithEvents(ctx, h.Manager, synthesisMsg, "", h.UserID, chunkForwarder(onEvent))
	synDuration := time.Since(synStart)
	if err != nil {
		return result, fmt.Errorf("hierarchical: manager %s synthesis: %w", h.Manager.Name, err)
	}
	emitStatusWithDuration(onEvent, h.Manager.Name, events.StatusCompleted, synDuration)

	result.AgentResults[h.Manager.Name] = synthesis
	result.Durations[h.Manager.Name] = delegationDuration + synDuration
	result.FinalResult = synthesis
	return result, nil
}

// parseDelegation parses resp as a delegationPlan and maps each named
// worker to its assigned subtask. Unknown worker names are dropped. If
// parsing fails, every worker in workers is mapped to the original task.
func parseDelegation(resp string, workers []*agent.Agent, originalTask string) (map[string]string, bool) {
	var plan delegationPlan
	if err := json.Unmarshal([]byte(resp), &plan); err != nil || len(plan.Subtasks) == 0 {
		fallback := make(map[string]string, len(workers))
		for _, w := range workers {
			fallback[w.Name] = originalTask
		}
		return fallback, true
	}

	assigned := make(map[string]string, len(plan.Subtasks))
	for _, st := range plan.Subtasks {
		if findAgent(workers, st.Worker) == nil {
			continue
		}
		assigned[st.Worker] = st.Task
	}
	return assigned, false
}
