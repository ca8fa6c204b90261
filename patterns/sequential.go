package patterns

import (
	"context"
	"fmt"
	"time"

	"github.com/agentmesh/orchestrator/agent"
	"github.com/agentmesh/orchestrator/events"
)

// Sequential runs agents in declared order: a₁ receives the task with no
// prior context; aᵢ (i>1) receives aᵢ₋₁'s output wrapped in a context
// preamble naming the sending agent. The run's final result is the last
// agent's output.
type Sequential struct {
	Runtime *agent.Runtime
	Agents  []*agent.Agent
	UserID  string
}

// Execute implements Executor.
func (s *Sequential) Execute(ctx context.Context, task string, onEvent EventFunc) (*Result, error) {
	result := &Result{
		Pattern:      "sequential",
		AgentResults: make(map[string]string, len(s.Agents)),
		Durations:    make(map[string]time.Duration, len(s.Agents)),
	}

	var prevOutput, prevAgent string
	for _, a := range s.Agents {
		input := task
		if prevAgent != "" {
			input = fmt.Sprintf("Context from %s: %s\n\nTask: %s", prevAgent, prevOutput, task)
		}

		emitStatus(onEvent, a.Name, events.StatusExecuting)
		start := time.Now()
		out, err := s.Runtime.SendWithEvents(ctx, a, input, "", s.UserID, chunkForwarder(onEvent))
		duration := time.Since(start)
		if err != nil {
			return result, fmt.Errorf("sequential: agent %s: %w", a.Name, err)
		}
		emitStatusWithDuration(onEvent, a.Name, events.StatusCompleted, duration)

		result.AgentResults[a.Name] = out
		result.Durations[a.Name] = duration
		prevOutput, prevAgent = out, a.Name
	}

	result.FinalResult = prevOutput
	return result, nil
}
