package patterns

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentmesh/orchestrator/agent"
	"github.com/agentmesh/orchestrator/events"
)

type routingDecision struct {
	SelectedAgents []string `json:"selected_agents"`
	Reasoning      string   `json:"reasoning"`
}

// Routing asks a router agent to select a subset of specialists for the
// task, then runs the selected specialists in declared order.
type Routing struct {
	Runtime     *agent.Runtime
	Router      *agent.Agent
	Specialists []*agent.Agent
	UserID      string
}

// Execute implements Executor. If the router's response does not parse as
// JSON (after stripping markdown code fences), the first specialist is
// selected by default.
func (r *Routing) Execute(ctx context.Context, task string, onEvent EventFunc) (*Result, error) {
	result := &Result{
		Pattern:      "dynamic_routing",
		AgentResults: make(map[string]string),
		Durations:    make(map[string]time.Duration),
		Meta:         make(map[string]any),
	}

	names := make([]string, 0, len(r.Specialists))
	for _, s := range r.Specialists {
		names = append(names, s.Name)
	}
	routingMsg := fmt.Sprintf(
		"Task: %s\n\nAvailable specialists: %s\n\n"+
			`Respond with only a JSON object of the form {"selected_agents":["<name>", ...],"reasoning":"<string>"}.`,
		task, strings.Join(names, ", "),
	)

	emitStatus(onEvent, r.Router.Name, events.StatusRouting)
	start := time.Now()
	routerResp, err := r.Runtime.SendWithEvents(ctx, r.Router, routingMsg, "", r.UserID, chunkForwarder(onEvent))
	duration := time.Since(start)
	if err != nil {
		return result, fmt.Errorf("routing: router %s: %w", r.Router.Name, err)
	}
	emitStatusWithDuration(onEvent, r.Router.Name, events.StatusRoutingComplete, duration)

	selected, reasoning := parseRoutingDecision(routerResp, r.Specialists)
	result.Meta["selected_agents"] = selected
	result.Meta["reasoning"] = reasoning

	var finalOut string
	for _, name := range selected {
		spec := findAgent(r.Specialists, name)
		if spec == nil {
			continue
		}
		emitStatus(onEvent, spec.Name, events.StatusExecuting)
		sStart := time.Now()
		out, err := r.Runtime.SendWithEvents(ctx, spec, task, "", r.UserID, chunkForwarder(onEvent))
		sDuration := time.Since(sStart)
		if err != nil {
			return result, fmt.Errorf("routing: specialist %s: %w", spec.Name, err)
		}
		emitStatusWithDuration(onEvent, spec.Name, events.StatusCompleted, sDuration)

		result.AgentResults[spec.Name] = out
		result.Durations[spec.Name] = sDuration
		finalOut = out
	}

	result.FinalResult = finalOut
	return result, nil
}

// parseRoutingDecision strips markdown code fences (```json ... ``` or
// ``` ... ```) if present, then parses the remaining text as a
// routingDecision. If parsing fails or selects no known specialist, the
// first specialist is selected by default.
func parseRoutingDecision(resp string, specialists []*agent.Agent) (selected []string, reasoning string) {
	stripped := stripCodeFences(resp)

	var decision routingDecision
	if err := json.Unmarshal([]byte(stripped), &decision); err == nil {
		var valid []string
		for _, name := range decision.SelectedAgents {
			if findAgent(specialists, name) != nil {
				valid = append(valid, name)
			}
		}
		if len(valid) > 0 {
			return valid, decision.Reasoning
		}
	}

	if len(specialists) > 0 {
		return []string{specialists[0].Name}, ""
	}
	return nil, ""
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.Contains(s[:nl], "{") {
		// Leading language tag on its own line, e.g. "json".
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
