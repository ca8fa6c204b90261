// Package agent defines the Agent persona and the runtime that sends a
// single message through it via a provider.Backend.
package agent

import "strings"

// Role is the persona an Agent plays within a block.
type Role string

const (
	RoleManager    Role = "manager"
	RoleWorker     Role = "worker"
	RoleSpecialist Role = "specialist"
	RoleModerator  Role = "moderator"
	RoleReflector  Role = "reflector"
)

// Turn is a single (speaker, text) entry in an Agent's history.
type Turn struct {
	Speaker string
	Text    string
}

// Agent is a named LLM persona within a block. History is append-only for
// the lifetime of the agent; ToolsEnabled is immutable once the agent is
// constructed.
type Agent struct {
	Name         string
	Role         Role
	SystemPrompt string
	ToolsEnabled bool
	History      []Turn
}

// toolKeywords are scanned, case-insensitively, against an agent's system
// prompt to infer whether it is likely to need tool capabilities when the
// caller does not specify one explicitly.
var toolKeywords = []string{
	"file", "bash", "command", "execute", "run code", "terminal",
	"search web", "fetch", "download", "upload", "create file", "read file",
	"write file", "edit file", "directory", "folder", "script",
	"mcp", "tool",
}

// InferToolsEnabled inspects a system prompt for a fixed keyword set and
// reports whether tool capabilities are likely required. It is a pure
// function: callers that already know whether tools are enabled should
// bypass it rather than rely on the heuristic.
func InferToolsEnabled(systemPrompt string) bool {
	lower := strings.ToLower(systemPrompt)
	for _, kw := range toolKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// New constructs an Agent. When toolsEnabled is nil, ToolsEnabled is
// inferred from systemPrompt via InferToolsEnabled.
func New(name string, role Role, systemPrompt string, toolsEnabled *bool) *Agent {
	enabled := false
	if toolsEnabled != nil {
		enabled = *toolsEnabled
	} else {
		enabled = InferToolsEnabled(systemPrompt)
	}
	return &Agent{
		Name:         name,
		Role:         role,
		SystemPrompt: systemPrompt,
		ToolsEnabled: enabled,
	}
}

// AddToHistory appends a turn to the agent's append-only history.
func (a *Agent) AddToHistory(speaker, text string) {
	a.History = append(a.History, Turn{Speaker: speaker, Text: text})
}

// ContextSummary renders the last maxMessages history turns formatted for
// inclusion in a follow-on prompt, most recent last. patterns/debate.go uses
// it to build the aggregate context for the last speaker in a round.
func (a *Agent) ContextSummary(maxMessages int) string {
	if maxMessages <= 0 || len(a.History) == 0 {
		return ""
	}
	turns := a.History
	if len(turns) > maxMessages {
		turns = turns[len(turns)-maxMessages:]
	}
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(t.Speaker)
		b.WriteString(": ")
		b.WriteString(t.Text)
	}
	return b.String()
}
