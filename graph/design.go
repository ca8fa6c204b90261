// Package graph implements the Design data model and the Graph Executor
// that runs it: topological ordering, context threading between blocks,
// and incremental ExecutionLog persistence.
package graph

import (
	"encoding/json"
	"fmt"
)

// Pattern identifies which Pattern Executor a Block invokes.
type Pattern string

const (
	PatternSequential Pattern = "sequential"
	PatternParallel   Pattern = "parallel"
	PatternHierarchy  Pattern = "hierarchical"
	PatternDebate     Pattern = "debate"
	PatternRouting    Pattern = "dynamic_routing"
	PatternReflection Pattern = "reflection"
)

// knownPatterns backs the "unknown pattern" validation rule.
var knownPatterns = map[Pattern]bool{
	PatternSequential: true,
	PatternParallel:   true,
	PatternHierarchy:  true,
	PatternDebate:     true,
	PatternRouting:    true,
	PatternReflection: true,
}

// BlockAgent is one agent declared inside a block's data.
type BlockAgent struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	Role         string `json:"role"`
}

// BlockData carries a block's pattern-specific configuration.
type BlockData struct {
	Label                  string       `json:"label"`
	Agents                 []BlockAgent `json:"agents"`
	Task                   string       `json:"task"`
	GitRepo                string       `json:"git_repo,omitempty"`
	Rounds                 int          `json:"rounds,omitempty"`
	IsolateAgentWorkspaces bool         `json:"isolate_agent_workspaces,omitempty"`
}

// Block is one node of a Design.
type Block struct {
	ID       string      `json:"id"`
	Type     Pattern     `json:"type"`
	Position interface{} `json:"position,omitempty"` // opaque to the core
	Data     BlockData   `json:"data"`
}

// ConnectionEndpoint is either a bare block id or a block/agent pair. The
// core treats the object form as a bare block-level edge for scheduling
// purposes.
type ConnectionEndpoint struct {
	BlockID string
	AgentID string
}

// BlockOnly reports the block id this endpoint resolves to for scheduling.
func (e ConnectionEndpoint) BlockOnly() string { return e.BlockID }

// UnmarshalJSON accepts either a bare block id string or an object
// {"blockId":"...","agentId":"..."}.
func (e *ConnectionEndpoint) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		e.BlockID = asString
		return nil
	}

	var asObject struct {
		BlockID string `json:"blockId"`
		AgentID string `json:"agentId"`
	}
	if err := json.Unmarshal(data, &asObject); err != nil {
		return fmt.Errorf("graph: connection endpoint must be a string or {blockId, agentId}: %w", err)
	}
	e.BlockID = asObject.BlockID
	e.AgentID = asObject.AgentID
	return nil
}

// MarshalJSON emits the bare-string form when AgentID is unset, the object
// form otherwise.
func (e ConnectionEndpoint) MarshalJSON() ([]byte, error) {
	if e.AgentID == "" {
		return json.Marshal(e.BlockID)
	}
	return json.Marshal(struct {
		BlockID string `json:"blockId"`
		AgentID string `json:"agentId"`
	}{e.BlockID, e.AgentID})
}

// Connection is one edge of a Design.
type Connection struct {
	ID     string             `json:"id"`
	Source ConnectionEndpoint `json:"source"`
	Target ConnectionEndpoint `json:"target"`
}

// Design is the input to the Graph Executor.
type Design struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Blocks      []Block      `json:"blocks"`
	Connections []Connection `json:"connections"`
}

// BlockByID returns the block with the given id, or nil if absent.
func (d *Design) BlockByID(id string) *Block {
	for i := range d.Blocks {
		if d.Blocks[i].ID == id {
			return &d.Blocks[i]
		}
	}
	return nil
}
