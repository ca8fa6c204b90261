package graph

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// InvalidError reports a structurally invalid Design: a cycle, an unknown
// block id, or an unknown pattern. Reported at run start; never retried.
type InvalidError struct {
	Reason string
}

func (e *InvalidError) Error() string { return fmt.Sprintf("design invalid: %s", e.Reason) }

// designSchema is the minimal shape check applied before any structural
// (DAG) validation: every block needs an id/type/data, every connection a
// source/target.
const designSchema = `{
  "type": "object",
  "required": ["blocks", "connections"],
  "properties": {
    "blocks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "type", "data"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "type": {"type": "string", "minLength": 1}
        }
      }
    },
    "connections": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "source", "target"]
      }
    }
  }
}`

// ValidateDesignJSON checks raw (not-yet-unmarshaled) Design JSON against
// designSchema, before any structural validation runs.
func ValidateDesignJSON(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &InvalidError{Reason: fmt.Sprintf("not valid JSON: %v", err)}
	}

	var schemaDoc any
	if err := json.Unmarshal([]byte(designSchema), &schemaDoc); err != nil {
		return fmt.Errorf("graph: internal schema error: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("design.json", schemaDoc); err != nil {
		return fmt.Errorf("graph: internal schema error: %w", err)
	}
	schema, err := c.Compile("design.json")
	if err != nil {
		return fmt.Errorf("graph: internal schema error: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return &InvalidError{Reason: err.Error()}
	}
	return nil
}

// ParseDesign unmarshals raw Design JSON into a *Design, checking it
// against designSchema first. This is the boundary a DesignStore backed by
// raw JSON (an API body, a file, a database blob) is expected to call
// before a Design ever reaches Executor.Run, so the schema check guards
// every real run instead of only test callers.
func ParseDesign(raw []byte) (*Design, error) {
	if err := ValidateDesignJSON(raw); err != nil {
		return nil, err
	}
	var d Design
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("graph: decoding design: %w", err)
	}
	return &d, nil
}

// ValidateDesign rejects a Design that contains a cycle, references an
// unknown block id, or has a block whose pattern is unknown.
func ValidateDesign(d *Design) error {
	ids := make(map[string]bool, len(d.Blocks))
	for _, b := range d.Blocks {
		if !knownPatterns[b.Type] {
			return &InvalidError{Reason: fmt.Sprintf("block %q has unknown pattern %q", b.ID, b.Type)}
		}
		ids[b.ID] = true
	}

	for _, c := range d.Connections {
		if !ids[c.Source.BlockOnly()] {
			return &InvalidError{Reason: fmt.Sprintf("connection %q references unknown source block %q", c.ID, c.Source.BlockOnly())}
		}
		if !ids[c.Target.BlockOnly()] {
			return &InvalidError{Reason: fmt.Sprintf("connection %q references unknown target block %q", c.ID, c.Target.BlockOnly())}
		}
	}

	if _, err := TopologicalOrder(d); err != nil {
		return err
	}
	return nil
}

// TopologicalOrder computes block execution order via Kahn's algorithm,
// breaking ties by insertion order (the order blocks appear in
// d.Blocks) to make runs reproducible. Returns *InvalidError if the graph
// contains a cycle.
func TopologicalOrder(d *Design) ([]string, error) {
	indegree := make(map[string]int, len(d.Blocks))
	order := make([]string, 0, len(d.Blocks))
	for _, b := range d.Blocks {
		indegree[b.ID] = 0
		order = append(order, b.ID)
	}

	adjacency := make(map[string][]string, len(d.Blocks))
	for _, c := range d.Connections {
		src, tgt := c.Source.BlockOnly(), c.Target.BlockOnly()
		adjacency[src] = append(adjacency[src], tgt)
		indegree[tgt]++
	}

	// Insertion-order tie-break: process ready nodes in the order they
	// appear in d.Blocks, not an arbitrary queue order.
	var ready []string
	inReady := make(map[string]bool, len(d.Blocks))
	for _, id := range order {
		if indegree[id] == 0 {
			ready = append(ready, id)
			inReady[id] = true
		}
	}

	var result []string
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		result = append(result, next)

		for _, dst := range adjacency[next] {
			indegree[dst]--
			if indegree[dst] == 0 {
				ready = append(ready, dst)
			}
		}
		// Re-sort ready by original insertion order to preserve the
		// tie-break invariant across multiple simultaneously-ready nodes.
		ready = sortByInsertionOrder(ready, order)
	}

	if len(result) != len(d.Blocks) {
		return nil, &InvalidError{Reason: "design contains a cycle"}
	}
	return result, nil
}

func sortByInsertionOrder(nodes, order []string) []string {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	sorted := make([]string, len(nodes))
	copy(sorted, nodes)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && pos[sorted[j-1]] > pos[sorted[j]]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return sorted
}
