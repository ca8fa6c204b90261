package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simpleDesign() *Design {
	return &Design{
		Blocks: []Block{
			{ID: "B1", Type: PatternSequential, Data: BlockData{Agents: []BlockAgent{{Name: "A1"}}}},
			{ID: "B2", Type: PatternSequential, Data: BlockData{Agents: []BlockAgent{{Name: "A2"}}}},
			{ID: "B3", Type: PatternSequential, Data: BlockData{Agents: []BlockAgent{{Name: "A3"}}}},
		},
		Connections: []Connection{
			{ID: "c1", Source: ConnectionEndpoint{BlockID: "B1"}, Target: ConnectionEndpoint{BlockID: "B2"}},
			{ID: "c2", Source: ConnectionEndpoint{BlockID: "B2"}, Target: ConnectionEndpoint{BlockID: "B3"}},
		},
	}
}

func TestValidateDesignAcceptsDAG(t *testing.T) {
	assert.NoError(t, ValidateDesign(simpleDesign()))
}

func TestValidateDesignRejectsCycle(t *testing.T) {
	d := simpleDesign()
	d.Connections = append(d.Connections, Connection{ID: "c3", Source: ConnectionEndpoint{BlockID: "B3"}, Target: ConnectionEndpoint{BlockID: "B1"}})

	err := ValidateDesign(d)
	require.Error(t, err)
	var invalid *InvalidError
	assert.ErrorAs(t, err, &invalid)
}

func TestValidateDesignRejectsUnknownBlockReference(t *testing.T) {
	d := simpleDesign()
	d.Connections = append(d.Connections, Connection{ID: "c3", Source: ConnectionEndpoint{BlockID: "B3"}, Target: ConnectionEndpoint{BlockID: "Ghost"}})

	err := ValidateDesign(d)
	require.Error(t, err)
	var invalid *InvalidError
	assert.ErrorAs(t, err, &invalid)
}

func TestValidateDesignRejectsUnknownPattern(t *testing.T) {
	d := simpleDesign()
	d.Blocks[0].Type = Pattern("not_a_real_pattern")

	err := ValidateDesign(d)
	require.Error(t, err)
	var invalid *InvalidError
	assert.ErrorAs(t, err, &invalid)
}

func TestTopologicalOrderBreaksTiesByInsertionOrder(t *testing.T) {
	d := &Design{
		Blocks: []Block{
			{ID: "B2", Type: PatternSequential},
			{ID: "B1", Type: PatternSequential},
			{ID: "B3", Type: PatternSequential},
		},
		// No connections: all three are independently ready; insertion
		// order (B2, B1, B3) must be preserved.
	}
	order, err := TopologicalOrder(d)
	require.NoError(t, err)
	assert.Equal(t, []string{"B2", "B1", "B3"}, order)
}

func TestValidateDesignJSONRejectsMalformedShape(t *testing.T) {
	err := ValidateDesignJSON([]byte(`{"blocks":[{"id":""}],"connections":[]}`))
	require.Error(t, err)
	var invalid *InvalidError
	assert.ErrorAs(t, err, &invalid)
}

func TestValidateDesignJSONAcceptsWellFormedShape(t *testing.T) {
	err := ValidateDesignJSON([]byte(`{
		"blocks":[{"id":"B1","type":"sequential","data":{}}],
		"connections":[]
	}`))
	assert.NoError(t, err)
}

func TestParseDesignRejectsMalformedShapeBeforeUnmarshaling(t *testing.T) {
	_, err := ParseDesign([]byte(`{"blocks":[{"id":""}],"connections":[]}`))
	require.Error(t, err)
	var invalid *InvalidError
	assert.ErrorAs(t, err, &invalid)
}

func TestParseDesignReturnsUsableDesign(t *testing.T) {
	d, err := ParseDesign([]byte(`{
		"name": "d1",
		"blocks":[{"id":"B1","type":"sequential","data":{"agents":[{"name":"A1"}]}}],
		"connections":[]
	}`))
	require.NoError(t, err)
	require.NoError(t, ValidateDesign(d))
	assert.Equal(t, "d1", d.Name)
	assert.Equal(t, "A1", d.Blocks[0].Data.Agents[0].Name)
}
