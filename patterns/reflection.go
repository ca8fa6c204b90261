package patterns

import (
	"context"
	"encoding/json"
	"fmt"
)

// Reflection is a Sequential Pipeline whose agents additionally receive a
// JSON dump of prior blocks' results ("design context") in their message.
// It reuses Sequential's dispatch; the Graph Executor supplies
// PriorResults from the blocks it has already run.
type Reflection struct {
	Sequential   Sequential
	PriorResults map[string]any
}

// Execute implements Executor.
func (r *Reflection) Execute(ctx context.Context, task string, onEvent EventFunc) (*Result, error) {
	designContext, err := json.MarshalIndent(r.PriorResults, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("reflection: marshaling design context: %w", err)
	}

	taskWithContext := task
	if len(r.PriorResults) > 0 {
		taskWithContext = fmt.Sprintf("Design context so far:\n%s\n\nTask: %s", designContext, task)
	}

	result, err := r.Sequential.Execute(ctx, taskWithContext, onEvent)
	if result != nil {
		result.Pattern = "reflection"
	}
	return result, err
}
