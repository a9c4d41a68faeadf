package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rahul/taskforge/internal/workspace"
)

// CompleteStepTool is the structured completion signal. The engine treats a
// call to this tool as the model declaring the current step done; free-text
// declarations are deliberately not recognized.
type CompleteStepTool struct{}

func NewCompleteStepTool() *CompleteStepTool {
	return &CompleteStepTool{}
}

func (t *CompleteStepTool) Name() string {
	return workspace.ToolCompleteStep
}

func (t *CompleteStepTool) Description() string {
	return "Signal that the current step is finished. Call this once the step's expected outcome has been produced."
}

func (t *CompleteStepTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{
				"type":        "string",
				"description": "A one-sentence summary of what the step accomplished",
			},
		},
		"required": []string{"summary"},
	}
}

func (t *CompleteStepTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	return "step marked complete: " + args.Summary, nil
}
