package agent

import (
	"testing"

	"github.com/rahul/taskforge/internal/plan"
)

func TestEvaluateStep_AllSucceeded(t *testing.T) {
	step := &plan.Step{
		ID: "step-1",
		ToolResults: []plan.ToolResult{
			{Tool: "create_file", Success: true},
			{Tool: "edit_file", Success: true},
		},
	}

	eval := EvaluateStep(step)
	if !eval.Success {
		t.Error("expected success when every tool result succeeded")
	}
	if eval.Score != 100 {
		t.Errorf("expected score 100, got %d", eval.Score)
	}
	if len(eval.Issues) != 0 {
		t.Errorf("expected no issues, got %v", eval.Issues)
	}
}

func TestEvaluateStep_PartialFailure(t *testing.T) {
	step := &plan.Step{
		ID: "step-1",
		ToolResults: []plan.ToolResult{
			{Tool: "create_file", Success: true},
			{Tool: "run_command", Success: false, Error: "exit status 1"},
			{Tool: "read_file", Success: true},
		},
	}

	eval := EvaluateStep(step)
	if eval.Success {
		t.Error("expected failure when any tool result failed")
	}
	if eval.Score != 67 {
		t.Errorf("expected score 67 for 2/3, got %d", eval.Score)
	}
	if len(eval.Issues) != 1 {
		t.Fatalf("expected one issue, got %v", eval.Issues)
	}
	if eval.Issues[0] != "Tool run_command failed: exit status 1" {
		t.Errorf("unexpected issue: %q", eval.Issues[0])
	}
}

func TestEvaluateStep_FailureWithoutError(t *testing.T) {
	step := &plan.Step{
		ID: "step-1",
		ToolResults: []plan.ToolResult{
			{Tool: "run_command", Success: false},
		},
	}

	eval := EvaluateStep(step)
	if eval.Issues[0] != "Tool run_command failed: Unknown error" {
		t.Errorf("unexpected issue: %q", eval.Issues[0])
	}
	if eval.Score != 0 {
		t.Errorf("expected score 0, got %d", eval.Score)
	}
}

func TestEvaluateStep_NoToolResults(t *testing.T) {
	step := &plan.Step{ID: "step-1"}

	eval := EvaluateStep(step)
	if eval.Success {
		t.Error("a step with no tool executions must not pass")
	}
	if eval.Score != 0 {
		t.Errorf("expected score 0, got %d", eval.Score)
	}
	if len(eval.Issues) != 1 || eval.Issues[0] != "No tool executions for this step" {
		t.Errorf("unexpected issues: %v", eval.Issues)
	}
}
