package agent

import (
	"fmt"
	"math"

	"github.com/rahul/taskforge/internal/plan"
)

// EvaluateStep scores one step attempt from its tool results. Deterministic
// and local: no model call. A step succeeds iff it invoked at least one tool
// and every invocation succeeded; narration without action never passes.
func EvaluateStep(step *plan.Step) plan.Evaluation {
	total := len(step.ToolResults)
	if total == 0 {
		return plan.Evaluation{
			Success: false,
			Score:   0,
			Issues:  []string{"No tool executions for this step"},
		}
	}

	succeeded := 0
	var issues []string
	for _, r := range step.ToolResults {
		if r.Success {
			succeeded++
			continue
		}
		reason := r.Error
		if reason == "" {
			reason = "Unknown error"
		}
		issues = append(issues, fmt.Sprintf("Tool %s failed: %s", r.Tool, reason))
	}

	return plan.Evaluation{
		Success: succeeded == total,
		Score:   int(math.Round(100 * float64(succeeded) / float64(total))),
		Issues:  issues,
	}
}
