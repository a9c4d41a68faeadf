package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"

	"github.com/rahul/taskforge/internal/observability"
	"github.com/rahul/taskforge/internal/plan"
	"github.com/rahul/taskforge/internal/workspace"
	"github.com/tmc/langchaingo/llms"
)

// Verifier assesses goal achievement against the final workspace with one
// evaluation-oriented model call. It is read-only. When the call fails a
// deterministic completeness heuristic takes its place.
type Verifier struct {
	Model   llms.Model
	Prompts *PromptManager
	Logger  *observability.Logger
}

func NewVerifier(model llms.Model, prompts *PromptManager, logger *observability.Logger) *Verifier {
	return &Verifier{Model: model, Prompts: prompts, Logger: logger}
}

var reportVerificationTool = []llms.Tool{
	{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        "report_verification",
			Description: "Report whether the goal was achieved by the execution.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"goal_achieved": map[string]any{
						"type": "boolean",
					},
					"completeness": map[string]any{
						"type":        "integer",
						"description": "How complete the outcome is, 0-100",
					},
					"gaps": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
					"suggestions": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
				},
				"required": []string{"goal_achieved", "completeness"},
			},
		},
	},
}

// Verify runs the end-of-run assessment over the terminated plan and the
// final manifest.
func (v *Verifier) Verify(ctx context.Context, projectID, goal string, p *plan.ExecutionPlan, manifest workspace.Manifest) plan.Verification {
	result, ok := v.callModel(ctx, goal, p, manifest)
	if !ok {
		result = FallbackVerification(p)
	}
	if result.Completeness < 0 {
		result.Completeness = 0
	}
	if result.Completeness > 100 {
		result.Completeness = 100
	}
	if v.Logger != nil {
		v.Logger.LogVerification(projectID, result.GoalAchieved, result.Completeness, result.Gaps)
	}
	return result
}

func (v *Verifier) callModel(ctx context.Context, goal string, p *plan.ExecutionPlan, manifest workspace.Manifest) (plan.Verification, bool) {
	if v.Model == nil {
		return plan.Verification{}, false
	}

	systemPrompt := ""
	if v.Prompts != nil {
		var err error
		systemPrompt, err = v.Prompts.GetVerifierPrompt()
		if err != nil {
			log.Printf("Warning: failed to load verifier prompt: %v", err)
		}
	}

	statuses := ""
	for _, s := range p.Steps {
		statuses += fmt.Sprintf("- [%s] %s: %s\n", s.Status, s.ID, s.Description)
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(fmt.Sprintf(
				"GOAL: %s\n\nStep outcomes:\n%s\nFinal workspace:\n%s\n\nAssess goal achievement via the report_verification tool.",
				goal, statuses, manifest.Summary(),
			))},
		},
	}

	resp, err := v.Model.GenerateContent(ctx, messages, llms.WithTools(reportVerificationTool))
	if err != nil {
		log.Printf("Warning: verification model call failed: %v", err)
		return plan.Verification{}, false
	}
	if len(resp.Choices) == 0 {
		return plan.Verification{}, false
	}

	for _, tc := range resp.Choices[0].ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != "report_verification" {
			continue
		}
		var out plan.Verification
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &out); err != nil {
			log.Printf("Warning: failed to parse report_verification arguments: %v", err)
			return plan.Verification{}, false
		}
		return out, true
	}
	return plan.Verification{}, false
}

// FallbackVerification derives the assessment from step statuses alone.
func FallbackVerification(p *plan.ExecutionPlan) plan.Verification {
	total := len(p.Steps)
	if total == 0 {
		return plan.Verification{GoalAchieved: false, Completeness: 0}
	}
	completed := 0
	var gaps []string
	for _, s := range p.Steps {
		switch s.Status {
		case plan.StatusCompleted:
			completed++
		case plan.StatusFailed:
			gaps = append(gaps, s.Description)
		}
	}
	return plan.Verification{
		GoalAchieved: completed == total,
		Completeness: int(math.Round(100 * float64(completed) / float64(total))),
		Gaps:         gaps,
		Suggestions:  []string{},
	}
}
