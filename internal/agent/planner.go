package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/rahul/taskforge/internal/observability"
	"github.com/rahul/taskforge/internal/plan"
	"github.com/tmc/langchaingo/llms"
)

// Planner decomposes a goal into an ordered, dependency-annotated execution
// plan through one structured-output model call. A malformed or empty plan
// falls back to a single literal step so the engine always has forward
// progress; planning failures are never surfaced.
type Planner struct {
	Model   llms.Model
	Prompts *PromptManager
	Logger  *observability.Logger
}

func NewPlanner(model llms.Model, prompts *PromptManager, logger *observability.Logger) *Planner {
	return &Planner{Model: model, Prompts: prompts, Logger: logger}
}

// proposePlanTool is the structured output contract for the planner call.
var proposePlanTool = []llms.Tool{
	{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        "propose_plan",
			Description: "Submit the execution plan for the goal: 3-10 ordered steps with dependencies on earlier steps only.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"analysis": map[string]any{
						"type":        "string",
						"description": "A short analysis of what the goal requires",
					},
					"complexity": map[string]any{
						"type": "string",
						"enum": []string{"simple", "moderate", "complex"},
					},
					"steps": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"id": map[string]any{
									"type":        "string",
									"description": "Unique step id, e.g. step-1",
								},
								"description": map[string]any{
									"type": "string",
								},
								"action": map[string]any{
									"type":        "string",
									"description": "What to actually do in this step",
								},
								"tools_needed": map[string]any{
									"type":  "array",
									"items": map[string]any{"type": "string"},
								},
								"dependencies": map[string]any{
									"type":        "array",
									"items":       map[string]any{"type": "string"},
									"description": "Ids of earlier steps this step depends on",
								},
								"expected_outcome": map[string]any{
									"type": "string",
								},
							},
							"required": []string{"id", "description", "action"},
						},
					},
					"proactive_enhancements": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Improvements worth making beyond the literal ask",
					},
					"estimated_tool_count": map[string]any{
						"type": "integer",
					},
				},
				"required": []string{"complexity", "steps"},
			},
		},
	},
}

// Plan produces an execution plan for the goal in rc. toolList describes the
// available tools for the prompt. The workspace is never mutated.
func (p *Planner) Plan(ctx context.Context, projectID string, rc RunContext, toolList string) *plan.ExecutionPlan {
	result := p.callModel(ctx, rc, toolList)
	if result == nil {
		log.Printf("Warning: planner produced no usable plan, falling back to a single-step plan")
		result = fallbackPlan(rc.Goal)
	}
	normalizePlan(result, rc.Goal)

	if p.Logger != nil {
		p.Logger.LogPlan(projectID, rc.Goal, len(result.Steps), string(result.Complexity))
	}
	return result
}

func (p *Planner) callModel(ctx context.Context, rc RunContext, toolList string) *plan.ExecutionPlan {
	systemPrompt := ""
	if p.Prompts != nil {
		var err error
		systemPrompt, err = p.Prompts.GetPlannerPrompt()
		if err != nil {
			log.Printf("Warning: failed to load planner prompt: %v", err)
		}
	}
	if toolList != "" {
		systemPrompt += "\n\n## Available Tools:\n" + toolList
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
	}
	messages = append(messages, LLMHistory(rc.History)...)
	messages = append(messages, llms.MessageContent{
		Role: llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(fmt.Sprintf(
			"GOAL: %s\n\n%s\n\nPropose the execution plan via the propose_plan tool.",
			rc.Goal, rc.Render(),
		))},
	})

	resp, err := p.Model.GenerateContent(ctx, messages, llms.WithTools(proposePlanTool))
	if err != nil {
		log.Printf("Warning: planner model call failed: %v", err)
		return nil
	}
	if len(resp.Choices) == 0 {
		return nil
	}

	for _, tc := range resp.Choices[0].ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != "propose_plan" {
			continue
		}
		var out plan.ExecutionPlan
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &out); err != nil {
			log.Printf("Warning: failed to parse propose_plan arguments: %v", err)
			return nil
		}
		if len(out.Steps) == 0 {
			return nil
		}
		return &out
	}
	return nil
}

// fallbackPlan is the deterministic one-step plan used when planning fails:
// the single step's description is the literal goal and its tool hint is
// generic (every registered tool).
func fallbackPlan(goal string) *plan.ExecutionPlan {
	return &plan.ExecutionPlan{
		Goal:       goal,
		Analysis:   "Planning failed; executing the goal as a single step.",
		Complexity: plan.ComplexitySimple,
		Steps: []plan.Step{
			{
				ID:          "step-1",
				Description: goal,
				Action:      goal,
			},
		},
	}
}

// normalizePlan forces every step into a clean pending state regardless of
// what the model supplied, and fills in missing ids and the goal.
func normalizePlan(p *plan.ExecutionPlan, goal string) {
	p.Goal = goal
	switch p.Complexity {
	case plan.ComplexitySimple, plan.ComplexityModerate, plan.ComplexityComplex:
	default:
		p.Complexity = plan.ComplexityModerate
	}
	for i := range p.Steps {
		s := &p.Steps[i]
		if strings.TrimSpace(s.ID) == "" {
			s.ID = fmt.Sprintf("step-%d", i+1)
		}
		s.Status = plan.StatusPending
		s.RetryCount = 0
		s.ToolResults = nil
		s.Evaluation = nil
	}
}
