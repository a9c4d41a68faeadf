package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/rahul/taskforge/internal/observability"
	"github.com/rahul/taskforge/internal/plan"
	"github.com/rahul/taskforge/internal/store"
	"github.com/rahul/taskforge/internal/tools"
	"github.com/rahul/taskforge/internal/workspace"
	"github.com/rahul/taskforge/pkg/config"
	"github.com/tmc/langchaingo/llms"
)

// Invocation is one request against a project workspace.
type Invocation struct {
	Goal      string
	ProjectID string
	Files     workspace.Manifest
	History   []store.Message
}

// ToolOutputs collects the side outputs of a run for the caller.
type ToolOutputs struct {
	Commands []workspace.CommandOutput `json:"commands,omitempty"`
	Packages []string                  `json:"packages,omitempty"`
	Images   []string                  `json:"images,omitempty"`
}

// Outcome is the best-effort result of one invocation.
type Outcome struct {
	PlanSummary      string
	State            plan.ExecutionState
	Verification     plan.Verification
	Files            workspace.Manifest
	ToolOutputs      ToolOutputs
	HistoryCompacted bool
	RecordID         int64
}

// Engine is the orchestrating state machine. It walks the plan in order,
// enforces dependencies and bounds, drives per-step attempts through the
// dispatcher and reducer, scores attempts locally, and verifies the outcome.
// One Engine serves one workspace; invocations must not run concurrently
// (the Scheduler serializes them).
type Engine struct {
	Model     llms.Model
	Registry  *tools.Registry
	Dispatch  *tools.Dispatcher
	Planner   *Planner
	Verifier  *Verifier
	Assembler *ContextAssembler
	Memory    Memory
	Prompts   *PromptManager
	Snapshot  *workspace.Snapshot
	Logger    *observability.Logger
	Bounds    config.EngineConfig
}

func NewEngine(
	model llms.Model,
	registry *tools.Registry,
	dispatcher *tools.Dispatcher,
	planner *Planner,
	verifier *Verifier,
	assembler *ContextAssembler,
	memory Memory,
	prompts *PromptManager,
	snapshot *workspace.Snapshot,
	logger *observability.Logger,
	bounds config.EngineConfig,
) *Engine {
	return &Engine{
		Model:     model,
		Registry:  registry,
		Dispatch:  dispatcher,
		Planner:   planner,
		Verifier:  verifier,
		Assembler: assembler,
		Memory:    memory,
		Prompts:   prompts,
		Snapshot:  snapshot,
		Logger:    logger,
		Bounds:    bounds,
	}
}

// Execute runs one goal to a terminated state. It always returns an
// outcome; the error is non-nil only for unusable invocations (empty goal).
func (e *Engine) Execute(ctx context.Context, inv Invocation) (*Outcome, error) {
	if strings.TrimSpace(inv.Goal) == "" {
		return nil, fmt.Errorf("goal must not be empty")
	}

	observability.SetStatus(observability.PhasePlanning, inv.Goal, "")
	defer observability.SetStatus(observability.PhaseIdle, "", "")

	e.Snapshot.Reset(inv.Files)

	rc := e.Assembler.Assemble(inv.ProjectID, inv.Goal, inv.Files, inv.History)
	execPlan := e.Planner.Plan(ctx, inv.ProjectID, rc, e.toolList())

	recordID := e.beginRecord(inv.ProjectID, inv.Goal, execPlan)

	run := &runState{
		plan:      execPlan,
		rc:        &rc,
		projectID: inv.ProjectID,
	}

	observability.SetStatus(observability.PhaseExecuting, inv.Goal, "")
	for i := range execPlan.Steps {
		e.runStep(ctx, run, &execPlan.Steps[i])
	}

	// End-of-run aggregate fold. The reducer is idempotent, so re-applying
	// everything already folded per step is safe.
	e.Snapshot.Apply(run.allResults)
	finalManifest := e.Snapshot.Manifest()

	observability.SetStatus(observability.PhaseVerifying, inv.Goal, "")
	verification := e.Verifier.Verify(ctx, inv.ProjectID, inv.Goal, execPlan, finalManifest)

	state := plan.StateOf(execPlan)
	state.EvaluationsPassed = run.evaluationsPassed
	state.EvaluationsFailed = run.evaluationsFailed
	state.TotalIterations = run.totalIterations

	e.persist(inv, recordID, run, state, verification)

	return &Outcome{
		PlanSummary:  planSummary(execPlan),
		State:        state,
		Verification: verification,
		Files:        finalManifest,
		ToolOutputs: ToolOutputs{
			Commands: finalManifest.Commands,
			Packages: finalManifest.Packages,
			Images:   finalManifest.Images,
		},
		HistoryCompacted: rc.Compacted,
		RecordID:         recordID,
	}, nil
}

// runState is the per-invocation mutable state. Created fresh per call and
// never shared, which is what makes the engine safe to serialize.
type runState struct {
	plan              *plan.ExecutionPlan
	rc                *RunContext
	projectID         string
	allResults        []plan.ToolResult
	attempts          []plan.Attempt
	totalIterations   int
	evaluationsPassed int
	evaluationsFailed int
}

// runStep drives one step from pending to a terminal status.
func (e *Engine) runStep(ctx context.Context, run *runState, step *plan.Step) {
	step.Status = plan.StatusInProgress
	observability.SetStatus(observability.PhaseExecuting, run.plan.Goal, step.ID)
	e.logStep(run.projectID, step)

	// Cancellation and the overall ceiling skip steps that never started.
	if ctx.Err() != nil || run.totalIterations >= e.Bounds.MaxIterations {
		step.Status = plan.StatusSkipped
		e.logStep(run.projectID, step)
		return
	}

	// Dependencies are checked once, against plan-list order. A dependency
	// that is not completed by now (including a forward reference) skips
	// the step rather than deferring it.
	for _, dep := range step.Dependencies {
		depStep := run.plan.StepByID(dep)
		if depStep == nil || depStep.Status != plan.StatusCompleted {
			step.Status = plan.StatusSkipped
			e.logStep(run.projectID, step)
			return
		}
	}

	msgs := e.executorMessages(run, step)
	declared := e.declaredTools(step)

	for iter := 0; iter < e.Bounds.MaxIterationsPerStep; iter++ {
		if ctx.Err() != nil || run.totalIterations >= e.Bounds.MaxIterations {
			break
		}
		run.totalIterations++

		// Each attempt is scored in isolation: results from a failed
		// attempt are archived, never merged into the next score.
		step.ToolResults = nil

		resp, err := e.Model.GenerateContent(ctx, msgs, llms.WithTools(declared))
		if err != nil {
			log.Printf("Warning: step executor call failed for %s: %v", step.ID, err)
			continue
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if e.Logger != nil {
			e.Logger.LogLLM(run.projectID, step.ID, len(msgs), choice.Content, choice.ToolCalls)
		}

		var assistantParts []llms.ContentPart
		if choice.Content != "" {
			assistantParts = append(assistantParts, llms.TextContent{Text: choice.Content})
		}
		for _, tc := range choice.ToolCalls {
			assistantParts = append(assistantParts, tc)
		}
		if len(assistantParts) > 0 {
			msgs = append(msgs, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: assistantParts})
		}

		completeSignaled := false
		invoked := 0
		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			name := tc.FunctionCall.Name
			args := tc.FunctionCall.Arguments

			if name == workspace.ToolCompleteStep {
				completeSignaled = true
				msgs = append(msgs, toolResponse(tc.ID, name, "step completion acknowledged"))
				continue
			}

			if e.Logger != nil {
				e.Logger.LogToolCall(step.ID, name, args)
			}
			result := e.Dispatch.Dispatch(ctx, step.ID, name, args)
			step.ToolResults = append(step.ToolResults, result)
			run.allResults = append(run.allResults, result)
			invoked++

			// Fold immediately so later calls in the same attempt (and
			// later steps) observe this result through the read tools.
			e.Snapshot.Apply([]plan.ToolResult{result})

			content := result.Result
			if !result.Success {
				content = "Error: " + result.Error
			}
			msgs = append(msgs, toolResponse(tc.ID, name, content))
		}

		if !completeSignaled && invoked == 0 {
			// Narration only. Nudge once and loop within the iteration
			// bound.
			msgs = append(msgs, llms.MessageContent{
				Role:  llms.ChatMessageTypeHuman,
				Parts: []llms.ContentPart{llms.TextPart("No tools were invoked. Use the available tools to perform the step, then call complete_step.")},
			})
			continue
		}

		eval := EvaluateStep(step)
		step.Evaluation = &eval
		run.attempts = append(run.attempts, plan.Attempt{
			StepID:     step.ID,
			Number:     step.RetryCount + 1,
			Results:    append([]plan.ToolResult(nil), step.ToolResults...),
			Evaluation: &eval,
			At:         time.Now(),
		})
		if e.Logger != nil {
			e.Logger.LogEvaluation(step.ID, eval.Success, eval.Score, eval.Issues)
		}

		if eval.Success {
			run.evaluationsPassed++
			step.Status = plan.StatusCompleted
			run.rc.CompletedSteps = append(run.rc.CompletedSteps, step.Description)
			e.logStep(run.projectID, step)
			return
		}

		run.evaluationsFailed++
		step.RetryCount++
		if step.RetryCount > e.Bounds.MaxRetries {
			break
		}

		msgs = append(msgs, llms.MessageContent{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(fmt.Sprintf(
				"The attempt failed evaluation (score %d). Issues:\n- %s\nFix the issues and retry the step.",
				eval.Score, strings.Join(eval.Issues, "\n- "),
			))},
		})
	}

	step.Status = plan.StatusFailed
	e.logStep(run.projectID, step)
}

// executorMessages builds the initial message thread for one step.
func (e *Engine) executorMessages(run *runState, step *plan.Step) []llms.MessageContent {
	systemPrompt := ""
	if e.Prompts != nil {
		var err error
		systemPrompt, err = e.Prompts.GetExecutorPrompt()
		if err != nil {
			log.Printf("Warning: failed to load executor prompt: %v", err)
		}
	}

	var msgs []llms.MessageContent
	if systemPrompt != "" {
		msgs = append(msgs, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		})
	}
	msgs = append(msgs, LLMHistory(run.rc.History)...)

	task := fmt.Sprintf(
		"OVERALL GOAL: %s\n\nCURRENT STEP (%s): %s\nACTION: %s\n",
		run.plan.Goal, step.ID, step.Description, step.Action,
	)
	if step.ExpectedOutcome != "" {
		task += "EXPECTED OUTCOME: " + step.ExpectedOutcome + "\n"
	}
	task += "\n" + e.contextRender(run) + "\n\nPerform the step with the available tools, then call complete_step."
	msgs = append(msgs, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(task)},
	})
	return msgs
}

func toolResponse(callID, name, content string) llms.MessageContent {
	return llms.MessageContent{
		Role: llms.ChatMessageTypeTool,
		Parts: []llms.ContentPart{
			llms.ToolCallResponse{
				ToolCallID: callID,
				Name:       name,
				Content:    content,
			},
		},
	}
}

func (e *Engine) contextRender(run *runState) string {
	// Re-render against the live snapshot so each step sees files produced
	// by earlier steps.
	rc := *run.rc
	rc.Manifest = e.Snapshot.Manifest()
	return rc.Render()
}

// declaredTools resolves a step's tool hints against the registry. An empty
// hint set exposes the whole catalogue. complete_step is always declared.
func (e *Engine) declaredTools(step *plan.Step) []llms.Tool {
	selected := e.Registry.Subset(step.ToolsNeeded)
	hasComplete := false
	for _, t := range selected {
		if t.Name() == workspace.ToolCompleteStep {
			hasComplete = true
			break
		}
	}
	if !hasComplete {
		if t := e.Registry.Get(workspace.ToolCompleteStep); t != nil {
			selected = append(selected, t)
		}
	}

	out := make([]llms.Tool, 0, len(selected))
	for _, t := range selected {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return out
}

func (e *Engine) toolList() string {
	var lines []string
	for _, name := range e.Registry.Names() {
		t := e.Registry.Get(name)
		lines = append(lines, fmt.Sprintf("- %s: %s", t.Name(), t.Description()))
	}
	return strings.Join(lines, "\n")
}

func (e *Engine) logStep(projectID string, step *plan.Step) {
	if e.Logger != nil {
		e.Logger.LogStep(projectID, step.ID, string(step.Status), step.RetryCount)
	}
}

func (e *Engine) beginRecord(projectID, goal string, p *plan.ExecutionPlan) int64 {
	if e.Memory == nil {
		return 0
	}
	planJSON, _ := json.Marshal(p)
	id, err := e.Memory.BeginRecord(projectID, goal, planJSON)
	if err != nil {
		log.Printf("Warning: failed to begin execution record: %v", err)
		return 0
	}
	return id
}

// persist finalizes the audit record and writes memory/learning entries.
// Every failure here is logged and swallowed; persistence never changes the
// run outcome.
func (e *Engine) persist(inv Invocation, recordID int64, run *runState, state plan.ExecutionState, verification plan.Verification) {
	if e.Memory == nil {
		return
	}

	outcome := classifyOutcome(state)
	lessons := extractLessons(run)

	if recordID != 0 {
		stepsJSON, _ := json.Marshal(struct {
			Steps    []plan.Step    `json:"steps"`
			Attempts []plan.Attempt `json:"attempts"`
		}{run.plan.Steps, run.attempts})
		evalJSON, _ := json.Marshal(verification)
		if err := e.Memory.FinalizeRecord(recordID, outcome, stepsJSON, evalJSON, lessons, run.totalIterations); err != nil {
			log.Printf("Warning: failed to finalize execution record: %v", err)
		}
	}

	summary := store.MemoryEntry{
		Type:       "execution_summary",
		Content:    fmt.Sprintf("Goal %q finished as %s: %d/%d steps completed, completeness %d%%", inv.Goal, outcome, len(state.CompletedSteps), len(run.plan.Steps), verification.Completeness),
		Importance: verification.Completeness / 10,
		Metadata: map[string]any{
			"outcome":   string(outcome),
			"record_id": recordID,
		},
	}
	if err := e.Memory.StoreMemory(inv.ProjectID, summary); err != nil {
		log.Printf("Warning: failed to store run memory: %v", err)
	}

	for _, learning := range extractLearnings(run) {
		if err := e.Memory.StoreLearning(inv.ProjectID, learning); err != nil {
			log.Printf("Warning: failed to store learning: %v", err)
		}
	}

	if err := e.Memory.AddMessage(inv.ProjectID, "human", inv.Goal); err != nil {
		log.Printf("Warning: failed to persist goal message: %v", err)
	}
	report := fmt.Sprintf("Outcome: %s. Completed %d/%d steps, completeness %d%%.", outcome, len(state.CompletedSteps), len(run.plan.Steps), verification.Completeness)
	if err := e.Memory.AddMessage(inv.ProjectID, "ai", report); err != nil {
		log.Printf("Warning: failed to persist outcome message: %v", err)
	}

	if e.Logger != nil {
		e.Logger.LogMemory(inv.ProjectID, "stored", 1)
	}
}

func classifyOutcome(state plan.ExecutionState) store.FinalOutcome {
	switch {
	case state.OverallSuccess:
		return store.OutcomeCompleted
	case len(state.CompletedSteps) == 0:
		return store.OutcomeFailed
	default:
		return store.OutcomePartial
	}
}

// extractLessons renders human-readable takeaways for the audit record.
func extractLessons(run *runState) []string {
	var lessons []string
	for _, s := range run.plan.Steps {
		switch {
		case s.Status == plan.StatusCompleted && s.RetryCount > 0:
			lessons = append(lessons, fmt.Sprintf("Step %q succeeded after %d retries", s.Description, s.RetryCount))
		case s.Status == plan.StatusFailed:
			lessons = append(lessons, fmt.Sprintf("Step %q failed after exhausting retries", s.Description))
		case s.Status == plan.StatusSkipped:
			lessons = append(lessons, fmt.Sprintf("Step %q was skipped due to unmet dependencies", s.Description))
		}
	}
	return lessons
}

// extractLearnings derives persisted patterns from the run: retries that
// recovered, failed steps, and distinct failing tools.
func extractLearnings(run *runState) []store.LearningEntry {
	var out []store.LearningEntry

	seenTools := map[string]bool{}
	for _, r := range run.allResults {
		if r.Success || seenTools[r.Tool] {
			continue
		}
		seenTools[r.Tool] = true
		out = append(out, store.LearningEntry{
			LearningType: store.LearningErrorPattern,
			Pattern:      "tool_failure:" + r.Tool,
			Insight:      fmt.Sprintf("Tool %s failed with: %s", r.Tool, r.Error),
		})
	}

	for _, s := range run.plan.Steps {
		switch {
		case s.Status == plan.StatusCompleted && s.RetryCount > 0:
			out = append(out, store.LearningEntry{
				LearningType:       store.LearningSuccessPattern,
				Pattern:            "retry_recovered",
				Insight:            fmt.Sprintf("Step %q succeeded on retry %d; the retry feedback loop was sufficient", s.Description, s.RetryCount),
				ApplicableContexts: []string{s.Action},
			})
		case s.Status == plan.StatusFailed:
			out = append(out, store.LearningEntry{
				LearningType:       store.LearningFailurePattern,
				Pattern:            "step_failed",
				Insight:            fmt.Sprintf("Step %q could not be completed within the retry budget", s.Description),
				ApplicableContexts: []string{s.Action},
			})
		}
	}
	return out
}

func planSummary(p *plan.ExecutionPlan) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Plan for %q (%s, %d steps)", p.Goal, p.Complexity, len(p.Steps)))
	if p.Analysis != "" {
		b.WriteString(": " + p.Analysis)
	}
	for _, s := range p.Steps {
		b.WriteString(fmt.Sprintf("\n%s. %s [%s]", s.ID, s.Description, s.Status))
	}
	if len(p.ProactiveEnhancements) > 0 {
		b.WriteString("\nProactive enhancements: " + strings.Join(p.ProactiveEnhancements, "; "))
	}
	return b.String()
}
