package plan

import "time"

// StepStatus represents the lifecycle state of a plan step.
type StepStatus string

const (
	StatusPending    StepStatus = "pending"
	StatusInProgress StepStatus = "in_progress"
	StatusCompleted  StepStatus = "completed"
	StatusFailed     StepStatus = "failed"
	StatusSkipped    StepStatus = "skipped"
)

// Complexity classifies how involved a goal is, as judged by the planner.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// ToolResult is the outcome of one tool invocation within a step attempt.
// Args carries the raw JSON arguments the tool was called with so the
// workspace reducer can apply the outcome without consulting tool internals.
type ToolResult struct {
	ID      string `json:"id"`
	Tool    string `json:"tool"`
	Args    string `json:"args"`
	Success bool   `json:"success"`
	Result  string `json:"result"`
	Error   string `json:"error,omitempty"`
	StepID  string `json:"step_id"`
}

// Evaluation is the deterministic local score of one step attempt.
type Evaluation struct {
	Success bool     `json:"success"`
	Score   int      `json:"score"` // 0-100
	Issues  []string `json:"issues,omitempty"`
}

// Step represents a single sub-task in an execution plan.
type Step struct {
	ID              string       `json:"id"`
	Description     string       `json:"description"`
	Action          string       `json:"action"`
	ToolsNeeded     []string     `json:"tools_needed,omitempty"`
	Dependencies    []string     `json:"dependencies,omitempty"`
	ExpectedOutcome string       `json:"expected_outcome,omitempty"`
	Status          StepStatus   `json:"status"`
	RetryCount      int          `json:"retry_count"`
	ToolResults     []ToolResult `json:"tool_results,omitempty"` // current attempt only
	Evaluation      *Evaluation  `json:"evaluation,omitempty"`
}

// ExecutionPlan is an ordered decomposition of a goal into steps.
type ExecutionPlan struct {
	Goal                  string     `json:"goal"`
	Analysis              string     `json:"analysis,omitempty"`
	Complexity            Complexity `json:"complexity"`
	Steps                 []Step     `json:"steps"`
	ProactiveEnhancements []string   `json:"proactive_enhancements,omitempty"`
	EstimatedToolCount    int        `json:"estimated_tool_count,omitempty"`
}

// StepByID returns the step with the given id, or nil.
func (p *ExecutionPlan) StepByID(id string) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// Terminated reports whether every step has reached a terminal status.
func (p *ExecutionPlan) Terminated() bool {
	for _, s := range p.Steps {
		switch s.Status {
		case StatusCompleted, StatusFailed, StatusSkipped:
		default:
			return false
		}
	}
	return true
}

// ExecutionState aggregates the terminal statuses of one engine pass.
type ExecutionState struct {
	CompletedSteps    []string `json:"completed_steps"`
	FailedSteps       []string `json:"failed_steps"`
	SkippedSteps      []string `json:"skipped_steps"`
	EvaluationsPassed int      `json:"evaluations_passed"`
	EvaluationsFailed int      `json:"evaluations_failed"`
	TotalIterations   int      `json:"total_iterations"`
	OverallSuccess    bool     `json:"overall_success"`
}

// StateOf derives the execution state from a terminated plan.
func StateOf(p *ExecutionPlan) ExecutionState {
	state := ExecutionState{
		CompletedSteps: []string{},
		FailedSteps:    []string{},
		SkippedSteps:   []string{},
	}
	for _, s := range p.Steps {
		switch s.Status {
		case StatusCompleted:
			state.CompletedSteps = append(state.CompletedSteps, s.ID)
		case StatusFailed:
			state.FailedSteps = append(state.FailedSteps, s.ID)
		case StatusSkipped:
			state.SkippedSteps = append(state.SkippedSteps, s.ID)
		}
	}
	state.OverallSuccess = len(state.CompletedSteps) == len(p.Steps)
	return state
}

// Verification is the end-of-run assessment of goal achievement.
type Verification struct {
	GoalAchieved bool     `json:"goal_achieved"`
	Completeness int      `json:"completeness"` // 0-100
	Gaps         []string `json:"gaps,omitempty"`
	Suggestions  []string `json:"suggestions,omitempty"`
}

// Attempt is an audit snapshot of one step attempt. The step itself only
// keeps the current attempt's results; prior attempts live here.
type Attempt struct {
	StepID     string       `json:"step_id"`
	Number     int          `json:"number"` // 1-based
	Results    []ToolResult `json:"results,omitempty"`
	Evaluation *Evaluation  `json:"evaluation,omitempty"`
	At         time.Time    `json:"at"`
}
