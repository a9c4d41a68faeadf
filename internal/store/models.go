package store

import (
	"encoding/json"
	"time"
)

// MemoryEntry is a persisted piece of cross-invocation context.
type MemoryEntry struct {
	Type           string         `json:"type"`
	Category       string         `json:"category,omitempty"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Importance     int            `json:"importance"`
	CreatedAt      time.Time      `json:"created_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
}

// LearningType classifies a learning entry.
type LearningType string

const (
	LearningSuccessPattern LearningType = "success_pattern"
	LearningFailurePattern LearningType = "failure_pattern"
	LearningErrorPattern   LearningType = "error_pattern"
)

// LearningEntry is a persisted pattern extracted from past executions.
type LearningEntry struct {
	LearningType       LearningType `json:"learning_type"`
	Pattern            string       `json:"pattern"`
	Insight            string       `json:"insight"`
	ApplicableContexts []string     `json:"applicable_contexts,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
}

// FinalOutcome is the terminal classification of one invocation.
type FinalOutcome string

const (
	OutcomeInProgress FinalOutcome = "in_progress"
	OutcomeCompleted  FinalOutcome = "completed"
	OutcomePartial    FinalOutcome = "partial"
	OutcomeFailed     FinalOutcome = "failed"
)

// ExecutionRecord is the append-only audit trail of one invocation.
type ExecutionRecord struct {
	ID                int64           `json:"id"`
	ProjectID         string          `json:"project_id"`
	Goal              string          `json:"goal"`
	Plan              json.RawMessage `json:"plan,omitempty"`
	ExecutionSteps    json.RawMessage `json:"execution_steps,omitempty"`
	EvaluationResults json.RawMessage `json:"evaluation_results,omitempty"`
	FinalOutcome      FinalOutcome    `json:"final_outcome"`
	LessonsLearned    []string        `json:"lessons_learned,omitempty"`
	TotalIterations   int             `json:"total_iterations"`
	StartedAt         time.Time       `json:"started_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

// Message is one turn of a project's conversation history.
type Message struct {
	Role    string `json:"role"` // human, ai, system
	Content string `json:"content"`
}
