package observability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan         EventType = "plan"
	EventTypeStep         EventType = "step"
	EventTypeToolCall     EventType = "tool_call"
	EventTypeToolResult   EventType = "tool_result"
	EventTypeEvaluation   EventType = "evaluation"
	EventTypeVerification EventType = "verification"
	EventTypePolicyCheck  EventType = "policy_check"
	EventTypeMemory       EventType = "memory"
	EventTypeHeartbeat    EventType = "heartbeat"
	EventTypeLLM          EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	ProjectID string    `json:"project_id,omitempty"`
	StepID    string    `json:"step_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return &Logger{
		llmLogPath: filepath.Join("logs", "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event to stdout.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Printf("{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Println(string(data))

	if evt.Type == EventTypeLLM {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogPlan(projectID, goal string, stepCount int, complexity string) {
	l.Log(Event{
		Type:      EventTypePlan,
		ProjectID: projectID,
		Data: map[string]any{
			"goal":       goal,
			"steps":      stepCount,
			"complexity": complexity,
		},
	})
}

func (l *Logger) LogStep(projectID, stepID, status string, retryCount int) {
	l.Log(Event{
		Type:      EventTypeStep,
		ProjectID: projectID,
		StepID:    stepID,
		Data: map[string]any{
			"status":      status,
			"retry_count": retryCount,
		},
	})
}

func (l *Logger) LogToolCall(stepID, tool, args string) {
	l.Log(Event{
		Type:   EventTypeToolCall,
		StepID: stepID,
		Data: map[string]string{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogToolResult(stepID, tool string, success bool, errMsg string) {
	data := map[string]any{
		"tool":    tool,
		"success": success,
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	l.Log(Event{
		Type:   EventTypeToolResult,
		StepID: stepID,
		Data:   data,
	})
}

func (l *Logger) LogEvaluation(stepID string, success bool, score int, issues []string) {
	l.Log(Event{
		Type:   EventTypeEvaluation,
		StepID: stepID,
		Data: map[string]any{
			"success": success,
			"score":   score,
			"issues":  issues,
		},
	})
}

func (l *Logger) LogVerification(projectID string, goalAchieved bool, completeness int, gaps []string) {
	l.Log(Event{
		Type:      EventTypeVerification,
		ProjectID: projectID,
		Data: map[string]any{
			"goal_achieved": goalAchieved,
			"completeness":  completeness,
			"gaps":          gaps,
		},
	})
}

func (l *Logger) LogPolicyCheck(stepID, tool, effect, reason string) {
	l.Log(Event{
		Type:   EventTypePolicyCheck,
		StepID: stepID,
		Data: map[string]string{
			"tool":   tool,
			"effect": effect,
			"reason": reason,
		},
	})
}

func (l *Logger) LogMemory(projectID, kind string, count int) {
	l.Log(Event{
		Type:      EventTypeMemory,
		ProjectID: projectID,
		Data: map[string]any{
			"kind":  kind,
			"count": count,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(projectID, stepID string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:      EventTypeLLM,
		ProjectID: projectID,
		StepID:    stepID,
		Data: map[string]any{
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}
