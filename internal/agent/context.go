package agent

import (
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/rahul/taskforge/internal/observability"
	"github.com/rahul/taskforge/internal/store"
	"github.com/rahul/taskforge/internal/workspace"
	"github.com/tmc/langchaingo/llms"
)

const (
	summaryPairChars = 200 // per side of a user/assistant pair
	summaryMaxPairs  = 10
	recentFraction   = 0.7
)

// Memory is the persistence contract the engine depends on. Retrieval
// failures degrade to empty context; store failures are logged and
// swallowed. Persistence never aborts a run.
type Memory interface {
	RetrieveMemories(projectID string, limit int) ([]store.MemoryEntry, error)
	RetrieveLearnings(projectID string, limit int) ([]store.LearningEntry, error)
	StoreMemory(projectID string, entry store.MemoryEntry) error
	StoreLearning(projectID string, entry store.LearningEntry) error
	AddMessage(projectID string, role string, content string) error
	BeginRecord(projectID, goal string, planJSON []byte) (int64, error)
	FinalizeRecord(id int64, outcome store.FinalOutcome, stepsJSON, evalJSON []byte, lessons []string, totalIterations int) error
}

// RunContext is the contextual payload fed to the planner and the step
// executor.
type RunContext struct {
	Goal           string
	Manifest       workspace.Manifest
	Memories       []store.MemoryEntry
	Learnings      []store.LearningEntry
	History        []store.Message
	CompletedSteps []string // descriptions of steps completed so far
	Compacted      bool
}

// ContextAssembler builds RunContexts and keeps conversation history
// bounded through compaction.
type ContextAssembler struct {
	Memory        Memory
	Threshold     int // history length that triggers compaction
	MemoryLimit   int
	LearningLimit int
	Logger        *observability.Logger
}

func NewContextAssembler(memory Memory, threshold, memoryLimit, learningLimit int, logger *observability.Logger) *ContextAssembler {
	return &ContextAssembler{
		Memory:        memory,
		Threshold:     threshold,
		MemoryLimit:   memoryLimit,
		LearningLimit: learningLimit,
		Logger:        logger,
	}
}

// Assemble retrieves memories and learnings for the project and compacts
// the supplied history. Retrieval errors yield an empty context slice.
func (a *ContextAssembler) Assemble(projectID, goal string, manifest workspace.Manifest, history []store.Message) RunContext {
	rc := RunContext{Goal: goal, Manifest: manifest}

	if a.Memory != nil {
		memories, err := a.Memory.RetrieveMemories(projectID, a.MemoryLimit)
		if err != nil {
			log.Printf("Warning: failed to retrieve memories: %v", err)
		} else {
			rc.Memories = memories
		}
		learnings, err := a.Memory.RetrieveLearnings(projectID, a.LearningLimit)
		if err != nil {
			log.Printf("Warning: failed to retrieve learnings: %v", err)
		} else {
			rc.Learnings = learnings
		}
		if a.Logger != nil {
			a.Logger.LogMemory(projectID, "retrieved", len(rc.Memories)+len(rc.Learnings))
		}
	}

	rc.History, rc.Compacted = CompactHistory(history, a.Threshold)
	return rc
}

// CompactHistory folds the older portion of a long history into one
// synthetic summary message. Histories at or under the threshold are
// returned unchanged. The most recent message is always preserved.
func CompactHistory(history []store.Message, threshold int) ([]store.Message, bool) {
	if threshold <= 0 || len(history) <= threshold {
		return history, false
	}

	keep := int(math.Ceil(recentFraction * float64(threshold)))
	recent := history[len(history)-keep:]
	older := history[:len(history)-keep]

	out := make([]store.Message, 0, keep+1)
	out = append(out, summarize(older))
	out = append(out, recent...)
	return out, true
}

// summarize pairs each user turn with its following assistant turn and
// renders the last few pairs into a single message.
func summarize(older []store.Message) store.Message {
	type pair struct {
		user      string
		assistant string
	}
	var pairs []pair
	for i := 0; i < len(older); i++ {
		if older[i].Role != "human" {
			continue
		}
		p := pair{user: truncate(older[i].Content, summaryPairChars)}
		if i+1 < len(older) && older[i+1].Role == "ai" {
			p.assistant = truncate(older[i+1].Content, summaryPairChars)
			i++
		}
		pairs = append(pairs, p)
	}
	if len(pairs) > summaryMaxPairs {
		pairs = pairs[len(pairs)-summaryMaxPairs:]
	}

	var b strings.Builder
	b.WriteString("Summary of the earlier conversation:\n")
	for _, p := range pairs {
		b.WriteString("- User: " + p.user + "\n")
		if p.assistant != "" {
			b.WriteString("  Assistant: " + p.assistant + "\n")
		}
	}
	return store.Message{Role: "system", Content: strings.TrimRight(b.String(), "\n")}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// Render flattens the contextual payload into prompt text.
func (rc *RunContext) Render() string {
	var b strings.Builder

	b.WriteString(rc.Manifest.Summary())

	if len(rc.Memories) > 0 {
		b.WriteString("\n\nRelevant memories from past work on this project:\n")
		for _, m := range rc.Memories {
			b.WriteString(fmt.Sprintf("- [%s] %s\n", m.Type, truncate(m.Content, 300)))
		}
	}
	if len(rc.Learnings) > 0 {
		b.WriteString("\nLearnings from previous executions:\n")
		for _, l := range rc.Learnings {
			b.WriteString(fmt.Sprintf("- [%s] %s: %s\n", l.LearningType, l.Pattern, truncate(l.Insight, 300)))
		}
	}
	if len(rc.CompletedSteps) > 0 {
		b.WriteString("\nSteps already completed in this run:\n")
		for _, s := range rc.CompletedSteps {
			b.WriteString("- " + s + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// LLMHistory converts stored messages into model messages, mapping the
// persisted role names the way the store writes them.
func LLMHistory(history []store.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(history))
	for _, m := range history {
		var role llms.ChatMessageType
		switch m.Role {
		case "human":
			role = llms.ChatMessageTypeHuman
		case "ai":
			role = llms.ChatMessageTypeAI
		case "system":
			role = llms.ChatMessageTypeSystem
		default:
			role = llms.ChatMessageTypeHuman
		}
		out = append(out, llms.MessageContent{
			Role:  role,
			Parts: []llms.ContentPart{llms.TextPart(m.Content)},
		})
	}
	return out
}
