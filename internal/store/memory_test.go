package store

import (
	"encoding/json"
	"fmt"
	"testing"
)

func testStore(t *testing.T) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMessages_RoundTripAndOrder(t *testing.T) {
	s := testStore(t)

	for i := 0; i < 5; i++ {
		role := "human"
		if i%2 == 1 {
			role = "ai"
		}
		if err := s.AddMessage("proj", role, fmt.Sprintf("message %d", i)); err != nil {
			t.Fatal(err)
		}
	}

	history, err := s.GetHistory("proj", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(history))
	}
	// Chronological order, ending with the newest.
	if history[0].Content != "message 2" || history[2].Content != "message 4" {
		t.Errorf("unexpected order: %+v", history)
	}

	other, err := s.GetHistory("other-proj", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("projects must not share history, got %+v", other)
	}
}

func TestPruneMessages(t *testing.T) {
	s := testStore(t)

	for i := 0; i < 10; i++ {
		if err := s.AddMessage("proj", "human", fmt.Sprintf("message %d", i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.PruneMessages("proj", 4); err != nil {
		t.Fatal(err)
	}

	history, err := s.GetHistory("proj", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 4 {
		t.Fatalf("expected 4 messages after pruning, got %d", len(history))
	}
	if history[0].Content != "message 6" {
		t.Errorf("pruning should keep the newest messages, got %+v", history)
	}
}

func TestMemories_RoundTrip(t *testing.T) {
	s := testStore(t)

	entry := MemoryEntry{
		Type:       "execution_summary",
		Category:   "runs",
		Content:    "built the landing page",
		Importance: 8,
		Metadata:   map[string]any{"record_id": float64(7)},
	}
	if err := s.StoreMemory("proj", entry); err != nil {
		t.Fatal(err)
	}

	got, err := s.RetrieveMemories("proj", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one memory, got %d", len(got))
	}
	m := got[0]
	if m.Type != entry.Type || m.Content != entry.Content || m.Importance != 8 {
		t.Errorf("round trip mismatch: %+v", m)
	}
	if m.Metadata["record_id"] != float64(7) {
		t.Errorf("metadata lost: %+v", m.Metadata)
	}
}

func TestLearnings_RoundTrip(t *testing.T) {
	s := testStore(t)

	entry := LearningEntry{
		LearningType:       LearningErrorPattern,
		Pattern:            "tool_failure:run_command",
		Insight:            "npm was missing from the image",
		ApplicableContexts: []string{"node scaffolding"},
	}
	if err := s.StoreLearning("proj", entry); err != nil {
		t.Fatal(err)
	}

	got, err := s.RetrieveLearnings("proj", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one learning, got %d", len(got))
	}
	l := got[0]
	if l.LearningType != LearningErrorPattern || l.Pattern != entry.Pattern {
		t.Errorf("round trip mismatch: %+v", l)
	}
	if len(l.ApplicableContexts) != 1 || l.ApplicableContexts[0] != "node scaffolding" {
		t.Errorf("contexts lost: %+v", l.ApplicableContexts)
	}
}

func TestExecutionRecord_Lifecycle(t *testing.T) {
	s := testStore(t)

	planJSON, _ := json.Marshal(map[string]any{"goal": "build a page"})
	id, err := s.BeginRecord("proj", "build a page", planJSON)
	if err != nil {
		t.Fatal(err)
	}

	r, err := s.GetRecord(id)
	if err != nil {
		t.Fatal(err)
	}
	if r.FinalOutcome != OutcomeInProgress {
		t.Errorf("new records start in_progress, got %q", r.FinalOutcome)
	}
	if r.CompletedAt != nil {
		t.Error("completed_at should be unset while in progress")
	}

	steps, _ := json.Marshal([]string{"step-1"})
	eval, _ := json.Marshal(map[string]any{"completeness": 100})
	if err := s.FinalizeRecord(id, OutcomeCompleted, steps, eval, []string{"one lesson"}, 4); err != nil {
		t.Fatal(err)
	}

	r, err = s.GetRecord(id)
	if err != nil {
		t.Fatal(err)
	}
	if r.FinalOutcome != OutcomeCompleted {
		t.Errorf("expected completed, got %q", r.FinalOutcome)
	}
	if r.TotalIterations != 4 {
		t.Errorf("expected 4 iterations, got %d", r.TotalIterations)
	}
	if len(r.LessonsLearned) != 1 || r.LessonsLearned[0] != "one lesson" {
		t.Errorf("lessons lost: %+v", r.LessonsLearned)
	}
	if r.CompletedAt == nil {
		t.Error("completed_at should be set on finalize")
	}
}

func TestFinalizeRecord_SingleTransition(t *testing.T) {
	s := testStore(t)

	id, err := s.BeginRecord("proj", "goal", []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.FinalizeRecord(id, OutcomeFailed, nil, nil, nil, 1); err != nil {
		t.Fatal(err)
	}

	// A second finalize must not overwrite the terminal outcome.
	if err := s.FinalizeRecord(id, OutcomeCompleted, nil, nil, nil, 9); err != nil {
		t.Fatal(err)
	}

	r, err := s.GetRecord(id)
	if err != nil {
		t.Fatal(err)
	}
	if r.FinalOutcome != OutcomeFailed {
		t.Errorf("terminal outcome must be immutable, got %q", r.FinalOutcome)
	}
	if r.TotalIterations != 1 {
		t.Errorf("iterations overwritten on repeat finalize: %d", r.TotalIterations)
	}
}
