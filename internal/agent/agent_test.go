package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/rahul/taskforge/internal/store"
	"github.com/rahul/taskforge/internal/workspace"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel is a scripted llms.Model. Responses are consumed in order; when
// a handler is set it takes precedence and can branch on the messages.
type fakeModel struct {
	mu        sync.Mutex
	responses []*llms.ContentResponse
	err       error
	handler   func(call int, messages []llms.MessageContent) *llms.ContentResponse
	calls     int
	seen      [][]llms.MessageContent
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.calls
	m.calls++
	m.seen = append(m.seen, messages)

	if m.err != nil {
		return nil, m.err
	}
	if m.handler != nil {
		return m.handler(call, messages), nil
	}
	if call < len(m.responses) {
		return m.responses[call], nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "done"}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", nil
}

// toolCallResponse builds a one-choice response carrying the given calls.
func toolCallResp(calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{ToolCalls: calls}},
	}
}

var toolCallSeq int

func call(name, args string) llms.ToolCall {
	toolCallSeq++
	return llms.ToolCall{
		ID:   fmt.Sprintf("call-%d", toolCallSeq),
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

func textResp(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text}},
	}
}

// fakeMemory is an in-memory Memory with configurable failures.
type fakeMemory struct {
	mu          sync.Mutex
	retrieveErr error
	storeErr    error

	memories  []store.MemoryEntry
	learnings []store.LearningEntry
	messages  []store.Message
	records   map[int64]store.FinalOutcome
	nextID    int64
	lessons   map[int64][]string
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{
		records: make(map[int64]store.FinalOutcome),
		lessons: make(map[int64][]string),
		nextID:  1,
	}
}

func (m *fakeMemory) RetrieveMemories(projectID string, limit int) ([]store.MemoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.retrieveErr != nil {
		return nil, m.retrieveErr
	}
	return append([]store.MemoryEntry(nil), m.memories...), nil
}

func (m *fakeMemory) RetrieveLearnings(projectID string, limit int) ([]store.LearningEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.retrieveErr != nil {
		return nil, m.retrieveErr
	}
	return append([]store.LearningEntry(nil), m.learnings...), nil
}

func (m *fakeMemory) StoreMemory(projectID string, entry store.MemoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return m.storeErr
	}
	m.memories = append(m.memories, entry)
	return nil
}

func (m *fakeMemory) StoreLearning(projectID string, entry store.LearningEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return m.storeErr
	}
	m.learnings = append(m.learnings, entry)
	return nil
}

func (m *fakeMemory) AddMessage(projectID string, role string, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return m.storeErr
	}
	m.messages = append(m.messages, store.Message{Role: role, Content: content})
	return nil
}

func (m *fakeMemory) BeginRecord(projectID, goal string, planJSON []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return 0, m.storeErr
	}
	id := m.nextID
	m.nextID++
	m.records[id] = store.OutcomeInProgress
	return id, nil
}

func (m *fakeMemory) FinalizeRecord(id int64, outcome store.FinalOutcome, stepsJSON, evalJSON []byte, lessons []string, totalIterations int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return m.storeErr
	}
	m.records[id] = outcome
	m.lessons[id] = lessons
	return nil
}

func testManifest() workspace.Manifest {
	return workspace.Manifest{
		Files: []workspace.File{
			{ID: "f-1", Path: "README.md", Content: "# Project"},
		},
	}
}
