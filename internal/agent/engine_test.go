package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/rahul/taskforge/internal/governance"
	"github.com/rahul/taskforge/internal/store"
	"github.com/rahul/taskforge/internal/tools"
	"github.com/rahul/taskforge/internal/workspace"
	"github.com/rahul/taskforge/pkg/config"
	"github.com/tmc/langchaingo/llms"
)

func newTestEngine(t *testing.T, model *fakeModel, memory Memory) (*Engine, *workspace.Snapshot) {
	t.Helper()

	snapshot := workspace.NewSnapshot(workspace.Manifest{})

	registry := tools.NewRegistry()
	registry.Register(tools.NewCreateFileTool(snapshot))
	registry.Register(tools.NewEditFileTool(snapshot))
	registry.Register(tools.NewDeleteFileTool(snapshot))
	registry.Register(tools.NewReadFileTool(snapshot))
	registry.Register(tools.NewListFilesTool(snapshot))
	registry.Register(tools.NewInstallPackageTool(tools.SimulatedInstaller()))
	registry.Register(tools.NewGenerateImageTool(snapshot, tools.PlaceholderSynthesizer()))
	registry.Register(tools.NewCompleteStepTool())

	dispatcher := tools.NewDispatcher(registry, governance.NewDefaultPolicyEngine(), nil)
	planner := NewPlanner(model, nil, nil)
	verifier := NewVerifier(model, nil, nil)
	assembler := NewContextAssembler(memory, 20, 10, 5, nil)

	engine := NewEngine(model, registry, dispatcher, planner, verifier, assembler,
		memory, nil, snapshot, nil, config.DefaultEngine())
	return engine, snapshot
}

const sitePlanArgs = `{
	"analysis": "Static landing page with a hero image",
	"complexity": "moderate",
	"steps": [
		{"id": "step-1", "description": "Create index.html", "action": "Write the page", "tools_needed": ["create_file"]},
		{"id": "step-2", "description": "Generate the hero image", "action": "Synthesize the hero", "tools_needed": ["generate_image"], "dependencies": ["step-1"]},
		{"id": "step-3", "description": "Create styles.css", "action": "Write the styles", "tools_needed": ["create_file"], "dependencies": ["step-1"]}
	]
}`

func TestEngine_FullRun(t *testing.T) {
	model := &fakeModel{}
	model.handler = func(n int, messages []llms.MessageContent) *llms.ContentResponse {
		switch n {
		case 0: // planner
			return toolCallResp(call("propose_plan", sitePlanArgs))
		case 1: // step-1
			return toolCallResp(
				call("create_file", `{"path": "index.html", "content": "<html><body>hello</body></html>"}`),
				call("complete_step", `{"summary": "page written"}`),
			)
		case 2: // step-2
			return toolCallResp(
				call("generate_image", `{"prompt": "sunset hero"}`),
				call("complete_step", `{"summary": "hero generated"}`),
			)
		case 3: // step-3
			return toolCallResp(
				call("create_file", `{"path": "styles.css", "content": "body { margin: 0 }"}`),
				call("complete_step", `{"summary": "styles written"}`),
			)
		default: // verifier
			return toolCallResp(call("report_verification", `{"goal_achieved": true, "completeness": 100}`))
		}
	}

	memory := newFakeMemory()
	engine, _ := newTestEngine(t, model, memory)

	out, err := engine.Execute(context.Background(), Invocation{
		Goal:      "build a landing page with a hero image",
		ProjectID: "proj-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	if !out.State.OverallSuccess {
		t.Errorf("expected overall success, state: %+v", out.State)
	}
	if len(out.State.CompletedSteps) != 3 {
		t.Errorf("expected 3 completed steps, got %v", out.State.CompletedSteps)
	}
	if out.State.TotalIterations != 3 {
		t.Errorf("expected 3 iterations, got %d", out.State.TotalIterations)
	}
	if !out.Verification.GoalAchieved || out.Verification.Completeness != 100 {
		t.Errorf("unexpected verification: %+v", out.Verification)
	}

	wantPaths := []string{"index.html", "styles.css", "assets/sunset-hero.png"}
	for _, p := range wantPaths {
		if out.Files.FileByPath(p) == nil {
			t.Errorf("final manifest missing %s", p)
		}
	}
	if len(out.ToolOutputs.Images) != 1 || out.ToolOutputs.Images[0] != "assets/sunset-hero.png" {
		t.Errorf("unexpected images: %v", out.ToolOutputs.Images)
	}

	// Audit record transitions to completed.
	if got := memory.records[out.RecordID]; got != store.OutcomeCompleted {
		t.Errorf("expected completed record, got %q", got)
	}
	// Goal and report messages were persisted.
	if len(memory.messages) != 2 || memory.messages[0].Role != "human" || memory.messages[1].Role != "ai" {
		t.Errorf("unexpected persisted messages: %+v", memory.messages)
	}
}

func TestEngine_SkipsOnUnmetDependency(t *testing.T) {
	planArgs := `{
		"complexity": "moderate",
		"steps": [
			{"id": "step-1", "description": "Scaffold the project", "action": "scaffold"},
			{"id": "step-2", "description": "Style the page", "action": "style", "dependencies": ["step-1"]},
			{"id": "step-3", "description": "Deploy", "action": "deploy", "dependencies": ["step-9"]}
		]
	}`

	model := &fakeModel{}
	model.handler = func(n int, messages []llms.MessageContent) *llms.ContentResponse {
		switch n {
		case 0:
			return toolCallResp(call("propose_plan", planArgs))
		case 1, 2, 3: // step-1 attempts, all doomed
			return toolCallResp(
				call("bogus_tool", `{}`),
				call("complete_step", `{"summary": "tried"}`),
			)
		default: // verifier falls back on error-free structured report
			return toolCallResp(call("report_verification", `{"goal_achieved": false, "completeness": 10}`))
		}
	}

	memory := newFakeMemory()
	engine, _ := newTestEngine(t, model, memory)

	out, err := engine.Execute(context.Background(), Invocation{Goal: "doomed goal", ProjectID: "proj-2"})
	if err != nil {
		t.Fatal(err)
	}

	if len(out.State.FailedSteps) != 1 || out.State.FailedSteps[0] != "step-1" {
		t.Errorf("expected step-1 failed, got %v", out.State.FailedSteps)
	}
	// step-2's dependency failed; step-3's dependency does not exist.
	if len(out.State.SkippedSteps) != 2 {
		t.Errorf("expected 2 skipped steps, got %v", out.State.SkippedSteps)
	}
	if out.State.OverallSuccess {
		t.Error("run with failures must not be an overall success")
	}
	if got := memory.records[out.RecordID]; got != store.OutcomeFailed {
		t.Errorf("expected failed record with zero completed steps, got %q", got)
	}
}

func TestEngine_RetryRecovers(t *testing.T) {
	planArgs := `{
		"complexity": "simple",
		"steps": [{"id": "step-1", "description": "Create the page", "action": "create"}]
	}`

	model := &fakeModel{}
	model.handler = func(n int, messages []llms.MessageContent) *llms.ContentResponse {
		switch n {
		case 0:
			return toolCallResp(call("propose_plan", planArgs))
		case 1: // first attempt fails
			return toolCallResp(
				call("bogus_tool", `{}`),
				call("complete_step", `{"summary": "tried"}`),
			)
		case 2: // retry succeeds
			return toolCallResp(
				call("create_file", `{"path": "index.html", "content": "<html></html>"}`),
				call("complete_step", `{"summary": "created"}`),
			)
		default:
			return toolCallResp(call("report_verification", `{"goal_achieved": true, "completeness": 100}`))
		}
	}

	memory := newFakeMemory()
	engine, _ := newTestEngine(t, model, memory)

	out, err := engine.Execute(context.Background(), Invocation{Goal: "create the page", ProjectID: "proj-3"})
	if err != nil {
		t.Fatal(err)
	}

	if len(out.State.CompletedSteps) != 1 {
		t.Fatalf("expected the step to complete, state: %+v", out.State)
	}
	if out.State.EvaluationsFailed != 1 || out.State.EvaluationsPassed != 1 {
		t.Errorf("expected one failed and one passed evaluation, got %d/%d",
			out.State.EvaluationsFailed, out.State.EvaluationsPassed)
	}
	if out.State.TotalIterations != 2 {
		t.Errorf("expected 2 iterations, got %d", out.State.TotalIterations)
	}

	// The retry that recovered is persisted as a success pattern.
	found := false
	for _, l := range memory.learnings {
		if l.Pattern == "retry_recovered" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a retry_recovered learning, got %+v", memory.learnings)
	}
}

func TestEngine_AttemptsScoredInIsolation(t *testing.T) {
	// The failed first attempt's results must not drag down the retry's
	// score: the second attempt has one successful result and passes at 100.
	planArgs := `{"complexity": "simple", "steps": [{"id": "step-1", "description": "Create", "action": "create"}]}`

	model := &fakeModel{}
	model.handler = func(n int, messages []llms.MessageContent) *llms.ContentResponse {
		switch n {
		case 0:
			return toolCallResp(call("propose_plan", planArgs))
		case 1:
			return toolCallResp(call("bogus_tool", `{}`), call("complete_step", `{"summary": "x"}`))
		case 2:
			return toolCallResp(
				call("create_file", `{"path": "a.txt", "content": "a"}`),
				call("complete_step", `{"summary": "x"}`),
			)
		default:
			return toolCallResp(call("report_verification", `{"goal_achieved": true, "completeness": 100}`))
		}
	}

	engine, _ := newTestEngine(t, model, newFakeMemory())
	out, err := engine.Execute(context.Background(), Invocation{Goal: "create", ProjectID: "proj"})
	if err != nil {
		t.Fatal(err)
	}

	if !out.State.OverallSuccess {
		t.Fatalf("expected success, got %+v", out.State)
	}
}

func TestEngine_NarrationOnlyIsNudged(t *testing.T) {
	planArgs := `{"complexity": "simple", "steps": [{"id": "step-1", "description": "Do it", "action": "do"}]}`

	model := &fakeModel{}
	model.handler = func(n int, messages []llms.MessageContent) *llms.ContentResponse {
		if n == 0 {
			return toolCallResp(call("propose_plan", planArgs))
		}
		if n >= 6 { // verifier after the iteration budget is spent
			return toolCallResp(call("report_verification", `{"goal_achieved": false, "completeness": 0}`))
		}
		return textResp("I will now do the thing.")
	}

	engine, _ := newTestEngine(t, model, newFakeMemory())
	out, err := engine.Execute(context.Background(), Invocation{Goal: "do it", ProjectID: "proj"})
	if err != nil {
		t.Fatal(err)
	}

	// Five narration-only iterations exhaust the per-step budget without a
	// single evaluation; the step fails.
	if len(out.State.FailedSteps) != 1 {
		t.Errorf("expected the step to fail, state: %+v", out.State)
	}
	if out.State.EvaluationsPassed != 0 || out.State.EvaluationsFailed != 0 {
		t.Errorf("narration-only attempts must not be evaluated: %+v", out.State)
	}

	// The nudge reached the model on the second executor call.
	nudged := false
	for _, msgs := range model.seen[2:] {
		for _, m := range msgs {
			for _, p := range m.Parts {
				if tc, ok := p.(llms.TextContent); ok && strings.Contains(tc.Text, "No tools were invoked") {
					nudged = true
				}
			}
		}
	}
	if !nudged {
		t.Error("expected a nudge message after a tool-free response")
	}
}

func TestEngine_OverallIterationCeiling(t *testing.T) {
	planArgs := `{
		"complexity": "moderate",
		"steps": [
			{"id": "step-1", "description": "First", "action": "first"},
			{"id": "step-2", "description": "Second", "action": "second"}
		]
	}`

	model := &fakeModel{}
	model.handler = func(n int, messages []llms.MessageContent) *llms.ContentResponse {
		switch n {
		case 0:
			return toolCallResp(call("propose_plan", planArgs))
		case 1:
			return toolCallResp(
				call("create_file", `{"path": "a.txt", "content": "a"}`),
				call("complete_step", `{"summary": "done"}`),
			)
		default:
			return toolCallResp(call("report_verification", `{"goal_achieved": false, "completeness": 50}`))
		}
	}

	engine, _ := newTestEngine(t, model, newFakeMemory())
	engine.Bounds.MaxIterations = 1

	out, err := engine.Execute(context.Background(), Invocation{Goal: "two steps, one budget", ProjectID: "proj"})
	if err != nil {
		t.Fatal(err)
	}

	if len(out.State.CompletedSteps) != 1 {
		t.Errorf("expected step-1 completed, got %v", out.State.CompletedSteps)
	}
	if len(out.State.SkippedSteps) != 1 || out.State.SkippedSteps[0] != "step-2" {
		t.Errorf("step-2 should be skipped once the ceiling is hit, got %v", out.State.SkippedSteps)
	}
}

func TestEngine_EmptyGoalRejected(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeModel{}, newFakeMemory())
	if _, err := engine.Execute(context.Background(), Invocation{Goal: "   "}); err == nil {
		t.Error("expected an error for an empty goal")
	}
}

func TestEngine_CancelledContextSkipsRemainingSteps(t *testing.T) {
	planArgs := `{"complexity": "simple", "steps": [{"id": "step-1", "description": "Do it", "action": "do"}]}`

	model := &fakeModel{responses: []*llms.ContentResponse{
		toolCallResp(call("propose_plan", planArgs)),
	}}

	engine, _ := newTestEngine(t, model, newFakeMemory())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := engine.Execute(ctx, Invocation{Goal: "do it", ProjectID: "proj"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.State.SkippedSteps) != 1 {
		t.Errorf("steps not yet started should be skipped on cancellation, got %+v", out.State)
	}
}
