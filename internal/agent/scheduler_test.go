package agent

import (
	"context"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"
)

func TestScheduler_RunsSubmittedGoal(t *testing.T) {
	planArgs := `{"complexity": "simple", "steps": [{"id": "step-1", "description": "Create the page", "action": "create"}]}`

	model := &fakeModel{}
	model.handler = func(n int, messages []llms.MessageContent) *llms.ContentResponse {
		switch n {
		case 0:
			return toolCallResp(call("propose_plan", planArgs))
		case 1:
			return toolCallResp(
				call("create_file", `{"path": "index.html", "content": "<html></html>"}`),
				call("complete_step", `{"summary": "done"}`),
			)
		default:
			return toolCallResp(call("report_verification", `{"goal_achieved": true, "completeness": 100}`))
		}
	}

	engine, _ := newTestEngine(t, model, newFakeMemory())
	sched := NewScheduler(engine, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	results, err := sched.Submit(Invocation{Goal: "create the page", ProjectID: "proj"})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case res := <-results:
		if res.Err != nil {
			t.Fatal(res.Err)
		}
		if !res.Outcome.State.OverallSuccess {
			t.Errorf("unexpected outcome: %+v", res.Outcome.State)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the run result")
	}
}

func TestScheduler_QueueFull(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeModel{}, newFakeMemory())
	sched := NewScheduler(engine, 1)
	// No Run loop: the queue never drains.

	if _, err := sched.Submit(Invocation{Goal: "first"}); err != nil {
		t.Fatal(err)
	}
	if _, err := sched.Submit(Invocation{Goal: "second"}); err != ErrQueueFull {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestScheduler_DrainsOnShutdown(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeModel{}, newFakeMemory())
	sched := NewScheduler(engine, 4)

	results, err := sched.Submit(Invocation{Goal: "never runs"})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sched.Run(ctx)

	select {
	case res := <-results:
		if res.Err == nil {
			t.Error("queued jobs should receive the shutdown error")
		}
	case <-time.After(time.Second):
		t.Fatal("queued job was not drained on shutdown")
	}
}
