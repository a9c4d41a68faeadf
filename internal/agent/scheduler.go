package agent

import (
	"context"
	"errors"
	"log"
	"time"
)

// Job is one queued invocation plus the channel its outcome is delivered on.
type Job struct {
	Invocation Invocation
	Result     chan Result
}

// Result pairs an outcome with the submission error, if any.
type Result struct {
	Outcome *Outcome
	Err     error
}

// Scheduler serializes engine invocations through a FIFO queue. The engine
// holds one live workspace snapshot, so runs must never overlap; every
// gateway submits through here instead of calling Execute directly.
type Scheduler struct {
	Engine *Engine
	queue  chan Job
}

func NewScheduler(engine *Engine, depth int) *Scheduler {
	if depth <= 0 {
		depth = 16
	}
	return &Scheduler{
		Engine: engine,
		queue:  make(chan Job, depth),
	}
}

var ErrQueueFull = errors.New("run queue is full")

// Submit enqueues an invocation and returns a channel that receives exactly
// one Result. It never blocks: a full queue fails fast.
func (s *Scheduler) Submit(inv Invocation) (<-chan Result, error) {
	job := Job{Invocation: inv, Result: make(chan Result, 1)}
	select {
	case s.queue <- job:
		return job.Result, nil
	default:
		return nil, ErrQueueFull
	}
}

// Run drains the queue until the context is cancelled. Jobs still queued at
// shutdown receive the context error.
func (s *Scheduler) Run(ctx context.Context) {
	log.Println("Run scheduler started...")
	for {
		// Cancellation wins over queued work.
		select {
		case <-ctx.Done():
			s.drain(ctx.Err())
			return
		default:
		}
		select {
		case <-ctx.Done():
			s.drain(ctx.Err())
			return
		case job := <-s.queue:
			s.execute(ctx, job)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) {
	start := time.Now()
	outcome, err := s.Engine.Execute(ctx, job.Invocation)
	if err != nil {
		log.Printf("Error executing goal for project %s: %v", job.Invocation.ProjectID, err)
	} else {
		log.Printf("Finished goal for project %s in %s", job.Invocation.ProjectID, time.Since(start).Round(time.Millisecond))
	}
	job.Result <- Result{Outcome: outcome, Err: err}
}

func (s *Scheduler) drain(err error) {
	for {
		select {
		case job := <-s.queue:
			job.Result <- Result{Err: err}
		default:
			return
		}
	}
}
