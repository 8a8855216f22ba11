package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

var errUnknownJob = errors.New("no task registered")

// Worker drains a job queue and runs the scheduler's task for each message.
type Worker struct {
	Dequeuer   core.JobDequeuer
	Tasks      *Scheduler
	Hook       core.JobWorkerHook
	Logger     core.Logger
	RetryDelay time.Duration
}

func NewWorker(dequeuer core.JobDequeuer, tasks *Scheduler, logger core.Logger) *Worker {
	return &Worker{
		Dequeuer:   dequeuer,
		Tasks:      tasks,
		Logger:     glog.Ensure(logger),
		RetryDelay: 10 * time.Second,
	}
}

// Run processes messages until ctx is done or the queue fails.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.Dequeuer == nil || w.Tasks == nil {
		return fmt.Errorf("scheduler: worker is not configured")
	}
	for {
		delivery, err := w.Dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		w.Process(ctx, delivery)
	}
}

// Process runs one delivery and acks or nacks it.
func (w *Worker) Process(ctx context.Context, delivery core.JobDelivery) {
	logger := glog.Ensure(w.Logger)
	msg := delivery.Message()
	if msg == nil {
		_ = delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "empty message"})
		return
	}
	event := core.JobWorkerEvent{Message: msg, Attempt: attemptOf(delivery), StartedAt: time.Now().UTC()}

	task, ok := w.Tasks.Task(msg.JobID)
	if !ok {
		event.Err = fmt.Errorf("scheduler: job %q: %w", msg.JobID, errUnknownJob)
		w.onFailure(ctx, event)
		if err := delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: event.Err.Error()}); err != nil {
			logger.Error("nack unknown job failed", "job_id", msg.JobID, "error", err.Error())
		}
		return
	}

	w.onStart(ctx, event)
	err := w.Tasks.run(ctx, msg.JobID, task, msg.Parameters)
	event.Duration = time.Since(event.StartedAt)
	if err == nil {
		if ackErr := delivery.Ack(ctx); ackErr != nil {
			logger.Error("ack scheduled job failed", "job_id", msg.JobID, "error", ackErr.Error())
		}
		w.onSuccess(ctx, event)
		return
	}

	event.Err = err
	event.Delay = w.RetryDelay
	w.onRetry(ctx, event)
	if nackErr := delivery.Nack(ctx, core.JobNackOptions{
		Delay:   w.RetryDelay,
		Requeue: true,
		Reason:  err.Error(),
	}); nackErr != nil {
		logger.Error("nack scheduled job failed", "job_id", msg.JobID, "error", nackErr.Error())
	}
}

func (w *Worker) onStart(ctx context.Context, event core.JobWorkerEvent) {
	if w.Hook != nil {
		w.Hook.OnStart(ctx, event)
	}
}

func (w *Worker) onSuccess(ctx context.Context, event core.JobWorkerEvent) {
	if w.Hook != nil {
		w.Hook.OnSuccess(ctx, event)
	}
}

func (w *Worker) onFailure(ctx context.Context, event core.JobWorkerEvent) {
	if w.Hook != nil {
		w.Hook.OnFailure(ctx, event)
	}
}

func (w *Worker) onRetry(ctx context.Context, event core.JobWorkerEvent) {
	if w.Hook != nil {
		w.Hook.OnRetry(ctx, event)
	}
}

func attemptOf(delivery core.JobDelivery) int {
	if counted, ok := delivery.(interface{ Attempt() int }); ok {
		return counted.Attempt()
	}
	return 0
}
