// Package gojob carries scheduled maintenance ticks over go-job queues. The
// scheduler speaks core.JobExecutionMessage; this package translates to
// go-job's ExecutionMessage and applies the retry ceiling on nack.
package gojob

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

const (
	JobIDOutboxDispatch = core.JobIDOutboxDispatch
	JobIDLedgerPrune    = core.JobIDLedgerPrune
)

// RetryPolicy caps redelivery of a failing tick. Once MaxAttempts is reached
// the message is no longer requeued; DeadLetterOnMax parks it in the
// dead-letter list instead of dropping it.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// Bound rewrites a nack request for the given attempt number.
func (p RetryPolicy) Bound(opts core.JobNackOptions, attempt int) queue.NackOptions {
	out := queue.NackOptions{
		Delay:      max(opts.Delay, 0),
		Requeue:    opts.Requeue,
		DeadLetter: opts.DeadLetter,
		Reason:     strings.TrimSpace(opts.Reason),
	}
	if p.MaxDelay > 0 {
		out.Delay = min(out.Delay, p.MaxDelay)
	}
	exhausted := p.MaxAttempts > 0 && attempt >= p.MaxAttempts
	switch {
	case out.DeadLetter:
		out.Requeue = false
	case exhausted:
		out.Requeue = false
		out.DeadLetter = p.DeadLetterOnMax
	default:
		// A nack that neither requeues nor dead-letters would lose the tick.
		out.Requeue = true
	}
	return out
}

func toJob(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func fromJob(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          msg.JobID,
		ScriptPath:     msg.ScriptPath,
		Parameters:     cloneParams(msg.Parameters),
		IdempotencyKey: msg.IdempotencyKey,
		DedupPolicy:    string(msg.DedupPolicy),
	}
}

func cloneParams(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	return maps.Clone(in)
}

// EnqueuerAdapter lets the scheduler publish ticks onto a go-job queue.
type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil || strings.TrimSpace(msg.JobID) == "" {
		return fmt.Errorf("gojob: execution message with a job id is required")
	}
	return a.enqueuer.Enqueue(ctx, toJob(msg))
}

// DequeuerAdapter hands go-job deliveries to the scheduler worker.
type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	return &Delivery{inner: delivery, policy: a.policy}, nil
}

// Delivery is one dequeued tick.
type Delivery struct {
	inner  queue.Delivery
	policy RetryPolicy
}

func (d *Delivery) Message() *core.JobExecutionMessage {
	return fromJob(d.inner.Message())
}

// Attempt is the delivery count when the queue tracks one, otherwise 0.
func (d *Delivery) Attempt() int {
	if counted, ok := d.inner.(interface{ Attempt() int }); ok {
		return counted.Attempt()
	}
	return 0
}

func (d *Delivery) Ack(ctx context.Context) error {
	return d.inner.Ack(ctx)
}

func (d *Delivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.inner.Nack(ctx, d.policy.Bound(opts, d.Attempt()))
}

var (
	_ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
	_ core.JobDequeuer = (*DequeuerAdapter)(nil)
	_ core.JobDelivery = (*Delivery)(nil)
)
