package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

// OutboxDispatcher is satisfied by core.OutboxDispatcher.
type OutboxDispatcher interface {
	DispatchPending(ctx context.Context, batchSize int) (core.DispatchStats, error)
}

// DeliveryPruner is satisfied by core.Service.
type DeliveryPruner interface {
	PruneDeliveries(ctx context.Context, before time.Time) (int64, error)
}

func OutboxDispatchTask(dispatcher OutboxDispatcher, batchSize int, logger core.Logger) Task {
	return func(ctx context.Context, _ map[string]any) error {
		if dispatcher == nil {
			return fmt.Errorf("scheduler: outbox dispatcher is required")
		}
		stats, err := dispatcher.DispatchPending(ctx, batchSize)
		if err != nil {
			return err
		}
		if stats.Claimed > 0 && logger != nil {
			logger.Info("outbox dispatched",
				"claimed", stats.Claimed,
				"delivered", stats.Delivered,
				"retried", stats.Retried,
				"failed", stats.Failed,
			)
		}
		return nil
	}
}

// LedgerPruneTask removes processed deliveries older than retention.
func LedgerPruneTask(pruner DeliveryPruner, retention time.Duration, now func() time.Time) Task {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return func(ctx context.Context, _ map[string]any) error {
		if pruner == nil {
			return fmt.Errorf("scheduler: delivery pruner is required")
		}
		if retention <= 0 {
			return nil
		}
		_, err := pruner.PruneDeliveries(ctx, now().Add(-retention))
		return err
	}
}

// LogHook records queue worker lifecycle events.
type LogHook struct {
	Logger core.Logger
}

func (h LogHook) OnStart(_ context.Context, event core.JobWorkerEvent) {
	if h.Logger != nil {
		h.Logger.Debug("job started", "job_id", jobIDOf(event), "attempt", event.Attempt)
	}
}

func (h LogHook) OnSuccess(_ context.Context, event core.JobWorkerEvent) {
	if h.Logger != nil {
		h.Logger.Debug("job succeeded", "job_id", jobIDOf(event), "duration_ms", event.Duration.Milliseconds())
	}
}

func (h LogHook) OnFailure(_ context.Context, event core.JobWorkerEvent) {
	if h.Logger != nil {
		h.Logger.Error("job failed", "job_id", jobIDOf(event), "error", fmt.Sprint(event.Err))
	}
}

func (h LogHook) OnRetry(_ context.Context, event core.JobWorkerEvent) {
	if h.Logger != nil {
		h.Logger.Warn("job will retry", "job_id", jobIDOf(event), "attempt", event.Attempt, "delay", event.Delay.String(), "error", fmt.Sprint(event.Err))
	}
}

func jobIDOf(event core.JobWorkerEvent) string {
	if event.Message == nil {
		return ""
	}
	return event.Message.JobID
}

var _ core.JobWorkerHook = LogHook{}
