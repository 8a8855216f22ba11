package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// MetadataKeyOutboxAttempts carries the stored failure count on claimed
// events. Publishers drop underscore-prefixed keys.
const MetadataKeyOutboxAttempts = "_outbox_attempts"

type OutboxDispatcherConfig struct {
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultOutboxDispatcherConfig() OutboxDispatcherConfig {
	return OutboxDispatcherConfig{
		BatchSize:      50,
		MaxAttempts:    8,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     5 * time.Minute,
	}
}

func (c OutboxDispatcherConfig) withDefaults() OutboxDispatcherConfig {
	defaults := DefaultOutboxDispatcherConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaults.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	return c
}

// backoff is the wait before retry number attempt (1-based): InitialBackoff
// doubled per prior attempt, capped at MaxBackoff.
func (c OutboxDispatcherConfig) backoff(attempt int) time.Duration {
	delay := c.InitialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay <= 0 || delay >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return min(delay, c.MaxBackoff)
}

// OutboxDispatcher drains events committed alongside deliveries and fans
// them out to every publisher. An event is acked only after all publishers
// accept it; the first failing publisher stops the fan-out.
type OutboxDispatcher struct {
	store      OutboxStore
	publishers []Publisher
	config     OutboxDispatcherConfig
	logger     Logger
	now        func() time.Time
}

func NewOutboxDispatcher(
	store OutboxStore,
	publishers []Publisher,
	config OutboxDispatcherConfig,
	logger Logger,
) (*OutboxDispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("core: outbox store is required")
	}
	return &OutboxDispatcher{
		store:      store,
		publishers: append([]Publisher(nil), publishers...),
		config:     config.withDefaults(),
		logger:     glog.Ensure(logger),
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// DispatchPending claims up to batchSize due events (the configured batch
// when <= 0) and publishes them. Publish failures are rescheduled with
// backoff or marked failed at MaxAttempts; the returned error joins them.
func (d *OutboxDispatcher) DispatchPending(ctx context.Context, batchSize int) (DispatchStats, error) {
	if d == nil || d.store == nil {
		return DispatchStats{}, fmt.Errorf("core: outbox dispatcher is not configured")
	}
	if batchSize <= 0 {
		batchSize = d.config.BatchSize
	}
	events, err := d.store.ClaimBatch(ctx, batchSize)
	if err != nil {
		return DispatchStats{}, err
	}

	stats := DispatchStats{Claimed: len(events)}
	var errs []error
	for _, event := range events {
		id := strings.TrimSpace(event.ID)
		publishErr := d.publish(ctx, event)
		if publishErr == nil {
			if err := d.store.Ack(ctx, id); err != nil {
				errs = append(errs, err)
				continue
			}
			stats.Delivered++
			continue
		}

		errs = append(errs, publishErr)
		attempt := priorAttempts(event) + 1
		next := time.Time{}
		if attempt < d.config.MaxAttempts {
			next = d.now().Add(d.config.backoff(attempt))
			stats.Retried++
		} else {
			stats.Failed++
		}
		if err := d.store.Retry(ctx, id, publishErr, next); err != nil {
			errs = append(errs, err)
		}
	}

	if stats.Claimed > 0 {
		d.logger.Info("outbox dispatch finished",
			"claimed", stats.Claimed,
			"delivered", stats.Delivered,
			"retried", stats.Retried,
			"failed", stats.Failed,
		)
	}
	return stats, errors.Join(errs...)
}

func (d *OutboxDispatcher) publish(ctx context.Context, event OutboxEvent) error {
	for i, publisher := range d.publishers {
		if publisher == nil {
			continue
		}
		if err := publisher.Publish(ctx, event); err != nil {
			d.logger.Warn("outbox publish failed",
				"event_id", event.ID,
				"event_name", event.Name,
				"publisher", i,
				"error", err.Error(),
			)
			return fmt.Errorf("core: publisher %d rejected event %q: %w", i, event.ID, err)
		}
	}
	return nil
}

// priorAttempts reads the stored failure count. Drivers hand it back as an
// int, int64, float64 or string depending on the column type.
func priorAttempts(event OutboxEvent) int {
	var n int
	switch raw := event.Metadata[MetadataKeyOutboxAttempts].(type) {
	case int:
		n = raw
	case int64:
		n = int(raw)
	case float64:
		n = int(raw)
	case string:
		n, _ = strconv.Atoi(strings.TrimSpace(raw))
	}
	return max(n, 0)
}
