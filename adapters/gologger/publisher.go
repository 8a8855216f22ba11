package gologger

import (
	"context"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

// Publisher writes outbox events to the log. It is the default sink when no
// broker is configured.
type Publisher struct {
	logger glog.Logger
}

func NewPublisher(logger glog.Logger) *Publisher {
	return &Publisher{logger: glog.Ensure(logger)}
}

func (p *Publisher) Publish(ctx context.Context, event core.OutboxEvent) error {
	logger := glog.Nop()
	if p != nil {
		logger = glog.Ensure(p.logger)
	}
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := []any{
		"event_id", event.ID,
		"event", event.Name,
		"aggregate_id", event.AggregateID,
		"occurred_at", event.OccurredAt.UTC(),
	}
	for key, value := range event.Payload {
		args = append(args, "payload."+key, value)
	}
	for key, value := range event.Metadata {
		if strings.HasPrefix(key, "_") {
			continue
		}
		args = append(args, "metadata."+key, value)
	}
	logger.Info("outbox event published", args...)
	return nil
}

var _ core.Publisher = (*Publisher)(nil)
