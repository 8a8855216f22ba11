package goredis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

const DefaultChannel = "ingest.events"

// PubSubClient is the slice of a go-redis client the publisher needs.
type PubSubClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Message is the JSON document published for every outbox event.
type Message struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	AggregateID string         `json:"aggregate_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

type Publisher struct {
	client  PubSubClient
	channel string
}

func NewPublisher(client PubSubClient, channel string) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("goredis: client is required")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel}, nil
}

func (p *Publisher) Channel() string {
	if p == nil {
		return ""
	}
	return p.channel
}

func (p *Publisher) Publish(ctx context.Context, event core.OutboxEvent) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("goredis: publisher is not configured")
	}
	body, err := json.Marshal(Message{
		ID:          event.ID,
		Name:        event.Name,
		AggregateID: event.AggregateID,
		Payload:     event.Payload,
		Metadata:    publicMetadata(event.Metadata),
		OccurredAt:  event.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("goredis: encode event %s: %w", event.ID, err)
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("goredis: publish event %s: %w", event.ID, err)
	}
	return nil
}

// NewClient parses a redis:// URL and verifies the connection.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("goredis: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("goredis: ping: %w", err)
	}
	return client, nil
}

// publicMetadata drops dispatcher bookkeeping keys.
func publicMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if strings.HasPrefix(key, "_") {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

var _ core.Publisher = (*Publisher)(nil)
