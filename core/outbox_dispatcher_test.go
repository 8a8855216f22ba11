package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOutboxDispatcher_AckSuccess(t *testing.T) {
	store := &stubOutboxStore{
		claimed: []OutboxEvent{{
			ID:   "evt_1",
			Name: EventDeliveryProcessed,
		}},
	}
	first := &recordingPublisher{}
	second := &recordingPublisher{}

	dispatcher, err := NewOutboxDispatcher(store, []Publisher{first, second}, DefaultOutboxDispatcherConfig(), stubLogger{})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	stats, err := dispatcher.DispatchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("dispatch pending: %v", err)
	}
	if stats.Claimed != 1 || stats.Delivered != 1 || stats.Retried != 0 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(store.acked) != 1 || store.acked[0] != "evt_1" {
		t.Fatalf("expected ack for evt_1")
	}
	if len(first.events) != 1 || len(second.events) != 1 {
		t.Fatalf("expected both publishers to receive the event")
	}
}

func TestOutboxDispatcher_RetryWithBackoff(t *testing.T) {
	store := &stubOutboxStore{
		claimed: []OutboxEvent{{
			ID:   "evt_retry",
			Name: EventJobStatusChanged,
			Metadata: map[string]any{
				MetadataKeyOutboxAttempts: 1,
			},
		}},
	}
	failing := &recordingPublisher{err: errors.New("temporary")}

	dispatcher, err := NewOutboxDispatcher(store, []Publisher{failing}, OutboxDispatcherConfig{
		BatchSize:      10,
		MaxAttempts:    4,
		InitialBackoff: time.Second,
		MaxBackoff:     8 * time.Second,
	}, stubLogger{})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dispatcher.now = func() time.Time { return fixed }

	stats, err := dispatcher.DispatchPending(context.Background(), 0)
	if err == nil {
		t.Fatalf("expected dispatch error")
	}
	if stats.Retried != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(store.retried) != 1 {
		t.Fatalf("expected one retry call")
	}
	if got := store.retried[0].next.Sub(fixed); got != 2*time.Second {
		t.Fatalf("expected 2s backoff for second attempt, got %s", got)
	}
	if len(store.acked) != 0 {
		t.Fatalf("expected no ack for failed publish")
	}
}

func TestOutboxDispatcher_StopsAtFirstFailingPublisher(t *testing.T) {
	store := &stubOutboxStore{
		claimed: []OutboxEvent{{ID: "evt_partial", Name: EventRecordQuarantined}},
	}
	failing := &recordingPublisher{err: errors.New("redis down")}
	after := &recordingPublisher{}

	dispatcher, err := NewOutboxDispatcher(store, []Publisher{failing, after}, DefaultOutboxDispatcherConfig(), stubLogger{})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	if _, err := dispatcher.DispatchPending(context.Background(), 0); err == nil {
		t.Fatalf("expected dispatch error")
	}
	if len(after.events) != 0 {
		t.Fatalf("expected later publishers to be skipped")
	}
}

func TestOutboxDispatcher_MaxAttemptsMarkedFailed(t *testing.T) {
	store := &stubOutboxStore{
		claimed: []OutboxEvent{{
			ID:   "evt_fail",
			Name: EventQuarantineResolved,
			Metadata: map[string]any{
				MetadataKeyOutboxAttempts: 2,
			},
		}},
	}
	failing := &recordingPublisher{err: errors.New("permanent")}

	dispatcher, err := NewOutboxDispatcher(store, []Publisher{failing}, OutboxDispatcherConfig{
		BatchSize:      10,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     8 * time.Second,
	}, stubLogger{})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	stats, err := dispatcher.DispatchPending(context.Background(), 10)
	if err == nil {
		t.Fatalf("expected dispatch error")
	}
	if stats.Failed != 1 || stats.Retried != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(store.retried) != 1 {
		t.Fatalf("expected one retry/fail call")
	}
	if !store.retried[0].next.IsZero() {
		t.Fatalf("expected zero next attempt to mark failed")
	}
}

func TestOutboxDispatcher_RequiresStore(t *testing.T) {
	if _, err := NewOutboxDispatcher(nil, nil, OutboxDispatcherConfig{}, nil); err == nil {
		t.Fatalf("expected error for missing store")
	}
}

func TestPriorAttempts_AcceptsStoredShapes(t *testing.T) {
	cases := map[string]any{
		"int":     3,
		"int64":   int64(3),
		"float64": float64(3),
		"string":  " 3 ",
	}
	for name, raw := range cases {
		got := priorAttempts(OutboxEvent{Metadata: map[string]any{MetadataKeyOutboxAttempts: raw}})
		if got != 3 {
			t.Fatalf("%s: expected 3, got %d", name, got)
		}
	}
	if got := priorAttempts(OutboxEvent{}); got != 0 {
		t.Fatalf("expected 0 for missing metadata, got %d", got)
	}
}

type stubOutboxStore struct {
	claimed []OutboxEvent
	acked   []string
	retried []retryCall
}

type retryCall struct {
	eventID string
	cause   error
	next    time.Time
}

func (s *stubOutboxStore) ClaimBatch(context.Context, int) ([]OutboxEvent, error) {
	out := append([]OutboxEvent(nil), s.claimed...)
	s.claimed = nil
	return out, nil
}

func (s *stubOutboxStore) Ack(_ context.Context, eventID string) error {
	s.acked = append(s.acked, eventID)
	return nil
}

func (s *stubOutboxStore) Retry(_ context.Context, eventID string, cause error, nextAttemptAt time.Time) error {
	s.retried = append(s.retried, retryCall{
		eventID: eventID,
		cause:   cause,
		next:    nextAttemptAt,
	})
	return nil
}

type recordingPublisher struct {
	events []OutboxEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event OutboxEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func TestOutboxDispatcherConfig_BackoffDoublesAndCaps(t *testing.T) {
	cfg := OutboxDispatcherConfig{InitialBackoff: time.Second, MaxBackoff: 10 * time.Second}
	for attempt, want := range map[int]time.Duration{
		1:  time.Second,
		2:  2 * time.Second,
		4:  8 * time.Second,
		5:  10 * time.Second,
		80: 10 * time.Second,
	} {
		if got := cfg.backoff(attempt); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}
}
