package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

const (
	outboxStatusPending    = "pending"
	outboxStatusProcessing = "processing"
	outboxStatusDelivered  = "delivered"
	outboxStatusFailed     = "failed"
)

// DefaultOutboxClaimLease is how long a claimed event stays invisible to
// other dispatchers before it is considered abandoned and claimed again.
const DefaultOutboxClaimLease = 5 * time.Minute

// claimOutboxSQL flips a batch of due rows to processing and returns them.
// Rows stuck in processing past the lease are claimed again.
const claimOutboxSQL = `
WITH due AS (
	SELECT id FROM ingest_outbox
	WHERE (status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?))
	   OR (status = ? AND updated_at <= ?)
	ORDER BY occurred_at ASC
	LIMIT ?
)
UPDATE ingest_outbox
SET status = ?, updated_at = ?
WHERE id IN (SELECT id FROM due)
RETURNING id, event_id, event_name, aggregate_id, payload, metadata, status,
	attempts, next_attempt_at, last_error, occurred_at, created_at, updated_at
`

type OutboxStore struct {
	db    *bun.DB
	repo  repository.Repository[*outboxRecord]
	lease time.Duration
}

func NewOutboxStore(db *bun.DB) (*OutboxStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*outboxRecord](db, outboxHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid outbox repository wiring: %w", err)
		}
	}
	return &OutboxStore{db: db, repo: repo, lease: DefaultOutboxClaimLease}, nil
}

func (s *OutboxStore) ready() error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: outbox store is not configured")
	}
	return nil
}

// Enqueue writes an event outside any ingest transaction.
func (s *OutboxStore) Enqueue(ctx context.Context, event core.OutboxEvent) error {
	if err := s.ready(); err != nil {
		return err
	}
	record, err := newOutboxRecord(event, time.Now().UTC())
	if err != nil {
		return err
	}
	_, err = s.repo.Create(ctx, record)
	return classifyError(err)
}

func (s *OutboxStore) ClaimBatch(ctx context.Context, limit int) ([]core.OutboxEvent, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	limit = max(limit, 1)
	now := time.Now().UTC()
	var records []outboxRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw(claimOutboxSQL,
			outboxStatusPending, now,
			outboxStatusProcessing, now.Add(-s.lease),
			limit,
			outboxStatusProcessing, now,
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, classifyError(err)
	}
	events := make([]core.OutboxEvent, 0, len(records))
	for _, record := range records {
		events = append(events, outboxRecordToEvent(record))
	}
	return events, nil
}

func (s *OutboxStore) Ack(ctx context.Context, eventID string) error {
	return s.settle(ctx, eventID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("status = ?", outboxStatusDelivered).
			Set("last_error = ?", "").
			Set("next_attempt_at = NULL")
	})
}

// Retry records a failed attempt. A zero nextAttemptAt parks the event as
// failed.
func (s *OutboxStore) Retry(ctx context.Context, eventID string, cause error, nextAttemptAt time.Time) error {
	status := outboxStatusFailed
	var next *time.Time
	if !nextAttemptAt.IsZero() {
		status = outboxStatusPending
		at := nextAttemptAt.UTC()
		next = &at
	}
	lastError := ""
	if cause != nil {
		lastError = strings.TrimSpace(cause.Error())
	}
	return s.settle(ctx, eventID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("status = ?", status).
			Set("attempts = attempts + 1").
			Set("next_attempt_at = ?", next).
			Set("last_error = ?", lastError)
	})
}

func (s *OutboxStore) settle(ctx context.Context, eventID string, apply func(*bun.UpdateQuery) *bun.UpdateQuery) error {
	if err := s.ready(); err != nil {
		return err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return core.NewBadInputError("sqlstore: event id is required")
	}
	q := s.db.NewUpdate().Model((*outboxRecord)(nil))
	_, err := apply(q).
		Set("updated_at = ?", time.Now().UTC()).
		Where("event_id = ?", eventID).
		Exec(ctx)
	return classifyError(err)
}

func newOutboxRecord(event core.OutboxEvent, now time.Time) (*outboxRecord, error) {
	name := strings.TrimSpace(event.Name)
	if name == "" {
		return nil, core.NewBadInputError("sqlstore: outbox event name is required")
	}
	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		eventID = uuid.NewString()
	}
	occurredAt := event.OccurredAt.UTC()
	if occurredAt.IsZero() {
		occurredAt = now
	}
	return &outboxRecord{
		ID:          uuid.NewString(),
		EventID:     eventID,
		EventName:   name,
		AggregateID: strings.TrimSpace(event.AggregateID),
		Payload:     copyAnyMap(event.Payload),
		Metadata:    core.RedactSensitiveMap(event.Metadata),
		Status:      outboxStatusPending,
		OccurredAt:  occurredAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// enqueueEvent inserts an event on db, which is usually the ingest
// transaction.
func enqueueEvent(ctx context.Context, db bun.IDB, event core.OutboxEvent, now time.Time) error {
	record, err := newOutboxRecord(event, now)
	if err != nil {
		return err
	}
	_, err = db.NewInsert().Model(record).Exec(ctx)
	return err
}

var _ core.OutboxStore = (*OutboxStore)(nil)
