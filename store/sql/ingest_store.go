package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

// IngestStore runs each delivery in one bun transaction. The ledger claim,
// folder upserts, results, quarantine rows, job moves and outbox events all
// commit or roll back together.
type IngestStore struct {
	*DeliveryLedger
	db  *bun.DB
	now func() time.Time
}

func NewIngestStore(db *bun.DB, ledger *DeliveryLedger) (*IngestStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if ledger == nil {
		var err error
		ledger, err = NewDeliveryLedger(db)
		if err != nil {
			return nil, err
		}
	}
	return &IngestStore{
		DeliveryLedger: ledger,
		db:             db,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *IngestStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx core.IngestTx) error) error {
	if s == nil || s.db == nil || s.DeliveryLedger == nil {
		return fmt.Errorf("sqlstore: ingest store is not configured")
	}
	if fn == nil {
		return fmt.Errorf("sqlstore: transaction callback is required")
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &ingestTx{tx: tx, ledger: s.DeliveryLedger, now: s.now})
	})
	return classifyError(err)
}

// ingestTx binds every write to the open transaction. Nothing in here may
// touch the pool directly.
type ingestTx struct {
	tx     bun.Tx
	ledger *DeliveryLedger
	now    func() time.Time
}

func (t *ingestTx) FindJob(ctx context.Context, correlationID string) (core.Job, error) {
	return findJob(ctx, t.tx, correlationID)
}

func (t *ingestTx) GetOrCreateFolder(ctx context.Context, key core.FolderKey) (core.Folder, error) {
	return getOrCreateFolder(ctx, t.tx, key, t.now())
}

func (t *ingestTx) ClaimDelivery(ctx context.Context, delivery core.Delivery) (core.Delivery, bool, error) {
	return t.ledger.ClaimTx(ctx, t.tx, delivery)
}

func (t *ingestTx) CompleteDelivery(ctx context.Context, outcome core.IngestOutcome) error {
	return t.ledger.CompleteTx(ctx, t.tx, outcome)
}

func (t *ingestTx) UpsertResult(ctx context.Context, record core.ResultRecord) (core.ResultRecord, error) {
	return upsertResult(ctx, t.tx, record, t.now())
}

func (t *ingestTx) InsertQuarantine(ctx context.Context, record core.QuarantinedRecord) (core.QuarantinedRecord, error) {
	return insertQuarantine(ctx, t.tx, record, t.now())
}

func (t *ingestTx) GetQuarantine(ctx context.Context, id string) (core.QuarantinedRecord, error) {
	record, err := selectQuarantine(ctx, t.tx, id)
	if err != nil {
		return core.QuarantinedRecord{}, err
	}
	return record.toDomain(), nil
}

func (t *ingestTx) CloseQuarantine(
	ctx context.Context,
	id string,
	status core.QuarantineStatus,
	resolution string,
	resultID string,
) (bool, error) {
	return closeQuarantine(ctx, t.tx, id, status, resolution, resultID, t.now())
}

func (t *ingestTx) TransitionJob(ctx context.Context, jobID string, to core.JobStatus) (bool, error) {
	return transitionJob(ctx, t.tx, jobID, to, t.now())
}

func (t *ingestTx) EnqueueEvent(ctx context.Context, event core.OutboxEvent) error {
	return enqueueEvent(ctx, t.tx, event, t.now())
}
