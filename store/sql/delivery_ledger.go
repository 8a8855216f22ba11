package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

// DeliveryLedger records every inbound delivery keyed by (provider_id,
// delivery_id). Claims happen inside the ingest transaction so the unique
// index serializes concurrent deliveries of the same ID.
type DeliveryLedger struct {
	db   *bun.DB
	repo repository.Repository[*deliveryRecord]
	now  func() time.Time
}

func NewDeliveryLedger(db *bun.DB) (*DeliveryLedger, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryRecord](db, deliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery repository wiring: %w", err)
		}
	}
	return &DeliveryLedger{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *DeliveryLedger) GetDelivery(ctx context.Context, providerID, deliveryID string) (core.Delivery, error) {
	if s == nil || s.db == nil {
		return core.Delivery{}, fmt.Errorf("sqlstore: delivery ledger is not configured")
	}
	record, err := selectDelivery(ctx, s.db, providerID, deliveryID)
	if err != nil {
		return core.Delivery{}, classifyError(err)
	}
	return record.toDomain(), nil
}

func (s *DeliveryLedger) ListDeliveries(ctx context.Context, filter core.DeliveryFilter) ([]core.Delivery, int, error) {
	if s == nil || s.repo == nil {
		return nil, 0, fmt.Errorf("sqlstore: delivery ledger is not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("received_at DESC"),
		repository.SelectPaginate(limit, offset),
	}
	if providerID := strings.TrimSpace(filter.ProviderID); providerID != "" {
		selectors = append(selectors, repository.SelectBy("provider_id", "=", providerID))
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	if !filter.Since.IsZero() {
		selectors = append(selectors, repository.SelectByTimetz("received_at", ">=", filter.Since.UTC()))
	}
	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, 0, classifyError(err)
	}
	out := make([]core.Delivery, 0, len(records))
	for _, record := range records {
		delivery := record.toDomain()
		delivery.Payload = nil
		out = append(out, delivery)
	}
	return out, total, nil
}

// PruneDeliveries removes processed deliveries older than before. Failed
// deliveries are kept with their payload until someone inspects them.
func (s *DeliveryLedger) PruneDeliveries(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: delivery ledger is not configured")
	}
	if before.IsZero() {
		return 0, fmt.Errorf("sqlstore: prune cutoff is required")
	}
	res, err := s.db.NewDelete().
		Model((*deliveryRecord)(nil)).
		Where("status = ?", string(core.DeliveryStatusProcessed)).
		Where("processed_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, classifyError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// RecordFailedDelivery stores a delivery that could not be decoded, with its
// raw payload. A processed row with the same ID is never downgraded.
func (s *DeliveryLedger) RecordFailedDelivery(ctx context.Context, delivery core.Delivery) (core.Delivery, error) {
	if s == nil || s.db == nil {
		return core.Delivery{}, fmt.Errorf("sqlstore: delivery ledger is not configured")
	}
	if strings.TrimSpace(delivery.ProviderID) == "" || strings.TrimSpace(delivery.DeliveryID) == "" {
		return core.Delivery{}, fmt.Errorf("sqlstore: provider id and delivery id are required")
	}
	now := s.now()
	delivery.Status = core.DeliveryStatusFailed
	record := newDeliveryRecord(delivery, uuid.NewString(), now)

	var stored *deliveryRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		inserted, err := insertDeliveryIfAbsent(ctx, tx, record)
		if err != nil {
			return err
		}
		if !inserted {
			if _, err := tx.NewUpdate().
				Model((*deliveryRecord)(nil)).
				Set("status = ?", record.Status).
				Set("checksum = ?", record.Checksum).
				Set("content_type = ?", record.ContentType).
				Set("content_encoding = ?", record.ContentEncoding).
				Set("error = ?", record.Error).
				Set("payload = ?", record.Payload).
				Set("updated_at = ?", now).
				Where("provider_id = ?", record.ProviderID).
				Where("delivery_id = ?", record.DeliveryID).
				Where("status <> ?", string(core.DeliveryStatusProcessed)).
				Exec(ctx); err != nil {
				return err
			}
		}
		stored, err = selectDelivery(ctx, tx, record.ProviderID, record.DeliveryID)
		return err
	})
	if err != nil {
		return core.Delivery{}, classifyError(err)
	}
	return stored.toDomain(), nil
}

// ClaimTx inserts the delivery row in processing state. When the ID already
// exists, a processed row is a duplicate and a failed row is taken over.
func (s *DeliveryLedger) ClaimTx(ctx context.Context, tx bun.IDB, delivery core.Delivery) (core.Delivery, bool, error) {
	now := s.now()
	delivery.Status = core.DeliveryStatusProcessing
	delivery.Payload = nil
	delivery.Error = ""
	record := newDeliveryRecord(delivery, uuid.NewString(), now)
	if record.ProviderID == "" || record.DeliveryID == "" {
		return core.Delivery{}, false, fmt.Errorf("sqlstore: provider id and delivery id are required")
	}

	inserted, err := insertDeliveryIfAbsent(ctx, tx, record)
	if err != nil {
		return core.Delivery{}, false, err
	}
	if inserted {
		return record.toDomain(), true, nil
	}

	existing, err := selectDelivery(ctx, tx, record.ProviderID, record.DeliveryID)
	if err != nil {
		return core.Delivery{}, false, err
	}
	if existing.Status != string(core.DeliveryStatusFailed) {
		return existing.toDomain(), false, nil
	}

	res, err := tx.NewUpdate().
		Model((*deliveryRecord)(nil)).
		Set("status = ?", string(core.DeliveryStatusProcessing)).
		Set("checksum = ?", record.Checksum).
		Set("content_type = ?", record.ContentType).
		Set("content_encoding = ?", record.ContentEncoding).
		Set("records_total = ?", record.RecordsTotal).
		Set("error = ?", "").
		Set("payload = NULL").
		Set("received_at = ?", record.ReceivedAt).
		Set("updated_at = ?", now).
		Where("id = ?", existing.ID).
		Where("status = ?", string(core.DeliveryStatusFailed)).
		Exec(ctx)
	if err != nil {
		return core.Delivery{}, false, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return existing.toDomain(), false, nil
	}
	reclaimed, err := selectDelivery(ctx, tx, record.ProviderID, record.DeliveryID)
	if err != nil {
		return core.Delivery{}, false, err
	}
	return reclaimed.toDomain(), true, nil
}

// CompleteTx marks a claimed delivery processed with its record counts.
func (s *DeliveryLedger) CompleteTx(ctx context.Context, tx bun.IDB, outcome core.IngestOutcome) error {
	now := s.now()
	res, err := tx.NewUpdate().
		Model((*deliveryRecord)(nil)).
		Set("status = ?", string(core.DeliveryStatusProcessed)).
		Set("records_total = ?", outcome.Total).
		Set("records_written = ?", outcome.Written).
		Set("records_quarantined = ?", outcome.Quarantined).
		Set("processed_at = ?", now).
		Set("updated_at = ?", now).
		Where("provider_id = ?", strings.TrimSpace(outcome.ProviderID)).
		Where("delivery_id = ?", strings.TrimSpace(outcome.DeliveryID)).
		Where("status = ?", string(core.DeliveryStatusProcessing)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf(
			"sqlstore: %w: no processing delivery for provider %q delivery %q",
			core.ErrDeliveryNotFound,
			outcome.ProviderID,
			outcome.DeliveryID,
		)
	}
	return nil
}

func insertDeliveryIfAbsent(ctx context.Context, db bun.IDB, record *deliveryRecord) (bool, error) {
	const query = `
INSERT INTO ingest_deliveries (
	id,
	provider_id,
	delivery_id,
	checksum,
	status,
	content_type,
	content_encoding,
	records_total,
	records_written,
	records_quarantined,
	error,
	payload,
	received_at,
	created_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (provider_id, delivery_id) DO NOTHING
`
	res, err := db.NewRaw(
		query,
		record.ID,
		record.ProviderID,
		record.DeliveryID,
		record.Checksum,
		record.Status,
		record.ContentType,
		record.ContentEncoding,
		record.RecordsTotal,
		record.RecordsWritten,
		record.RecordsQuarantined,
		record.Error,
		record.Payload,
		record.ReceivedAt,
		record.CreatedAt,
		record.UpdatedAt,
	).Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func selectDelivery(ctx context.Context, db bun.IDB, providerID, deliveryID string) (*deliveryRecord, error) {
	record := &deliveryRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_id = ?", strings.TrimSpace(providerID)).
		Where("?TableAlias.delivery_id = ?", strings.TrimSpace(deliveryID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf(
				"sqlstore: %w: provider %q delivery %q",
				core.ErrDeliveryNotFound,
				providerID,
				deliveryID,
			)
		}
		return nil, err
	}
	return record, nil
}
