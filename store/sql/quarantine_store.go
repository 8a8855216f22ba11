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

type QuarantineStore struct {
	db   *bun.DB
	repo repository.Repository[*quarantineRecord]
}

func NewQuarantineStore(db *bun.DB) (*QuarantineStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*quarantineRecord](db, quarantineHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid quarantine repository wiring: %w", err)
		}
	}
	return &QuarantineStore{db: db, repo: repo}, nil
}

func (s *QuarantineStore) GetQuarantine(ctx context.Context, id string) (core.QuarantinedRecord, error) {
	if s == nil || s.db == nil {
		return core.QuarantinedRecord{}, fmt.Errorf("sqlstore: quarantine store is not configured")
	}
	record, err := selectQuarantine(ctx, s.db, id)
	if err != nil {
		return core.QuarantinedRecord{}, classifyError(err)
	}
	return record.toDomain(), nil
}

func (s *QuarantineStore) ListQuarantine(
	ctx context.Context,
	filter core.QuarantineFilter,
) ([]core.QuarantinedRecord, int, error) {
	if s == nil || s.repo == nil {
		return nil, 0, fmt.Errorf("sqlstore: quarantine store is not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(limit, max(filter.Offset, 0)),
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	if providerID := strings.TrimSpace(filter.ProviderID); providerID != "" {
		selectors = append(selectors, repository.SelectBy("provider_id", "=", providerID))
	}
	if deliveryRef := strings.TrimSpace(filter.DeliveryRef); deliveryRef != "" {
		selectors = append(selectors, repository.SelectBy("delivery_ref", "=", deliveryRef))
	}
	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, 0, classifyError(err)
	}
	out := make([]core.QuarantinedRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, total, nil
}

func insertQuarantine(
	ctx context.Context,
	db bun.IDB,
	in core.QuarantinedRecord,
	now time.Time,
) (core.QuarantinedRecord, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	record := newQuarantineRecord(in, id, now)
	if record.ProviderID == "" || record.DeliveryID == "" {
		return core.QuarantinedRecord{}, fmt.Errorf("sqlstore: quarantined record needs provider id and delivery id")
	}
	if _, err := db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.QuarantinedRecord{}, err
	}
	return record.toDomain(), nil
}

// closeQuarantine moves an open record to a final status. It reports false
// when the record was already closed.
func closeQuarantine(
	ctx context.Context,
	db bun.IDB,
	id string,
	status core.QuarantineStatus,
	resolution string,
	resultID string,
	now time.Time,
) (bool, error) {
	var result *string
	if trimmed := strings.TrimSpace(resultID); trimmed != "" {
		result = &trimmed
	}
	res, err := db.NewUpdate().
		Model((*quarantineRecord)(nil)).
		Set("status = ?", string(status)).
		Set("resolution = ?", strings.TrimSpace(resolution)).
		Set("result_id = ?", result).
		Set("resolved_at = ?", now).
		Where("id = ?", strings.TrimSpace(id)).
		Where("status = ?", string(core.QuarantineStatusOpen)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func selectQuarantine(ctx context.Context, db bun.IDB, id string) (*quarantineRecord, error) {
	record := &quarantineRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sqlstore: %w: %q", core.ErrQuarantineNotFound, id)
		}
		return nil, err
	}
	return record, nil
}
