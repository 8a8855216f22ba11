package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

// upsertResult writes a result keyed by (job_id, source_record_id). A record
// seen again, in the same or a later delivery, replaces the earlier payload
// instead of adding a row.
func upsertResult(ctx context.Context, db bun.IDB, in core.ResultRecord, now time.Time) (core.ResultRecord, error) {
	in.JobID = strings.TrimSpace(in.JobID)
	in.FolderID = strings.TrimSpace(in.FolderID)
	in.SourceRecordID = strings.TrimSpace(in.SourceRecordID)
	if in.JobID == "" || in.FolderID == "" || in.SourceRecordID == "" {
		return core.ResultRecord{}, fmt.Errorf("sqlstore: result job id, folder id, and source record id are required")
	}
	processedAt := in.ProcessedAt.UTC()
	if processedAt.IsZero() {
		processedAt = now
	}
	raw := cloneBytes(in.RawPayload)
	if raw == nil {
		raw = []byte("{}")
	}
	_, err := db.NewRaw(`
INSERT INTO ingest_results (
	id,
	job_id,
	folder_id,
	delivery_ref,
	source_record_id,
	raw_payload,
	processed_at,
	created_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (job_id, source_record_id) DO UPDATE SET
	folder_id = EXCLUDED.folder_id,
	delivery_ref = EXCLUDED.delivery_ref,
	raw_payload = EXCLUDED.raw_payload,
	processed_at = EXCLUDED.processed_at,
	updated_at = EXCLUDED.updated_at
`,
		uuid.NewString(),
		in.JobID,
		in.FolderID,
		strings.TrimSpace(in.DeliveryRef),
		in.SourceRecordID,
		raw,
		processedAt,
		now,
		now,
	).Exec(ctx)
	if err != nil {
		return core.ResultRecord{}, err
	}

	record := &resultRecord{}
	err = db.NewSelect().
		Model(record).
		Where("?TableAlias.job_id = ?", in.JobID).
		Where("?TableAlias.source_record_id = ?", in.SourceRecordID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return core.ResultRecord{}, err
	}
	return record.toDomain(), nil
}
