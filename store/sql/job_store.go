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

type JobStore struct {
	db   *bun.DB
	repo repository.Repository[*jobRecord]
	now  func() time.Time
}

func NewJobStore(db *bun.DB) (*JobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*jobRecord](db, jobHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid job repository wiring: %w", err)
		}
	}
	return &JobStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// RegisterJob inserts a job. A job that already exists under the same id or
// snapshot id is returned unchanged with created=false.
func (s *JobStore) RegisterJob(ctx context.Context, in core.RegisterJobInput) (core.Job, bool, error) {
	if s == nil || s.db == nil {
		return core.Job{}, false, fmt.Errorf("sqlstore: job store is not configured")
	}
	if strings.TrimSpace(in.ID) == "" {
		in.ID = uuid.NewString()
	}
	if in.Status == "" {
		in.Status = core.JobStatusPending
	}
	if !in.Status.Valid() {
		return core.Job{}, false, fmt.Errorf("sqlstore: job status %q is invalid", in.Status)
	}
	record := newJobRecord(in, s.now())
	metadata, err := marshalJSONMap(record.Metadata)
	if err != nil {
		return core.Job{}, false, fmt.Errorf("sqlstore: encode job metadata: %w", err)
	}

	var (
		stored  *jobRecord
		created bool
	)
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if record.SnapshotID != nil {
			existing, err := selectJobBy(ctx, tx, "snapshot_id", *record.SnapshotID)
			if err == nil {
				stored = existing
				return nil
			}
			if !errors.Is(err, core.ErrJobNotFound) {
				return err
			}
		}
		res, err := tx.NewRaw(`
INSERT INTO ingest_jobs (id, snapshot_id, name, status, metadata, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING
`,
			record.ID,
			record.SnapshotID,
			record.Name,
			record.Status,
			metadata,
			record.CreatedAt,
			record.UpdatedAt,
		).Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			created = true
			stored = record
			return nil
		}
		if record.SnapshotID != nil {
			if existing, err := selectJobBy(ctx, tx, "snapshot_id", *record.SnapshotID); err == nil {
				stored = existing
				return nil
			}
		}
		stored, err = selectJobBy(ctx, tx, "id", record.ID)
		return err
	})
	if err != nil {
		return core.Job{}, false, classifyError(err)
	}
	return stored.toDomain(), created, nil
}

func (s *JobStore) GetJob(ctx context.Context, id string) (core.Job, error) {
	if s == nil || s.db == nil {
		return core.Job{}, fmt.Errorf("sqlstore: job store is not configured")
	}
	record, err := selectJobBy(ctx, s.db, "id", id)
	if err != nil {
		return core.Job{}, classifyError(err)
	}
	return record.toDomain(), nil
}

func (s *JobStore) ListJobs(ctx context.Context, status core.JobStatus, limit, offset int) ([]core.Job, int, error) {
	if s == nil || s.repo == nil {
		return nil, 0, fmt.Errorf("sqlstore: job store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(limit, max(offset, 0)),
	}
	if trimmed := strings.TrimSpace(string(status)); trimmed != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", trimmed))
	}
	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, 0, classifyError(err)
	}
	jobs := make([]core.Job, 0, len(records))
	for _, record := range records {
		jobs = append(jobs, record.toDomain())
	}
	return jobs, total, nil
}

// CompareAndSetJobStatus moves the job to `to` only while it is still in
// `from`.
func (s *JobStore) CompareAndSetJobStatus(ctx context.Context, id string, from, to core.JobStatus) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: job store is not configured")
	}
	res, err := s.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = ?", s.now()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return false, classifyError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *JobStore) ListFolders(ctx context.Context, jobID string) ([]core.Folder, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: job store is not configured")
	}
	var records []folderRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.job_id = ?", strings.TrimSpace(jobID)).
		OrderExpr("?TableAlias.depth ASC, ?TableAlias.path ASC").
		Scan(ctx)
	if err != nil {
		return nil, classifyError(err)
	}
	folders := make([]core.Folder, 0, len(records))
	for i := range records {
		folders = append(folders, records[i].toDomain())
	}
	return folders, nil
}

// findJob resolves a correlation id against the job id first and the
// provider snapshot id second.
func findJob(ctx context.Context, db bun.IDB, correlationID string) (core.Job, error) {
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return core.Job{}, fmt.Errorf("sqlstore: %w: empty correlation id", core.ErrJobNotFound)
	}
	record, err := selectJobBy(ctx, db, "id", correlationID)
	if err == nil {
		return record.toDomain(), nil
	}
	if !errors.Is(err, core.ErrJobNotFound) {
		return core.Job{}, err
	}
	record, err = selectJobBy(ctx, db, "snapshot_id", correlationID)
	if err != nil {
		return core.Job{}, err
	}
	return record.toDomain(), nil
}

// transitionJob applies a status move guarded by the allowed source states,
// so a concurrent move to a terminal state is never overwritten.
func transitionJob(ctx context.Context, db bun.IDB, jobID string, to core.JobStatus, now time.Time) (bool, error) {
	sources := core.JobTransitionSources(to)
	if len(sources) == 0 {
		return false, nil
	}
	from := make([]string, 0, len(sources))
	for _, status := range sources {
		from = append(from, string(status))
	}
	res, err := db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = ?", now).
		Where("id = ?", strings.TrimSpace(jobID)).
		Where("status IN (?)", bun.In(from)).
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

// getOrCreateFolder returns the folder with the natural key (job, parent,
// name), creating it when absent. Concurrent callers converge on one row
// through the unique index.
func getOrCreateFolder(ctx context.Context, db bun.IDB, key core.FolderKey, now time.Time) (core.Folder, error) {
	key.JobID = strings.TrimSpace(key.JobID)
	key.ParentID = strings.TrimSpace(key.ParentID)
	key.Name = strings.TrimSpace(key.Name)
	if key.JobID == "" || key.Name == "" {
		return core.Folder{}, fmt.Errorf("sqlstore: folder job id and name are required")
	}
	if key.ParentID != "" {
		parent := &folderRecord{}
		err := db.NewSelect().
			Model(parent).
			Where("?TableAlias.id = ?", key.ParentID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.Folder{}, fmt.Errorf("sqlstore: parent folder %q not found", key.ParentID)
			}
			return core.Folder{}, err
		}
		if parent.JobID != key.JobID {
			return core.Folder{}, fmt.Errorf(
				"sqlstore: parent folder %q belongs to job %q, not %q",
				key.ParentID,
				parent.JobID,
				key.JobID,
			)
		}
	}
	path := strings.TrimSpace(key.Path)
	if path == "" {
		path = "/" + key.Name
	}

	var parentID *string
	if key.ParentID != "" {
		value := key.ParentID
		parentID = &value
	}
	_, err := db.NewRaw(`
INSERT INTO ingest_folders (id, job_id, parent_id, parent_key, name, path, depth, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (job_id, parent_key, name) DO NOTHING
`,
		uuid.NewString(),
		key.JobID,
		parentID,
		key.ParentID,
		key.Name,
		path,
		key.Depth,
		now,
	).Exec(ctx)
	if err != nil {
		return core.Folder{}, err
	}

	record := &folderRecord{}
	err = db.NewSelect().
		Model(record).
		Where("?TableAlias.job_id = ?", key.JobID).
		Where("?TableAlias.parent_key = ?", key.ParentID).
		Where("?TableAlias.name = ?", key.Name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return core.Folder{}, err
	}
	return record.toDomain(), nil
}

func selectJobBy(ctx context.Context, db bun.IDB, column string, value string) (*jobRecord, error) {
	value = strings.TrimSpace(value)
	record := &jobRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sqlstore: %w: %s %q", core.ErrJobNotFound, column, value)
		}
		return nil, err
	}
	return record, nil
}
