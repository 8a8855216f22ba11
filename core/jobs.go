package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RegisterJob records a job submitted to the provider. Registering the same
// snapshot ID twice returns the existing job.
func (s *Service) RegisterJob(ctx context.Context, in RegisterJobInput) (job Job, err error) {
	startedAt := time.Now()
	fields := map[string]any{
		"snapshot_id": strings.TrimSpace(in.SnapshotID),
	}
	defer func() {
		fields["job_id"] = job.ID
		s.observeOperation(ctx, startedAt, "register_job", err, fields)
	}()

	if s == nil || s.jobStore == nil {
		return Job{}, MapError(errServiceNotConfigured)
	}
	in.ID = strings.TrimSpace(in.ID)
	in.SnapshotID = strings.TrimSpace(in.SnapshotID)
	in.Name = strings.TrimSpace(in.Name)
	if in.ID == "" && in.SnapshotID == "" && in.Name == "" {
		return Job{}, NewBadInputError("job id, snapshot id, or name is required")
	}
	if in.Status == "" {
		in.Status = JobStatusPending
	}
	if !in.Status.Valid() {
		return Job{}, NewBadInputError(fmt.Sprintf("job status %q is invalid", in.Status))
	}

	registered, created, err := s.jobStore.RegisterJob(ctx, in)
	if err != nil {
		return Job{}, s.mapError(err)
	}
	fields["created"] = created
	s.invalidateJob(ctx, registered.ID)
	return registered, nil
}

func (s *Service) GetJob(ctx context.Context, id string) (Job, error) {
	if s == nil || s.jobReader == nil {
		return Job{}, MapError(errServiceNotConfigured)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Job{}, NewBadInputError("job id is required")
	}
	job, err := s.jobReader.GetJob(ctx, id)
	if err != nil {
		return Job{}, s.mapError(err)
	}
	return job, nil
}

func (s *Service) ListJobs(ctx context.Context, status JobStatus, limit, offset int) ([]Job, int, error) {
	if s == nil || s.jobStore == nil {
		return nil, 0, MapError(errServiceNotConfigured)
	}
	if status != "" && !status.Valid() {
		return nil, 0, NewBadInputError(fmt.Sprintf("job status %q is invalid", status))
	}
	jobs, total, err := s.jobStore.ListJobs(ctx, status, normalizeLimit(limit), max(offset, 0))
	if err != nil {
		return nil, 0, s.mapError(err)
	}
	return jobs, total, nil
}

// UpdateJobStatus moves a job along the status machine. Disallowed moves are
// conflicts; setting the current status again is a no-op.
func (s *Service) UpdateJobStatus(ctx context.Context, id string, to JobStatus) (job Job, err error) {
	startedAt := time.Now()
	fields := map[string]any{
		"job_id": strings.TrimSpace(id),
		"to":     string(to),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "update_job_status", err, fields)
	}()

	if s == nil || s.jobStore == nil {
		return Job{}, MapError(errServiceNotConfigured)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Job{}, NewBadInputError("job id is required")
	}
	if !to.Valid() {
		return Job{}, NewBadInputError(fmt.Sprintf("job status %q is invalid", to))
	}
	current, err := s.jobStore.GetJob(ctx, id)
	if err != nil {
		return Job{}, s.mapError(err)
	}
	fields["from"] = string(current.Status)
	if current.Status == to {
		return current, nil
	}
	if !CanTransitionJob(current.Status, to) {
		return Job{}, NewConflictError(fmt.Sprintf("job status cannot move from %s to %s", current.Status, to))
	}
	moved, err := s.jobStore.CompareAndSetJobStatus(ctx, id, current.Status, to)
	if err != nil {
		return Job{}, s.mapError(err)
	}
	if !moved {
		return Job{}, NewConflictError("job status changed concurrently")
	}
	s.invalidateJob(ctx, id)
	updated, err := s.jobStore.GetJob(ctx, id)
	if err != nil {
		return Job{}, s.mapError(err)
	}
	return updated, nil
}

// ListFolders returns the folder tree of a job ordered by path.
func (s *Service) ListFolders(ctx context.Context, jobID string) ([]Folder, error) {
	if s == nil || s.jobStore == nil {
		return nil, MapError(errServiceNotConfigured)
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, NewBadInputError("job id is required")
	}
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	folders, err := s.jobStore.ListFolders(ctx, jobID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return folders, nil
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	default:
		return limit
	}
}
