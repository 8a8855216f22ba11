package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

type stubJobReader struct {
	mu       sync.Mutex
	job      core.Job
	getCalls int
	getErr   error
}

func (s *stubJobReader) GetJob(_ context.Context, id string) (core.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return core.Job{}, s.getErr
	}
	job := s.job
	job.ID = id
	return job, nil
}

func (s *stubJobReader) setStatus(status core.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job.Status = status
}

func (s *stubJobReader) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls
}

func TestCachedJobReader_ServesRepeatedReadsFromCache(t *testing.T) {
	base := &stubJobReader{job: core.Job{Status: core.JobStatusPending, Metadata: map[string]any{"team": "a"}}}
	reader, err := NewCachedJobReader(base, newTestJobCacheService(t))
	if err != nil {
		t.Fatalf("new cached job reader: %v", err)
	}

	ctx := context.Background()
	first, err := reader.GetJob(ctx, "job_1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	first.Metadata["team"] = "mutated"

	second, err := reader.GetJob(ctx, "job_1")
	if err != nil {
		t.Fatalf("get job again: %v", err)
	}
	if base.calls() != 1 {
		t.Fatalf("expected one base read, got %d", base.calls())
	}
	if second.Metadata["team"] != "a" {
		t.Fatalf("expected cached job to be isolated from caller mutation, got %#v", second.Metadata)
	}
}

func TestCachedJobReader_InvalidateForcesRefetch(t *testing.T) {
	base := &stubJobReader{job: core.Job{Status: core.JobStatusPending}}
	reader, err := NewCachedJobReader(base, newTestJobCacheService(t))
	if err != nil {
		t.Fatalf("new cached job reader: %v", err)
	}

	ctx := context.Background()
	if _, err := reader.GetJob(ctx, "job_1"); err != nil {
		t.Fatalf("get job: %v", err)
	}
	base.setStatus(core.JobStatusRunning)
	if err := reader.InvalidateJob(ctx, "job_1"); err != nil {
		t.Fatalf("invalidate job: %v", err)
	}
	job, err := reader.GetJob(ctx, "job_1")
	if err != nil {
		t.Fatalf("get job after invalidate: %v", err)
	}
	if job.Status != core.JobStatusRunning {
		t.Fatalf("expected refreshed status running, got %q", job.Status)
	}
	if base.calls() != 2 {
		t.Fatalf("expected two base reads, got %d", base.calls())
	}
}

func TestCachedJobReader_PropagatesBaseErrors(t *testing.T) {
	base := &stubJobReader{getErr: core.ErrJobNotFound}
	reader, err := NewCachedJobReader(base, newTestJobCacheService(t))
	if err != nil {
		t.Fatalf("new cached job reader: %v", err)
	}
	if _, err := reader.GetJob(context.Background(), "job_missing"); !errors.Is(err, core.ErrJobNotFound) {
		t.Fatalf("expected job not found, got %v", err)
	}
}

func TestJobCacheKey_EscapesIdentifier(t *testing.T) {
	key, err := JobCacheKey(" job/1 ")
	if err != nil {
		t.Fatalf("job cache key: %v", err)
	}
	if key != "ingest::job::v1::job%2F1" {
		t.Fatalf("unexpected cache key %q", key)
	}
	if _, err := JobCacheKey(" "); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func newTestJobCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
