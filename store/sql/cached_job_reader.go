package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

const jobCacheKeyPrefix = "ingest::job::v1"

// CachedJobReader serves job lookups for the query side from a cache. Writes
// go through the service, which calls InvalidateJob after commit. The ingest
// transaction reads jobs directly and never sees this cache.
type CachedJobReader struct {
	base  core.JobReader
	cache repositorycache.CacheService
}

func NewCachedJobReader(base core.JobReader, cacheService repositorycache.CacheService) (*CachedJobReader, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base job reader is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: job cache service is required")
	}
	return &CachedJobReader{base: base, cache: cacheService}, nil
}

// JobCacheKey returns ingest::job::v1::<job id> with the id URL-path escaped.
func JobCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sqlstore: job id is required")
	}
	return jobCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (r *CachedJobReader) GetJob(ctx context.Context, id string) (core.Job, error) {
	if r == nil || r.base == nil || r.cache == nil {
		return core.Job{}, fmt.Errorf("sqlstore: cached job reader is not configured")
	}
	key, err := JobCacheKey(id)
	if err != nil {
		return core.Job{}, err
	}
	job, err := repositorycache.GetOrFetch(ctx, r.cache, key, func(ctx context.Context) (core.Job, error) {
		fetched, fetchErr := r.base.GetJob(ctx, strings.TrimSpace(id))
		if fetchErr != nil {
			return core.Job{}, fetchErr
		}
		return cloneJob(fetched), nil
	})
	if err != nil {
		return core.Job{}, err
	}
	return cloneJob(job), nil
}

func (r *CachedJobReader) InvalidateJob(ctx context.Context, id string) error {
	if r == nil || r.cache == nil {
		return fmt.Errorf("sqlstore: cached job reader is not configured")
	}
	key, err := JobCacheKey(id)
	if err != nil {
		return err
	}
	return r.cache.Delete(ctx, key)
}

func cloneJob(job core.Job) core.Job {
	cloned := job
	cloned.Metadata = copyAnyMap(job.Metadata)
	return cloned
}

var (
	_ core.JobReader           = (*CachedJobReader)(nil)
	_ core.JobCacheInvalidator = (*CachedJobReader)(nil)
)
