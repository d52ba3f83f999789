package cache

import (
	"context"
	"log/slog"
	"time"

	"profitshare/internal/core"
	"profitshare/internal/store"
)

// ReportCache is a read-through cache in front of a ReportStore. Writes go to
// the underlying store first and refresh the cached copy on success.
type ReportCache struct {
	next  store.ReportStore
	cache *LRUCache[core.ProfitReport]
}

var _ store.ReportStore = (*ReportCache)(nil)

func NewReportCache(next store.ReportStore, size int, ttl time.Duration) *ReportCache {
	return &ReportCache{next: next, cache: NewLRUCache[core.ProfitReport](size, ttl)}
}

// Cleaner exposes the underlying LRU for registration with a Manager.
func (c *ReportCache) Cleaner() Cleaner {
	return c.cache
}

func (c *ReportCache) Get(ctx context.Context, id string) (core.ProfitReport, error) {
	if r, ok := c.cache.Get(id); ok {
		slog.DebugContext(ctx, "Report cache hit", "id", id)
		return r.Clone(), nil
	}
	r, err := c.next.Get(ctx, id)
	if err != nil {
		return core.ProfitReport{}, err
	}
	c.cache.Set(id, r.Clone())
	return r, nil
}

// List always reads through; the result is not cached as a whole but warms
// the per-report entries.
func (c *ReportCache) List(ctx context.Context) ([]core.ProfitReport, error) {
	reports, err := c.next.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range reports {
		c.cache.Set(r.ID, r.Clone())
	}
	return reports, nil
}

func (c *ReportCache) Put(ctx context.Context, r core.ProfitReport) (core.ProfitReport, error) {
	saved, err := c.next.Put(ctx, r)
	if err != nil {
		if r.ID != "" {
			c.cache.Delete(r.ID)
		}
		return core.ProfitReport{}, err
	}
	c.cache.Set(saved.ID, saved.Clone())
	return saved, nil
}

func (c *ReportCache) Delete(ctx context.Context, id string) error {
	c.cache.Delete(id)
	return c.next.Delete(ctx, id)
}

// Forget drops a cached report so the next Get reads the store. Used when
// another process may have written it.
func (c *ReportCache) Forget(id string) {
	c.cache.Delete(id)
}
