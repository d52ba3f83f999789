package backend

import (
	"context"
	"time"

	"profitshare/internal/cache"
	"profitshare/internal/store"
)

// CleanupFunc releases backend resources
type CleanupFunc func() error

// BackendResult holds the stores a service runs against
type BackendResult struct {
	Reports  store.ReportStore
	Settings store.SettingsStore
	// Cache is the report read-through cache, nil when caching is disabled.
	Cache   *cache.ReportCache
	Cleanup CleanupFunc
}

// Close runs Cleanup if set.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory backend specific
	DataDirectory string

	// Report cache; a zero size disables it
	CacheSize int
	CacheTTL  time.Duration
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
