package store

import (
	"context"
	"errors"

	"profitshare/internal/core"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("settings were saved by someone else")
)

// Ports for persistence adapters.
type (
	ReportStore interface {
		Get(ctx context.Context, id string) (core.ProfitReport, error)
		// List returns reports ordered by period start, oldest first.
		List(ctx context.Context) ([]core.ProfitReport, error)
		// Put inserts or replaces a report, assigning an id when it has none.
		Put(ctx context.Context, r core.ProfitReport) (core.ProfitReport, error)
		Delete(ctx context.Context, id string) error
	}

	// SettingsStore persists the single settings document.
	SettingsStore interface {
		// Get returns the zero Settings (Version 0) when nothing was saved yet.
		Get(ctx context.Context) (core.Settings, error)
		// Put saves s if s.Version matches the stored version and returns the
		// saved document with its version bumped.
		Put(ctx context.Context, s core.Settings) (core.Settings, error)
	}
)
