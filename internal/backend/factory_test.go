package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"profitshare/internal/config"
	"profitshare/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{
		DataBackend:     "sqlite",
		SQLiteDBPath:    "/tmp/x.db",
		DataDir:         "seed",
		ReportCacheSize: 8,
		ReportCacheTTL:  time.Minute,
	}
	got, err := FromAppConfig(cfg)
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if got.Type != SQLiteBackend || got.SQLiteDBPath != "/tmp/x.db" || got.DataDirectory != "seed" || got.CacheSize != 8 {
		t.Fatalf("unexpected config %+v", got)
	}

	if _, err := FromAppConfig(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite with path", Config{Type: SQLiteBackend, SQLiteDBPath: "a.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"unknown type", Config{Type: "sheets"}, true},
		{"negative cache", Config{Type: MemoryBackend, CacheSize: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	ctx := context.Background()
	result, err := NewFactory(nil).CreateBackend(ctx, Config{Type: MemoryBackend, DataDirectory: t.TempDir(), CacheSize: 4, CacheTTL: time.Minute})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	defer result.Close()

	if result.Cache == nil {
		t.Fatalf("expected report cache to wrap the store")
	}
	m := core.BranchExpenseMatrix{}
	m.Set("Main", "Rent", decimal.NewFromInt(10))
	saved, err := result.Reports.Put(ctx, core.ProfitReport{
		PeriodStart: core.NewDate(2025, 1, 1),
		PeriodEnd:   core.NewDate(2025, 1, 31),
		Matrix:      m,
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := result.Reports.Get(ctx, saved.ID); err != nil {
		t.Fatalf("get through cache: %v", err)
	}

	doc, err := result.Settings.Get(ctx)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if len(doc.Branches) == 0 {
		t.Fatalf("memory settings should fall back to default branches")
	}
}

func TestCreateSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "profitshare.db")
	result, err := NewFactory(nil).CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: path})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	if result.Cache != nil {
		t.Fatalf("cache must be disabled with zero size")
	}
	if _, err := result.Settings.Get(ctx); err != nil {
		t.Fatalf("settings: %v", err)
	}
	if err := result.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
