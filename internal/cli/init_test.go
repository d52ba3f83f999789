package cli

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"profitshare/internal/config"
	applog "profitshare/internal/log"
)

func TestOpenAppMemoryBackend(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		DataBackend:      "memory",
		DataDir:          t.TempDir(),
		SettingsDebounce: time.Hour,
		ReportCacheSize:  4,
		ReportCacheTTL:   time.Minute,
	}
	logger := SetupLogger(cfg, applog.ComponentCLI)

	app, err := OpenApp(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("OpenApp() error = %v", err)
	}
	if app.AMQP != nil {
		t.Fatalf("no broker configured, client must be nil")
	}
	if _, err := app.Service.AddShareholder(ctx, "Amal", decimal.NewFromInt(100), decimal.NewFromInt(10)); err != nil {
		t.Fatalf("add shareholder: %v", err)
	}
	if err := app.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	doc, err := app.Backend.Settings.Get(ctx)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if len(doc.Shareholders) != 1 {
		t.Fatalf("close must flush pending settings, got %+v", doc.Shareholders)
	}
}

func TestOpenAppRejectsUnknownBackend(t *testing.T) {
	cfg := &config.Config{DataBackend: "sheets"}
	if _, err := OpenApp(context.Background(), cfg, SetupLogger(cfg, applog.ComponentCLI)); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
