package log

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"profitshare/internal/core"
	"profitshare/internal/store"
)

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentWorker, Output: &buf})

	l.Info("hello")
	l.WithComponent(ComponentAMQP).Info("switched")
	l.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "component=worker") || !strings.Contains(out, "component=amqp") {
		t.Fatalf("missing component fields: %s", out)
	}
	if strings.Count(out, "component=") != 2 {
		t.Fatalf("component must appear once per record: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record must be filtered at info level")
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf})

	fields := NewFields().WithReport("r1").WithMovement("s1", decimal.RequireFromString("901.64"), decimal.RequireFromString("10901.64"))
	l.LogError(context.Background(), "apply failed", errors.New("boom"), ErrorTypeDatabase, OpApply, fields)

	out := buf.String()
	for _, want := range []string{"error=boom", "error_type=database_error", "operation=apply", "report_id=r1", "delta=901.64", "balance=10901.64"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
}

func TestWithErrorNil(t *testing.T) {
	if f := NewFields().WithError(nil, ErrorTypeInternal); len(f) != 0 {
		t.Fatalf("nil error must add no fields, got %v", f)
	}
}

func TestErrorTypeOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"validation", core.Invalid("stake percent", core.ReasonOutOfRange, "101"), ErrorTypeValidation},
		{"empty matrix", fmt.Errorf("commit: %w", core.ErrEmptyMatrix), ErrorTypeValidation},
		{"missing report", fmt.Errorf("reapply report: %w", store.ErrNotFound), ErrorTypeNotFound},
		{"stale settings", fmt.Errorf("save: %w", store.ErrVersionConflict), ErrorTypeConflict},
		{"other", errors.New("disk full"), ErrorTypeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ErrorTypeOf(tc.err); got != tc.want {
				t.Errorf("ErrorTypeOf() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestErrorContextUsesDefaultLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetDefault(New(Config{Output: &buf, Component: ComponentWorker}))

	err := fmt.Errorf("flush: %w", store.ErrVersionConflict)
	ErrorContext(context.Background(), "apply failed", err, OpApply, NewFields().WithReport("2025-01"))

	out := buf.String()
	for _, want := range []string{"component=worker", "error_type=conflict_error", "operation=apply", "report_id=2025-01"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
}
