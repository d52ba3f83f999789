package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"profitshare/internal/core"
	applog "profitshare/internal/log"
	"profitshare/internal/store"
)

// SettingsWriter coalesces settings saves. Schedule arms a debounce timer;
// when it fires, the latest snapshot is written once. Flush and Stop write any
// pending change synchronously so the final state is never dropped. A failed
// write stays pending and is surfaced through LastError; nothing retries on
// its own.
type SettingsWriter struct {
	store    store.SettingsStore
	snapshot func() core.Settings
	delay    time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	stopped bool
	version int64
	lastErr error
	writes  int

	writeMu sync.Mutex
}

func NewSettingsWriter(s store.SettingsStore, snapshot func() core.Settings, delay time.Duration) *SettingsWriter {
	return &SettingsWriter{store: s, snapshot: snapshot, delay: delay}
}

// SetVersion records the stored version the next write must match.
func (w *SettingsWriter) SetVersion(v int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.version = v
}

// Schedule marks the settings dirty and (re)arms the debounce timer.
func (w *SettingsWriter) Schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = true
	if w.stopped {
		return
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.delay, w.fire)
		return
	}
	w.timer.Reset(w.delay)
}

func (w *SettingsWriter) fire() {
	if err := w.Flush(context.Background()); err != nil {
		applog.ErrorContext(context.Background(), "Debounced settings write failed", err, applog.OpFlush, nil)
	}
}

// Flush writes the pending change, if any, and waits for it.
func (w *SettingsWriter) Flush(ctx context.Context) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	if !w.pending {
		w.mu.Unlock()
		return nil
	}
	w.pending = false
	version := w.version
	w.mu.Unlock()

	doc := w.snapshot()
	doc.Version = version
	saved, err := w.store.Put(ctx, doc)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.pending = true
		w.lastErr = err
		fields := applog.NewFields().WithOperation(applog.OpFlush).WithError(err, "")
		slog.ErrorContext(ctx, "Failed to save settings", append(fields.ToSlice(),
			"version", version,
			"shareholders", len(doc.Shareholders),
			"ledger_entries", len(doc.Ledger))...)
		return fmt.Errorf("save settings: %w", err)
	}
	w.version = saved.Version
	w.lastErr = nil
	w.writes++
	slog.DebugContext(ctx, "Settings saved", "version", saved.Version)
	return nil
}

// Stop disarms the timer and flushes what is pending. Later Schedule calls
// only mark the state dirty; Flush still writes it.
func (w *SettingsWriter) Stop(ctx context.Context) error {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	return w.Flush(ctx)
}

// Pending reports whether there are unsaved changes.
func (w *SettingsWriter) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

// LastError returns the error of the most recent failed write, cleared by
// the next successful one.
func (w *SettingsWriter) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Writes counts successful saves.
func (w *SettingsWriter) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}
