package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"profitshare/internal/amqp"
	"profitshare/internal/distribution"
	applog "profitshare/internal/log"
	"profitshare/internal/store"
)

// Distributor is the part of services.ReportService the worker drives.
type Distributor interface {
	Load(ctx context.Context) error
	Reapply(ctx context.Context, reportID string, included []string) (distribution.Result, error)
	Flush(ctx context.Context) error
}

// DistributionWorker applies queued distribution requests. Each request
// reloads settings first so writes made by other processes are seen, and
// flushes before the message is acknowledged. Redelivery after a failed
// flush is safe because applying a report is idempotent.
type DistributionWorker struct {
	service Distributor
	cache   reportForgetter
}

type reportForgetter interface {
	Forget(id string)
}

func NewDistributionWorker(service Distributor) *DistributionWorker {
	return &DistributionWorker{service: service}
}

// WithReportCache makes the worker evict the requested report before
// applying it, so edits made by other processes are not hidden by the cache.
func (w *DistributionWorker) WithReportCache(c reportForgetter) *DistributionWorker {
	w.cache = c
	return w
}

// HandleRequest processes one DistributionRequestedMessage. A request for a
// report that no longer exists is logged and dropped.
func (w *DistributionWorker) HandleRequest(ctx context.Context, msg *amqp.DistributionRequestedMessage) error {
	slog.DebugContext(ctx, "Applying distribution request",
		applog.FieldReportID, msg.ReportID,
		"included", len(msg.IncludedShareholders),
		"requested_at", msg.Timestamp)

	if w.cache != nil {
		w.cache.Forget(msg.ReportID)
	}
	if err := w.service.Load(ctx); err != nil {
		return fmt.Errorf("reload settings: %w", err)
	}

	result, err := w.service.Reapply(ctx, msg.ReportID, msg.IncludedShareholders)
	if errors.Is(err, store.ErrNotFound) {
		fields := applog.NewFields().
			WithOperation(applog.OpApply).
			WithReport(msg.ReportID).
			WithError(err, applog.ErrorTypeNotFound)
		slog.WarnContext(ctx, "Distribution requested for unknown report, dropping", fields.ToSlice()...)
		return nil
	}
	if err != nil {
		applog.ErrorContext(ctx, "Distribution request failed", err, applog.OpApply,
			applog.NewFields().WithReport(msg.ReportID))
		return fmt.Errorf("reapply report %s: %w", msg.ReportID, err)
	}

	if err := w.service.Flush(ctx); err != nil {
		applog.ErrorContext(ctx, "Distribution could not be persisted", err, applog.OpApply,
			applog.NewFields().WithReport(msg.ReportID))
		return fmt.Errorf("persist distribution for %s: %w", msg.ReportID, err)
	}

	fields := applog.NewFields().
		WithOperation(applog.OpApply).
		WithReport(msg.ReportID).
		WithDistribution(result.Rate, len(result.Entries))
	slog.InfoContext(ctx, "Distribution request applied", fields.ToSlice()...)
	return nil
}
