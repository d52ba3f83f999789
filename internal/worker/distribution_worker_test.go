package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"profitshare/internal/amqp"
	"profitshare/internal/core"
	"profitshare/internal/distribution"
	"profitshare/internal/services"
	"profitshare/internal/store"
	"profitshare/internal/store/memory"
)

type stubDistributor struct {
	calls      []string
	reapplyErr error
	flushErr   error
}

func (s *stubDistributor) Load(context.Context) error {
	s.calls = append(s.calls, "load")
	return nil
}

func (s *stubDistributor) Reapply(_ context.Context, id string, _ []string) (distribution.Result, error) {
	s.calls = append(s.calls, "reapply:"+id)
	return distribution.Result{ReportID: id}, s.reapplyErr
}

func (s *stubDistributor) Flush(context.Context) error {
	s.calls = append(s.calls, "flush")
	return s.flushErr
}

func TestHandleRequest(t *testing.T) {
	tests := []struct {
		name       string
		reapplyErr error
		flushErr   error
		wantErr    bool
		wantCalls  int
	}{
		{"applies and flushes", nil, nil, false, 3},
		{"unknown report is dropped", fmt.Errorf("get: %w", store.ErrNotFound), nil, false, 2},
		{"reapply failure is retried", errors.New("boom"), nil, true, 2},
		{"flush failure is retried", nil, errors.New("disk full"), true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubDistributor{reapplyErr: tt.reapplyErr, flushErr: tt.flushErr}
			w := NewDistributionWorker(stub)
			err := w.HandleRequest(context.Background(), amqp.NewDistributionRequestedMessage("r1", nil))
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(stub.calls) != tt.wantCalls || stub.calls[0] != "load" {
				t.Fatalf("unexpected call sequence %v", stub.calls)
			}
		})
	}
}

type forgetRecorder []string

func (f *forgetRecorder) Forget(id string) { *f = append(*f, id) }

func TestHandleRequestEvictsCachedReport(t *testing.T) {
	var forgotten forgetRecorder
	w := NewDistributionWorker(&stubDistributor{}).WithReportCache(&forgotten)
	if err := w.HandleRequest(context.Background(), amqp.NewDistributionRequestedMessage("r7", nil)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(forgotten) != 1 || forgotten[0] != "r7" {
		t.Fatalf("expected r7 to be evicted, got %v", forgotten)
	}
}

func TestHandleRequestWithReportService(t *testing.T) {
	ctx := context.Background()
	reports := memory.NewReports()
	settings := memory.NewSettings([]string{"Main"}, nil)

	// another process finalizes the report and persists settings
	writer := services.NewReportService(reports, settings, services.Options{})
	if err := writer.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	sh, _ := writer.AddShareholder(ctx, "Amal", decimal.NewFromInt(1000), decimal.NewFromInt(100))
	m := core.BranchExpenseMatrix{}
	m.Set("Main", core.CategoryStores, decimal.NewFromInt(200))
	report, _, err := writer.Finalize(ctx, core.ProfitReport{
		PeriodStart:         core.NewDate(2025, 1, 1),
		PeriodEnd:           core.NewDate(2025, 1, 31),
		Matrix:              m,
		PriorClosingBalance: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := writer.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	svc := services.NewReportService(reports, settings, services.Options{SettingsDebounce: time.Hour})
	w := NewDistributionWorker(svc)
	if err := w.HandleRequest(ctx, amqp.NewDistributionRequestedMessage(report.ID, nil)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	doc, _ := settings.Get(ctx)
	if len(doc.Shareholders) != 1 || !doc.Shareholders[0].Balance.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("excluding everyone must restore the balance and be persisted: %+v", doc.Shareholders)
	}
	if len(doc.Ledger) != 1 || doc.Ledger[0].Active || doc.Ledger[0].ShareholderID != sh.ID {
		t.Fatalf("unexpected persisted ledger %+v", doc.Ledger)
	}
}
