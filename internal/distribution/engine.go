// Package distribution applies a report's profit rate to every shareholder
// through the ledger.
//
// Each application walks the whole roster, not only the shareholders whose
// selection changed. For every shareholder the balance before the report is
// read back from the ledger (latest applied entry of another report or manual
// adjustment), so re-applying an old report revises exactly that report's
// contribution and running it twice changes nothing.
package distribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"profitshare/internal/accounting"
	"profitshare/internal/core"
	"profitshare/internal/ledger"
	applog "profitshare/internal/log"
	"profitshare/internal/shareholders"
)

const (
	NoteExcluded = "not included in this report's distribution"
	NoteTooLate  = "joined after this report's results were locked"
)

var ErrMissingReportID = errors.New("report has no id")

var hundred = decimal.NewFromInt(100)

// Result is what one application changed.
type Result struct {
	ReportID string
	Rate     decimal.Decimal
	Entries  []core.ShareTransaction
	Balances map[string]decimal.Decimal
}

type Engine struct {
	registry *shareholders.Registry
	ledger   *ledger.Ledger
}

func NewEngine(registry *shareholders.Registry, l *ledger.Ledger) *Engine {
	return &Engine{registry: registry, ledger: l}
}

// Apply runs (or re-runs) the report's distribution over the whole roster.
// includedIDs replaces the report's shareholder selection for this run.
func (e *Engine) Apply(ctx context.Context, report core.ProfitReport, includedIDs []string) (Result, error) {
	if ledger.NormalizeReportID(report.ID) == "" {
		return Result{}, ErrMissingReportID
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	rate := accounting.Compare(report.Totals, report.PriorClosingBalance).PerUnitProfitRate
	included := make(map[string]struct{}, len(includedIDs))
	for _, id := range includedIDs {
		included[id] = struct{}{}
	}

	roster := e.registry.List()
	ids := make([]string, len(roster))
	for i, s := range roster {
		ids[i] = s.ID
	}
	unlock := e.registry.Locks().Lock(ids...)
	defer unlock()

	result := Result{
		ReportID: report.ID,
		Rate:     rate,
		Entries:  make([]core.ShareTransaction, 0, len(roster)),
		Balances: make(map[string]decimal.Decimal, len(roster)),
	}

	for _, id := range ids {
		// the listing may predate an update or removal that held the lock
		s, err := e.registry.Get(id)
		if errors.Is(err, shareholders.ErrNotFound) {
			delete(included, id)
			continue
		}
		if err != nil {
			return result, err
		}
		entry := e.entryFor(report, s, rate, included)
		written, err := e.ledger.Upsert(entry)
		if err != nil {
			return result, fmt.Errorf("write entry for %s: %w", s.ID, err)
		}
		if err := e.registry.SetBalance(s.ID, written.ToAmount); err != nil {
			return result, fmt.Errorf("update balance for %s: %w", s.ID, err)
		}
		result.Entries = append(result.Entries, written)
		result.Balances[s.ID] = written.ToAmount
		delete(included, s.ID)
		slog.DebugContext(ctx, "Distribution entry written", applog.NewFields().
			WithReport(report.ID).
			WithMovement(s.ID, written.Delta, written.ToAmount).ToSlice()...)
	}

	for id := range included {
		slog.WarnContext(ctx, "Included shareholder is not on the roster, skipping",
			applog.FieldReportID, report.ID, applog.FieldShareholderID, id)
	}

	fields := applog.NewFields().WithReport(report.ID).WithDistribution(rate, len(result.Entries))
	slog.InfoContext(ctx, "Distribution applied", append(fields.ToSlice(), "included", len(includedIDs))...)

	return result, nil
}

func (e *Engine) entryFor(report core.ProfitReport, s core.Shareholder, rate decimal.Decimal, included map[string]struct{}) core.ShareTransaction {
	before := e.ledger.BalanceBefore(s.ID, report.ID, s.InitialBalance)
	entry := core.ShareTransaction{
		ShareholderID:      s.ID,
		ReportID:           report.ID,
		FromAmount:         before,
		ToAmount:           before,
		Delta:              decimal.Zero,
		ReportNetProfit:    report.Totals.NetProfit,
		ReportFinalBalance: report.Totals.FinalBalance,
		Source:             core.SourceAuto,
	}

	if _, ok := included[s.ID]; !ok {
		entry.Note = NoteExcluded
		return entry
	}
	if !report.ResultsLockedAt.IsZero() && s.CreatedAt.After(report.ResultsLockedAt) {
		entry.Note = NoteTooLate
		return entry
	}

	entry.Delta = Delta(before, rate, s.StakePercent)
	entry.ToAmount = before.Add(entry.Delta)
	entry.Active = true
	return entry
}

// Delta is a shareholder's contribution for one report, rounded to cents.
func Delta(balanceBefore, rate, stakePercent decimal.Decimal) decimal.Decimal {
	return core.RoundMoney(balanceBefore.Mul(rate).Mul(stakePercent).Div(hundred))
}
