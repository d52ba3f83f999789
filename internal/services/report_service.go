package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"profitshare/internal/accounting"
	"profitshare/internal/amqp"
	"profitshare/internal/core"
	"profitshare/internal/distribution"
	"profitshare/internal/ledger"
	applog "profitshare/internal/log"
	"profitshare/internal/shareholders"
	"profitshare/internal/store"
	"profitshare/internal/validate"
)

var ErrReportExists = errors.New("report already exists")

// Publisher announces applied distributions. Optional.
type Publisher interface {
	PublishDistributionApplied(ctx context.Context, msg *amqp.DistributionAppliedMessage) error
}

type Options struct {
	// SettingsDebounce delays settings writes so bursts of edits are saved once.
	SettingsDebounce time.Duration
	Publisher        Publisher
	Now              func() time.Time
}

// ReportService orchestrates report finalization and editing, the roster and
// the catalog across the report store, the settings document and the ledger.
type ReportService struct {
	reports   store.ReportStore
	settings  store.SettingsStore
	ledger    *ledger.Ledger
	registry  *shareholders.Registry
	engine    *distribution.Engine
	validator *validate.Validator
	writer    *SettingsWriter
	publisher Publisher
	now       func() time.Time

	// catalog
	mu         sync.Mutex
	branches   []string
	categories []core.Category
	kinds      core.KindMap
	cash       core.CashBreakdown
}

func NewReportService(reports store.ReportStore, settings store.SettingsStore, opts Options) *ReportService {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	v := validate.New()
	l := ledger.New()
	r := shareholders.NewRegistry(l, v).WithClock(now)

	s := &ReportService{
		reports:   reports,
		settings:  settings,
		ledger:    l,
		registry:  r,
		engine:    distribution.NewEngine(r, l),
		validator: v,
		publisher: opts.Publisher,
		now:       now,
		kinds:     core.KindMap{},
	}
	s.writer = NewSettingsWriter(settings, s.snapshot, opts.SettingsDebounce)
	return s
}

// Load restores roster, ledger and catalog from the settings store.
func (s *ReportService) Load(ctx context.Context) error {
	doc, err := s.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if err := s.ledger.Restore(doc.Ledger); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	s.registry.Restore(doc.Shareholders)

	s.mu.Lock()
	s.branches = append([]string(nil), doc.Branches...)
	s.categories = append([]core.Category(nil), doc.Categories...)
	s.kinds = core.KindMap{}
	for name, kind := range doc.CategoryKinds {
		s.kinds[name] = kind
	}
	for _, c := range s.categories {
		if !c.Reserved {
			s.kinds[c.Name] = c.Kind
		}
	}
	s.cash = doc.Cash
	s.mu.Unlock()

	s.writer.SetVersion(doc.Version)

	slog.InfoContext(ctx, "Settings loaded",
		"version", doc.Version,
		"shareholders", len(doc.Shareholders),
		"ledger_entries", len(doc.Ledger),
		"branches", len(doc.Branches))
	return nil
}

func (s *ReportService) snapshot() core.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make(core.KindMap, len(s.kinds))
	for name, kind := range s.kinds {
		kinds[name] = kind
	}
	return core.Settings{
		Branches:      append([]string(nil), s.branches...),
		Categories:    append([]core.Category(nil), s.categories...),
		Shareholders:  s.registry.Snapshot(),
		Ledger:        s.ledger.Snapshot(),
		CategoryKinds: kinds,
		Cash:          s.cash,
	}
}

// Finalize stores a new report and runs its distribution. A nil
// IncludedShareholders selects the whole roster. With DerivePriorClosing set
// the prior closing balance is taken from the latest earlier report; otherwise
// the given value, zero included, is kept. Caller ids must be canonical ledger
// keys so that two reports never share ledger entries.
func (s *ReportService) Finalize(ctx context.Context, report core.ProfitReport) (core.ProfitReport, distribution.Result, error) {
	if report.ID != "" {
		if !ledger.IsCanonicalReportID(report.ID) {
			return core.ProfitReport{}, distribution.Result{}, core.Invalid("report id", core.ReasonInvalidCharacters, report.ID)
		}
		if _, err := s.reports.Get(ctx, report.ID); err == nil {
			return core.ProfitReport{}, distribution.Result{}, fmt.Errorf("finalize %s: %w", report.ID, ErrReportExists)
		}
	}
	if report.IncludedShareholders == nil {
		for _, sh := range s.registry.List() {
			report.IncludedShareholders = append(report.IncludedShareholders, sh.ID)
		}
	}
	if report.DerivePriorClosing {
		prior, err := s.priorClosing(ctx, report)
		if err != nil {
			return core.ProfitReport{}, distribution.Result{}, err
		}
		report.PriorClosingBalance = prior
		report.DerivePriorClosing = false
	}
	report.CreatedAt = time.Time{}
	report.ResultsLockedAt = s.now()
	return s.commit(ctx, report, applog.OpFinalize)
}

// Edit replaces an existing report's inputs, recomputes it and re-applies its
// distribution. Creation and results-locked timestamps are kept.
func (s *ReportService) Edit(ctx context.Context, report core.ProfitReport) (core.ProfitReport, distribution.Result, error) {
	current, err := s.reports.Get(ctx, report.ID)
	if err != nil {
		return core.ProfitReport{}, distribution.Result{}, fmt.Errorf("edit report: %w", err)
	}
	report.CreatedAt = current.CreatedAt
	report.ResultsLockedAt = current.ResultsLockedAt
	if report.IncludedShareholders == nil {
		report.IncludedShareholders = current.IncludedShareholders
	}
	return s.commit(ctx, report, applog.OpEdit)
}

// Reapply re-runs a stored report with a new shareholder selection.
func (s *ReportService) Reapply(ctx context.Context, reportID string, included []string) (distribution.Result, error) {
	report, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return distribution.Result{}, fmt.Errorf("reapply report: %w", err)
	}
	report.IncludedShareholders = append([]string{}, included...)
	_, result, err := s.commit(ctx, report, applog.OpApply)
	return result, err
}

func (s *ReportService) commit(ctx context.Context, report core.ProfitReport, op string) (core.ProfitReport, distribution.Result, error) {
	if err := s.normalize(&report); err != nil {
		return core.ProfitReport{}, distribution.Result{}, err
	}
	if err := report.Validate(); err != nil {
		return core.ProfitReport{}, distribution.Result{}, err
	}
	accounting.Recompute(&report)

	saved, err := s.reports.Put(ctx, report)
	if err != nil {
		return core.ProfitReport{}, distribution.Result{}, fmt.Errorf("save report: %w", err)
	}

	result, err := s.engine.Apply(ctx, saved, saved.IncludedShareholders)
	if err != nil {
		applog.ErrorContext(ctx, "Distribution failed after the report was saved", err, op,
			applog.NewFields().WithReport(saved.ID))
		return saved, result, fmt.Errorf("apply distribution: %w", err)
	}
	s.writer.Schedule()
	s.publishApplied(ctx, result)

	fields := applog.NewFields().
		WithOperation(op).
		WithReport(saved.ID).
		WithDistribution(result.Rate, len(result.Entries))
	slog.InfoContext(ctx, "Report committed", append(fields.ToSlice(),
		"final_balance", saved.Totals.FinalBalance.String(),
		"net_profit", saved.Totals.NetProfit.String())...)
	return saved, result, nil
}

func (s *ReportService) normalize(report *core.ProfitReport) error {
	if err := s.validator.NormalizeMatrix(report.Matrix); err != nil {
		return err
	}
	cash, err := s.validator.NormalizeCash(report.Cash)
	if err != nil {
		return err
	}
	report.Cash = cash
	report.OutletExpenses = validate.Clamp(report.OutletExpenses)
	report.PriorClosingBalance = core.ClampSignedAmount(report.PriorClosingBalance)

	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make(core.KindMap, len(s.kinds)+len(report.Kinds))
	for name, kind := range s.kinds {
		kinds[name] = kind
	}
	for name, kind := range report.Kinds {
		kinds[name] = kind
	}
	report.Kinds = kinds
	return nil
}

func (s *ReportService) priorClosing(ctx context.Context, report core.ProfitReport) (decimal.Decimal, error) {
	reports, err := s.reports.List(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list reports: %w", err)
	}
	prior := decimal.Zero
	for _, r := range reports {
		if r.ID != report.ID && r.PeriodStart.Before(report.PeriodStart.Time) {
			prior = r.Totals.FinalBalance
		}
	}
	return prior, nil
}

func (s *ReportService) publishApplied(ctx context.Context, result distribution.Result) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewDistributionAppliedMessage(result.ReportID, result.Rate, result.Entries, result.Balances)
	if err := s.publisher.PublishDistributionApplied(ctx, msg); err != nil {
		fields := applog.NewFields().
			WithOperation(applog.OpApply).
			WithReport(result.ReportID).
			WithError(err, applog.ErrorTypeNetwork)
		slog.ErrorContext(ctx, "Failed to publish distribution applied message", fields.ToSlice()...)
	}
}

// Delete removes the report only. Its ledger entries are left in place and
// keep contributing to balances; they are returned so callers can surface
// them.
func (s *ReportService) Delete(ctx context.Context, reportID string) ([]core.ShareTransaction, error) {
	if err := s.reports.Delete(ctx, reportID); err != nil {
		return nil, fmt.Errorf("delete report: %w", err)
	}
	orphans := s.ledger.EntriesForReport(reportID)
	if len(orphans) > 0 {
		fields := applog.NewFields().WithOperation(applog.OpDelete).WithReport(reportID)
		slog.WarnContext(ctx, "Deleted report still has ledger entries",
			append(fields.ToSlice(), "orphaned_entries", len(orphans))...)
	}
	return orphans, nil
}

func (s *ReportService) Report(ctx context.Context, id string) (core.ProfitReport, error) {
	return s.reports.Get(ctx, id)
}

func (s *ReportService) Reports(ctx context.Context) ([]core.ProfitReport, error) {
	return s.reports.List(ctx)
}

func (s *ReportService) AddShareholder(ctx context.Context, name string, initialBalance, stakePercent decimal.Decimal) (core.Shareholder, error) {
	sh, err := s.registry.Add(name, initialBalance, stakePercent)
	if err != nil {
		return core.Shareholder{}, err
	}
	s.writer.Schedule()
	return sh, nil
}

func (s *ReportService) UpdateShareholder(ctx context.Context, id string, u shareholders.Update) (core.Shareholder, error) {
	sh, err := s.registry.Update(id, u)
	if err != nil {
		return core.Shareholder{}, err
	}
	s.writer.Schedule()
	return sh, nil
}

func (s *ReportService) RemoveShareholder(ctx context.Context, id string) error {
	if err := s.registry.Remove(id); err != nil {
		return err
	}
	s.writer.Schedule()
	return nil
}

func (s *ReportService) Adjust(ctx context.Context, id string, delta decimal.Decimal, note string) (core.ShareTransaction, error) {
	entry, err := s.registry.ManualAdjust(id, delta, note)
	if err != nil {
		return core.ShareTransaction{}, err
	}
	s.writer.Schedule()
	return entry, nil
}

func (s *ReportService) Shareholders() []core.Shareholder {
	return s.registry.List()
}

// History returns a shareholder's ledger in application order. Removed
// shareholders keep their history.
func (s *ReportService) History(id string) []core.ShareTransaction {
	return s.ledger.HistoryFor(id)
}

// DefineCategory adds a custom category to the catalog.
func (s *ReportService) DefineCategory(ctx context.Context, name string, kind core.CategoryKind) (core.Category, error) {
	c, err := s.validator.Category(name, kind)
	if err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, c.Name) {
			s.mu.Unlock()
			return core.Category{}, core.Invalid("category", core.ReasonDuplicateName, c.Name)
		}
	}
	s.categories = append(s.categories, c)
	s.kinds[c.Name] = c.Kind
	s.mu.Unlock()

	s.writer.Schedule()
	return c, nil
}

// AddBranch adds a branch to the catalog.
func (s *ReportService) AddBranch(ctx context.Context, name string) (string, error) {
	clean, err := s.validator.Label("branch", name)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	for _, b := range s.branches {
		if strings.EqualFold(b, clean) {
			s.mu.Unlock()
			return "", core.Invalid("branch", core.ReasonDuplicateName, clean)
		}
	}
	s.branches = append(s.branches, clean)
	s.mu.Unlock()

	s.writer.Schedule()
	return clean, nil
}

// SetCash stores the default cash breakdown offered for the next report.
func (s *ReportService) SetCash(ctx context.Context, cash core.CashBreakdown) error {
	clean, err := s.validator.NormalizeCash(cash)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cash = clean
	s.mu.Unlock()
	s.writer.Schedule()
	return nil
}

// DefaultCash returns the cash breakdown saved with SetCash.
func (s *ReportService) DefaultCash() core.CashBreakdown {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cash
}

// Catalog returns the configured branches and categories.
func (s *ReportService) Catalog() ([]string, []core.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.branches...), append([]core.Category(nil), s.categories...)
}

// Flush writes pending settings changes now.
func (s *ReportService) Flush(ctx context.Context) error {
	return s.writer.Flush(ctx)
}

// PersistError reports the last settings write failure, if any.
func (s *ReportService) PersistError() error {
	return s.writer.LastError()
}

// Close flushes pending settings.
func (s *ReportService) Close(ctx context.Context) error {
	var errs []error
	if err := s.writer.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if c, ok := s.publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	return errors.Join(errs...)
}
