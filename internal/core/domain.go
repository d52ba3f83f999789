package core

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Reserved category keys carried by every branch column.
const (
	CategoryStores       = "stores"
	CategoryProfit       = "profit"
	CategoryDebtOwedToUs = "debt_owed_to_us"
	CategoryDebtOwedByUs = "debt_owed_by_us"
)

const (
	KindOrdinary CategoryKind = "ordinary"
	KindPersonal CategoryKind = "personal"
)

const (
	SourceAuto   TransactionSource = "auto"
	SourceManual TransactionSource = "manual"
)

var reservedCategories = []string{
	CategoryStores,
	CategoryProfit,
	CategoryDebtOwedToUs,
	CategoryDebtOwedByUs,
}

type (
	CategoryKind string

	TransactionSource string

	Date struct {
		time.Time
	}

	// Category is either one of the reserved keys or a user-defined
	// expense category. Reserved categories never enter expense math.
	Category struct {
		Name     string       `json:"name"`
		Kind     CategoryKind `json:"kind"`
		Reserved bool         `json:"reserved,omitempty"`
	}

	// KindMap maps category name to kind. Unknown names are ordinary.
	KindMap map[string]CategoryKind

	// BranchExpenseMatrix maps branch -> category -> amount.
	BranchExpenseMatrix map[string]map[string]decimal.Decimal

	CashRow struct {
		Label  string          `json:"label"`
		Amount decimal.Decimal `json:"amount"`
	}

	// CashBreakdown is the money physically held at period close.
	CashBreakdown struct {
		Till             decimal.Decimal `json:"till"`
		Bank             decimal.Decimal `json:"bank"`
		HomeSafe         decimal.Decimal `json:"home_safe"`
		MobileWallet     decimal.Decimal `json:"mobile_wallet"`
		Custom           []CashRow       `json:"custom,omitempty"`
		PersonalExpenses decimal.Decimal `json:"personal_expenses"` // derived from personal categories
	}

	ProfitReport struct {
		ID                   string              `json:"id"`
		PeriodStart          Date                `json:"period_start"`
		PeriodEnd            Date                `json:"period_end"`
		Matrix               BranchExpenseMatrix `json:"matrix"`
		Kinds                KindMap             `json:"kinds,omitempty"`
		Cash                 CashBreakdown       `json:"cash"`
		OutletExpenses       decimal.Decimal     `json:"outlet_expenses"` // ordinary expenses already paid out of the till
		Totals               Totals              `json:"totals"`
		Comparison           Comparison          `json:"comparison"`
		PriorClosingBalance  decimal.Decimal     `json:"prior_closing_balance"`
		// DerivePriorClosing asks finalization to take PriorClosingBalance from
		// the latest earlier report. Never persisted.
		DerivePriorClosing   bool                `json:"-"`
		IncludedShareholders []string            `json:"included_shareholders"`
		ResultsLockedAt      time.Time           `json:"results_locked_at"`
		CreatedAt            time.Time           `json:"created_at"`
		UpdatedAt            time.Time           `json:"updated_at"`
	}

	Shareholder struct {
		ID             string          `json:"id"`
		Name           string          `json:"name"`
		StakePercent   decimal.Decimal `json:"stake_percent"`
		Balance        decimal.Decimal `json:"balance"`
		InitialBalance decimal.Decimal `json:"initial_balance"`
		CreatedAt      time.Time       `json:"created_at"`
		Removed        bool            `json:"removed,omitempty"`
	}

	// ShareTransaction is one ledger entry. ReportID is empty for manual
	// adjustments. Seq is the application order within the ledger.
	ShareTransaction struct {
		ID                 string            `json:"id"`
		ShareholderID      string            `json:"shareholder_id"`
		ReportID           string            `json:"report_id,omitempty"`
		Seq                int64             `json:"seq"`
		Timestamp          time.Time         `json:"timestamp"`
		FromAmount         decimal.Decimal   `json:"from_amount"`
		ToAmount           decimal.Decimal   `json:"to_amount"`
		Delta              decimal.Decimal   `json:"delta"`
		ReportNetProfit    decimal.Decimal   `json:"report_net_profit"`
		ReportFinalBalance decimal.Decimal   `json:"report_final_balance"`
		Source             TransactionSource `json:"source"`
		Active             bool              `json:"active"`
		Note               string            `json:"note,omitempty"`
	}
)

var (
	ErrInvalidPeriod = errors.New("period end must not be before period start")
	ErrEmptyMatrix   = errors.New("report has no branches")
)

// IsReserved reports whether name is one of the reserved category keys.
func IsReserved(name string) bool {
	_, ok := CanonicalReserved(name)
	return ok
}

// CanonicalReserved maps any spelling of a reserved category key to the key
// the totals read.
func CanonicalReserved(name string) (string, bool) {
	for _, r := range reservedCategories {
		if strings.EqualFold(strings.TrimSpace(name), r) {
			return r, true
		}
	}
	return "", false
}

// ReservedCategories returns the fixed categories in display order.
func ReservedCategories() []Category {
	out := make([]Category, len(reservedCategories))
	for i, name := range reservedCategories {
		out[i] = Category{Name: name, Kind: KindOrdinary, Reserved: true}
	}
	return out
}

// NewCustomCategory builds a user-defined category. Reserved names are rejected
// so free text can never collide with the fixed keys.
func NewCustomCategory(name string, kind CategoryKind) (Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, Invalid("category", ReasonRequired, "")
	}
	if IsReserved(name) {
		return Category{}, Invalid("category", ReasonReservedName, name)
	}
	switch kind {
	case KindOrdinary, KindPersonal:
	case "":
		kind = KindOrdinary
	default:
		return Category{}, Invalid("category kind", ReasonOutOfRange, string(kind))
	}
	return Category{Name: name, Kind: kind}, nil
}

// KindOf returns the kind of a category, defaulting to ordinary.
func (k KindMap) KindOf(name string) CategoryKind {
	if kind, ok := k[name]; ok && kind != "" {
		return kind
	}
	return KindOrdinary
}

// Amount returns matrix[branch][category], zero when missing.
func (m BranchExpenseMatrix) Amount(branch, category string) decimal.Decimal {
	if row, ok := m[branch]; ok {
		if v, ok := row[category]; ok {
			return v
		}
	}
	return decimal.Zero
}

// Set stores an amount, creating the branch row if needed.
func (m BranchExpenseMatrix) Set(branch, category string, amount decimal.Decimal) {
	row, ok := m[branch]
	if !ok {
		row = make(map[string]decimal.Decimal)
		m[branch] = row
	}
	row[category] = amount
}

// Branches returns branch names sorted.
func (m BranchExpenseMatrix) Branches() []string {
	out := make([]string, 0, len(m))
	for b := range m {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Categories returns every category present in any branch, sorted.
func (m BranchExpenseMatrix) Categories() []string {
	seen := map[string]struct{}{}
	for _, row := range m {
		for c := range row {
			seen[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Total is the manual cash total: every sub-balance plus personal expenses.
func (c CashBreakdown) Total() decimal.Decimal {
	total := c.Till.Add(c.Bank).Add(c.HomeSafe).Add(c.MobileWallet).Add(c.PersonalExpenses)
	for _, row := range c.Custom {
		total = total.Add(row.Amount)
	}
	return total
}

// WithPersonal returns a copy carrying the given personal-expense subtotal.
func (c CashBreakdown) WithPersonal(personal decimal.Decimal) CashBreakdown {
	c.Custom = append([]CashRow(nil), c.Custom...)
	c.PersonalExpenses = personal
	return c
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (r ProfitReport) Validate() error {
	if err := r.PeriodStart.Validate(); err != nil {
		return errors.New("invalid period start: " + err.Error())
	}
	if err := r.PeriodEnd.Validate(); err != nil {
		return errors.New("invalid period end: " + err.Error())
	}
	if r.PeriodEnd.Before(r.PeriodStart.Time) {
		return ErrInvalidPeriod
	}
	if len(r.Matrix) == 0 {
		return ErrEmptyMatrix
	}
	return nil
}

// Includes reports whether the shareholder takes part in this report.
func (r ProfitReport) Includes(shareholderID string) bool {
	for _, id := range r.IncludedShareholders {
		if id == shareholderID {
			return true
		}
	}
	return false
}

// IsManual reports whether the entry was a human adjustment.
func (t ShareTransaction) IsManual() bool {
	return t.Source == SourceManual || t.ReportID == ""
}

// Clone returns a copy that shares no maps or slices with r.
func (r ProfitReport) Clone() ProfitReport {
	if r.Matrix != nil {
		m := make(BranchExpenseMatrix, len(r.Matrix))
		for branch, row := range r.Matrix {
			for category, amount := range row {
				m.Set(branch, category, amount)
			}
		}
		r.Matrix = m
	}
	if r.Kinds != nil {
		k := make(KindMap, len(r.Kinds))
		for name, kind := range r.Kinds {
			k[name] = kind
		}
		r.Kinds = k
	}
	r.Cash.Custom = append([]CashRow(nil), r.Cash.Custom...)
	r.IncludedShareholders = append([]string(nil), r.IncludedShareholders...)
	return r
}
