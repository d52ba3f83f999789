package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Totals is the derived period rollup. It is recomputed from report inputs
// and never persisted on its own.
type Totals struct {
	TotalStores           decimal.Decimal `json:"total_stores"`
	TotalOrdinaryExpenses decimal.Decimal `json:"total_ordinary_expenses"`
	TotalProfits          decimal.Decimal `json:"total_profits"`
	PersonalExpenses      decimal.Decimal `json:"personal_expenses"`
	FinalBalance          decimal.Decimal `json:"final_balance"`
	NetProfit             decimal.Decimal `json:"net_profit"`
}

// Comparison is the month-over-month signal that drives distribution.
type Comparison struct {
	CompareLastMonth  decimal.Decimal `json:"compare_last_month"`
	PerUnitProfitRate decimal.Decimal `json:"per_unit_profit_rate"`
}

// Settings is the single persisted document holding everything that is not
// a report: roster, ledger and the period-entry catalog.
type Settings struct {
	Branches      []string           `json:"branches"`
	Categories    []Category         `json:"categories"`
	Shareholders  []Shareholder      `json:"shareholders"`
	Ledger        []ShareTransaction `json:"ledger"`
	CategoryKinds KindMap            `json:"category_kinds"`
	Cash          CashBreakdown      `json:"cash"`
	Version       int64              `json:"version"`
	SavedAt       time.Time          `json:"saved_at"`
}
