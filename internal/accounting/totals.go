// Package accounting turns a period's branch matrix and cash count into the
// derived Totals and the month-over-month comparison that drives
// distribution. Everything here is pure; inputs are assumed pre-validated.
package accounting

import (
	"github.com/shopspring/decimal"

	"profitshare/internal/core"
)

// TotalsInput carries one period's raw inputs.
type TotalsInput struct {
	Matrix          core.BranchExpenseMatrix
	ManualCashTotal decimal.Decimal
	Kinds           core.KindMap
	// OutletExpenses is the part of ordinary expenses already paid out of the
	// till, hence already inside ManualCashTotal.
	OutletExpenses decimal.Decimal
}

// SumByCategory totals each category across branches.
func SumByCategory(m core.BranchExpenseMatrix) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal)
	for _, row := range m {
		for category, amount := range row {
			sums[category] = sums[category].Add(amount)
		}
	}
	return sums
}

// ComputeTotals aggregates the matrix and cash total into period Totals.
func ComputeTotals(in TotalsInput) core.Totals {
	sums := SumByCategory(in.Matrix)
	get := func(category string) decimal.Decimal {
		return sums[category]
	}

	personal := decimal.Zero
	ordinary := decimal.Zero
	for category, amount := range sums {
		if core.IsReserved(category) {
			continue
		}
		if in.Kinds.KindOf(category) == core.KindPersonal {
			personal = personal.Add(amount)
			continue
		}
		ordinary = ordinary.Add(amount)
	}
	ordinary = ordinary.Sub(in.OutletExpenses)

	t := core.Totals{
		TotalStores:           get(core.CategoryStores),
		TotalOrdinaryExpenses: ordinary,
		TotalProfits:          get(core.CategoryProfit),
		PersonalExpenses:      personal,
	}
	t.FinalBalance = t.TotalStores.
		Add(in.ManualCashTotal).
		Add(get(core.CategoryDebtOwedToUs)).
		Sub(get(core.CategoryDebtOwedByUs))
	t.NetProfit = t.TotalProfits.Sub(t.TotalOrdinaryExpenses)
	return t
}

// Compare derives the month-over-month delta and per-unit profit rate.
// A zero final balance yields a zero rate.
func Compare(t core.Totals, priorClosing decimal.Decimal) core.Comparison {
	delta := t.FinalBalance.Sub(priorClosing)
	rate := decimal.Zero
	if !t.FinalBalance.IsZero() {
		rate = delta.DivRound(t.FinalBalance, core.RatePlaces)
	}
	return core.Comparison{CompareLastMonth: delta, PerUnitProfitRate: rate}
}

// Recompute refreshes a report's derived fields from its inputs: the
// personal-expense subtotal is folded into the cash breakdown first, then
// Totals and Comparison are rebuilt from the resulting cash total.
func Recompute(r *core.ProfitReport) {
	in := TotalsInput{
		Matrix:         r.Matrix,
		Kinds:          r.Kinds,
		OutletExpenses: r.OutletExpenses,
	}
	personal := ComputeTotals(in).PersonalExpenses
	r.Cash = r.Cash.WithPersonal(personal)
	in.ManualCashTotal = r.Cash.Total()
	r.Totals = ComputeTotals(in)
	r.Comparison = Compare(r.Totals, r.PriorClosingBalance)
}
