package accounting

import (
	"testing"

	"github.com/shopspring/decimal"

	"profitshare/internal/core"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeTotals_FinalBalance(t *testing.T) {
	m := core.BranchExpenseMatrix{}
	m.Set("north", core.CategoryStores, d("60000"))
	m.Set("south", core.CategoryStores, d("40000"))
	m.Set("north", core.CategoryDebtOwedToUs, d("5000"))
	m.Set("south", core.CategoryDebtOwedByUs, d("3000"))

	got := ComputeTotals(TotalsInput{Matrix: m, ManualCashTotal: d("20000")})

	if !got.TotalStores.Equal(d("100000")) {
		t.Errorf("TotalStores = %s, want 100000", got.TotalStores)
	}
	if !got.FinalBalance.Equal(d("122000")) {
		t.Errorf("FinalBalance = %s, want 122000", got.FinalBalance)
	}
}

func TestComputeTotals_NetProfit(t *testing.T) {
	m := core.BranchExpenseMatrix{}
	m.Set("north", core.CategoryProfit, d("30000"))
	m.Set("south", core.CategoryProfit, d("20000"))
	m.Set("north", "rent", d("20000"))
	m.Set("south", "wages", d("12000"))
	m.Set("south", "family", d("900"))

	got := ComputeTotals(TotalsInput{
		Matrix:         m,
		Kinds:          core.KindMap{"family": core.KindPersonal},
		OutletExpenses: d("2000"),
	})

	if !got.TotalProfits.Equal(d("50000")) {
		t.Errorf("TotalProfits = %s, want 50000", got.TotalProfits)
	}
	if !got.TotalOrdinaryExpenses.Equal(d("30000")) {
		t.Errorf("TotalOrdinaryExpenses = %s, want 30000", got.TotalOrdinaryExpenses)
	}
	if !got.PersonalExpenses.Equal(d("900")) {
		t.Errorf("PersonalExpenses = %s, want 900", got.PersonalExpenses)
	}
	if !got.NetProfit.Equal(d("20000")) {
		t.Errorf("NetProfit = %s, want 20000", got.NetProfit)
	}
}

func TestComputeTotals_ReservedNeverCountAsExpenses(t *testing.T) {
	m := core.BranchExpenseMatrix{"main": {
		core.CategoryStores:       d("10"),
		core.CategoryProfit:       d("10"),
		core.CategoryDebtOwedToUs: d("10"),
		core.CategoryDebtOwedByUs: d("10"),
	}}
	got := ComputeTotals(TotalsInput{Matrix: m, Kinds: core.KindMap{core.CategoryStores: core.KindPersonal}})
	if !got.TotalOrdinaryExpenses.IsZero() || !got.PersonalExpenses.IsZero() {
		t.Fatalf("reserved categories leaked into expenses: %+v", got)
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name         string
		final, prior string
		wantDelta    string
		wantRate     string
	}{
		{"growth", "122000", "100000", "22000", "0.18033"},
		{"decline", "80000", "100000", "-20000", "-0.25"},
		{"zero final balance", "0", "5000", "-5000", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compare(core.Totals{FinalBalance: d(tt.final)}, d(tt.prior))
			if !got.CompareLastMonth.Equal(d(tt.wantDelta)) {
				t.Errorf("delta = %s, want %s", got.CompareLastMonth, tt.wantDelta)
			}
			if !got.PerUnitProfitRate.Round(5).Equal(d(tt.wantRate)) {
				t.Errorf("rate = %s, want ~%s", got.PerUnitProfitRate, tt.wantRate)
			}
		})
	}
}

func TestRecompute(t *testing.T) {
	r := core.ProfitReport{
		Matrix: core.BranchExpenseMatrix{"main": {
			core.CategoryStores: d("100000"),
			"family":            d("500"),
		}},
		Kinds:               core.KindMap{"family": core.KindPersonal},
		Cash:                core.CashBreakdown{Till: d("19500")},
		PriorClosingBalance: d("100000"),
	}
	Recompute(&r)

	if !r.Cash.PersonalExpenses.Equal(d("500")) {
		t.Fatalf("personal expenses not folded into cash: %s", r.Cash.PersonalExpenses)
	}
	if !r.Totals.FinalBalance.Equal(d("120000")) {
		t.Fatalf("FinalBalance = %s, want 120000", r.Totals.FinalBalance)
	}
	if !r.Comparison.CompareLastMonth.Equal(d("20000")) {
		t.Fatalf("CompareLastMonth = %s, want 20000", r.Comparison.CompareLastMonth)
	}
}
