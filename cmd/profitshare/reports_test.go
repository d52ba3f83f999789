package main

import (
	"testing"
)

func TestParseReportPriorClosing(t *testing.T) {
	const base = `"period_start":"2025-02-01T00:00:00Z","period_end":"2025-02-28T00:00:00Z","matrix":{"Main":{"stores":"100"}}`
	tests := []struct {
		name       string
		doc        string
		wantDerive bool
		wantPrior  string
	}{
		{"omitted", `{` + base + `}`, true, "0"},
		{"explicit zero", `{` + base + `,"prior_closing_balance":"0"}`, false, "0"},
		{"negative", `{` + base + `,"prior_closing_balance":"-250.50"}`, false, "-250.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := parseReport([]byte(tt.doc))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if report.DerivePriorClosing != tt.wantDerive {
				t.Errorf("DerivePriorClosing = %v, want %v", report.DerivePriorClosing, tt.wantDerive)
			}
			if report.PriorClosingBalance.String() != tt.wantPrior {
				t.Errorf("prior closing = %s, want %s", report.PriorClosingBalance, tt.wantPrior)
			}
		})
	}
}

func TestParseReportRejectsUnknownFields(t *testing.T) {
	if _, err := parseReport([]byte(`{"period_start":"2025-02-01T00:00:00Z","colour":"red"}`)); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}
