package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.005", "0.005", true},
		{" 2.50 ", "2.5", true},
		{"-12.5", "-12.5", true},
		{"+3", "3", true},
		{".5", "0.5", true},
		{"7.", "7", true},
		{"--1", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1e3", "", false},
		{"", "", false},
		{"-", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
			continue
		}
		if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
		if reason, _ := ReasonOf(err); reason != ReasonNonNumeric {
			t.Fatalf("%q expected non-numeric reason, got %q", tc.in, reason)
		}
	}
}

func TestClampAmount(t *testing.T) {
	cases := []struct {
		in, out string
	}{
		{"-1", "0"},
		{"0", "0"},
		{"12.3456", "12.346"},
		{"999999999999", "999999999999"},
		{"1000000000000", "999999999999"},
	}
	for _, tc := range cases {
		got := ClampAmount(decimal.RequireFromString(tc.in))
		if !got.Equal(decimal.RequireFromString(tc.out)) {
			t.Errorf("ClampAmount(%s) = %s, want %s", tc.in, got, tc.out)
		}
	}
}

func TestClampSignedAmount(t *testing.T) {
	cases := []struct {
		in, out string
	}{
		{"-250.5", "-250.5"},
		{"0", "0"},
		{"-12.3456", "-12.346"},
		{"1000000000000", "999999999999"},
		{"-1000000000000", "-999999999999"},
	}
	for _, tc := range cases {
		got := ClampSignedAmount(decimal.RequireFromString(tc.in))
		if !got.Equal(decimal.RequireFromString(tc.out)) {
			t.Errorf("ClampSignedAmount(%s) = %s, want %s", tc.in, got, tc.out)
		}
	}
}

func TestRoundMoney(t *testing.T) {
	got := RoundMoney(decimal.RequireFromString("901.6393442622950820"))
	if got.StringFixed(2) != "901.64" {
		t.Fatalf("expected 901.64, got %s", got.StringFixed(2))
	}
	got = RoundMoney(decimal.RequireFromString("-0.125"))
	if got.StringFixed(2) != "-0.13" {
		t.Fatalf("expected half away from zero, got %s", got.StringFixed(2))
	}
}
