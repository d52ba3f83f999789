package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"profitshare/internal/core"
	"profitshare/internal/store"
)

func sampleReport(start core.Date) core.ProfitReport {
	m := core.BranchExpenseMatrix{}
	m.Set("Main", core.CategoryStores, decimal.NewFromInt(1000))
	return core.ProfitReport{PeriodStart: start, PeriodEnd: start, Matrix: m}
}

func TestReportsPutGetListDelete(t *testing.T) {
	ctx := context.Background()
	s := NewReports()

	feb, err := s.Put(ctx, sampleReport(core.NewDate(2025, 2, 1)))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if feb.ID == "" || feb.CreatedAt.IsZero() || feb.UpdatedAt.IsZero() {
		t.Fatalf("put must assign id and timestamps: %+v", feb)
	}
	jan, _ := s.Put(ctx, sampleReport(core.NewDate(2025, 1, 1)))

	list, err := s.List(ctx)
	if err != nil || len(list) != 2 || list[0].ID != jan.ID {
		t.Fatalf("list must be ordered by period start: %+v err=%v", list, err)
	}

	got, err := s.Get(ctx, feb.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Matrix.Set("Main", core.CategoryStores, decimal.NewFromInt(1))
	again, _ := s.Get(ctx, feb.ID)
	if !again.Matrix.Amount("Main", core.CategoryStores).Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("stored report must not alias caller maps")
	}

	if err := s.Delete(ctx, feb.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, feb.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, feb.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestReportsPutRejectsInvalid(t *testing.T) {
	r := sampleReport(core.NewDate(2025, 2, 1))
	r.Matrix = nil
	if _, err := NewReports().Put(context.Background(), r); !errors.Is(err, core.ErrEmptyMatrix) {
		t.Fatalf("expected ErrEmptyMatrix, got %v", err)
	}
}

func TestSettingsVersioning(t *testing.T) {
	ctx := context.Background()
	s := NewSettings([]string{"Main", "Main", "North"}, nil)

	cur, _ := s.Get(ctx)
	if cur.Version != 0 || len(cur.Branches) != 2 {
		t.Fatalf("unexpected initial settings %+v", cur)
	}
	saved, err := s.Put(ctx, cur)
	if err != nil || saved.Version != 1 || saved.SavedAt.IsZero() {
		t.Fatalf("put: %+v err=%v", saved, err)
	}
	if _, err := s.Put(ctx, cur); !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("stale write must conflict, got %v", err)
	}
}

func TestNewSettingsFromFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// No files -> defaults
	got, _ := NewSettingsFromFiles(dir).Get(ctx)
	if len(got.Branches) == 0 || len(got.Categories) <= len(core.ReservedCategories()) {
		t.Fatalf("expected defaults when files missing: %+v", got)
	}

	mustWrite := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	mustWrite("seed_branches.txt", "# header\nNorth\nSouth\nNorth\n\n")
	mustWrite("seed_categories.txt", "Rent\nDrawings:personal\nstores\n")

	got, _ = NewSettingsFromFiles(dir).Get(ctx)
	if len(got.Branches) != 2 || got.Branches[0] != "North" {
		t.Fatalf("unexpected branches %v", got.Branches)
	}
	if got.CategoryKinds.KindOf("Drawings") != core.KindPersonal || got.CategoryKinds.KindOf("Rent") != core.KindOrdinary {
		t.Fatalf("unexpected kinds %v", got.CategoryKinds)
	}
	if want := len(core.ReservedCategories()) + 2; len(got.Categories) != want {
		t.Fatalf("reserved names in the seed file must be skipped: %+v", got.Categories)
	}
}
