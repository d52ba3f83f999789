package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"profitshare/internal/core"
	"profitshare/internal/store"
)

// Reports keeps profit reports in process.
type Reports struct {
	mu      sync.Mutex
	reports map[string]core.ProfitReport
	now     func() time.Time
}

// Settings keeps the settings document in process.
type Settings struct {
	mu       sync.Mutex
	settings core.Settings
	now      func() time.Time
}

var (
	_ store.ReportStore   = (*Reports)(nil)
	_ store.SettingsStore = (*Settings)(nil)
)

func NewReports() *Reports {
	return &Reports{
		reports: make(map[string]core.ProfitReport),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NewSettings starts an unsaved (version 0) document holding the reserved
// categories plus the given branches and custom categories.
func NewSettings(branches []string, categories []core.Category) *Settings {
	kinds := core.KindMap{}
	for _, c := range categories {
		kinds[c.Name] = c.Kind
	}
	return &Settings{
		settings: core.Settings{
			Branches:      dedupe(branches),
			Categories:    append(core.ReservedCategories(), categories...),
			CategoryKinds: kinds,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// NewSettingsFromFiles seeds branches and custom categories from seed_branches.txt
// and seed_categories.txt in base. A category line "name:personal" marks a
// personal category; reserved names are skipped.
func NewSettingsFromFiles(base string) *Settings {
	branches := readLines(filepath.Join(base, "seed_branches.txt"))
	if len(branches) == 0 {
		branches = []string{"Main"}
	}
	var categories []core.Category
	for _, line := range readLines(filepath.Join(base, "seed_categories.txt")) {
		name, kind := line, core.KindOrdinary
		if i := strings.LastIndex(line, ":"); i >= 0 {
			name = strings.TrimSpace(line[:i])
			if strings.EqualFold(strings.TrimSpace(line[i+1:]), string(core.KindPersonal)) {
				kind = core.KindPersonal
			}
		}
		c, err := core.NewCustomCategory(name, kind)
		if err != nil {
			continue
		}
		categories = append(categories, c)
	}
	if len(categories) == 0 {
		categories = []core.Category{
			{Name: "Rent", Kind: core.KindOrdinary},
			{Name: "Salaries", Kind: core.KindOrdinary},
			{Name: "Owner drawings", Kind: core.KindPersonal},
		}
	}
	return NewSettings(branches, categories)
}

func (s *Reports) Get(_ context.Context, id string) (core.ProfitReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return core.ProfitReport{}, fmt.Errorf("report %s: %w", id, store.ErrNotFound)
	}
	return r.Clone(), nil
}

func (s *Reports) List(_ context.Context) ([]core.ProfitReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ProfitReport, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PeriodStart.Equal(out[j].PeriodStart.Time) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].PeriodStart.Before(out[j].PeriodStart.Time)
	})
	return out, nil
}

func (s *Reports) Put(_ context.Context, r core.ProfitReport) (core.ProfitReport, error) {
	if err := r.Validate(); err != nil {
		return core.ProfitReport{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if prev, ok := s.reports[r.ID]; ok {
		r.CreatedAt = prev.CreatedAt
	} else if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	s.reports[r.ID] = r.Clone()
	return r, nil
}

func (s *Reports) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[id]; !ok {
		return fmt.Errorf("report %s: %w", id, store.ErrNotFound)
	}
	delete(s.reports, id)
	return nil
}

func (s *Settings) Get(_ context.Context) (core.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSettings(s.settings), nil
}

func (s *Settings) Put(_ context.Context, in core.Settings) (core.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.Version != s.settings.Version {
		return core.Settings{}, fmt.Errorf("save settings at version %d (stored %d): %w",
			in.Version, s.settings.Version, store.ErrVersionConflict)
	}
	in.Version++
	in.SavedAt = s.now()
	s.settings = cloneSettings(in)
	return in, nil
}

func cloneSettings(s core.Settings) core.Settings {
	s.Branches = append([]string(nil), s.Branches...)
	s.Categories = append([]core.Category(nil), s.Categories...)
	s.Shareholders = append([]core.Shareholder(nil), s.Shareholders...)
	s.Ledger = append([]core.ShareTransaction(nil), s.Ledger...)
	s.Cash.Custom = append([]core.CashRow(nil), s.Cash.Custom...)
	if s.CategoryKinds != nil {
		k := make(core.KindMap, len(s.CategoryKinds))
		for name, kind := range s.CategoryKinds {
			k[name] = kind
		}
		s.CategoryKinds = k
	}
	return s
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

// dedupe drops blanks and repeats, preserving input order.
func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
