// Package ledger is the per-shareholder append/amend transaction log.
//
// Report-derived entries are keyed by (shareholder, report): applying the same
// report again amends the existing entry instead of adding a new one. Manual
// adjustments are always appended. Every write gets a fresh sequence number,
// so Seq orders entries by when they were last applied, not by the period
// they refer to.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"profitshare/internal/core"
)

// reportIDSeparators delimit legacy sub-report suffixes ("<id>_<n>", "<id>#<n>").
const reportIDSeparators = "_#"

var (
	ErrMissingShareholder = errors.New("ledger entry has no shareholder")
	ErrMissingReport      = errors.New("report entry has no report id")
	ErrDuplicateEntry     = errors.New("duplicate ledger entry for shareholder and report")
)

type Ledger struct {
	mu      sync.Mutex
	entries []core.ShareTransaction
	index   map[string]int // shareholder+report -> position in entries
	seq     int64
	now     func() time.Time
}

func New() *Ledger {
	return &Ledger{
		index: make(map[string]int),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the timestamp source. Intended for tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

// NormalizeReportID truncates an id at its first separator so legacy and
// sub-report ids compare equal to their parent report.
func NormalizeReportID(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.IndexAny(id, reportIDSeparators); i >= 0 {
		return id[:i]
	}
	return id
}

// IsCanonicalReportID reports whether id is its own ledger key. Ids with
// surrounding space or a sub-report separator share a key with another id.
func IsCanonicalReportID(id string) bool {
	return id != "" && NormalizeReportID(id) == id
}

func key(shareholderID, reportID string) string {
	return shareholderID + "\x00" + NormalizeReportID(reportID)
}

// Find returns the entry for (shareholder, report), if any.
func (l *Ledger) Find(shareholderID, reportID string) (core.ShareTransaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[key(shareholderID, reportID)]
	if !ok {
		return core.ShareTransaction{}, false
	}
	return l.entries[i], true
}

// BalanceBefore returns the ToAmount of the most recently applied entry for
// the shareholder that does not belong to reportID. Manual entries count.
// When there is none, fallback (the initial balance) is returned.
func (l *Ledger) BalanceBefore(shareholderID, reportID string, fallback decimal.Decimal) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	target := NormalizeReportID(reportID)
	var (
		latest int64 = -1
		amount       = fallback
	)
	for _, e := range l.entries {
		if e.ShareholderID != shareholderID {
			continue
		}
		if !e.IsManual() && NormalizeReportID(e.ReportID) == target {
			continue
		}
		if e.Seq > latest {
			latest = e.Seq
			amount = e.ToAmount
		}
	}
	return amount
}

// Upsert writes a report-derived entry, amending the existing one for the
// same (shareholder, report) in place. The stored entry keeps its id and is
// moved to the head of the application order.
func (l *Ledger) Upsert(tx core.ShareTransaction) (core.ShareTransaction, error) {
	if tx.ShareholderID == "" {
		return core.ShareTransaction{}, ErrMissingShareholder
	}
	if NormalizeReportID(tx.ReportID) == "" {
		return core.ShareTransaction{}, ErrMissingReport
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx.Source = core.SourceAuto
	l.seq++
	tx.Seq = l.seq
	tx.Timestamp = l.now()

	k := key(tx.ShareholderID, tx.ReportID)
	if i, ok := l.index[k]; ok {
		tx.ID = l.entries[i].ID
		l.entries[i] = tx
		return tx, nil
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	l.entries = append(l.entries, tx)
	l.index[k] = len(l.entries) - 1
	return tx, nil
}

// Append records a manual adjustment. Manual entries are never amended.
func (l *Ledger) Append(tx core.ShareTransaction) (core.ShareTransaction, error) {
	if tx.ShareholderID == "" {
		return core.ShareTransaction{}, ErrMissingShareholder
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx.ReportID = ""
	tx.Source = core.SourceManual
	tx.Active = true
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	l.seq++
	tx.Seq = l.seq
	tx.Timestamp = l.now()
	l.entries = append(l.entries, tx)
	return tx, nil
}

// HistoryFor returns a shareholder's entries in application order.
func (l *Ledger) HistoryFor(shareholderID string) []core.ShareTransaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []core.ShareTransaction
	for _, e := range l.entries {
		if e.ShareholderID == shareholderID {
			out = append(out, e)
		}
	}
	sortBySeq(out)
	return out
}

// HasHistory reports whether any entry exists for the shareholder.
func (l *Ledger) HasHistory(shareholderID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.ShareholderID == shareholderID {
			return true
		}
	}
	return false
}

// EntriesForReport returns every entry referencing the report.
func (l *Ledger) EntriesForReport(reportID string) []core.ShareTransaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	target := NormalizeReportID(reportID)
	var out []core.ShareTransaction
	for _, e := range l.entries {
		if !e.IsManual() && NormalizeReportID(e.ReportID) == target {
			out = append(out, e)
		}
	}
	sortBySeq(out)
	return out
}

// Snapshot copies all entries in application order.
func (l *Ledger) Snapshot() []core.ShareTransaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]core.ShareTransaction(nil), l.entries...)
	sortBySeq(out)
	return out
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Restore replaces the ledger with persisted entries. Entries without a
// sequence number (older documents) are ordered as given.
func (l *Ledger) Restore(entries []core.ShareTransaction) error {
	index := make(map[string]int, len(entries))
	restored := make([]core.ShareTransaction, 0, len(entries))
	var seq int64
	for _, e := range entries {
		if e.Seq > seq {
			seq = e.Seq
		}
	}
	for _, e := range entries {
		if e.ShareholderID == "" {
			return ErrMissingShareholder
		}
		if e.Seq == 0 {
			seq++
			e.Seq = seq
		}
		if !e.IsManual() {
			k := key(e.ShareholderID, e.ReportID)
			if _, dup := index[k]; dup {
				return fmt.Errorf("restore %s/%s: %w", e.ShareholderID, e.ReportID, ErrDuplicateEntry)
			}
			index[k] = len(restored)
		}
		restored = append(restored, e)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = restored
	l.index = index
	l.seq = seq
	return nil
}

func sortBySeq(entries []core.ShareTransaction) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
}
