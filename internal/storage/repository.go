package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"profitshare/internal/core"
	"profitshare/internal/store"

	_ "modernc.org/sqlite"
)

const (
	dateLayout = "2006-01-02"
	settingsID = 1
)

// SQLiteRepository stores reports in the reports table and exposes the
// settings document through Settings().
type SQLiteRepository struct {
	db       *sql.DB
	settings *SettingsTable
	now      func() time.Time
}

// SettingsTable is the single-row settings store.
type SettingsTable struct {
	repo *SQLiteRepository
}

var (
	_ store.ReportStore   = (*SQLiteRepository)(nil)
	_ store.SettingsStore = (*SettingsTable)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	repo.settings = &SettingsTable{repo: repo}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Settings returns the settings store sharing this repository's connection.
func (r *SQLiteRepository) Settings() *SettingsTable {
	return r.settings
}

// Get implements store.ReportStore
func (r *SQLiteRepository) Get(ctx context.Context, id string) (core.ProfitReport, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM reports WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ProfitReport{}, fmt.Errorf("report %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return core.ProfitReport{}, fmt.Errorf("get report: %w", err)
	}
	return decodeReport(payload)
}

// List implements store.ReportStore
func (r *SQLiteRepository) List(ctx context.Context) ([]core.ProfitReport, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT payload FROM reports ORDER BY period_start, created_at`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []core.ProfitReport
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		report, err := decodeReport(payload)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return reports, nil
}

// Put implements store.ReportStore
func (r *SQLiteRepository) Put(ctx context.Context, report core.ProfitReport) (core.ProfitReport, error) {
	if err := report.Validate(); err != nil {
		return core.ProfitReport{}, err
	}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.ProfitReport{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := r.now()
	var createdAt string
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM reports WHERE id = ?`, report.ID).Scan(&createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if report.CreatedAt.IsZero() {
			report.CreatedAt = now
		}
	case err != nil:
		return core.ProfitReport{}, fmt.Errorf("read report: %w", err)
	default:
		if t, perr := time.Parse(time.RFC3339Nano, createdAt); perr == nil {
			report.CreatedAt = t
		}
	}
	report.UpdatedAt = now

	payload, err := json.Marshal(report)
	if err != nil {
		return core.ProfitReport{}, fmt.Errorf("encode report: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reports (id, period_start, period_end, final_balance, net_profit, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			period_start = excluded.period_start,
			period_end = excluded.period_end,
			final_balance = excluded.final_balance,
			net_profit = excluded.net_profit,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		report.ID,
		report.PeriodStart.Format(dateLayout),
		report.PeriodEnd.Format(dateLayout),
		report.Totals.FinalBalance.String(),
		report.Totals.NetProfit.String(),
		string(payload),
		report.CreatedAt.UTC().Format(time.RFC3339Nano),
		report.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return core.ProfitReport{}, fmt.Errorf("upsert report: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.ProfitReport{}, fmt.Errorf("commit report: %w", err)
	}

	slog.InfoContext(ctx, "Report saved to SQLite",
		"id", report.ID,
		"period_start", report.PeriodStart.Format(dateLayout),
		"final_balance", report.Totals.FinalBalance.String())

	return report, nil
}

// Delete implements store.ReportStore
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("report %s: %w", id, store.ErrNotFound)
	}
	slog.InfoContext(ctx, "Report deleted from SQLite", "id", id)
	return nil
}

// Get implements store.SettingsStore
func (s *SettingsTable) Get(ctx context.Context) (core.Settings, error) {
	var (
		payload string
		version int64
	)
	err := s.repo.db.QueryRowContext(ctx,
		`SELECT version, payload FROM settings WHERE id = ?`, settingsID).Scan(&version, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		// never saved: reserved categories only, version 0
		return core.Settings{Categories: core.ReservedCategories(), CategoryKinds: core.KindMap{}}, nil
	}
	if err != nil {
		return core.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	var out core.Settings
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return core.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	out.Version = version
	return out, nil
}

// Put implements store.SettingsStore
func (s *SettingsTable) Put(ctx context.Context, in core.Settings) (core.Settings, error) {
	tx, err := s.repo.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Settings{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var stored int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM settings WHERE id = ?`, settingsID).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return core.Settings{}, fmt.Errorf("read settings version: %w", err)
	}
	if in.Version != stored {
		return core.Settings{}, fmt.Errorf("save settings at version %d (stored %d): %w",
			in.Version, stored, store.ErrVersionConflict)
	}

	out := in
	out.Version = stored + 1
	out.SavedAt = s.repo.now()
	payload, err := json.Marshal(out)
	if err != nil {
		return core.Settings{}, fmt.Errorf("encode settings: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO settings (id, version, payload, saved_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			payload = excluded.payload,
			saved_at = excluded.saved_at`,
		settingsID, out.Version, string(payload), out.SavedAt.Format(time.RFC3339Nano))
	if err != nil {
		return core.Settings{}, fmt.Errorf("write settings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Settings{}, fmt.Errorf("commit settings: %w", err)
	}

	slog.InfoContext(ctx, "Settings saved to SQLite",
		"version", out.Version,
		"shareholders", len(out.Shareholders),
		"ledger_entries", len(out.Ledger))
	return out, nil
}

func decodeReport(payload string) (core.ProfitReport, error) {
	var r core.ProfitReport
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return core.ProfitReport{}, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}
