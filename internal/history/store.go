// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history records finished research runs in SQLite so a partner
// can list, reopen, and export earlier reports.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/bd-research/pkg/types"
)

const (
	dbFile            = "history.db"
	defaultMaxResults = 20
)

// ErrNotFound is returned when no run has the requested ID.
var ErrNotFound = errors.New("run not found")

// Store manages the run history database.
type Store struct {
	db         *sql.DB
	dir        string
	maxResults int
}

// NewStore opens or creates dir/history.db and its schema.
func NewStore(cfg types.HistoryConfig) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "history"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, dbFile)+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, dir: dir, maxResults: defaultMaxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the directory holding the database and exports.
func (s *Store) Dir() string { return s.dir }

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			generated_at TEXT NOT NULL,
			sector TEXT NOT NULL,
			company TEXT,
			trigger_summary TEXT,
			opportunities INTEGER NOT NULL,
			degraded INTEGER NOT NULL,
			duration_ms INTEGER,
			report TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_generated_at ON runs(generated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_sector ON runs(sector)`,
		`CREATE TABLE IF NOT EXISTS trace_entries (
			run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			step TEXT NOT NULL,
			message TEXT,
			at TEXT,
			PRIMARY KEY (run_id, seq)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record stores report and its trace, replacing any earlier record with the
// same run ID.
func (s *Store) Record(ctx context.Context, report types.FinalReport) error {
	if report.RunID == "" {
		return errors.New("recording run: report has no run ID")
	}
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trace_entries WHERE run_id = ?`, report.RunID); err != nil {
		return fmt.Errorf("deleting old trace: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, generated_at, sector, company, trigger_summary, opportunities, degraded, duration_ms, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
			generated_at=excluded.generated_at, sector=excluded.sector, company=excluded.company,
			trigger_summary=excluded.trigger_summary, opportunities=excluded.opportunities,
			degraded=excluded.degraded, duration_ms=excluded.duration_ms, report=excluded.report`,
		report.RunID, report.GeneratedAt.UTC().Format(time.RFC3339Nano),
		report.Trigger.Sector, report.Trigger.Company, report.TriggerSummary,
		len(report.TopOpportunities), report.Degraded, report.Trace.Duration.Milliseconds(),
		string(body),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trace_entries (run_id, seq, step, message, at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range report.Trace.Entries {
		_, err := stmt.ExecContext(ctx, report.RunID, i, e.Step, e.Message, e.At.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("inserting trace entry %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Get returns the full report of one run.
func (s *Store) Get(ctx context.Context, runID string) (types.FinalReport, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM runs WHERE run_id = ?`, runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return types.FinalReport{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return types.FinalReport{}, fmt.Errorf("looking up run: %w", err)
	}

	var report types.FinalReport
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return types.FinalReport{}, fmt.Errorf("decoding run %s: %w", runID, err)
	}
	return report, nil
}

// Trace returns the recorded trace entries of one run in order.
func (s *Store) Trace(ctx context.Context, runID string) ([]types.TraceEntry, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM runs WHERE run_id = ?`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("looking up run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT step, message, at FROM trace_entries WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying trace: %w", err)
	}
	defer rows.Close()

	var entries []types.TraceEntry
	for rows.Next() {
		var (
			e   types.TraceEntry
			msg sql.NullString
			at  sql.NullString
		)
		if err := rows.Scan(&e.Step, &msg, &at); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		e.Message = msg.String
		if at.Valid {
			e.At, _ = time.Parse(time.RFC3339Nano, at.String)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
