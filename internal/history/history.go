// Package history keeps a SQLite ledger of job runs and their summaries.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"fdreport/internal/output"
	"fdreport/internal/report"
)

// Run statuses.
const (
	StatusOK        = "ok"
	StatusNoReports = "no_reports"
	StatusFailed    = "failed"
)

// timeLayout sorts lexically in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run is one row of the runs table.
type Run struct {
	ID           string
	SlotDate     string
	SlotHour     string
	StartedAt    time.Time
	FinishedAt   time.Time
	Files        int
	MergedRows   int
	FilteredRows int
	DedupedRows  int
	DetailRows   int
	Parts        int
	UpdatedCells int64
	Status       string
	Error        string
}

// NewRunID returns a random run id.
func NewRunID() string {
	return uuid.NewString()
}

// ApplyStats copies the pipeline counts into r.
func (r *Run) ApplyStats(s report.Stats) {
	r.Files = s.Files
	r.MergedRows = s.Merged
	r.FilteredRows = s.Filtered
	r.DedupedRows = s.Deduped
	r.DetailRows = s.Detail
	r.Parts = s.Parts
}

// Store is an open ledger database.
type Store struct {
	db *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		slot_date TEXT NOT NULL,
		slot_hour TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		files INTEGER,
		merged_rows INTEGER,
		filtered_rows INTEGER,
		deduped_rows INTEGER,
		detail_rows INTEGER,
		parts INTEGER,
		updated_cells INTEGER,
		status TEXT NOT NULL,
		error TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS summary_rows (
		run_id TEXT NOT NULL,
		hub_name TEXT NOT NULL,
		l3 TEXT,
		l2 TEXT,
		l1 TEXT,
		reason TEXT NOT NULL,
		count INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_summary_rows_run ON summary_rows(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_summary_rows_hub ON summary_rows(hub_name)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
}

var detailIndexes = map[string]string{
	report.ColTrackingID: `CREATE INDEX IF NOT EXISTS idx_detail_rows_tracking ON detail_rows(vendor_tracking_id)`,
	report.ColHub:        `CREATE INDEX IF NOT EXISTS idx_detail_rows_hub ON detail_rows(hub_name)`,
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init history schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a run and, when summary is not nil, its non-zero counts.
func (s *Store) Record(ctx context.Context, run Run, summary *report.Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (
		run_id, slot_date, slot_hour, started_at, finished_at, files, merged_rows, filtered_rows,
		deduped_rows, detail_rows, parts, updated_cells, status, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SlotDate, run.SlotHour,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
		run.Files, run.MergedRows, run.FilteredRows, run.DedupedRows, run.DetailRows, run.Parts,
		run.UpdatedCells, run.Status, nullable(run.Error),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if summary != nil && len(summary.Rows) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO summary_rows (run_id, hub_name, l3, l2, l1, reason, count) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, row := range summary.Rows {
			for i, reason := range summary.Reasons {
				if row.Counts[i] == 0 {
					continue
				}
				if _, err := stmt.ExecContext(ctx, run.ID, row.Hub, row.L3, row.L2, row.L1, reason, row.Counts[i]); err != nil {
					return fmt.Errorf("insert summary row: %w", err)
				}
			}
		}
	}
	return tx.Commit()
}

// ExportDetail replaces the detail_rows table with the rows of df, every column as TEXT.
func (s *Store) ExportDetail(ctx context.Context, runID string, df dataframe.DataFrame) error {
	if df.Err != nil {
		return df.Err
	}
	cols := df.Names()
	names := detailColumns(cols)
	defs := []string{`"run_id" TEXT`}
	qCols := []string{`"run_id"`}
	for _, n := range names {
		defs = append(defs, quoteIdent(n)+" TEXT")
		qCols = append(qCols, quoteIdent(n))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS "detail_rows"`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `CREATE TABLE "detail_rows" (`+strings.Join(defs, ",")+`)`); err != nil {
		return err
	}
	ph := strings.TrimRight(strings.Repeat("?,", len(qCols)), ",")
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO "detail_rows" (`+strings.Join(qCols, ",")+`) VALUES (`+ph+`)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	data := make([][]string, len(cols))
	for i, c := range cols {
		data[i] = output.Column(df, c)
	}
	for r := 0; r < df.Nrow(); r++ {
		args := make([]any, 0, len(qCols))
		args = append(args, runID)
		for c := range cols {
			args = append(args, data[c][r])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert detail row %d: %w", r, err)
		}
	}
	for col, idx := range detailIndexes {
		if !slices.Contains(names, col) {
			continue
		}
		if _, err := tx.ExecContext(ctx, idx); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// detailColumns maps frame columns to table columns. SQLite compares
// identifiers case-insensitively, so a clash with run_id or an earlier
// column gets a numeric suffix.
func detailColumns(cols []string) []string {
	used := map[string]bool{"run_id": true}
	out := make([]string, len(cols))
	for i, c := range cols {
		name := c
		for n := 2; used[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s_%d", c, n)
		}
		used[strings.ToLower(name)] = true
		out[i] = name
	}
	return out
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Recent returns up to n runs, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, slot_date, slot_hour, started_at, finished_at, files,
		merged_rows, filtered_rows, deduped_rows, detail_rows, parts, updated_cells, status, COALESCE(error, '')
		FROM runs ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.SlotDate, &r.SlotHour, &started, &finished, &r.Files,
			&r.MergedRows, &r.FilteredRows, &r.DedupedRows, &r.DetailRows, &r.Parts, &r.UpdatedCells,
			&r.Status, &r.Error); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(timeLayout, started)
		r.FinishedAt, _ = time.Parse(timeLayout, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SummaryCounts returns reason -> count of one hub in a run.
func (s *Store) SummaryCounts(ctx context.Context, runID, hub string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT reason, SUM(count) FROM summary_rows WHERE run_id = ? AND hub_name = ? GROUP BY reason`, runID, hub)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		out[reason] = n
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
