// Package history records scan runs and their outcomes in SQLite.
package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/raysh454/secscan/internal/logging"
	"github.com/raysh454/secscan/internal/model"
)

//go:embed schema.sql
var schemaFS embed.FS

var (
	ErrScanNotFound = errors.New("scan not found")
	ErrScanExists   = errors.New("scan id already recorded")
)

// Scan statuses beyond the run's own completed/failed.
const (
	StatusRunning  = "running"
	StatusCanceled = "canceled"
)

// Scan is one recorded run.
type Scan struct {
	ID                string    `json:"id"`
	Target            string    `json:"target"`
	Status            string    `json:"status"`
	ExitCode          int       `json:"exit_code"`
	AnyArtifact       bool      `json:"any_artifact_produced"`
	AggregateExitFlag bool      `json:"aggregate_exit_flag"`
	TotalFindings     int       `json:"total_findings"`
	ResultsDir        string    `json:"results_dir"`
	SummaryBlob       string    `json:"summary_blob,omitempty"`
	Config            string    `json:"-"`
	RetentionDays     int       `json:"retention_days"`
	StartedAt         time.Time `json:"started_at"`
	EndedAt           time.Time `json:"ended_at,omitempty"`
}

// ExpiresAt is when the scan falls out of retention. Zero retention never
// expires.
func (s Scan) ExpiresAt() time.Time {
	if s.RetentionDays <= 0 {
		return time.Time{}
	}
	return s.StartedAt.Add(time.Duration(s.RetentionDays) * 24 * time.Hour)
}

// Store is the scan history database.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens (or creates) the database file at path.
func Open(path string, logger logging.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	st, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return st, nil
}

// New applies pragmas and the schema to db.
func New(db *sql.DB, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("failed to set pragma %q: %w", p, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}
	return &Store{db: db, logger: logger.With(logging.F("component", "history"))}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Begin records a scan as running.
func (s *Store) Begin(ctx context.Context, scan Scan) error {
	if scan.Config == "" {
		scan.Config = "{}"
	}
	if scan.StartedAt.IsZero() {
		scan.StartedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scans (id, target, status, results_dir, config, retention_days, started_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO NOTHING`,
		scan.ID, scan.Target, StatusRunning, scan.ResultsDir, scan.Config, scan.RetentionDays, scan.StartedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrScanExists, scan.ID)
	}
	return nil
}

// Exists reports whether id has been recorded.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM scans WHERE id = ? LIMIT 1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup scan: %w", err)
	}
	return true, nil
}

// Finish stores the settled run, its outcomes and the summary blob id. status
// overrides the run's own status when non-empty (e.g. canceled).
func (s *Store) Finish(ctx context.Context, result model.RunResult, status, summaryBlob string, totalFindings int) error {
	if status == "" {
		status = string(result.Status())
	}
	ended := result.EndedAt
	if ended.IsZero() {
		ended = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE scans
         SET status = ?, exit_code = ?, any_artifact = ?, aggregate_exit_flag = ?,
             total_findings = ?, summary_blob = ?, ended_at = ?
         WHERE id = ?`,
		status, result.ExitCode(), result.AnyArtifactProduced, result.AggregateExitFlag,
		totalFindings, nullable(summaryBlob), ended.Unix(), result.ScanID,
	)
	if err != nil {
		return fmt.Errorf("update scan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrScanNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM outcomes WHERE scan_id = ?`, result.ScanID); err != nil {
		return fmt.Errorf("clear outcomes: %w", err)
	}
	for i, o := range result.Outcomes {
		warnings, err := json.Marshal(nonNil(o.Warnings))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO outcomes
                 (scan_id, seq, scanner, language, status, exit_succeeded, exit_code,
                  artifact_path, reason, detail, warnings, started_at, duration_ms)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			result.ScanID, i, string(o.Scanner), o.Language, string(o.Status()), o.ExitSucceeded, o.ExitCode,
			o.OutputArtifactPath, string(o.Reason), o.Detail, string(warnings), o.StartedAt.Unix(), o.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.Name(), err)
		}
	}
	return tx.Commit()
}

const scanColumns = `id, target, status, exit_code, any_artifact, aggregate_exit_flag, total_findings,
       results_dir, summary_blob, config, retention_days, started_at, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (Scan, error) {
	var sc Scan
	var blob sql.NullString
	var started int64
	var ended sql.NullInt64
	err := row.Scan(&sc.ID, &sc.Target, &sc.Status, &sc.ExitCode, &sc.AnyArtifact, &sc.AggregateExitFlag,
		&sc.TotalFindings, &sc.ResultsDir, &blob, &sc.Config, &sc.RetentionDays, &started, &ended)
	if err != nil {
		return sc, err
	}
	sc.SummaryBlob = blob.String
	sc.StartedAt = time.Unix(started, 0).UTC()
	if ended.Valid {
		sc.EndedAt = time.Unix(ended.Int64, 0).UTC()
	}
	return sc, nil
}

// Get returns one scan.
func (s *Store) Get(ctx context.Context, id string) (*Scan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scans WHERE id = ? LIMIT 1`, id)
	sc, err := scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScanNotFound
		}
		return nil, err
	}
	return &sc, nil
}

// List returns scans newest first. limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, limit int) ([]Scan, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scanColumns+` FROM scans ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Scan{}
	for rows.Next() {
		sc, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Outcomes returns the recorded outcomes of a scan in run order. Output tails
// are not persisted.
func (s *Store) Outcomes(ctx context.Context, scanID string) ([]model.ScannerOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scanner, language, exit_succeeded, exit_code, artifact_path, reason, detail,
                warnings, started_at, duration_ms
         FROM outcomes WHERE scan_id = ? ORDER BY seq`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ScannerOutcome{}
	for rows.Next() {
		var o model.ScannerOutcome
		var scanner, reason, warnings string
		var started, durMS int64
		if err := rows.Scan(&scanner, &o.Language, &o.ExitSucceeded, &o.ExitCode, &o.OutputArtifactPath,
			&reason, &o.Detail, &warnings, &started, &durMS); err != nil {
			return nil, err
		}
		o.Scanner = model.ScannerID(scanner)
		o.Reason = model.FailureReason(reason)
		o.OutputArtifactExists = o.OutputArtifactPath != ""
		o.StartedAt = time.Unix(started, 0).UTC()
		o.Duration = time.Duration(durMS) * time.Millisecond
		if err := json.Unmarshal([]byte(warnings), &o.Warnings); err != nil {
			s.logger.Warn("bad warnings column", logging.F("scan_id", scanID), logging.Err(err))
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Expired lists finished scans whose retention window ended before now.
func (s *Store) Expired(ctx context.Context, now time.Time) ([]Scan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scanColumns+` FROM scans
         WHERE status != ? AND retention_days > 0
           AND started_at + retention_days * 86400 < ?
         ORDER BY started_at`,
		StatusRunning, now.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Scan{}
	for rows.Next() {
		sc, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Delete removes a scan and its outcomes.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM outcomes WHERE scan_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM scans WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrScanNotFound
	}
	return tx.Commit()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
