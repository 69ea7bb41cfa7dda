// Package history persists run results and scan findings in a local
// sqlite database, so operators can compare today's posture with last
// week's.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"opshub.dev/opshub/internal/clock"
	"opshub.dev/opshub/internal/logging"
	"opshub.dev/opshub/internal/report"
)

// Run is one recorded command execution.
type Run struct {
	ID        int64     `json:"id"`
	Command   string    `json:"command"` // subcommand name
	Target    string    `json:"target,omitempty"`
	Summary   string    `json:"summary"`
	OK        bool      `json:"ok"`
	Details   any       `json:"details,omitempty"` // full result, JSON encoded
	StartedAt time.Time `json:"started_at"`
}

// Finding is one observed open port, tracked across scans.
type Finding struct {
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Service   string    `json:"service,omitempty"`
	Banner    string    `json:"banner,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Runs renders the run log table.
type Runs []Run

// Headers implements report.Result.
func (Runs) Headers() []string {
	return []string{"ID", "WHEN", "COMMAND", "TARGET", "OK", "SUMMARY"}
}

// Rows implements report.Result.
func (rs Runs) Rows() [][]string {
	rows := make([][]string, 0, len(rs))
	for _, r := range rs {
		ok := "yes"
		if !r.OK {
			ok = "no"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", r.ID),
			r.StartedAt.Format(time.RFC3339),
			r.Command,
			r.Target,
			ok,
			r.Summary,
		})
	}
	return rows
}

var _ report.Result = (Runs)(nil)

// Store is the sqlite-backed history database.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	logger *logging.Logger
}

// Open creates or opens the history database at path.
func Open(logger *logging.Logger, path string) (*Store, error) {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.WithComponent("history"),
	}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at DATETIME NOT NULL,
	command TEXT NOT NULL,
	target TEXT,
	summary TEXT,
	ok INTEGER NOT NULL DEFAULT 1,
	details TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_command ON runs(command);

CREATE TABLE IF NOT EXISTS scan_findings (
	host TEXT NOT NULL,
	port INTEGER NOT NULL,
	service TEXT,
	banner TEXT,
	first_seen DATETIME NOT NULL,
	last_seen DATETIME NOT NULL,
	PRIMARY KEY (host, port)
);
`

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun appends one run to the log. Details are stored as JSON.
func (s *Store) RecordRun(ctx context.Context, run Run) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var details []byte
	if run.Details != nil {
		var err error
		if details, err = json.Marshal(run.Details); err != nil {
			details = []byte("{}")
		}
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = clock.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (started_at, command, target, summary, ok, details)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.StartedAt, run.Command, run.Target, run.Summary, run.OK, string(details))
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

// RecentRuns returns the newest runs, optionally filtered by command.
func (s *Store) RecentRuns(ctx context.Context, command string, limit int) (Runs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, started_at, command, target, summary, ok FROM runs`
	args := []any{}
	if command != "" {
		query += ` WHERE command = ?`
		args = append(args, command)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs Runs
	for rows.Next() {
		var r Run
		var target, summary sql.NullString
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.Command, &target, &summary, &r.OK); err != nil {
			return nil, err
		}
		r.Target = target.String
		r.Summary = summary.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// UpsertFindings records open ports from a scan. A port seen before
// keeps its first_seen; last_seen always advances. It returns the
// findings that are new since the previous scan.
func (s *Store) UpsertFindings(ctx context.Context, findings []Finding) ([]Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := clock.Now()
	var fresh []Finding
	for _, f := range findings {
		if f.FirstSeen.IsZero() {
			f.FirstSeen = now
		}
		if f.LastSeen.IsZero() {
			f.LastSeen = now
		}

		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM scan_findings WHERE host = ? AND port = ?`,
			f.Host, f.Port).Scan(&exists)
		if err != nil {
			return nil, err
		}
		if exists == 0 {
			fresh = append(fresh, f)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO scan_findings (host, port, service, banner, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(host, port) DO UPDATE SET
				service = excluded.service,
				banner = excluded.banner,
				last_seen = excluded.last_seen
		`, f.Host, f.Port, f.Service, f.Banner, f.FirstSeen, f.LastSeen)
		if err != nil {
			return nil, fmt.Errorf("upsert finding %s:%d: %w", f.Host, f.Port, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if len(fresh) > 0 {
		s.logger.Info("new scan findings", "count", len(fresh))
	}
	return fresh, nil
}

// FindingsForHost returns all recorded ports of one host.
func (s *Store) FindingsForHost(ctx context.Context, host string) ([]Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT host, port, service, banner, first_seen, last_seen
		FROM scan_findings WHERE host = ? ORDER BY port
	`, host)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var findings []Finding
	for rows.Next() {
		var f Finding
		var service, banner sql.NullString
		if err := rows.Scan(&f.Host, &f.Port, &service, &banner, &f.FirstSeen, &f.LastSeen); err != nil {
			return nil, err
		}
		f.Service = service.String
		f.Banner = banner.String
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// Prune removes runs older than the retention window and findings not
// seen within it.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := clock.Now().Add(-retention)

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	runs, _ := res.RowsAffected()

	res, err = s.db.ExecContext(ctx, `DELETE FROM scan_findings WHERE last_seen < ?`, cutoff)
	if err != nil {
		return runs, fmt.Errorf("prune findings: %w", err)
	}
	findings, _ := res.RowsAffected()

	total := runs + findings
	if total > 0 {
		s.logger.Info("history pruned", "runs", runs, "findings", findings, "cutoff", cutoff)
	}
	return total, nil
}
