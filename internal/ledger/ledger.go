// Package ledger keeps a durable history of invocations in SQLite. The
// progress store is the live view of a run; the ledger is the queryable
// record that survives cleanup and archiving.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS invocations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT UNIQUE NOT NULL,
	agent TEXT NOT NULL,
	project TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'running',
	started_at DATETIME NOT NULL,
	ended_at DATETIME,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	retry_attempts INTEGER NOT NULL DEFAULT 0,
	error_text TEXT DEFAULT '',
	summary TEXT DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_invocations_agent ON invocations(agent);
CREATE INDEX IF NOT EXISTS idx_invocations_project ON invocations(project);
CREATE INDEX IF NOT EXISTS idx_invocations_status ON invocations(status);
CREATE INDEX IF NOT EXISTS idx_invocations_started ON invocations(started_at);
`

// Invocation is one row of invocation history.
type Invocation struct {
	ID            int64
	RunID         string
	Agent         string
	Project       string
	Status        string
	StartedAt     time.Time
	EndedAt       *time.Time
	DurationMS    int64
	RetryAttempts int
	ErrorText     string
	Summary       string
}

// Ledger wraps the invocation history database.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database at dbPath.
func Open(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// RecordStart inserts a running row for a new invocation. Re-running with
// the same run id resets the row.
func (l *Ledger) RecordStart(runID, agent, project string, startedAt time.Time) error {
	_, err := l.db.Exec(`
		INSERT INTO invocations (run_id, agent, project, status, started_at)
		VALUES (?, ?, ?, 'running', ?)
		ON CONFLICT(run_id) DO UPDATE SET
			agent = excluded.agent,
			project = excluded.project,
			status = 'running',
			started_at = excluded.started_at,
			ended_at = NULL,
			error_text = '',
			summary = ''
	`, runID, agent, project, startedAt.UTC())
	return err
}

// RecordFinish marks an invocation terminal.
func (l *Ledger) RecordFinish(runID string, success bool, durationMS int64, retries int, errMsg, summary string) error {
	status := "completed"
	if !success {
		status = "failed"
	}
	_, err := l.db.Exec(`
		UPDATE invocations SET
			status = ?,
			ended_at = datetime('now'),
			duration_ms = ?,
			retry_attempts = ?,
			error_text = ?,
			summary = ?
		WHERE run_id = ?
	`, status, durationMS, retries, errMsg, summary, runID)
	return err
}

// Get returns the row for a run id, nil if absent.
func (l *Ledger) Get(runID string) (*Invocation, error) {
	row := l.db.QueryRow(`SELECT id, run_id, agent, COALESCE(project,''), status,
		started_at, ended_at, duration_ms, retry_attempts,
		COALESCE(error_text,''), COALESCE(summary,'')
		FROM invocations WHERE run_id = ?`, runID)
	inv, err := scanInvocation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invocation: %w", err)
	}
	return inv, nil
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Agent   string
	Project string
	Status  string
	Since   *time.Time
	Limit   int
}

// List returns invocation history, newest first.
func (l *Ledger) List(filter ListFilter) ([]Invocation, error) {
	query := `SELECT id, run_id, agent, COALESCE(project,''), status,
		started_at, ended_at, duration_ms, retry_attempts,
		COALESCE(error_text,''), COALESCE(summary,'')
		FROM invocations WHERE 1=1`
	args := []any{}

	if filter.Agent != "" {
		query += " AND agent = ?"
		args = append(args, filter.Agent)
	}
	if filter.Project != "" {
		query += " AND project = ?"
		args = append(args, filter.Project)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Since != nil {
		query += " AND started_at >= ?"
		args = append(args, filter.Since.UTC())
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invocations: %w", err)
	}
	defer rows.Close()

	var out []Invocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// Stats aggregates invocation counts and duration per agent.
type Stats struct {
	Agent         string
	Total         int
	Completed     int
	Failed        int
	AvgDurationMS float64
	TotalRetries  int
}

// AgentStats returns per-agent aggregates over all recorded invocations.
func (l *Ledger) AgentStats() ([]Stats, error) {
	rows, err := l.db.Query(`SELECT agent,
		COUNT(*),
		SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END),
		SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
		COALESCE(AVG(CASE WHEN status != 'running' THEN duration_ms END), 0),
		COALESCE(SUM(retry_attempts), 0)
		FROM invocations GROUP BY agent ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("agent stats: %w", err)
	}
	defer rows.Close()

	var out []Stats
	for rows.Next() {
		var s Stats
		if err := rows.Scan(&s.Agent, &s.Total, &s.Completed, &s.Failed, &s.AvgDurationMS, &s.TotalRetries); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune deletes terminal rows older than the cutoff and returns the count.
func (l *Ledger) Prune(olderThan time.Time) (int64, error) {
	res, err := l.db.Exec(`DELETE FROM invocations
		WHERE status != 'running' AND started_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune invocations: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvocation(row scanner) (*Invocation, error) {
	var inv Invocation
	var endedAt sql.NullTime
	err := row.Scan(&inv.ID, &inv.RunID, &inv.Agent, &inv.Project, &inv.Status,
		&inv.StartedAt, &endedAt, &inv.DurationMS, &inv.RetryAttempts,
		&inv.ErrorText, &inv.Summary)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		inv.EndedAt = &endedAt.Time
	}
	return &inv, nil
}
