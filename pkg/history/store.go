package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/core-tools/hsu-launchpad/pkg/domain"
	"github.com/core-tools/hsu-launchpad/pkg/errors"
)

const DefaultFileName = "launchpad-history.db"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	system_id TEXT NOT NULL,
	application_id TEXT NOT NULL,
	kind TEXT NOT NULL CHECK(kind IN ('start','deploy')),
	pid INTEGER NOT NULL,
	command TEXT NOT NULL,
	directory TEXT NOT NULL,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	exit_code INTEGER,
	signal TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_system_started ON runs(system_id, started_at DESC);
`

// Store records every spawned process and how it ended
type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.NewIOError("failed to create history directory", err).WithContext("path", path)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.NewIOError("failed to open history database", err).WithContext("path", path)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.NewIOError("failed to ping history database", err).WithContext("path", path)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.NewIOError("failed to apply history schema", err).WithContext("path", path)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) RecordStart(ctx context.Context, run domain.RunRecord) error {
	if run.Outcome == "" {
		run.Outcome = domain.RunOutcomeRunning
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs(run_id, system_id, application_id, kind, pid, command, directory, started_at, outcome)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, run.RunID, run.SystemID, run.ApplicationID, string(run.Kind), run.PID, run.Command, run.Directory, ts(run.StartedAt), string(run.Outcome))
	if err != nil {
		return errors.NewIOError("failed to record run start", err).WithContext("run_id", run.RunID)
	}
	return nil
}

func (s *Store) RecordExit(ctx context.Context, runID string, endedAt time.Time, exitCode *int, signal string, outcome domain.RunOutcome) error {
	var code any
	if exitCode != nil {
		code = *exitCode
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE runs SET ended_at = ?, exit_code = ?, signal = ?, outcome = ?
WHERE run_id = ?
`, ts(endedAt), code, signal, string(outcome), runID)
	if err != nil {
		return errors.NewIOError("failed to record run exit", err).WithContext("run_id", runID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewNotFoundError("run not found", nil).WithContext("run_id", runID)
	}
	return nil
}

// ListRuns returns the latest runs of a system, newest first
func (s *Store) ListRuns(ctx context.Context, systemID string, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, system_id, application_id, kind, pid, command, directory, started_at, ended_at, exit_code, signal, outcome
FROM runs WHERE system_id = ?
ORDER BY started_at DESC
LIMIT ?
`, systemID, limit)
	if err != nil {
		return nil, errors.NewIOError("failed to query runs", err).WithContext("system_id", systemID)
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		var (
			run       domain.RunRecord
			kind      string
			outcome   string
			startedAt string
			endedAt   sql.NullString
			exitCode  sql.NullInt64
		)
		if err := rows.Scan(&run.RunID, &run.SystemID, &run.ApplicationID, &kind, &run.PID, &run.Command,
			&run.Directory, &startedAt, &endedAt, &exitCode, &run.Signal, &outcome); err != nil {
			return nil, errors.NewIOError("failed to scan run", err)
		}
		run.Kind = domain.CommandKind(kind)
		run.Outcome = domain.RunOutcome(outcome)
		run.StartedAt = parseTS(startedAt)
		if endedAt.Valid {
			t := parseTS(endedAt.String)
			run.EndedAt = &t
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			run.ExitCode = &code
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewIOError("failed to read runs", err)
	}
	return runs, nil
}

// fixed width so that text ordering matches time ordering
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
