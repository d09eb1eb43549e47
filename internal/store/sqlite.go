package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/thalesfsp/hord"
)

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

const timeLayout = time.RFC3339Nano

// SQLiteStore keeps runs and their evaluations in a SQLite database.
// It is safe for concurrent use.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at path (":memory:" for a throwaway
// one) and creates the schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// InitSchema creates the tables if they don't exist.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			problem TEXT NOT NULL,
			status TEXT NOT NULL,
			max_evals INTEGER NOT NULL,
			workers INTEGER NOT NULL,
			best_value REAL,
			failed INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			ended_at TEXT
		);

		CREATE TABLE IF NOT EXISTS evaluations (
			run_id TEXT NOT NULL REFERENCES runs(id),
			idx INTEGER NOT NULL,
			phase TEXT NOT NULL,
			params TEXT NOT NULL,
			value REAL,
			error TEXT,
			duration_ms INTEGER NOT NULL,
			PRIMARY KEY (run_id, idx)
		);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// CreateRun inserts run with StatusRunning.
func (s *SQLiteStore) CreateRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, problem, status, max_evals, workers, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.Problem, StatusRunning, run.MaxEvals, run.Workers, run.StartedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}

	return nil
}

// FinishRun stores the final status and best value of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, id, status string, result *hord.Result, endedAt time.Time) error {
	var (
		best   *float64
		failed int
	)

	if result != nil {
		if result.Best != nil {
			best = finite(result.BestValue)
		}

		failed = result.Failed
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, best_value = ?, failed = ?, ended_at = ?
		WHERE id = ?
	`, status, best, failed, endedAt.UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	return nil
}

// RecordEvaluation appends one evaluation to a run.
func (s *SQLiteStore) RecordEvaluation(ctx context.Context, runID string, e hord.Evaluation) error {
	r := NewEvaluationRecord(runID, e)

	params, err := json.Marshal(r.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}

	var errText *string
	if r.Error != "" {
		errText = &r.Error
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evaluations (run_id, idx, phase, params, value, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, r.Index, r.Phase, string(params), r.Value, errText, r.DurationMS)
	if err != nil {
		return fmt.Errorf("failed to record evaluation %d of run %s: %w", r.Index, runID, err)
	}

	return nil
}

// GetRun returns one run.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, problem, status, max_evals, workers, best_value, failed, started_at, ended_at
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	return run, err
}

// ListRuns returns all runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, problem, status, max_evals, workers, best_value, failed, started_at, ended_at
		FROM runs ORDER BY started_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// ListEvaluations returns the evaluations of a run in index order.
func (s *SQLiteStore) ListEvaluations(ctx context.Context, runID string) ([]EvaluationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, phase, params, value, error, duration_ms
		FROM evaluations WHERE run_id = ? ORDER BY idx
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations: %w", err)
	}
	defer rows.Close()

	var records []EvaluationRecord
	for rows.Next() {
		var (
			r       = EvaluationRecord{RunID: runID}
			params  string
			value   sql.NullFloat64
			errText sql.NullString
		)

		if err := rows.Scan(&r.Index, &r.Phase, &params, &value, &errText, &r.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}

		if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
			return nil, fmt.Errorf("evaluation %d: failed to decode params: %w", r.Index, err)
		}

		if value.Valid {
			v := value.Float64
			r.Value = &v
		}

		r.Error = errText.String
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating evaluations: %w", err)
	}

	return records, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run       Run
		best      sql.NullFloat64
		startedAt string
		endedAt   sql.NullString
	)

	if err := row.Scan(&run.ID, &run.Problem, &run.Status, &run.MaxEvals, &run.Workers,
		&best, &run.Failed, &startedAt, &endedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}

		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}

	if best.Valid {
		v := best.Float64
		run.BestValue = &v
	}

	var err error
	if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return Run{}, fmt.Errorf("run %s: bad started_at: %w", run.ID, err)
	}

	if endedAt.Valid {
		t, err := time.Parse(timeLayout, endedAt.String)
		if err != nil {
			return Run{}, fmt.Errorf("run %s: bad ended_at: %w", run.ID, err)
		}

		run.EndedAt = &t
	}

	return run, nil
}
