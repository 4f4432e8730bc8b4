// Package runstore persists pipeline run history in SQLite so the status
// server and CLI can report on past and in-flight collection passes.
package runstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Step statuses.
const (
	StepRunning   = "running"
	StepCompleted = "completed"
	StepSkipped   = "skipped"
	StepFailed    = "failed"
)

// Run is one per-repository pipeline pass.
type Run struct {
	ID           string     `json:"id"`
	Repo         string     `json:"repo"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// Step is one stage of a run.
type Step struct {
	RunID      string     `json:"run_id"`
	Step       string     `json:"step"`
	Status     string     `json:"status"`
	Records    int        `json:"records"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Summary aggregates run counts by status.
type Summary struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Store provides SQLite-backed run persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun records the start of a pipeline pass for a repository.
func (s *Store) CreateRun(repo string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Repo:      repo,
		Status:    RunRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (id, repo, status, started_at)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.Repo, run.Status, run.StartedAt)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// FinishRun marks a run completed or failed.
func (s *Store) FinishRun(id, status, errorMessage string) error {
	_, err := s.db.Exec(`
		UPDATE runs SET status = ?, finished_at = ?, error_message = ? WHERE id = ?
	`, status, time.Now().UTC(), errorMessage, id)
	return err
}

// StartStep records the start of one stage of a run.
func (s *Store) StartStep(runID, step string) error {
	_, err := s.db.Exec(`
		INSERT INTO run_steps (run_id, step, status, started_at)
		VALUES (?, ?, ?, ?)
	`, runID, step, StepRunning, time.Now().UTC())
	return err
}

// FinishStep records the outcome of a stage, with the number of records the
// stage produced where that is meaningful.
func (s *Store) FinishStep(runID, step, status string, records int) error {
	_, err := s.db.Exec(`
		UPDATE run_steps SET status = ?, records = ?, finished_at = ?
		WHERE run_id = ? AND step = ?
	`, status, records, time.Now().UTC(), runID, step)
	return err
}

// GetRun retrieves a run and its steps.
func (s *Store) GetRun(id string) (*Run, []Step, error) {
	row := s.db.QueryRow(`
		SELECT id, repo, status, started_at, finished_at, error_message
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.Query(`
		SELECT run_id, step, status, records, started_at, finished_at
		FROM run_steps WHERE run_id = ? ORDER BY id
	`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var st Step
		var finished sql.NullTime
		if err := rows.Scan(&st.RunID, &st.Step, &st.Status, &st.Records, &st.StartedAt, &finished); err != nil {
			return nil, nil, err
		}
		if finished.Valid {
			st.FinishedAt = &finished.Time
		}
		steps = append(steps, st)
	}
	return run, steps, rows.Err()
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, repo, status, started_at, finished_at, error_message
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRunRows(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetSummary returns run counts grouped by status.
func (s *Store) GetSummary() (*Summary, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := &Summary{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		summary.Total += count
		switch status {
		case RunRunning:
			summary.Running = count
		case RunCompleted:
			summary.Completed = count
		case RunFailed:
			summary.Failed = count
		}
	}
	return summary, rows.Err()
}

func scanRun(row *sql.Row) (*Run, error) {
	var run Run
	var finished sql.NullTime
	var errMsg sql.NullString

	if err := row.Scan(&run.ID, &run.Repo, &run.Status, &run.StartedAt, &finished, &errMsg); err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	if errMsg.Valid {
		run.ErrorMessage = errMsg.String
	}
	return &run, nil
}

func scanRunRows(rows *sql.Rows) (*Run, error) {
	var run Run
	var finished sql.NullTime
	var errMsg sql.NullString

	if err := rows.Scan(&run.ID, &run.Repo, &run.Status, &run.StartedAt, &finished, &errMsg); err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	if errMsg.Valid {
		run.ErrorMessage = errMsg.String
	}
	return &run, nil
}
