package result

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// TrajectoryStore persists one record set per run into SQLite. Writes from
// concurrent runs serialize on an internal mutex; each write is one
// transaction.
type TrajectoryStore struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func NewTrajectoryStore(path string) *TrajectoryStore {
	return &TrajectoryStore{path: path}
}

// Init opens the database and creates the schema.
func (s *TrajectoryStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("trajectory store path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return err
	}
	if err := createTables(ctx, db); err != nil {
		db.Close()
		return err
	}
	s.db = db
	return nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			sweep_id   TEXT NOT NULL,
			env        TEXT NOT NULL,
			world_id   TEXT NOT NULL,
			status     TEXT NOT NULL,
			score      REAL NOT NULL,
			steps      INTEGER NOT NULL,
			PRIMARY KEY (sweep_id, env, world_id)
		);
		CREATE TABLE IF NOT EXISTS trajectory_steps (
			sweep_id    TEXT NOT NULL,
			env         TEXT NOT NULL,
			world_id    TEXT NOT NULL,
			step        INTEGER NOT NULL,
			observation TEXT NOT NULL,
			action      TEXT NOT NULL,
			reward      REAL NOT NULL,
			done        INTEGER NOT NULL,
			PRIMARY KEY (sweep_id, env, world_id, step)
		);
	`)
	return err
}

// SaveRun stores an outcome's run row and trajectory steps atomically.
func (s *TrajectoryStore) SaveRun(ctx context.Context, sweepID string, o *Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errors.New("trajectory store not initialized")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (sweep_id, env, world_id, status, score, steps)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(sweep_id, env, world_id) DO UPDATE SET
			status = excluded.status,
			score = excluded.score,
			steps = excluded.steps
	`, sweepID, o.Env, o.WorldID, string(o.Status), o.Score, o.Steps)
	if err != nil {
		return fmt.Errorf("saving run row: %w", err)
	}

	for _, step := range o.Trajectory {
		done := 0
		if step.Done {
			done = 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO trajectory_steps (sweep_id, env, world_id, step, observation, action, reward, done)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(sweep_id, env, world_id, step) DO UPDATE SET
				observation = excluded.observation,
				action = excluded.action,
				reward = excluded.reward,
				done = excluded.done
		`, sweepID, o.Env, o.WorldID, step.Step, step.Observation, step.Action, step.Reward, done)
		if err != nil {
			return fmt.Errorf("saving trajectory step %d: %w", step.Step, err)
		}
	}
	return tx.Commit()
}

// CountSteps returns how many trajectory steps are stored for one run.
func (s *TrajectoryStore) CountSteps(ctx context.Context, sweepID, env, worldID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, errors.New("trajectory store not initialized")
	}
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trajectory_steps
		WHERE sweep_id = ? AND env = ? AND world_id = ?
	`, sweepID, env, worldID).Scan(&n)
	return n, err
}

// Close releases the database handle.
func (s *TrajectoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
