package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	contractx "github.com/pitchaya-w/coachflow/agent/contract"
)

// SQLiteStore persists checkpoints in SQLite, surviving process restarts on a
// single node.
type SQLiteStore struct {
	db *sql.DB
}

type SQLiteConfig struct {
	DSN string `envconfig:"DSN" split_words:"true" default:"coachflow.db"`
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite dsn is required")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// In-memory SQLite gives every connection its own database; pin to one
	// connection so the schema stays visible across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS checkpoints (
		run_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("migrate checkpoints: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, runID string, rs *contractx.RunState) error {
	if runID == "" {
		return fmt.Errorf("%w: run id is empty", contractx.ErrValidation)
	}
	payload, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (run_id, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		runID, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put checkpoint %s: %w", runID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, runID string) (*contractx.RunState, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM checkpoints WHERE run_id = ?`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", runID, err)
	}
	var rs contractx.RunState
	if err := json.Unmarshal([]byte(payload), &rs); err != nil {
		return nil, fmt.Errorf("unmarshal run state: %w", err)
	}
	return &rs, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", runID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
