package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/pitchaya-w/coachflow/agent/contract"
)

type PostgresConfig struct {
	DSN string `envconfig:"DSN" split_words:"true" required:"true"`
}

type turnRow struct {
	bun.BaseModel `bun:"table:conversation_turns"`

	ID        int64     `bun:"id,pk,autoincrement"`
	UserID    string    `bun:"user_id,notnull"`
	SessionID string    `bun:"session_id,notnull"`
	TurnID    string    `bun:"turn_id,notnull"`
	RunID     string    `bun:"run_id"`
	Question  string    `bun:"question,notnull"`
	Answer    string    `bun:"answer"`
	Feedback  string    `bun:"feedback"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// PostgresStore persists turns in Postgres via bun.
type PostgresStore struct {
	db *bun.DB
}

func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	store := &PostgresStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*turnRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("migrate conversation_turns: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*turnRow)(nil)).
		Index("idx_turns_session").
		IfNotExists().
		Column("user_id", "session_id", "created_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("index conversation_turns: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, key contractx.SessionKey, turn contractx.Turn) error {
	if key.UserID == "" || key.SessionID == "" {
		return fmt.Errorf("%w: session key is incomplete", contractx.ErrValidation)
	}
	row := &turnRow{
		UserID:    key.UserID,
		SessionID: key.SessionID,
		TurnID:    turn.TurnID,
		RunID:     turn.RunID,
		Question:  turn.Question,
		Answer:    turn.Answer,
		Feedback:  turn.Feedback,
		CreatedAt: turn.CreatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, key contractx.SessionKey, limit int) ([]contractx.Turn, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []turnRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", key.UserID).
		Where("session_id = ?", key.SessionID).
		OrderExpr("created_at DESC, id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	// Rows come back newest first; the planner wants chronological order.
	turns := make([]contractx.Turn, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		turns = append(turns, contractx.Turn{
			TurnID:    r.TurnID,
			UserID:    r.UserID,
			SessionID: r.SessionID,
			RunID:     r.RunID,
			Question:  r.Question,
			Answer:    r.Answer,
			Feedback:  r.Feedback,
			CreatedAt: r.CreatedAt,
		})
	}
	return turns, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
