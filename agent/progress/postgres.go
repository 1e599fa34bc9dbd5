package progress

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
)

type PostgresConfig struct {
	DSN string `envconfig:"DSN" split_words:"true" required:"true"`
}

type attemptRow struct {
	bun.BaseModel `bun:"table:answer_attempts"`

	ID         int64     `bun:"id,pk,autoincrement"`
	UserID     string    `bun:"user_id,notnull"`
	Topic      string    `bun:"topic,notnull"`
	QuestionID string    `bun:"question_id"`
	Answer     string    `bun:"answer"`
	Correct    bool      `bun:"correct,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

// PostgresStore keeps attempts in Postgres via bun.
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
		Model((*attemptRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("migrate answer_attempts: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*attemptRow)(nil)).
		Index("idx_attempts_user_topic").
		IfNotExists().
		Column("user_id", "topic").
		Exec(ctx); err != nil {
		return fmt.Errorf("index answer_attempts: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordAttempt(ctx context.Context, attempt Attempt) error {
	if attempt.UserID == "" || attempt.Topic == "" {
		return errors.New("attempt needs user_id and topic")
	}
	row := &attemptRow{
		UserID:     attempt.UserID,
		Topic:      attempt.Topic,
		QuestionID: attempt.QuestionID,
		Answer:     attempt.Answer,
		Correct:    attempt.Correct,
		CreatedAt:  attempt.CreatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) TopicStats(ctx context.Context, userID string) ([]TopicStat, error) {
	var rows []attemptRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("topic stats: %w", err)
	}
	attempts := make([]Attempt, 0, len(rows))
	for _, r := range rows {
		attempts = append(attempts, Attempt{
			UserID:  r.UserID,
			Topic:   r.Topic,
			Correct: r.Correct,
		})
	}
	return aggregate(attempts), nil
}

func (s *PostgresStore) WeakTopics(ctx context.Context, userID string, limit int) ([]string, error) {
	stats, err := s.TopicStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	return weakest(stats, limit), nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
