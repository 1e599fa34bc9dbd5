// Package progress tracks learning performance per user and topic. It backs
// the progress tools; questions themselves live with the retrieval
// collaborator, this store only records attempts and analytics.
package progress

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	contractx "github.com/pitchaya-w/coachflow/agent/contract"
)

// Attempt is one answered practice question.
type Attempt struct {
	UserID     string    `json:"user_id"`
	Topic      string    `json:"topic"`
	QuestionID string    `json:"question_id"`
	Answer     string    `json:"answer"`
	Correct    bool      `json:"correct"`
	CreatedAt  time.Time `json:"created_at"`
}

// TopicStat aggregates attempts for one topic.
type TopicStat struct {
	Topic    string  `json:"topic"`
	Attempts int     `json:"attempts"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// Store is the learning-progress contract.
type Store interface {
	RecordAttempt(ctx context.Context, attempt Attempt) error
	TopicStats(ctx context.Context, userID string) ([]TopicStat, error)
	// WeakTopics returns up to limit topics ordered by ascending accuracy.
	WeakTopics(ctx context.Context, userID string, limit int) ([]string, error)
}

// InMemoryStore holds attempts in process memory, for tests and local runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	attempts map[string][]Attempt
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{attempts: make(map[string][]Attempt)}
}

func (s *InMemoryStore) RecordAttempt(ctx context.Context, attempt Attempt) error {
	if attempt.UserID == "" || attempt.Topic == "" {
		return fmt.Errorf("%w: attempt needs user_id and topic", contractx.ErrValidation)
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attempt.UserID] = append(s.attempts[attempt.UserID], attempt)
	return nil
}

func (s *InMemoryStore) TopicStats(ctx context.Context, userID string) ([]TopicStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return aggregate(s.attempts[userID]), nil
}

func (s *InMemoryStore) WeakTopics(ctx context.Context, userID string, limit int) ([]string, error) {
	stats, err := s.TopicStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	return weakest(stats, limit), nil
}

func aggregate(attempts []Attempt) []TopicStat {
	byTopic := make(map[string]*TopicStat)
	for _, a := range attempts {
		st, ok := byTopic[a.Topic]
		if !ok {
			st = &TopicStat{Topic: a.Topic}
			byTopic[a.Topic] = st
		}
		st.Attempts++
		if a.Correct {
			st.Correct++
		}
	}
	stats := make([]TopicStat, 0, len(byTopic))
	for _, st := range byTopic {
		if st.Attempts > 0 {
			st.Accuracy = float64(st.Correct) / float64(st.Attempts)
		}
		stats = append(stats, *st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Topic < stats[j].Topic })
	return stats
}

func weakest(stats []TopicStat, limit int) []string {
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Accuracy < stats[j].Accuracy })
	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	topics := make([]string, 0, len(stats))
	for _, st := range stats {
		topics = append(topics, st.Topic)
	}
	return topics
}
