package tool

import (
	"context"
	"testing"

	progressx "github.com/pitchaya-w/coachflow/agent/progress"
)

var testCorpus = []Document{
	{ID: "d1", Topic: "grammar", Content: "Subject-verb agreement practice question."},
	{ID: "d2", Topic: "vocabulary", Content: "Practice question: define precedent."},
	{ID: "d3", Topic: "comprehension", Content: "Reading passage about contract law."},
}

func TestKeywordRetrieverRanksByOverlap(t *testing.T) {
	t.Parallel()

	r := NewKeywordRetriever(testCorpus)
	docs, err := r.Search(context.Background(), "grammar practice question", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(docs) == 0 || docs[0].ID != "d1" {
		t.Fatalf("docs = %+v, want d1 ranked first", docs)
	}

	none, err := r.Search(context.Background(), "astrophysics", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("unrelated query matched %d docs", len(none))
	}
}

func TestSearchToolRequiresQuery(t *testing.T) {
	t.Parallel()

	tool := NewSearchTool(NewKeywordRetriever(testCorpus))
	if _, err := tool.Invoke(context.Background(), map[string]any{}); err == nil {
		t.Fatal("missing query should fail")
	}

	out, err := tool.Invoke(context.Background(), map[string]any{"query": "precedent"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	payload := out.(map[string]any)
	if payload["count"].(int) != 1 {
		t.Fatalf("count = %v, want 1", payload["count"])
	}
}

func TestPracticeQuestionPrefersWeakTopic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := progressx.NewInMemoryStore()
	// u1 is strong on grammar, weak on vocabulary.
	attempts := []progressx.Attempt{
		{UserID: "u1", Topic: "grammar", Correct: true},
		{UserID: "u1", Topic: "vocabulary", Correct: false},
	}
	for _, a := range attempts {
		if err := store.RecordAttempt(ctx, a); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	tool := NewPracticeQuestionTool(NewKeywordRetriever(testCorpus), store)
	out, err := tool.Invoke(ctx, map[string]any{"user_id": "u1"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	payload := out.(map[string]any)
	if payload["topic"] != "vocabulary" {
		t.Fatalf("topic = %v, want vocabulary", payload["topic"])
	}
}

func TestPracticeQuestionTopicOverride(t *testing.T) {
	t.Parallel()

	tool := NewPracticeQuestionTool(NewKeywordRetriever(testCorpus), progressx.NewInMemoryStore())
	out, err := tool.Invoke(context.Background(), map[string]any{"user_id": "u1", "topic": "grammar"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	payload := out.(map[string]any)
	if payload["found"] != true || payload["topic"] != "grammar" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestLearningProgressTool(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := progressx.NewInMemoryStore()
	if err := store.RecordAttempt(ctx, progressx.Attempt{UserID: "u1", Topic: "grammar", Correct: true}); err != nil {
		t.Fatalf("record: %v", err)
	}

	tool := NewLearningProgressTool(store)
	if _, err := tool.Invoke(ctx, map[string]any{}); err == nil {
		t.Fatal("missing user_id should fail")
	}
	out, err := tool.Invoke(ctx, map[string]any{"user_id": "u1"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	topics := out.(map[string]any)["topics"].([]progressx.TopicStat)
	if len(topics) != 1 || topics[0].Topic != "grammar" {
		t.Fatalf("topics = %+v", topics)
	}
}

func TestRecordAnswerToolIsSensitive(t *testing.T) {
	t.Parallel()

	store := progressx.NewInMemoryStore()
	tool := NewRecordAnswerTool(store)
	if !tool.Sensitive() {
		t.Fatal("record_answer must be sensitive")
	}

	ctx := context.Background()
	out, err := tool.Invoke(ctx, map[string]any{
		"user_id": "u1",
		"topic":   "grammar",
		"answer":  "the verb agrees with the subject",
		"correct": true,
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out.(map[string]any)["recorded"] != true {
		t.Fatalf("payload = %+v", out)
	}

	stats, err := store.TopicStats(ctx, "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats) != 1 || stats[0].Correct != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}
