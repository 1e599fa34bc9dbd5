package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	progressx "github.com/pitchaya-w/coachflow/agent/progress"
)

// Document is one study-material snippet returned by the retrieval
// collaborator.
type Document struct {
	ID      string `json:"id"`
	Topic   string `json:"topic"`
	Content string `json:"content"`
}

// Retriever is the semantic-search collaborator boundary. The real backend
// lives outside this module.
type Retriever interface {
	Search(ctx context.Context, query string, limit int) ([]Document, error)
}

const defaultSearchLimit = 5

/* ---------------------------- search_documents --------------------------- */

type searchTool struct {
	retriever Retriever
}

// NewSearchTool searches study materials for a query.
func NewSearchTool(retriever Retriever) Tool {
	return &searchTool{retriever: retriever}
}

func (t *searchTool) Name() string { return "search_documents" }

func (t *searchTool) Description() string {
	return "Search study materials for grammar, vocabulary, comprehension and legal-reasoning content."
}

func (t *searchTool) Sensitive() bool { return false }

func (t *searchTool) Schema() Schema {
	return Schema{
		"query":       {Type: TypeString, Desc: "topic or question to search for", Required: true},
		"max_results": {Type: TypeNumber, Desc: "maximum number of snippets to return"},
	}
}

func (t *searchTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	limit := defaultSearchLimit
	if raw, ok := args["max_results"].(float64); ok && raw > 0 {
		limit = int(raw)
	}
	docs, err := t.retriever.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	return map[string]any{"documents": docs, "count": len(docs)}, nil
}

/* ------------------------- get_practice_question ------------------------- */

type practiceQuestionTool struct {
	retriever Retriever
	progress  progressx.Store
}

// NewPracticeQuestionTool picks a practice question, preferring the user's
// weakest topic when history exists.
func NewPracticeQuestionTool(retriever Retriever, store progressx.Store) Tool {
	return &practiceQuestionTool{retriever: retriever, progress: store}
}

func (t *practiceQuestionTool) Name() string { return "get_practice_question" }

func (t *practiceQuestionTool) Description() string {
	return "Fetch a practice question, adapted to the user's weakest topics when history exists."
}

func (t *practiceQuestionTool) Sensitive() bool { return false }

func (t *practiceQuestionTool) Schema() Schema {
	return Schema{
		"user_id": {Type: TypeString, Desc: "user to adapt the question for", Required: true},
		"topic":   {Type: TypeString, Desc: "topic override; weakest topic is used when omitted"},
	}
}

func (t *practiceQuestionTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	userID, _ := args["user_id"].(string)
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	topic, _ := args["topic"].(string)
	if topic == "" {
		weak, err := t.progress.WeakTopics(ctx, userID, 1)
		if err != nil {
			return nil, fmt.Errorf("weak topics: %w", err)
		}
		if len(weak) > 0 {
			topic = weak[0]
		}
	}
	query := "practice question"
	if topic != "" {
		query = "practice question " + topic
	}
	docs, err := t.retriever.Search(ctx, query, 1)
	if err != nil {
		return nil, fmt.Errorf("fetch question: %w", err)
	}
	if len(docs) == 0 {
		return map[string]any{"found": false, "topic": topic}, nil
	}
	return map[string]any{
		"found":       true,
		"topic":       docs[0].Topic,
		"question_id": docs[0].ID,
		"question":    docs[0].Content,
	}, nil
}

/* ------------------------- get_learning_progress ------------------------- */

type learningProgressTool struct {
	progress progressx.Store
}

// NewLearningProgressTool reports per-topic accuracy for a user.
func NewLearningProgressTool(store progressx.Store) Tool {
	return &learningProgressTool{progress: store}
}

func (t *learningProgressTool) Name() string { return "get_learning_progress" }

func (t *learningProgressTool) Description() string {
	return "Summarize the user's per-topic accuracy and attempt counts."
}

func (t *learningProgressTool) Sensitive() bool { return false }

func (t *learningProgressTool) Schema() Schema {
	return Schema{
		"user_id": {Type: TypeString, Desc: "user to report on", Required: true},
	}
}

func (t *learningProgressTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	userID, _ := args["user_id"].(string)
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	stats, err := t.progress.TopicStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("topic stats: %w", err)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Accuracy > stats[j].Accuracy })
	return map[string]any{"topics": stats}, nil
}

/* ----------------------------- record_answer ----------------------------- */

type recordAnswerTool struct {
	progress progressx.Store
	now      func() time.Time
}

// NewRecordAnswerTool writes an answer attempt. Sensitive: it mutates the
// user's learning record, so the gate always asks before executing it.
func NewRecordAnswerTool(store progressx.Store) Tool {
	return &recordAnswerTool{progress: store, now: time.Now}
}

func (t *recordAnswerTool) Name() string { return "record_answer" }

func (t *recordAnswerTool) Description() string {
	return "Record the user's answer to a practice question for progress tracking."
}

func (t *recordAnswerTool) Sensitive() bool { return true }

func (t *recordAnswerTool) Schema() Schema {
	return Schema{
		"user_id":     {Type: TypeString, Desc: "user who answered", Required: true},
		"topic":       {Type: TypeString, Desc: "topic of the question", Required: true},
		"question_id": {Type: TypeString, Desc: "question identifier"},
		"answer":      {Type: TypeString, Desc: "the given answer", Required: true},
		"correct":     {Type: TypeBool, Desc: "whether the answer was correct", Required: true},
	}
}

func (t *recordAnswerTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	userID, _ := args["user_id"].(string)
	topic, _ := args["topic"].(string)
	answer, _ := args["answer"].(string)
	correct, _ := args["correct"].(bool)
	questionID, _ := args["question_id"].(string)

	attempt := progressx.Attempt{
		UserID:     userID,
		Topic:      topic,
		QuestionID: questionID,
		Answer:     answer,
		Correct:    correct,
		CreatedAt:  t.now().UTC(),
	}
	if err := t.progress.RecordAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}
	return map[string]any{"recorded": true, "topic": topic, "correct": correct}, nil
}

/* --------------------------- keyword retriever --------------------------- */

// KeywordRetriever is an in-process Retriever over a fixed corpus, matching
// on word overlap. It stands in for the vector-store collaborator in local
// runs and tests.
type KeywordRetriever struct {
	docs []Document
}

func NewKeywordRetriever(docs []Document) *KeywordRetriever {
	return &KeywordRetriever{docs: docs}
}

func (r *KeywordRetriever) Search(ctx context.Context, query string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	words := strings.Fields(strings.ToLower(query))
	type scored struct {
		doc   Document
		score int
	}
	var matches []scored
	for _, doc := range r.docs {
		haystack := strings.ToLower(doc.Topic + " " + doc.Content)
		score := 0
		for _, w := range words {
			if strings.Contains(haystack, w) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{doc: doc, score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]Document, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.doc)
	}
	return out, nil
}
