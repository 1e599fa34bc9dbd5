package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/pitchaya-w/coachflow/agent/checkpoint"
	contractx "github.com/pitchaya-w/coachflow/agent/contract"
	"github.com/pitchaya-w/coachflow/agent/memory"
	"github.com/pitchaya-w/coachflow/agent/orchestrator"
	"github.com/pitchaya-w/coachflow/agent/planner"
	"github.com/pitchaya-w/coachflow/agent/progress"
	"github.com/pitchaya-w/coachflow/agent/responder"
	toolx "github.com/pitchaya-w/coachflow/agent/tool"
	configx "github.com/pitchaya-w/coachflow/pkg/config"
	_ "github.com/pitchaya-w/coachflow/pkg/logger/autoload"
	openrouterx "github.com/pitchaya-w/coachflow/pkg/openrouter"
	qstashx "github.com/pitchaya-w/coachflow/pkg/qstash"
	"github.com/pitchaya-w/coachflow/server"
)

type AppConfig struct {
	// CheckpointDriver selects run-state persistence: memory, sqlite, upstash.
	CheckpointDriver string `envconfig:"CHECKPOINT_DRIVER" split_words:"true" default:"memory"`
	// MemoryDriver selects conversation persistence: memory, postgres.
	MemoryDriver string `envconfig:"MEMORY_DRIVER" split_words:"true" default:"memory"`
	// ApprovalWebhook, when set, receives approval requests via QStash.
	ApprovalWebhook string `envconfig:"APPROVAL_WEBHOOK" split_words:"true"`
}

func main() {
	ctx := context.Background()
	appCfg := configx.MustNew[AppConfig]("")

	openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")
	model := openrouterx.MustNewClient(*openRouterCfg)

	checkpoints := mustCheckpointStore(appCfg.CheckpointDriver)
	turns, attempts := mustMemoryStores(ctx, appCfg.MemoryDriver)

	retriever := toolx.NewKeywordRetriever([]toolx.Document{
		{ID: "doc-grammar-1", Topic: "grammar", Content: "Subject-verb agreement: a singular subject takes a singular verb."},
		{ID: "doc-vocab-1", Topic: "vocabulary", Content: "Practice question: what does 'precedent' mean in a legal context?"},
		{ID: "doc-reading-1", Topic: "comprehension", Content: "Practice question: identify the author's main claim in the passage."},
		{ID: "doc-legal-1", Topic: "legal reasoning", Content: "An analogy argument maps the facts of a settled case onto a new one."},
	})
	registry, err := toolx.NewRegistry(
		toolx.NewSearchTool(retriever),
		toolx.NewPracticeQuestionTool(retriever, attempts),
		toolx.NewLearningProgressTool(attempts),
		toolx.NewRecordAnswerTool(attempts),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("tool registry")
	}

	plannerx, err := planner.New(model, registry)
	if err != nil {
		log.Fatal().Err(err).Msg("planner")
	}
	responderx, err := responder.New(model)
	if err != nil {
		log.Fatal().Err(err).Msg("responder")
	}

	var notifier orchestrator.Notifier = orchestrator.LogNotifier{}
	if appCfg.ApprovalWebhook != "" {
		qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")
		notifier = orchestrator.NewQStashNotifier(qstashx.MustNew(*qstashCfg), appCfg.ApprovalWebhook)
	}

	orchCfg := configx.MustNew[orchestrator.Config]("AGENT")
	orch, err := orchestrator.New(plannerx, responderx, registry, turns, checkpoints, notifier, *orchCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("orchestrator")
	}

	srvCfg := configx.MustNew[server.Config]("SERVER")
	if err := server.New(orch, *srvCfg).Start(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func mustCheckpointStore(driver string) checkpoint.Store {
	switch driver {
	case "", "memory":
		return checkpoint.NewMemoryStore()
	case "sqlite":
		cfg := configx.MustNew[checkpoint.SQLiteConfig]("SQLITE")
		store, err := checkpoint.NewSQLiteStore(cfg.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("sqlite checkpoint store")
		}
		return store
	case "upstash":
		cfg := configx.MustNew[checkpoint.UpstashConfig]("UPSTASH")
		store, err := checkpoint.NewUpstashStore(*cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("upstash checkpoint store")
		}
		return store
	default:
		log.Fatal().Str("driver", driver).Msg("unknown checkpoint driver")
		return nil
	}
}

func mustMemoryStores(ctx context.Context, driver string) (contractx.MemoryStore, progress.Store) {
	switch driver {
	case "", "memory":
		return memory.NewInMemoryStore(), progress.NewInMemoryStore()
	case "postgres":
		turnCfg := configx.MustNew[memory.PostgresConfig]("POSTGRES")
		turns, err := memory.NewPostgresStore(ctx, *turnCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres memory store")
		}
		attemptCfg := configx.MustNew[progress.PostgresConfig]("POSTGRES")
		attempts, err := progress.NewPostgresStore(ctx, *attemptCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres progress store")
		}
		return turns, attempts
	default:
		panic(fmt.Sprintf("unknown memory driver %q", driver))
	}
}
