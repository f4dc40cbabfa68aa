// Package bootstrap wires adapters to use cases. Both the HTTP surface and
// the ingestion worker share one App so every component sees the same
// session manager.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/mkravets/docveil/internal/anonymizer"
	"github.com/mkravets/docveil/internal/config"
	"github.com/mkravets/docveil/internal/core/ports"
	"github.com/mkravets/docveil/internal/core/usecase"
	"github.com/mkravets/docveil/internal/infrastructure/chunking"
	"github.com/mkravets/docveil/internal/infrastructure/extractor"
	"github.com/mkravets/docveil/internal/infrastructure/extractor/pdf"
	"github.com/mkravets/docveil/internal/infrastructure/extractor/plaintext"
	"github.com/mkravets/docveil/internal/infrastructure/extractor/xlsx"
	"github.com/mkravets/docveil/internal/infrastructure/llm/ollama"
	"github.com/mkravets/docveil/internal/infrastructure/queue/nats"
	"github.com/mkravets/docveil/internal/infrastructure/repository/postgres"
	"github.com/mkravets/docveil/internal/infrastructure/rerank"
	"github.com/mkravets/docveil/internal/infrastructure/resilience"
	"github.com/mkravets/docveil/internal/infrastructure/storage/localfs"
	"github.com/mkravets/docveil/internal/infrastructure/vector/memory"
	"github.com/mkravets/docveil/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Queue    ports.MessageQueue
	Repo     ports.DocumentRepository
	Sessions ports.SessionService

	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		RequestsPerSecond:  cfg.OllamaRateLimitRPS,
		Burst:              cfg.OllamaRateLimitBurst,
		ResilienceExecutor: executor,
	})
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	factory, err := indexFactory(cfg)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, err
	}

	engine := anonymizer.NewEngine(anonymizer.Config{Heuristics: cfg.AnonymizerHeuristics})
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	scorer := rerank.NewLexicalScorer()

	sessions := usecase.NewSessionManager(engine, factory, chunker, embedder, generator, scorer, usecase.SessionConfig{
		RetrieveK: cfg.RetrieveK,
		RerankN:   cfg.RerankTopN,
		SuggestN:  cfg.SuggestCount,
	})

	docExtractor := extractor.NewDispatcher(
		plaintext.NewExtractor(storage),
		pdf.NewExtractor(storage),
		xlsx.NewExtractor(storage),
	)

	ingestUC := usecase.NewIngestDocumentUseCase(sessions, repo, storage, queue)
	processUC := usecase.NewProcessDocumentUseCase(repo, docExtractor, sessions)

	return &App{
		Config: cfg,

		Queue:    queue,
		Repo:     repo,
		Sessions: sessions,

		IngestUC:  ingestUC,
		ProcessUC: processUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func indexFactory(cfg config.Config) (ports.IndexFactory, error) {
	switch cfg.VectorBackend {
	case "memory", "":
		return memory.NewFactory(), nil
	case "qdrant":
		return qdrant.NewFactory(cfg.QdrantURL, cfg.QdrantCollectionPrefix), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
