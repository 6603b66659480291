package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hondana-dev/hondana/internal/core/answer"
	"github.com/hondana-dev/hondana/internal/core/chat"
	"github.com/hondana-dev/hondana/internal/core/ingestion"
	"github.com/hondana-dev/hondana/internal/core/retrieval"
	"github.com/hondana-dev/hondana/internal/core/session"
	"github.com/hondana-dev/hondana/internal/infra/memory"
	infraopenai "github.com/hondana-dev/hondana/internal/infra/openai"
	"github.com/hondana-dev/hondana/internal/infra/postgres"
	"github.com/hondana-dev/hondana/internal/platform/config"
	"github.com/hondana-dev/hondana/internal/platform/database"
)

// ServiceContainer はアプリケーションの依存関係を組み立てて保持する
type ServiceContainer struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *database.DB // memory バックエンドの場合は nil

	Books     ingestion.BookRepository
	Sessions  session.Store
	Ingestion *ingestion.Service
	Retrieval *retrieval.Service
	Answer    *answer.Service
	Chat      *chat.Service
}

// NewContainer は設定に基づいて全サービスを初期化する
func NewContainer(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*ServiceContainer, error) {
	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	c := &ServiceContainer{
		cfg:    cfg,
		logger: logger,
	}

	embedder := infraopenai.NewEmbedder(cfg.OpenAI.APIKey,
		infraopenai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		infraopenai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
		infraopenai.WithEmbeddingTimeout(cfg.OpenAI.EmbeddingTimeout),
	)

	generator := infraopenai.NewGenerator(cfg.OpenAI.APIKey,
		infraopenai.WithGenerationModel(cfg.OpenAI.GenerationModel),
		infraopenai.WithTemperature(cfg.OpenAI.Temperature),
		infraopenai.WithMaxTokens(cfg.OpenAI.MaxTokens),
		infraopenai.WithGenerationTimeout(cfg.OpenAI.GenerationTimeout),
	)

	var (
		writeIndex ingestion.VectorIndex
		readIndex  retrieval.VectorIndex
	)

	switch cfg.VectorBackend {
	case "memory":
		idx := memory.NewVectorIndex()
		writeIndex, readIndex = idx, idx
		// メモリバックエンドでは書籍メタデータと履歴もインメモリで保持する
		c.Books = memory.NewBookRepository()
		c.Sessions = memory.NewSessionStore()
	case "postgres":
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("データベース接続に失敗: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, db.Pool); err != nil {
			db.Close()
			return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
		}
		c.db = db
		idx := postgres.NewVectorIndex(db.Pool,
			postgres.WithIndexTimeout(cfg.Database.IndexTimeout),
		)
		writeIndex, readIndex = idx, idx
		c.Books = postgres.NewBookRepository(db.Pool)
		c.Sessions = postgres.NewSessionStore(db.Pool)
	default:
		return nil, fmt.Errorf("unknown vector backend: %q", cfg.VectorBackend)
	}

	chunker := ingestion.NewChunker(ingestion.ChunkerConfig{
		MaxChunkChars: cfg.Chunker.MaxChunkChars,
		OverlapChars:  cfg.Chunker.OverlapChars,
	})

	c.Ingestion = ingestion.NewService(chunker, embedder, writeIndex, c.Books,
		ingestion.WithLogger(logger),
	)

	c.Retrieval = retrieval.NewService(embedder, readIndex, retrieval.Config{
		TopK:             cfg.Retrieval.TopK,
		MinSimilarity:    cfg.Retrieval.MinSimilarity,
		MaxEvidenceChars: cfg.Retrieval.MaxEvidenceChars,
	}, retrieval.WithLogger(logger))

	prompts, err := answer.NewPromptBuilder(cfg.Prompt.MaxEvidenceTokens, cfg.Prompt.HistoryTurns)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("プロンプトビルダーの初期化に失敗: %w", err)
	}

	answerService, err := answer.NewService(generator,
		answer.WithPromptBuilder(prompts),
		answer.WithLogger(logger),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("回答サービスの初期化に失敗: %w", err)
	}
	c.Answer = answerService

	c.Chat = chat.NewService(c.Retrieval, c.Answer, c.Books,
		chat.WithSessionStore(c.Sessions),
		chat.WithHistoryLimit(cfg.Prompt.HistoryTurns),
		chat.WithLogger(logger),
	)

	return c, nil
}

// Logger はコンテナのロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	return c.logger
}

// Close はコンテナが保持するリソースをクリーンアップする
func (c *ServiceContainer) Close() {
	if c.db != nil {
		c.db.Close()
	}
}
