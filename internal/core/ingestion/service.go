package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultEmbeddingBatchSize はEmbedding APIのデフォルトバッチサイズ
	DefaultEmbeddingBatchSize = 100
)

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// EmbedBatch は複数テキストのEmbeddingを入力順を保って生成する
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// MaxBatchSize は一度に処理できる最大テキスト数を返す
	MaxBatchSize() int
}

// VectorIndex はチャンクベクトルの書き込み側インターフェース
type VectorIndex interface {
	// Upsert はチャンクを登録する。同一IDのチャンクは置き換えられる
	Upsert(ctx context.Context, bookID string, chunks []EmbeddedChunk) error

	// DeleteBook は指定書籍の全チャンクを削除する。他の書籍には影響しない
	DeleteBook(ctx context.Context, bookID string) error
}

// BookRepository は書籍メタデータの永続化インターフェース
type BookRepository interface {
	// SaveBook は書籍メタデータを保存する。既存IDは上書きされる
	SaveBook(ctx context.Context, book *Book) error

	// GetBook は書籍メタデータを取得する。存在しない場合は ErrBookNotFound を返す
	GetBook(ctx context.Context, bookID string) (*Book, error)

	// ListBooks は取り込み済み書籍の一覧を返す
	ListBooks(ctx context.Context) ([]*Book, error)

	// DeleteBook は書籍メタデータを削除する
	DeleteBook(ctx context.Context, bookID string) error
}

// Service は書籍取り込みのビジネスロジックを提供する
// パイプライン: Chunker → Embedder.EmbedBatch → VectorIndex.Upsert
type Service struct {
	chunker   *Chunker
	embedder  Embedder
	index     VectorIndex
	books     BookRepository
	batchSize int
	logger    *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithEmbeddingBatchSize はEmbeddingバッチサイズを上書きする
func WithEmbeddingBatchSize(size int) ServiceOption {
	return func(s *Service) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// NewService は新しい取り込みServiceを作成する
func NewService(
	chunker *Chunker,
	embedder Embedder,
	index VectorIndex,
	books BookRepository,
	opts ...ServiceOption,
) *Service {
	svc := &Service{
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		books:     books,
		batchSize: DefaultEmbeddingBatchSize,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	// バッチサイズをEmbedderの上限でクリップする
	if maxBatch := embedder.MaxBatchSize(); maxBatch > 0 && svc.batchSize > maxBatch {
		svc.batchSize = maxBatch
	}

	return svc
}

// Ingest は書籍本文をチャンク化・ベクトル化してインデックスへ登録する
//
// 同一bookIDの再取り込みは既存チャンクを完全に置き換える。
// Embeddingは全バッチの成功を確認してからインデックスへ書き込むため、
// 途中のバッチが失敗しても検索可能な中途半端な状態は残らない
func (s *Service) Ingest(ctx context.Context, bookID, title, author, content string) (*IngestResult, error) {
	if bookID == "" {
		return nil, fmt.Errorf("bookID is required")
	}
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}

	chunks := s.chunker.Split(bookID, content)

	s.logger.Info("書籍の取り込みを開始",
		"bookID", bookID,
		"title", title,
		"chunks", len(chunks),
	)

	// 全チャンクのEmbeddingを先に揃える（all-or-nothing）
	embedded := make([]EmbeddedChunk, 0, len(chunks))
	for batchStart := 0; batchStart < len(chunks); batchStart += s.batchSize {
		batchEnd := batchStart + s.batchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		batch := chunks[batchStart:batchEnd]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}

		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks for book %s: %w", bookID, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch for book %s: got %d, want %d", bookID, len(vectors), len(batch))
		}

		for i, chunk := range batch {
			embedded = append(embedded, EmbeddedChunk{Chunk: chunk, Vector: vectors[i]})
		}
	}

	// 書籍メタデータを保存
	if err := s.books.SaveBook(ctx, &Book{
		ID:        bookID,
		Title:     title,
		Author:    author,
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("failed to save book %s: %w", bookID, err)
	}

	// 旧チャンクを削除してから新チャンクを登録する（完全置き換え）
	if err := s.index.DeleteBook(ctx, bookID); err != nil {
		return nil, fmt.Errorf("failed to clear previous chunks for book %s: %w", bookID, err)
	}
	if len(embedded) > 0 {
		if err := s.index.Upsert(ctx, bookID, embedded); err != nil {
			return nil, fmt.Errorf("failed to upsert chunks for book %s: %w", bookID, err)
		}
	}

	s.logger.Info("書籍の取り込みが完了",
		"bookID", bookID,
		"chunksCreated", len(embedded),
	)

	return &IngestResult{
		BookID:        bookID,
		ChunksCreated: len(embedded),
	}, nil
}

// DeleteBook は書籍とその全チャンクを削除する
func (s *Service) DeleteBook(ctx context.Context, bookID string) error {
	if bookID == "" {
		return fmt.Errorf("bookID is required")
	}

	if err := s.index.DeleteBook(ctx, bookID); err != nil {
		return fmt.Errorf("failed to delete chunks for book %s: %w", bookID, err)
	}
	if err := s.books.DeleteBook(ctx, bookID); err != nil {
		return fmt.Errorf("failed to delete book %s: %w", bookID, err)
	}

	s.logger.Info("書籍を削除しました", "bookID", bookID)
	return nil
}
