package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/hondana-dev/hondana/internal/core/capability"
	"github.com/hondana-dev/hondana/internal/core/ingestion"
	"github.com/hondana-dev/hondana/internal/core/retrieval"
)

// DefaultIndexTimeout はインデックス操作1回あたりのデフォルトタイムアウト
const DefaultIndexTimeout = 10 * time.Second

//go:embed schema.sql
var schemaSQL string

// EnsureSchema はスキーマを作成する（冪等）
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// VectorIndex は pgvector を使用したチャンクベクトルの永続化アダプター
// 各操作には個別のタイムアウトがかかり、期限切れは ErrIndexUnavailable として表面化する
type VectorIndex struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// IndexOption は VectorIndex のオプション設定
type IndexOption func(*VectorIndex)

// WithIndexTimeout は操作1回あたりのタイムアウトを上書きする
func WithIndexTimeout(timeout time.Duration) IndexOption {
	return func(idx *VectorIndex) {
		if timeout > 0 {
			idx.timeout = timeout
		}
	}
}

// NewVectorIndex は新しい VectorIndex を作成する
func NewVectorIndex(pool *pgxpool.Pool, opts ...IndexOption) *VectorIndex {
	idx := &VectorIndex{
		pool:    pool,
		timeout: DefaultIndexTimeout,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Upsert はチャンクを登録する。同一chunk_idの行はベクトル・本文ごと置き換えられる
func (idx *VectorIndex) Upsert(ctx context.Context, bookID string, chunks []ingestion.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, idx.timeout)
	defer cancel()

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		batch.Queue(`
			INSERT INTO book_chunks (chunk_id, book_id, content, start_offset, end_offset, sequence_index, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (chunk_id) DO UPDATE SET
				content = EXCLUDED.content,
				start_offset = EXCLUDED.start_offset,
				end_offset = EXCLUDED.end_offset,
				sequence_index = EXCLUDED.sequence_index,
				embedding = EXCLUDED.embedding
		`,
			chunk.ID,
			bookID,
			chunk.Text,
			chunk.StartOffset,
			chunk.EndOffset,
			chunk.SequenceIndex,
			pgvector.NewVector(chunk.Vector),
		)
	}

	results := idx.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("%w: failed to upsert chunks for book %s: %v", capability.ErrIndexUnavailable, bookID, err)
		}
	}

	return nil
}

// Search はコサイン類似度の降順（同点はsequence_index昇順）で最大topK件を返す
// 類似度は 1 - コサイン距離 として [0,1] に正規化される
func (idx *VectorIndex) Search(ctx context.Context, bookID string, vector []float32, topK int) ([]retrieval.Match, error) {
	ctx, cancel := context.WithTimeout(ctx, idx.timeout)
	defer cancel()

	rows, err := idx.pool.Query(ctx, `
		SELECT chunk_id, book_id, content, start_offset, end_offset, sequence_index,
		       1 - (embedding <=> $2) AS score
		FROM book_chunks
		WHERE book_id = $1
		ORDER BY embedding <=> $2 ASC, sequence_index ASC
		LIMIT $3
	`, bookID, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to search chunks for book %s: %v", capability.ErrIndexUnavailable, bookID, err)
	}
	defer rows.Close()

	var matches []retrieval.Match
	for rows.Next() {
		var chunk ingestion.Chunk
		var score float64
		if err := rows.Scan(
			&chunk.ID,
			&chunk.BookID,
			&chunk.Text,
			&chunk.StartOffset,
			&chunk.EndOffset,
			&chunk.SequenceIndex,
			&score,
		); err != nil {
			return nil, fmt.Errorf("%w: failed to scan search result: %v", capability.ErrIndexUnavailable, err)
		}
		matches = append(matches, retrieval.Match{Chunk: chunk, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: search rows error for book %s: %v", capability.ErrIndexUnavailable, bookID, err)
	}

	return matches, nil
}

// DeleteBook は指定書籍の全チャンクを削除する。他の書籍には影響しない
func (idx *VectorIndex) DeleteBook(ctx context.Context, bookID string) error {
	ctx, cancel := context.WithTimeout(ctx, idx.timeout)
	defer cancel()

	if _, err := idx.pool.Exec(ctx, `DELETE FROM book_chunks WHERE book_id = $1`, bookID); err != nil {
		return fmt.Errorf("%w: failed to delete chunks for book %s: %v", capability.ErrIndexUnavailable, bookID, err)
	}
	return nil
}

// インターフェース実装の確認
var _ ingestion.VectorIndex = (*VectorIndex)(nil)
var _ retrieval.VectorIndex = (*VectorIndex)(nil)
