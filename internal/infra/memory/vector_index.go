package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/hondana-dev/hondana/internal/core/ingestion"
	"github.com/hondana-dev/hondana/internal/core/retrieval"
)

// VectorIndex は総当たりのコサイン類似度によるインメモリのベクトルインデックス
// 外部バックエンドなしで動作させたい場合やテストで使用する
type VectorIndex struct {
	mu     sync.RWMutex
	chunks map[string]map[string]ingestion.EmbeddedChunk // bookID -> chunkID -> chunk
}

// NewVectorIndex は新しい VectorIndex を作成する
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{
		chunks: make(map[string]map[string]ingestion.EmbeddedChunk),
	}
}

// Upsert はチャンクを登録する。同一IDのチャンクは置き換えられる
func (idx *VectorIndex) Upsert(ctx context.Context, bookID string, chunks []ingestion.EmbeddedChunk) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	book, ok := idx.chunks[bookID]
	if !ok {
		book = make(map[string]ingestion.EmbeddedChunk, len(chunks))
		idx.chunks[bookID] = book
	}
	for _, chunk := range chunks {
		book[chunk.ID] = chunk
	}
	return nil
}

// Search はコサイン類似度の降順（同点はSequenceIndex昇順）で最大topK件を返す
func (idx *VectorIndex) Search(ctx context.Context, bookID string, vector []float32, topK int) ([]retrieval.Match, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if topK <= 0 {
		return nil, nil
	}

	book := idx.chunks[bookID]
	matches := make([]retrieval.Match, 0, len(book))
	for _, chunk := range book {
		matches = append(matches, retrieval.Match{
			Chunk: chunk.Chunk,
			Score: cosineSimilarity(vector, chunk.Vector),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Chunk.SequenceIndex < matches[j].Chunk.SequenceIndex
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// DeleteBook は指定書籍の全チャンクを削除する
func (idx *VectorIndex) DeleteBook(ctx context.Context, bookID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.chunks, bookID)
	return nil
}

// ChunkCount は指定書籍の保持チャンク数を返す
func (idx *VectorIndex) ChunkCount(bookID string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.chunks[bookID])
}

// cosineSimilarity はコサイン類似度を計算する
// ゼロベクトルとの類似度は 0 とする
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// インターフェース実装の確認
var _ ingestion.VectorIndex = (*VectorIndex)(nil)
var _ retrieval.VectorIndex = (*VectorIndex)(nil)
