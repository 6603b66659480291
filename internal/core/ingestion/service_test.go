package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hondana-dev/hondana/internal/core/capability"
)

// stubEmbedder はテスト用のEmbedder実装
type stubEmbedder struct {
	batchCalls  int
	failAtBatch int // 0なら失敗しない（1始まり）
	maxBatch    int
	shortOutput bool // 入力より少ないベクトルを返す
}

func (e *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.batchCalls++
	if e.failAtBatch > 0 && e.batchCalls >= e.failAtBatch {
		return nil, capability.ErrEmbeddingUnavailable
	}
	n := len(texts)
	if e.shortOutput {
		n--
	}
	vectors := make([][]float32, n)
	for i := range vectors {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (e *stubEmbedder) MaxBatchSize() int {
	if e.maxBatch > 0 {
		return e.maxBatch
	}
	return 100
}

// stubIndex はテスト用のVectorIndex実装
type stubIndex struct {
	upserted    []EmbeddedChunk
	upsertCalls int
	deleteCalls int
}

func (idx *stubIndex) Upsert(_ context.Context, _ string, chunks []EmbeddedChunk) error {
	idx.upsertCalls++
	idx.upserted = append(idx.upserted, chunks...)
	return nil
}

func (idx *stubIndex) DeleteBook(_ context.Context, _ string) error {
	idx.deleteCalls++
	return nil
}

// stubBookRepo はテスト用のBookRepository実装
type stubBookRepo struct {
	saved       map[string]*Book
	deleteCalls int
}

func newStubBookRepo() *stubBookRepo {
	return &stubBookRepo{saved: make(map[string]*Book)}
}

func (r *stubBookRepo) SaveBook(_ context.Context, book *Book) error {
	r.saved[book.ID] = book
	return nil
}

func (r *stubBookRepo) GetBook(_ context.Context, bookID string) (*Book, error) {
	book, ok := r.saved[bookID]
	if !ok {
		return nil, ErrBookNotFound
	}
	return book, nil
}

func (r *stubBookRepo) ListBooks(_ context.Context) ([]*Book, error) {
	books := make([]*Book, 0, len(r.saved))
	for _, b := range r.saved {
		books = append(books, b)
	}
	return books, nil
}

func (r *stubBookRepo) DeleteBook(_ context.Context, bookID string) error {
	r.deleteCalls++
	delete(r.saved, bookID)
	return nil
}

// TestIngestSuccess は取り込みの基本フローを確認します
func TestIngestSuccess(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{}
	index := &stubIndex{}
	repo := newStubBookRepo()

	svc := NewService(
		NewChunker(ChunkerConfig{MaxChunkChars: 50, OverlapChars: 0}),
		embedder, index, repo,
	)

	content := strings.Repeat("これは取り込みテストのための文章です。", 10)
	result, err := svc.Ingest(ctx, "book-1", "テスト書籍", "著者A", content)
	require.NoError(t, err)

	assert.Equal(t, "book-1", result.BookID)
	assert.True(t, result.ChunksCreated > 1)
	assert.Len(t, index.upserted, result.ChunksCreated)

	// 旧チャンクの削除後に登録される（完全置き換え）
	assert.Equal(t, 1, index.deleteCalls)
	assert.Equal(t, 1, index.upsertCalls)

	// 書籍メタデータが保存されている
	book, err := repo.GetBook(ctx, "book-1")
	require.NoError(t, err)
	assert.Equal(t, "テスト書籍", book.Title)
	assert.Equal(t, "著者A", book.Author)

	// 全チャンクにベクトルが付与されている
	for _, chunk := range index.upserted {
		assert.NotEmpty(t, chunk.Vector)
		assert.Equal(t, "book-1", chunk.BookID)
	}
}

// TestIngestEmptyContent は空の本文が0チャンクで正常終了することを確認します
func TestIngestEmptyContent(t *testing.T) {
	embedder := &stubEmbedder{}
	index := &stubIndex{}

	svc := NewService(NewChunker(DefaultChunkerConfig()), embedder, index, newStubBookRepo())

	result, err := svc.Ingest(context.Background(), "book-1", "空の書籍", "", "   ")
	require.NoError(t, err)

	assert.Equal(t, 0, result.ChunksCreated)
	assert.Equal(t, 0, embedder.batchCalls)
	assert.Equal(t, 0, index.upsertCalls)
}

// TestIngestEmbeddingFailureLeavesNoPartialState はバッチ途中の失敗で
// インデックスが一切更新されないことを確認します
func TestIngestEmbeddingFailureLeavesNoPartialState(t *testing.T) {
	embedder := &stubEmbedder{failAtBatch: 2, maxBatch: 2}
	index := &stubIndex{}
	repo := newStubBookRepo()

	svc := NewService(
		NewChunker(ChunkerConfig{MaxChunkChars: 30, OverlapChars: 0}),
		embedder, index, repo,
		WithEmbeddingBatchSize(2),
	)

	content := strings.Repeat("バッチ分割が発生する長さの文章です。", 20)
	_, err := svc.Ingest(context.Background(), "book-1", "失敗する書籍", "", content)

	require.Error(t, err)
	assert.ErrorIs(t, err, capability.ErrEmbeddingUnavailable)

	// 2バッチ目で失敗しているので全バッチ成功前に書き込みは起きない
	assert.Equal(t, 2, embedder.batchCalls)
	assert.Equal(t, 0, index.deleteCalls)
	assert.Equal(t, 0, index.upsertCalls)
	assert.Empty(t, repo.saved)
}

// TestIngestEmbeddingCountMismatch はベクトル数の不一致がエラーになることを確認します
func TestIngestEmbeddingCountMismatch(t *testing.T) {
	embedder := &stubEmbedder{shortOutput: true}
	index := &stubIndex{}

	svc := NewService(
		NewChunker(ChunkerConfig{MaxChunkChars: 30, OverlapChars: 0}),
		embedder, index, newStubBookRepo(),
	)

	content := strings.Repeat("ベクトル数が合わない場合の文章です。", 10)
	_, err := svc.Ingest(context.Background(), "book-1", "不一致の書籍", "", content)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
	assert.Equal(t, 0, index.upsertCalls)
}

// TestIngestValidation は必須フィールドの検証を確認します
func TestIngestValidation(t *testing.T) {
	svc := NewService(NewChunker(DefaultChunkerConfig()), &stubEmbedder{}, &stubIndex{}, newStubBookRepo())

	_, err := svc.Ingest(context.Background(), "", "タイトル", "", "本文")
	assert.Error(t, err)

	_, err = svc.Ingest(context.Background(), "book-1", "", "", "本文")
	assert.Error(t, err)
}

// TestIngestBatchSizeClippedToEmbedder はバッチサイズがEmbedderの上限に
// クリップされることを確認します
func TestIngestBatchSizeClippedToEmbedder(t *testing.T) {
	embedder := &stubEmbedder{maxBatch: 3}
	index := &stubIndex{}

	svc := NewService(
		NewChunker(ChunkerConfig{MaxChunkChars: 20, OverlapChars: 0}),
		embedder, index, newStubBookRepo(),
		WithEmbeddingBatchSize(100),
	)

	content := strings.Repeat("短い文です。", 30)
	result, err := svc.Ingest(context.Background(), "book-1", "バッチの書籍", "", content)
	require.NoError(t, err)

	// 上限3のバッチに分割されている
	wantCalls := (result.ChunksCreated + 2) / 3
	assert.Equal(t, wantCalls, embedder.batchCalls)
}

// TestDeleteBook は書籍削除がインデックスとメタデータの両方に及ぶことを確認します
func TestDeleteBook(t *testing.T) {
	ctx := context.Background()
	index := &stubIndex{}
	repo := newStubBookRepo()

	svc := NewService(NewChunker(DefaultChunkerConfig()), &stubEmbedder{}, index, repo)

	_, err := svc.Ingest(ctx, "book-1", "削除対象", "", "削除される本文です。")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteBook(ctx, "book-1"))

	_, err = repo.GetBook(ctx, "book-1")
	assert.True(t, errors.Is(err, ErrBookNotFound))
	assert.Equal(t, 2, index.deleteCalls) // 取り込み時の置き換え + 削除
}
