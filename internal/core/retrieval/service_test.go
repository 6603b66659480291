package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hondana-dev/hondana/internal/core/capability"
	"github.com/hondana-dev/hondana/internal/core/ingestion"
)

// stubEmbedder はテスト用のクエリEmbedder実装
type stubEmbedder struct {
	calls int
	fail  bool
}

func (e *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	e.calls++
	if e.fail {
		return nil, capability.ErrEmbeddingUnavailable
	}
	return []float32{1, 0, 0}, nil
}

// stubIndex はテスト用のVectorIndex実装
type stubIndex struct {
	calls   int
	matches []Match
	fail    bool
}

func (idx *stubIndex) Search(_ context.Context, _ string, _ []float32, topK int) ([]Match, error) {
	idx.calls++
	if idx.fail {
		return nil, capability.ErrIndexUnavailable
	}
	if len(idx.matches) > topK {
		return idx.matches[:topK], nil
	}
	return idx.matches, nil
}

func match(id string, seq int, score float64, text string) Match {
	return Match{
		Chunk: ingestion.Chunk{
			ID:            id,
			BookID:        "book-1",
			Text:          text,
			SequenceIndex: seq,
		},
		Score: score,
	}
}

// TestRetrieveSelectedTextSkipsSearch は選択テキストモードで検索が
// 一切実行されないことを確認します
func TestRetrieveSelectedTextSkipsSearch(t *testing.T) {
	embedder := &stubEmbedder{}
	index := &stubIndex{}
	svc := NewService(embedder, index, DefaultConfig())

	q := Query{
		Text:         "この部分はどういう意味ですか",
		Mode:         ModeSelectedText,
		SelectedText: mo.Some("ユーザーが選択した一節"),
	}

	evidence, err := svc.Retrieve(context.Background(), q)
	require.NoError(t, err)

	require.Len(t, evidence, 1)
	assert.Equal(t, SelectionRef, evidence[0].Ref)
	assert.Equal(t, "ユーザーが選択した一節", evidence[0].Text)
	assert.Equal(t, 1.0, evidence[0].Score)

	// 選択テキストは無条件に信頼されるため、Embedも検索も呼ばれない
	assert.Equal(t, 0, embedder.calls)
	assert.Equal(t, 0, index.calls)
}

// TestRetrieveSelectedTextIgnoresThreshold は選択テキストが閾値の影響を
// 受けないことを確認します
func TestRetrieveSelectedTextIgnoresThreshold(t *testing.T) {
	svc := NewService(&stubEmbedder{}, &stubIndex{}, Config{
		TopK:          5,
		MinSimilarity: 0.99, // 閾値を極端に高くしても選択テキストは残る
	})

	q := Query{
		Text:         "質問",
		Mode:         ModeSelectedText,
		SelectedText: mo.Some("選択テキスト"),
	}

	evidence, err := svc.Retrieve(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	assert.Equal(t, 1.0, evidence[0].Score)
}

// TestRetrieveFullBookFiltersByThreshold は類似度閾値τ未満の候補が
// 除外されることを確認します
func TestRetrieveFullBookFiltersByThreshold(t *testing.T) {
	index := &stubIndex{matches: []Match{
		match("chunk-a", 0, 0.90, "最も関連する一節"),
		match("chunk-b", 1, 0.50, "そこそこ関連する一節"),
		match("chunk-c", 2, 0.20, "ほとんど関連しない一節"),
	}}
	svc := NewService(&stubEmbedder{}, index, Config{TopK: 5, MinSimilarity: 0.35})

	q := Query{Text: "質問", Mode: ModeFullBook, BookID: "book-1"}

	evidence, err := svc.Retrieve(context.Background(), q)
	require.NoError(t, err)

	require.Len(t, evidence, 2)
	assert.Equal(t, "chunk-a", evidence[0].Ref)
	assert.Equal(t, "chunk-b", evidence[1].Ref)
}

// TestRetrieveFullBookEmptyResult は該当なしが空のEvidenceとして
// 返ることを確認します（エラーではない）
func TestRetrieveFullBookEmptyResult(t *testing.T) {
	index := &stubIndex{matches: []Match{
		match("chunk-a", 0, 0.10, "関連しない一節"),
	}}
	svc := NewService(&stubEmbedder{}, index, Config{TopK: 5, MinSimilarity: 0.35})

	q := Query{Text: "全く関係ない質問", Mode: ModeFullBook, BookID: "book-1"}

	evidence, err := svc.Retrieve(context.Background(), q)
	require.NoError(t, err)
	assert.Empty(t, evidence)
}

// TestRetrieveEmbeddingFailurePropagates はEmbedding障害がそのまま
// 伝播することを確認します
func TestRetrieveEmbeddingFailurePropagates(t *testing.T) {
	svc := NewService(&stubEmbedder{fail: true}, &stubIndex{}, DefaultConfig())

	q := Query{Text: "質問", Mode: ModeFullBook, BookID: "book-1"}

	_, err := svc.Retrieve(context.Background(), q)
	require.Error(t, err)
	assert.ErrorIs(t, err, capability.ErrEmbeddingUnavailable)
}

// TestRetrieveIndexFailurePropagates は検索障害がそのまま伝播することを確認します
func TestRetrieveIndexFailurePropagates(t *testing.T) {
	svc := NewService(&stubEmbedder{}, &stubIndex{fail: true}, DefaultConfig())

	q := Query{Text: "質問", Mode: ModeFullBook, BookID: "book-1"}

	_, err := svc.Retrieve(context.Background(), q)
	require.Error(t, err)
	assert.ErrorIs(t, err, capability.ErrIndexUnavailable)
}

// TestRetrieveBudgetDropsLowestScores は文字数予算超過時にスコアの低い
// 証拠から順に落とされることを確認します
func TestRetrieveBudgetDropsLowestScores(t *testing.T) {
	index := &stubIndex{matches: []Match{
		match("chunk-a", 0, 0.90, strings.Repeat("あ", 40)),
		match("chunk-b", 1, 0.70, strings.Repeat("い", 40)),
		match("chunk-c", 2, 0.50, strings.Repeat("う", 40)),
	}}
	svc := NewService(&stubEmbedder{}, index, Config{
		TopK:             5,
		MinSimilarity:    0.35,
		MaxEvidenceChars: 100,
	})

	q := Query{Text: "質問", Mode: ModeFullBook, BookID: "book-1"}

	evidence, err := svc.Retrieve(context.Background(), q)
	require.NoError(t, err)

	// 100文字の予算には上位2件（80文字）までしか入らない
	require.Len(t, evidence, 2)
	assert.Equal(t, "chunk-a", evidence[0].Ref)
	assert.Equal(t, "chunk-b", evidence[1].Ref)
}

// TestRetrieveBudgetTruncatesSingleOversizedItem は先頭1件だけで予算を
// 超える場合にテキストが予算まで切り詰められることを確認します
func TestRetrieveBudgetTruncatesSingleOversizedItem(t *testing.T) {
	index := &stubIndex{matches: []Match{
		match("chunk-a", 0, 0.90, strings.Repeat("あ", 200)),
		match("chunk-b", 1, 0.70, strings.Repeat("い", 50)),
	}}
	svc := NewService(&stubEmbedder{}, index, Config{
		TopK:             5,
		MinSimilarity:    0.35,
		MaxEvidenceChars: 100,
	})

	q := Query{Text: "質問", Mode: ModeFullBook, BookID: "book-1"}

	evidence, err := svc.Retrieve(context.Background(), q)
	require.NoError(t, err)

	require.Len(t, evidence, 1)
	assert.Equal(t, "chunk-a", evidence[0].Ref)
	assert.Equal(t, 100, len([]rune(evidence[0].Text)))
}

// TestRetrieveTieBreakBySequence は同点スコアがSequenceIndex昇順で
// 並ぶことを確認します
func TestRetrieveTieBreakBySequence(t *testing.T) {
	index := &stubIndex{matches: []Match{
		match("chunk-late", 5, 0.80, "後方の一節"),
		match("chunk-early", 1, 0.80, "前方の一節"),
	}}
	svc := NewService(&stubEmbedder{}, index, Config{TopK: 5, MinSimilarity: 0.35})

	q := Query{Text: "質問", Mode: ModeFullBook, BookID: "book-1"}

	evidence, err := svc.Retrieve(context.Background(), q)
	require.NoError(t, err)

	require.Len(t, evidence, 2)
	assert.Equal(t, "chunk-early", evidence[0].Ref)
	assert.Equal(t, "chunk-late", evidence[1].Ref)
}

// TestQueryValidate はモードとフィールドの整合性検証を確認します
func TestQueryValidate(t *testing.T) {
	tests := []struct {
		name    string
		query   Query
		wantErr bool
	}{
		{
			name:    "full_bookモードの正常なクエリ",
			query:   Query{Text: "質問", Mode: ModeFullBook, BookID: "book-1"},
			wantErr: false,
		},
		{
			name:    "選択テキストモードの正常なクエリ",
			query:   Query{Text: "質問", Mode: ModeSelectedText, SelectedText: mo.Some("選択")},
			wantErr: false,
		},
		{
			name:    "質問文なし",
			query:   Query{Mode: ModeFullBook, BookID: "book-1"},
			wantErr: true,
		},
		{
			name:    "full_bookモードで書籍IDなし",
			query:   Query{Text: "質問", Mode: ModeFullBook},
			wantErr: true,
		},
		{
			name:    "選択テキストモードで選択なし",
			query:   Query{Text: "質問", Mode: ModeSelectedText},
			wantErr: true,
		},
		{
			name:    "不明なモード",
			query:   Query{Text: "質問", Mode: Mode("hybrid"), BookID: "book-1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
