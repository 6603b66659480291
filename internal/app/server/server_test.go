package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hondana-dev/hondana/internal/core/answer"
	"github.com/hondana-dev/hondana/internal/core/capability"
	"github.com/hondana-dev/hondana/internal/core/chat"
	"github.com/hondana-dev/hondana/internal/core/ingestion"
	"github.com/hondana-dev/hondana/internal/core/retrieval"
	"github.com/hondana-dev/hondana/internal/infra/memory"
)

// stubEmbedder はキーワード一致で決定的なベクトルを返すテスト用Embedder
type stubEmbedder struct{}

func stubVector(text string) []float32 {
	if strings.Contains(text, "猫") {
		return []float32{1, 0}
	}
	return []float32{0, 1}
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return stubVector(text), nil
}

func (e *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = stubVector(text)
	}
	return vectors, nil
}

func (e *stubEmbedder) MaxBatchSize() int { return 100 }

// stubGenerator はテスト用のGenerator実装
type stubGenerator struct {
	output string
	err    error
}

func (g *stubGenerator) Generate(_ context.Context, _ string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.output, nil
}

func newTestServer(t *testing.T, gen *stubGenerator) *Server {
	t.Helper()

	embedder := &stubEmbedder{}
	index := memory.NewVectorIndex()
	books := memory.NewBookRepository()
	sessions := memory.NewSessionStore()

	ingestSvc := ingestion.NewService(
		ingestion.NewChunker(ingestion.DefaultChunkerConfig()),
		embedder, index, books,
	)

	retrieveSvc := retrieval.NewService(embedder, index, retrieval.DefaultConfig())
	answerSvc, err := answer.NewService(gen)
	require.NoError(t, err)

	chatSvc := chat.NewService(retrieveSvc, answerSvc, books,
		chat.WithSessionStore(sessions),
	)

	return NewServer(chatSvc, ingestSvc, sessions, ":0", nil)
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

// TestHandleIngestAndChat は取り込みからチャットまでの一連のAPIを確認します
func TestHandleIngestAndChat(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{output: "主人公は猫です[1]。"})

	// 取り込み
	rec := postJSON(t, srv.handleIngest, ingestRequest{
		BookID:  "book-1",
		Title:   "吾輩は猫である",
		Author:  "夏目漱石",
		Content: "吾輩は猫である。名前はまだ無い。",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var ingestResp ingestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ingestResp))
	assert.Equal(t, "book-1", ingestResp.BookID)
	assert.Equal(t, 1, ingestResp.ChunksCreated)

	// チャット
	rec = postJSON(t, srv.handleChat, chatRequest{
		Query:  "主人公の猫について教えてください",
		Mode:   "full_book",
		BookID: "book-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var chatResp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chatResp))
	assert.True(t, chatResp.Grounded)
	assert.Equal(t, "主人公は猫です[1]。", chatResp.Answer)
	assert.NotEmpty(t, chatResp.ResponseID)
	require.Len(t, chatResp.Citations, 1)
	assert.Equal(t, "book-1", chatResp.Citations[0].BookID)
}

// TestHandleChatRefusalIsOK は根拠不在の拒否回答が200で返ることを確認します
// （能力障害の503とは区別される）
func TestHandleChatRefusalIsOK(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{output: "呼ばれてはいけない出力"})

	rec := postJSON(t, srv.handleIngest, ingestRequest{
		BookID: "book-1", Title: "書籍", Content: "吾輩は猫である。",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, srv.handleChat, chatRequest{
		Query:  "関係のない質問",
		Mode:   "full_book",
		BookID: "book-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var chatResp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chatResp))
	assert.False(t, chatResp.Grounded)
	assert.Equal(t, answer.RefusalText, chatResp.Answer)
	assert.Empty(t, chatResp.Citations)
}

// TestHandleChatValidation は不整合なリクエストが400で拒否されることを確認します
func TestHandleChatValidation(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{output: "出力"})

	tests := []struct {
		name string
		req  chatRequest
	}{
		{
			name: "質問なし",
			req:  chatRequest{Mode: "full_book", BookID: "book-1"},
		},
		{
			name: "full_bookモードで書籍IDなし",
			req:  chatRequest{Query: "質問", Mode: "full_book"},
		},
		{
			name: "選択テキストモードで選択なし",
			req:  chatRequest{Query: "質問", Mode: "selected_text_only"},
		},
		{
			name: "不明なモード",
			req:  chatRequest{Query: "質問", Mode: "hybrid", BookID: "book-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, srv.handleChat, tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

// TestHandleChatUnknownBook は存在しない書籍への質問が404になることを確認します
func TestHandleChatUnknownBook(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{output: "出力"})

	rec := postJSON(t, srv.handleChat, chatRequest{
		Query:  "質問",
		Mode:   "full_book",
		BookID: "no-such-book",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestHandleChatCapabilityOutage は能力障害が503と能力名で返ることを確認します
func TestHandleChatCapabilityOutage(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{err: capability.ErrGenerationUnavailable})

	rec := postJSON(t, srv.handleIngest, ingestRequest{
		BookID: "book-1", Title: "書籍", Content: "吾輩は猫である。",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, srv.handleChat, chatRequest{
		Query:  "猫について",
		Mode:   "full_book",
		BookID: "book-1",
	})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "generation", body["capability"])
}

// TestHandleIngestValidation は必須フィールド欠落が400になることを確認します
func TestHandleIngestValidation(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{output: "出力"})

	rec := postJSON(t, srv.handleIngest, ingestRequest{Content: "本文のみ"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, srv.handleIngest, ingestRequest{Title: "タイトルのみ"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestHandleCreateSession はセッション作成がIDを返すことを確認します
func TestHandleCreateSession(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{output: "出力"})

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	srv.handleCreateSession(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
}

// TestHandleHealth はヘルスチェックを確認します
func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{output: "出力"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
