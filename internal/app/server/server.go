package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/hondana-dev/hondana/internal/core/capability"
	"github.com/hondana-dev/hondana/internal/core/chat"
	"github.com/hondana-dev/hondana/internal/core/ingestion"
	"github.com/hondana-dev/hondana/internal/core/retrieval"
	"github.com/hondana-dev/hondana/internal/core/session"
)

const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 120 * time.Second // 回答生成はリトライ込みで時間がかかる
	shutdownTimeout = 5 * time.Second
)

// Server はエンジンを外部に公開する薄いHTTP層
// バリデーションとエラーのステータス変換のみを行い、判断はすべてコアに委ねる
type Server struct {
	chat      *chat.Service
	ingestion *ingestion.Service
	sessions  session.Store
	addr      string
	logger    *slog.Logger
}

// NewServer は新しいHTTPサーバを作成する
func NewServer(chatSvc *chat.Service, ingestSvc *ingestion.Service, sessions session.Store, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		chat:      chatSvc,
		ingestion: ingestSvc,
		sessions:  sessions,
		addr:      addr,
		logger:    logger,
	}
}

// Start はHTTPサーバを起動し、ctxのキャンセルでグレースフルに停止する
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/books/ingest", s.handleIngest)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.loggingMiddleware(mux),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("サーバの停止に失敗しました", slog.String("error", err.Error()))
		}
	}()

	s.logger.Info("HTTPサーバを起動します", slog.String("addr", s.addr))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type ingestRequest struct {
	BookID  string `json:"book_id"`
	Title   string `json:"title"`
	Author  string `json:"author"`
	Content string `json:"content"`
}

type ingestResponse struct {
	BookID        string `json:"book_id"`
	ChunksCreated int    `json:"chunks_created"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.BookID == "" {
		req.BookID = uuid.NewString()
	}

	result, err := s.ingestion.Ingest(r.Context(), req.BookID, req.Title, req.Author, req.Content)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		BookID:        result.BookID,
		ChunksCreated: result.ChunksCreated,
	})
}

type chatRequest struct {
	SessionID    string `json:"session_id"`
	Query        string `json:"query"`
	Mode         string `json:"mode"`
	BookID       string `json:"book_id"`
	SelectedText string `json:"selected_text"`
}

type citationPayload struct {
	Ref    string `json:"ref"`
	BookID string `json:"book_id,omitempty"`
	Quote  string `json:"quote"`
}

type chatResponse struct {
	ResponseID string            `json:"response_id"`
	Answer     string            `json:"answer"`
	Citations  []citationPayload `json:"citations"`
	Grounded   bool              `json:"grounded"`
	Confidence float64           `json:"confidence"`
	Mode       string            `json:"mode"`
	Timestamp  time.Time         `json:"timestamp"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	q := retrieval.Query{
		SessionID: req.SessionID,
		Text:      req.Query,
		Mode:      retrieval.Mode(req.Mode),
		BookID:    req.BookID,
	}
	if req.SelectedText != "" {
		q.SelectedText = mo.Some(req.SelectedText)
	}

	// モードとフィールドの整合性はエンジンに渡す前に検査する
	if err := q.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.chat.Chat(r.Context(), q)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toChatResponse(result))
}

func toChatResponse(result *chat.Result) chatResponse {
	citations := make([]citationPayload, 0, len(result.Answer.Citations))
	for _, c := range result.Answer.Citations {
		citations = append(citations, citationPayload{
			Ref:    c.Ref,
			BookID: c.BookID,
			Quote:  c.Quote,
		})
	}
	return chatResponse{
		ResponseID: result.ResponseID.String(),
		Answer:     result.Answer.Text,
		Citations:  citations,
		Grounded:   result.Answer.Grounded,
		Confidence: result.Answer.Confidence,
		Mode:       string(result.Answer.Mode),
		Timestamp:  result.Timestamp,
	}
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessions.CreateSession(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: id.String()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeEngineError はエンジンのエラーをHTTPステータスへ変換する
// 能力バックエンドの障害は503とし、どの能力が落ちているかを応答に含める。
// 根拠不在の拒否回答はここを通らない（Grounded=false の200応答になる）
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var capabilityName string
	switch {
	case errors.Is(err, ingestion.ErrBookNotFound):
		writeError(w, http.StatusNotFound, "book not found")
		return
	case errors.Is(err, capability.ErrEmbeddingUnavailable):
		capabilityName = "embedding"
	case errors.Is(err, capability.ErrIndexUnavailable):
		capabilityName = "index"
	case errors.Is(err, capability.ErrGenerationUnavailable):
		capabilityName = "generation"
	default:
		s.logger.Error("リクエスト処理に失敗しました", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.logger.Error("能力バックエンドが利用できません",
		slog.String("capability", capabilityName),
		slog.String("error", err.Error()),
	)
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"error":      fmt.Sprintf("%s capability unavailable", capabilityName),
		"capability": capabilityName,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Error("レスポンスの書き込みに失敗しました", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
