package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hondana-dev/hondana/internal/core/answer"
	"github.com/hondana-dev/hondana/internal/core/ingestion"
	"github.com/hondana-dev/hondana/internal/core/retrieval"
	"github.com/hondana-dev/hondana/internal/core/session"
)

const (
	// DefaultHistoryLimit はプロンプトに含めるために取得する直近の会話数
	DefaultHistoryLimit = 3
)

// Retriever は証拠選定インターフェース
type Retriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) (retrieval.Evidence, error)
}

// Answerer は回答生成インターフェース
type Answerer interface {
	Answer(ctx context.Context, q retrieval.Query, evidence retrieval.Evidence, history []session.Turn) (*answer.Answer, error)
}

// BookReader は書籍メタデータの参照インターフェース
type BookReader interface {
	GetBook(ctx context.Context, bookID string) (*ingestion.Book, error)
}

// Result は1回のチャット応答を表す
type Result struct {
	ResponseID uuid.UUID
	Answer     *answer.Answer
	Timestamp  time.Time
}

// Service は外部インターフェースから呼び出されるエンジンの窓口
// 会話履歴の参照・追記、証拠選定、回答生成を1リクエスト分つなぎ合わせる
type Service struct {
	retriever    Retriever
	answerer     Answerer
	books        BookReader
	sessions     session.Store // nil の場合は履歴なしで動作する
	historyLimit int
	logger       *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithSessionStore は会話履歴ストアを設定する
func WithSessionStore(store session.Store) ServiceOption {
	return func(s *Service) {
		s.sessions = store
	}
}

// WithHistoryLimit は取得する履歴数を上書きする
func WithHistoryLimit(limit int) ServiceOption {
	return func(s *Service) {
		if limit >= 0 {
			s.historyLimit = limit
		}
	}
}

// NewService は新しいチャットServiceを作成する
func NewService(retriever Retriever, answerer Answerer, books BookReader, opts ...ServiceOption) *Service {
	svc := &Service{
		retriever:    retriever,
		answerer:     answerer,
		books:        books,
		historyLimit: DefaultHistoryLimit,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

// Chat は質問に対してグラウンデッドな回答を返す
//
// 能力バックエンドの障害（Embedding・検索・生成）はそのまま呼び出し元へ
// 伝播する。根拠不在による拒否回答（Grounded=false）は正常な結果であり、
// 障害とは区別される
func (s *Service) Chat(ctx context.Context, q retrieval.Query) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	// 書籍の存在確認（full_book モードのみ。選択テキストは書籍に依存しない）
	if q.Mode == retrieval.ModeFullBook {
		if _, err := s.books.GetBook(ctx, q.BookID); err != nil {
			return nil, fmt.Errorf("failed to resolve book %s: %w", q.BookID, err)
		}
	}

	history := s.loadHistory(ctx, q.SessionID)

	evidence, err := s.retriever.Retrieve(ctx, q)
	if err != nil {
		return nil, err
	}

	result, err := s.answerer.Answer(ctx, q, evidence, history)
	if err != nil {
		return nil, err
	}

	// 拒否回答は会話の文脈として意味を持たないため履歴には残さない。
	// 残すと固定の拒否文が「前回の回答」として後続プロンプトに混入する
	if result.Grounded {
		s.appendHistory(ctx, q, result)
	}

	return &Result{
		ResponseID: uuid.New(),
		Answer:     result,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// loadHistory は直近の会話履歴を取得する
// 履歴の取得失敗は回答品質にしか影響しないため、エラーは握りつぶさず
// ログに残した上で空履歴として継続する
func (s *Service) loadHistory(ctx context.Context, sessionID string) []session.Turn {
	if s.sessions == nil || sessionID == "" || s.historyLimit == 0 {
		return nil
	}

	history, err := s.sessions.GetHistory(ctx, sessionID, s.historyLimit)
	if err != nil {
		s.logger.Warn("会話履歴の取得に失敗しました", "sessionID", sessionID, "error", err)
		return nil
	}
	return history
}

// appendHistory は今回の往復を履歴へ追記する
func (s *Service) appendHistory(ctx context.Context, q retrieval.Query, ans *answer.Answer) {
	if s.sessions == nil || q.SessionID == "" {
		return
	}

	turn := session.Turn{
		Query:     q.Text,
		Answer:    ans.Text,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.sessions.Append(ctx, q.SessionID, turn); err != nil {
		s.logger.Warn("会話履歴の追記に失敗しました", "sessionID", q.SessionID, "error", err)
	}
}
