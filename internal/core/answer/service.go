package answer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hondana-dev/hondana/internal/core/retrieval"
	"github.com/hondana-dev/hondana/internal/core/session"
)

// Generator は回答生成バックエンドのインターフェース
type Generator interface {
	// Generate はプロンプトに対する生成テキストを返す
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service は証拠からグラウンデッドな回答を組み立てる
//
// 証拠が空の場合は生成バックエンドを呼び出すことなく固定の拒否回答を返す。
// これはハルシネーション防止の中核となるゲートであり、無条件に適用される
type Service struct {
	gen     Generator
	prompts *PromptBuilder
	logger  *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithPromptBuilder はPromptBuilderを差し替える
func WithPromptBuilder(builder *PromptBuilder) ServiceOption {
	return func(s *Service) {
		s.prompts = builder
	}
}

// NewService は新しい回答Serviceを作成する
func NewService(gen Generator, opts ...ServiceOption) (*Service, error) {
	svc := &Service{
		gen:    gen,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.prompts == nil {
		builder, err := NewPromptBuilder(DefaultMaxEvidenceTokens, DefaultMaxHistoryTurns)
		if err != nil {
			return nil, err
		}
		svc.prompts = builder
	}

	return svc, nil
}

// Answer はクエリと証拠から引用付きの回答を生成する
//
// 生成出力に有効な参照マーカーが1つも含まれない場合は、より厳格な指示で
// 1回だけ再生成し、それでも引用が得られなければ拒否回答にフォールバックする。
// 生成バックエンドの障害はそのまま呼び出し元へ伝播し、決して捏造された
// 回答に変換されることはない
func (s *Service) Answer(
	ctx context.Context,
	q retrieval.Query,
	evidence retrieval.Evidence,
	history []session.Turn,
) (*Answer, error) {
	if len(evidence) == 0 {
		s.logger.Info("証拠が空のため拒否回答を返します",
			"bookID", q.BookID,
			"mode", string(q.Mode),
		)
		return newRefusal(q.Mode), nil
	}

	result, ok, err := s.generateOnce(ctx, q, evidence, history, false)
	if err != nil {
		return nil, err
	}
	if ok {
		return result, nil
	}

	// 引用なし: 厳格な指示で1回だけ再試行する
	s.logger.Warn("生成出力に参照マーカーがないため再試行します",
		"bookID", q.BookID,
	)

	result, ok, err = s.generateOnce(ctx, q, evidence, history, true)
	if err != nil {
		return nil, err
	}
	if ok {
		return result, nil
	}

	s.logger.Warn("再試行でも引用が得られなかったため拒否回答を返します",
		"bookID", q.BookID,
	)
	return newRefusal(q.Mode), nil
}

// generateOnce は1回の生成と検証を実行する
func (s *Service) generateOnce(
	ctx context.Context,
	q retrieval.Query,
	evidence retrieval.Evidence,
	history []session.Turn,
	strict bool,
) (*Answer, bool, error) {
	prompt, included := s.prompts.Build(q, evidence, history, strict)

	raw, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate answer for book %s: %w", q.BookID, err)
	}

	text, citations, grounded := extractGrounded(raw, included)
	if !grounded {
		return nil, false, nil
	}

	return &Answer{
		Text:       text,
		Citations:  citations,
		Grounded:   true,
		Mode:       q.Mode,
		Confidence: meanCitedScore(citations, included),
	}, true, nil
}

// meanCitedScore は引用された証拠の平均類似度を返す
func meanCitedScore(citations []Citation, evidence retrieval.Evidence) float64 {
	if len(citations) == 0 {
		return 0
	}

	scoreByRef := make(map[string]float64, len(evidence))
	for _, item := range evidence {
		scoreByRef[item.Ref] = item.Score
	}

	var total float64
	for _, c := range citations {
		total += scoreByRef[c.Ref]
	}
	return total / float64(len(citations))
}
