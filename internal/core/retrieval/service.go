package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

const (
	// DefaultTopK は類似検索で考慮する候補数のデフォルト値
	DefaultTopK = 5
	// DefaultMinSimilarity は証拠として採用する最小類似度のデフォルト値
	DefaultMinSimilarity = 0.35
	// DefaultMaxEvidenceChars は下流へ渡す証拠全体の文字数予算のデフォルト値
	DefaultMaxEvidenceChars = 6000
)

// Embedder はクエリテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex はチャンクベクトルの検索側インターフェース
type VectorIndex interface {
	// Search は類似度降順（同点はSequenceIndex昇順）で最大topK件を返す
	Search(ctx context.Context, bookID string, vector []float32, topK int) ([]Match, error)
}

// Config は証拠選定のパラメータ
type Config struct {
	TopK             int     // 類似検索で考慮する候補数
	MinSimilarity    float64 // 採用する最小類似度 τ
	MaxEvidenceChars int     // 証拠全体の文字数予算
}

// DefaultConfig はデフォルトの証拠選定パラメータを返す
func DefaultConfig() Config {
	return Config{
		TopK:             DefaultTopK,
		MinSimilarity:    DefaultMinSimilarity,
		MaxEvidenceChars: DefaultMaxEvidenceChars,
	}
}

// Service はクエリとモードに応じて証拠として許容されるパッセージを選定する
type Service struct {
	embedder Embedder
	index    VectorIndex
	cfg      Config
	logger   *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しい検索Serviceを作成する
func NewService(embedder Embedder, index VectorIndex, cfg Config, opts ...ServiceOption) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MinSimilarity < 0 {
		cfg.MinSimilarity = 0
	}
	if cfg.MaxEvidenceChars <= 0 {
		cfg.MaxEvidenceChars = DefaultMaxEvidenceChars
	}

	svc := &Service{
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

// Retrieve はクエリに対して証拠を選定する
//
// ModeSelectedText ではユーザー選択テキストそのものが唯一の証拠となり、
// 検索は一切実行されない（選択は無条件に信頼され、閾値でも除外されない）。
// ModeFullBook では類似検索の結果を閾値τでフィルタし、該当なしの場合は
// 空のEvidenceを返す。これは根拠不在のシグナルでありエラーではない
func (s *Service) Retrieve(ctx context.Context, q Query) (Evidence, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if q.Mode == ModeSelectedText {
		selected := q.SelectedText.MustGet()
		return Evidence{{
			Ref:   SelectionRef,
			Text:  selected,
			Score: 1.0,
		}}, nil
	}

	vector, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query for book %s: %w", q.BookID, err)
	}

	matches, err := s.index.Search(ctx, q.BookID, vector, s.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed for book %s: %w", q.BookID, err)
	}

	evidence := make(Evidence, 0, len(matches))
	for _, m := range matches {
		if m.Score < s.cfg.MinSimilarity {
			continue
		}
		evidence = append(evidence, EvidenceItem{
			Ref:           m.Chunk.ID,
			BookID:        m.Chunk.BookID,
			Text:          m.Chunk.Text,
			Score:         m.Score,
			SequenceIndex: m.Chunk.SequenceIndex,
		})
	}

	evidence = s.trimToBudget(evidence)

	s.logger.Info("証拠を選定しました",
		"bookID", q.BookID,
		"candidates", len(matches),
		"accepted", len(evidence),
	)

	return evidence, nil
}

// trimToBudget は文字数予算に収まるようスコアの低い証拠から順に落とす
// 先頭1件だけで予算を超える場合はそのテキストを予算まで切り詰める
func (s *Service) trimToBudget(evidence Evidence) Evidence {
	// スコア降順（同点はSequenceIndex昇順）を保証する
	sort.SliceStable(evidence, func(i, j int) bool {
		if evidence[i].Score != evidence[j].Score {
			return evidence[i].Score > evidence[j].Score
		}
		return evidence[i].SequenceIndex < evidence[j].SequenceIndex
	})

	total := 0
	for i, item := range evidence {
		length := len([]rune(item.Text))
		if total+length > s.cfg.MaxEvidenceChars {
			if i == 0 {
				runes := []rune(item.Text)
				evidence[0].Text = string(runes[:s.cfg.MaxEvidenceChars])
				return evidence[:1]
			}
			return evidence[:i]
		}
		total += length
	}
	return evidence
}
