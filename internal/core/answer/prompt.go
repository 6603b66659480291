package answer

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/hondana-dev/hondana/internal/core/retrieval"
	"github.com/hondana-dev/hondana/internal/core/session"
)

const (
	// DefaultMaxEvidenceTokens はプロンプトに含める証拠ブロックのトークン予算
	DefaultMaxEvidenceTokens = 4000
	// DefaultMaxHistoryTurns はプロンプトに含める直近会話の最大往復数
	DefaultMaxHistoryTurns = 3
)

// PromptBuilder はグラウンデッドな回答生成用プロンプトを構築する
type PromptBuilder struct {
	encoder           *tiktoken.Tiktoken
	maxEvidenceTokens int
	maxHistoryTurns   int
}

// NewPromptBuilder は新しいPromptBuilderを作成する
// cl100k_baseエンコーダでプロンプトの証拠ブロックをトークン予算内に収める
func NewPromptBuilder(maxEvidenceTokens, maxHistoryTurns int) (*PromptBuilder, error) {
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}

	if maxEvidenceTokens <= 0 {
		maxEvidenceTokens = DefaultMaxEvidenceTokens
	}
	if maxHistoryTurns < 0 {
		maxHistoryTurns = 0
	}

	return &PromptBuilder{
		encoder:           encoder,
		maxEvidenceTokens: maxEvidenceTokens,
		maxHistoryTurns:   maxHistoryTurns,
	}, nil
}

// Build はプロンプト文字列と、実際にプロンプトへ収録された証拠列を返す
//
// 証拠はスコア降順で [1], [2], ... のマーカーを付けて並べ、トークン予算を
// 超えた分は収録されない。回答の引用マーカーは返された証拠列の添字に対応する。
// strict を指定すると引用を強制する再指示文に切り替わる
func (b *PromptBuilder) Build(
	q retrieval.Query,
	evidence retrieval.Evidence,
	history []session.Turn,
	strict bool,
) (string, retrieval.Evidence) {
	included := b.fitToBudget(evidence)

	var sb strings.Builder

	sb.WriteString("あなたは書籍の内容について質問に答えるアシスタントです。\n")
	sb.WriteString("以下の参照テキストに含まれる情報のみを使って回答してください。\n\n")

	sb.WriteString("## 回答のルール\n")
	sb.WriteString("- 参照テキストに書かれていない内容は決して回答に含めないでください\n")
	sb.WriteString("- 回答中のすべての主張の直後に、根拠となる参照の番号を [1] の形式で付けてください\n")
	sb.WriteString("- 参照テキストから答えられない場合は、推測せずにその旨だけを述べてください\n")
	if strict {
		sb.WriteString("- 重要: 前回の回答には参照番号がありませんでした。各文の末尾に必ず [番号] を付けてください。参照番号を付けられない文は出力しないでください\n")
	}
	sb.WriteString("\n")

	if b.maxHistoryTurns > 0 && len(history) > 0 {
		turns := history
		if len(turns) > b.maxHistoryTurns {
			turns = turns[len(turns)-b.maxHistoryTurns:]
		}
		sb.WriteString("## 直前の会話\n")
		for _, turn := range turns {
			sb.WriteString(fmt.Sprintf("質問: %s\n回答: %s\n", turn.Query, turn.Answer))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## 参照テキスト\n")
	for i, item := range included {
		sb.WriteString(fmt.Sprintf("### [%d]", i+1))
		if item.Ref == retrieval.SelectionRef {
			sb.WriteString("（ユーザー選択テキスト）")
		} else {
			sb.WriteString(fmt.Sprintf("（関連度: %.3f）", item.Score))
		}
		sb.WriteString("\n")
		sb.WriteString(item.Text)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## 質問\n")
	sb.WriteString(q.Text)
	sb.WriteString("\n\n## 回答\n")

	return sb.String(), included
}

// fitToBudget はトークン予算内に収まる先頭からの証拠列を返す
// 1件目だけで予算を超える場合でも、空にせず1件目は必ず収録する
func (b *PromptBuilder) fitToBudget(evidence retrieval.Evidence) retrieval.Evidence {
	total := 0
	for i, item := range evidence {
		tokens := len(b.encoder.Encode(item.Text, nil, nil))
		if total+tokens > b.maxEvidenceTokens && i > 0 {
			return evidence[:i]
		}
		total += tokens
	}
	return evidence
}
