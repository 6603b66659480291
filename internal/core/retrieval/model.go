package retrieval

import (
	"fmt"

	"github.com/samber/mo"

	"github.com/hondana-dev/hondana/internal/core/ingestion"
)

// Mode は証拠の選定方式を表す
type Mode string

const (
	// ModeFullBook は書籍全体からの類似検索で証拠を選ぶモード
	ModeFullBook Mode = "full_book"
	// ModeSelectedText はユーザーが選択したテキストのみを証拠とするモード
	ModeSelectedText Mode = "selected_text_only"
)

// SelectionRef はユーザー選択テキストを指す引用参照子
const SelectionRef = "selection"

// Query は1リクエスト分の質問を表す
type Query struct {
	SessionID    string
	Text         string
	Mode         Mode
	BookID       string
	SelectedText mo.Option[string] // ModeSelectedText の場合のみ必須
}

// Validate はモードとフィールドの整合性を検査する
// 不整合はリクエストバリデーションエラーであり、エンジン内部のエラーではない
func (q Query) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("query text is required")
	}
	switch q.Mode {
	case ModeFullBook:
		if q.BookID == "" {
			return fmt.Errorf("bookID is required in %s mode", ModeFullBook)
		}
	case ModeSelectedText:
		if text, ok := q.SelectedText.Get(); !ok || text == "" {
			return fmt.Errorf("selectedText is required in %s mode", ModeSelectedText)
		}
	default:
		return fmt.Errorf("unknown mode: %q", q.Mode)
	}
	return nil
}

// EvidenceItem は回答の根拠として採用された1件のパッセージを表す
type EvidenceItem struct {
	Ref           string  // チャンクID、またはユーザー選択を表す SelectionRef
	BookID        string  // 選択テキストの場合は空
	Text          string
	Score         float64 // [0,1]。ユーザー選択テキストは常に 1.0
	SequenceIndex int
}

// Evidence は関連度降順に並んだ証拠の列を表す
// 空のEvidenceは「根拠が存在しない」ことを示すシグナルであり、エラーではない
type Evidence []EvidenceItem

// Match はベクトル検索の1ヒットを表す
type Match struct {
	Chunk ingestion.Chunk
	Score float64
}
