package answer

import "github.com/hondana-dev/hondana/internal/core/retrieval"

// RefusalText は根拠が見つからない場合に返す固定の拒否メッセージ
// 生成モデルの出力ではなくエンジンが返す定型文であることが重要
const RefusalText = "本の中から質問に関連する記述を見つけられませんでした。質問を言い換えるか、別のトピックについて質問してください。"

// maxQuoteChars は引用スニペットの最大文字数
const maxQuoteChars = 200

// Citation は回答中の主張から証拠パッセージへのリンクを表す
type Citation struct {
	Ref    string // チャンクID、またはユーザー選択を表す retrieval.SelectionRef
	BookID string // 選択テキスト由来の場合は空
	Quote  string // 証拠テキストの冒頭スニペット（最大200文字）
}

// Answer は1クエリに対する最終的な回答を表す
type Answer struct {
	Text       string
	Citations  []Citation // マーカーの初出順。空の場合もある
	Grounded   bool       // false は「根拠のある回答を生成できなかった」ことを示す
	Mode       retrieval.Mode
	Confidence float64 // 引用された証拠の平均類似度。非グラウンデッド時は 0
}

// newRefusal は固定の拒否回答を作成する
func newRefusal(mode retrieval.Mode) *Answer {
	return &Answer{
		Text:      RefusalText,
		Citations: []Citation{},
		Grounded:  false,
		Mode:      mode,
	}
}
