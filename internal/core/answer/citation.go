package answer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hondana-dev/hondana/internal/core/retrieval"
)

// markerPattern は生成出力中の参照マーカー [n] を検出する
var markerPattern = regexp.MustCompile(`\[(\d+)\]`)

// extractGrounded は生成モデルの生出力を検証し、引用付きの回答へ変換する
//
// ポリシー（決定的・文単位）:
//   - 有効なマーカー [n]（1 <= n <= len(evidence)）を1つも含まない文は削除する
//   - 有効なマーカーが1つも抽出できない場合は grounded=false を返す
//
// 生成出力を無検証のまま信頼して通すことはない
func extractGrounded(raw string, evidence retrieval.Evidence) (text string, citations []Citation, grounded bool) {
	sentences := splitSentences(raw)

	cited := make(map[int]bool)
	var citedOrder []int
	var kept []string

	for _, sentence := range sentences {
		valid := false
		for _, match := range markerPattern.FindAllStringSubmatch(sentence, -1) {
			n, err := strconv.Atoi(match[1])
			if err != nil || n < 1 || n > len(evidence) {
				continue
			}
			valid = true
			if !cited[n] {
				cited[n] = true
				citedOrder = append(citedOrder, n)
			}
		}
		if valid {
			kept = append(kept, sentence)
		}
	}

	if len(citedOrder) == 0 {
		return "", nil, false
	}

	citations = make([]Citation, 0, len(citedOrder))
	for _, n := range citedOrder {
		item := evidence[n-1]
		citations = append(citations, Citation{
			Ref:    item.Ref,
			BookID: item.BookID,
			Quote:  quoteSnippet(item.Text),
		})
	}

	return strings.TrimSpace(strings.Join(kept, "")), citations, true
}

// splitSentences は出力を文単位の断片に分割する
// 文末記号と改行を区切りとし、区切り文字は直前の断片に含めたまま返す
func splitSentences(raw string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(raw)
	for i, r := range runes {
		current.WriteRune(r)
		switch r {
		case '。', '！', '？', '\n':
			sentences = append(sentences, current.String())
			current.Reset()
		case '.', '!', '?':
			// 英文の終端記号は直後が空白または末尾の場合のみ文境界とする
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' {
				sentences = append(sentences, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}

	return sentences
}

// quoteSnippet は証拠テキストの冒頭から引用スニペットを切り出す
func quoteSnippet(text string) string {
	runes := []rune(text)
	if len(runes) <= maxQuoteChars {
		return text
	}
	return string(runes[:maxQuoteChars]) + "..."
}
