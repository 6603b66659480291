package ingestion

import (
	"sort"
	"strings"
	"unicode"
)

const (
	// DefaultMaxChunkChars はチャンクの最大文字数のデフォルト値
	DefaultMaxChunkChars = 1000
	// DefaultOverlapChars は隣接チャンク間で重複させる文字数のデフォルト値
	DefaultOverlapChars = 150
)

// ChunkerConfig はチャンク分割の設定
type ChunkerConfig struct {
	MaxChunkChars int // チャンクの最大文字数（ルーン単位）
	OverlapChars  int // 隣接チャンク間の重複文字数（ルーン単位）
}

// DefaultChunkerConfig はデフォルトのチャンク分割設定を返す
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		MaxChunkChars: DefaultMaxChunkChars,
		OverlapChars:  DefaultOverlapChars,
	}
}

// Chunker は書籍本文を重複付きの固定上限チャンクに分割する
// 可能な限り段落・文境界で区切り、単一の文が上限を超える場合のみ
// 文字位置でのハードカットにフォールバックする
type Chunker struct {
	maxChars int
	overlap  int
}

// NewChunker は新しいChunkerを作成する
func NewChunker(cfg ChunkerConfig) *Chunker {
	maxChars := cfg.MaxChunkChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}
	overlap := cfg.OverlapChars
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxChars {
		overlap = maxChars / 4
	}

	return &Chunker{
		maxChars: maxChars,
		overlap:  overlap,
	}
}

// Split は書籍本文をチャンク列に分割する
// 空文字列または空白のみの入力は空列を返す（エラーではない）
func (c *Chunker) Split(bookID, raw string) []Chunk {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	runes := []rune(raw)
	n := len(runes)

	paragraphBounds, sentenceBounds := boundaryOffsets(runes)

	var chunks []Chunk
	start := 0
	for start < n {
		end := start + c.maxChars
		if end >= n {
			end = n
		} else {
			// 範囲内の最後の段落境界を優先し、なければ文境界に後退する
			if b := lastBoundaryIn(paragraphBounds, start, end); b > start {
				end = b
			} else if b := lastBoundaryIn(sentenceBounds, start, end); b > start {
				end = b
			}
			// どちらの境界もない場合は start+maxChars でハードカット
		}

		text := string(runes[start:end])
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, Chunk{
				ID:            NewChunkID(bookID, start, end),
				BookID:        bookID,
				Text:          text,
				StartOffset:   start,
				EndOffset:     end,
				SequenceIndex: len(chunks),
			})
		}

		if end >= n {
			break
		}

		// 重複領域は要約せず逐語的に次チャンクへ持ち越す
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// boundaryOffsets は段落境界と文境界のルーン位置を列挙する
// 境界位置は「その位置の直前で区切ってよい」オフセットを表す
func boundaryOffsets(runes []rune) (paragraphs, sentences []int) {
	n := len(runes)
	for i := 0; i < n; i++ {
		switch runes[i] {
		case '\n':
			// 空行（連続する改行）を段落境界とみなす
			if i+1 < n && runes[i+1] == '\n' {
				j := i + 1
				for j < n && runes[j] == '\n' {
					j++
				}
				paragraphs = append(paragraphs, j)
				i = j - 1
			} else {
				sentences = append(sentences, i+1)
			}
		case '.', '!', '?':
			// 終端記号の直後が空白または末尾の場合のみ文境界とする
			if i+1 >= n || unicode.IsSpace(runes[i+1]) {
				sentences = append(sentences, i+1)
			}
		case '。', '！', '？':
			sentences = append(sentences, i+1)
		}
	}
	return paragraphs, sentences
}

// lastBoundaryIn は (start, end] の範囲内で最大の境界位置を返す
// 該当がない場合は start を返す
func lastBoundaryIn(bounds []int, start, end int) int {
	// bounds は昇順なので end 以下の最後の要素を二分探索で求める
	i := sort.SearchInts(bounds, end+1) - 1
	if i >= 0 && bounds[i] > start {
		return bounds[i]
	}
	return start
}
