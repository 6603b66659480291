package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBookNotFound は指定されたbookIDの書籍が存在しない場合のエラー
	ErrBookNotFound = errors.New("book not found")
)

// Book は取り込み済みの書籍メタデータを表す
type Book struct {
	ID        string
	Title     string
	Author    string
	CreatedAt time.Time
}

// Chunk は書籍本文から切り出された検索単位のパッセージを表す
// 作成後は不変。IDは (bookID, startOffset, endOffset) から決定的に導出される
type Chunk struct {
	ID            string
	BookID        string
	Text          string
	StartOffset   int // 元テキスト内のルーン単位の開始位置
	EndOffset     int // 元テキスト内のルーン単位の終了位置（排他的）
	SequenceIndex int // 書籍内の出現順（0始まり）
}

// EmbeddedChunk はEmbeddingベクトルを付与したチャンクを表す
type EmbeddedChunk struct {
	Chunk
	Vector []float32
}

// NewChunkID はチャンクIDを決定的に導出する
// 同一の (bookID, startOffset, endOffset) からは常に同じIDが得られるため、
// 同一コンテンツの再取り込みはべき等になる
func NewChunkID(bookID string, startOffset, endOffset int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", bookID, startOffset, endOffset)))
	return hex.EncodeToString(sum[:])[:32]
}

// IngestResult は取り込み処理の結果を表す
type IngestResult struct {
	BookID        string
	ChunksCreated int
}
