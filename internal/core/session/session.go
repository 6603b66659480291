package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Turn は1往復分の会話（質問と回答）を表す
type Turn struct {
	Query     string
	Answer    string
	CreatedAt time.Time
}

// Store はセッション単位の会話履歴ストアのインターフェース
// エンジンは履歴を参照・追記するだけで、ストアの所有者ではない。
// 常に空の履歴を返す実装でもエンジンは正しく動作する
type Store interface {
	// CreateSession は新しいセッションを作成してIDを返す
	CreateSession(ctx context.Context) (uuid.UUID, error)

	// GetHistory は直近limit件の会話履歴を古い順で返す
	GetHistory(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	// Append はセッションに1往復分の会話を追記する
	Append(ctx context.Context, sessionID string, turn Turn) error
}
