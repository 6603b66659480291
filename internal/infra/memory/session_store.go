package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hondana-dev/hondana/internal/core/session"
)

// SessionStore はインメモリの会話履歴ストア
type SessionStore struct {
	mu    sync.RWMutex
	turns map[string][]session.Turn
}

// NewSessionStore は新しい SessionStore を作成する
func NewSessionStore() *SessionStore {
	return &SessionStore{
		turns: make(map[string][]session.Turn),
	}
}

// CreateSession は新しいセッションIDを発行する
func (s *SessionStore) CreateSession(ctx context.Context) (uuid.UUID, error) {
	return uuid.New(), nil
}

// GetHistory は直近limit件の会話履歴を古い順で返す
func (s *SessionStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]session.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[sessionID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	result := make([]session.Turn, len(turns))
	copy(result, turns)
	return result, nil
}

// Append はセッションに1往復分の会話を追記する
func (s *SessionStore) Append(ctx context.Context, sessionID string, turn session.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns[sessionID] = append(s.turns[sessionID], turn)
	return nil
}

// インターフェース実装の確認
var _ session.Store = (*SessionStore)(nil)
