package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hondana-dev/hondana/internal/core/session"
)

// SessionStore は会話履歴のPostgreSQL永続化アダプター
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore は新しい SessionStore を作成する
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// CreateSession は新しいセッションを作成してIDを返す
func (s *SessionStore) CreateSession(ctx context.Context) (uuid.UUID, error) {
	id := uuid.New()
	if _, err := s.pool.Exec(ctx, `INSERT INTO sessions (id) VALUES ($1)`, id); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// GetHistory は直近limit件の会話履歴を古い順で返す
func (s *SessionStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]session.Turn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT query, answer, created_at FROM (
			SELECT id, query, answer, created_at
			FROM session_turns
			WHERE session_id = $1
			ORDER BY id DESC
			LIMIT $2
		) latest
		ORDER BY id ASC
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get history for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var turns []session.Turn
	for rows.Next() {
		var turn session.Turn
		if err := rows.Scan(&turn.Query, &turn.Answer, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows error: %w", err)
	}

	return turns, nil
}

// Append はセッションに1往復分の会話を追記する
func (s *SessionStore) Append(ctx context.Context, sessionID string, turn session.Turn) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_turns (session_id, query, answer, created_at)
		VALUES ($1, $2, $3, $4)
	`, sessionID, turn.Query, turn.Answer, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append turn for session %s: %w", sessionID, err)
	}
	return nil
}

// インターフェース実装の確認
var _ session.Store = (*SessionStore)(nil)
