package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hondana-dev/hondana/internal/core/ingestion"
)

// BookRepository は書籍メタデータのPostgreSQL永続化アダプター
type BookRepository struct {
	pool *pgxpool.Pool
}

// NewBookRepository は新しい BookRepository を作成する
func NewBookRepository(pool *pgxpool.Pool) *BookRepository {
	return &BookRepository{pool: pool}
}

// SaveBook は書籍メタデータを保存する。既存IDの行は上書きされる
func (r *BookRepository) SaveBook(ctx context.Context, book *ingestion.Book) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO books (id, title, author, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			author = EXCLUDED.author
	`, book.ID, book.Title, book.Author, book.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save book %s: %w", book.ID, err)
	}
	return nil
}

// GetBook は書籍メタデータを取得する
func (r *BookRepository) GetBook(ctx context.Context, bookID string) (*ingestion.Book, error) {
	var book ingestion.Book
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, author, created_at FROM books WHERE id = $1
	`, bookID).Scan(&book.ID, &book.Title, &book.Author, &book.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ingestion.ErrBookNotFound, bookID)
		}
		return nil, fmt.Errorf("failed to get book %s: %w", bookID, err)
	}
	return &book, nil
}

// ListBooks は取り込み済み書籍の一覧を作成日時の昇順で返す
func (r *BookRepository) ListBooks(ctx context.Context) ([]*ingestion.Book, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, author, created_at FROM books ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []*ingestion.Book
	for rows.Next() {
		var book ingestion.Book
		if err := rows.Scan(&book.ID, &book.Title, &book.Author, &book.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan book row: %w", err)
		}
		books = append(books, &book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("book rows error: %w", err)
	}

	return books, nil
}

// DeleteBook は書籍メタデータを削除する（チャンクはFKのCASCADEで削除される）
func (r *BookRepository) DeleteBook(ctx context.Context, bookID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM books WHERE id = $1`, bookID); err != nil {
		return fmt.Errorf("failed to delete book %s: %w", bookID, err)
	}
	return nil
}

// インターフェース実装の確認
var _ ingestion.BookRepository = (*BookRepository)(nil)
