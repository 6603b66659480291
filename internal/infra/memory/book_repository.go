package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hondana-dev/hondana/internal/core/ingestion"
)

var _ ingestion.BookRepository = (*BookRepository)(nil)

// BookRepository は書籍メタデータのインメモリ実装
// 開発・テスト用途を想定しており、プロセス終了でデータは失われる
type BookRepository struct {
	mu    sync.RWMutex
	books map[string]ingestion.Book
}

// NewBookRepository は新しいインメモリBookRepositoryを作成する
func NewBookRepository() *BookRepository {
	return &BookRepository{
		books: make(map[string]ingestion.Book),
	}
}

// SaveBook は書籍メタデータを保存する。既存IDは上書きされる
func (r *BookRepository) SaveBook(_ context.Context, book *ingestion.Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.books[book.ID] = *book
	return nil
}

// GetBook は書籍メタデータを取得する
func (r *BookRepository) GetBook(_ context.Context, bookID string) (*ingestion.Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	book, ok := r.books[bookID]
	if !ok {
		return nil, ingestion.ErrBookNotFound
	}
	return &book, nil
}

// ListBooks は取り込み済み書籍の一覧を作成日時順に返す
func (r *BookRepository) ListBooks(_ context.Context) ([]*ingestion.Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	books := make([]*ingestion.Book, 0, len(r.books))
	for id := range r.books {
		book := r.books[id]
		books = append(books, &book)
	}
	sort.Slice(books, func(i, j int) bool {
		if books[i].CreatedAt.Equal(books[j].CreatedAt) {
			return books[i].ID < books[j].ID
		}
		return books[i].CreatedAt.Before(books[j].CreatedAt)
	})
	return books, nil
}

// DeleteBook は書籍メタデータを削除する。存在しないIDは何もしない
func (r *BookRepository) DeleteBook(_ context.Context, bookID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.books, bookID)
	return nil
}
