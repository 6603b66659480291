package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

// BookListAction は取り込み済み書籍の一覧を表示するコマンドのアクション
func BookListAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	books, err := appCtx.Container.Books.ListBooks(ctx)
	if err != nil {
		slog.Error("書籍一覧の取得に失敗しました", "error", err)
		return err
	}

	if len(books) == 0 {
		fmt.Println("取り込み済みの書籍はありません")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "タイトル", "著者", "取り込み日時")
	for _, book := range books {
		table.Append(
			book.ID,
			book.Title,
			book.Author,
			book.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	table.Render()

	return nil
}

// BookShowAction は書籍の詳細を表示するコマンドのアクション
func BookShowAction(ctx context.Context, cmd *cli.Command) error {
	bookID := cmd.String("book-id")
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	book, err := appCtx.Container.Books.GetBook(ctx, bookID)
	if err != nil {
		slog.Error("書籍の取得に失敗しました", "bookID", bookID, "error", err)
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("項目", "値")
	table.Append("ID", book.ID)
	table.Append("タイトル", book.Title)
	table.Append("著者", book.Author)
	table.Append("取り込み日時", book.CreatedAt.Format("2006-01-02 15:04:05"))
	table.Render()

	return nil
}

// BookDeleteAction は書籍とそのチャンクを削除するコマンドのアクション
func BookDeleteAction(ctx context.Context, cmd *cli.Command) error {
	bookID := cmd.String("book-id")
	envFile := cmd.String("env")

	slog.Info("書籍削除を開始", "bookID", bookID)

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.Ingestion.DeleteBook(ctx, bookID); err != nil {
		slog.Error("書籍削除に失敗しました", "bookID", bookID, "error", err)
		return err
	}

	fmt.Printf("削除完了: book_id=%s\n", bookID)

	slog.Info("書籍削除が完了しました", "bookID", bookID)
	return nil
}
