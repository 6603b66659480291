package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

// IngestAction は書籍取り込みコマンドのアクション
// テキストファイルを読み込み、チャンク分割・Embedding生成・インデックス登録を行う
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	filePath := cmd.String("file")
	bookID := cmd.String("book-id")
	title := cmd.String("title")
	author := cmd.String("author")
	envFile := cmd.String("env")

	if bookID == "" {
		bookID = uuid.NewString()
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}

	slog.Info("書籍取り込みを開始",
		"bookID", bookID,
		"title", title,
		"file", filePath,
		"bytes", len(content),
	)

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Container.Ingestion.Ingest(ctx, bookID, title, author, string(content))
	if err != nil {
		slog.Error("書籍取り込みに失敗しました", "error", err)
		return err
	}

	fmt.Printf("取り込み完了: book_id=%s chunks=%d\n", result.BookID, result.ChunksCreated)

	slog.Info("書籍取り込みが完了しました",
		"bookID", result.BookID,
		"chunks", result.ChunksCreated,
	)
	return nil
}
