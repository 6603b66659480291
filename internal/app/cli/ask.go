package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/mo"
	"github.com/urfave/cli/v3"

	"github.com/hondana-dev/hondana/internal/core/retrieval"
)

// AskAction は質問応答コマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	bookID := cmd.String("book")
	mode := cmd.String("mode")
	selectedText := cmd.String("selected-text")
	sessionID := cmd.String("session")
	showSources := cmd.Bool("show-sources")
	envFile := cmd.String("env")

	question := cmd.Args().First()
	if question == "" {
		return fmt.Errorf("質問文を指定してください")
	}

	q := retrieval.Query{
		SessionID: sessionID,
		Text:      question,
		Mode:      retrieval.Mode(mode),
		BookID:    bookID,
	}
	if selectedText != "" {
		q.SelectedText = mo.Some(selectedText)
	}
	if err := q.Validate(); err != nil {
		return err
	}

	slog.Info("質問応答を開始",
		"bookID", bookID,
		"mode", mode,
		"question", question,
		"showSources", showSources,
	)

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Container.Chat.Chat(ctx, q)
	if err != nil {
		slog.Error("質問応答に失敗しました", "error", err)
		return err
	}

	fmt.Println(result.Answer.Text)

	// --show-sourcesフラグが指定されている場合、引用元も出力
	if showSources && len(result.Answer.Citations) > 0 {
		fmt.Println("\n--- 引用元 ---")
		for i, citation := range result.Answer.Citations {
			fmt.Printf("[%d] %s: %s\n", i+1, citation.Ref, citation.Quote)
		}
	}

	slog.Info("質問応答が完了しました",
		"responseID", result.ResponseID,
		"grounded", result.Answer.Grounded,
		"citations", len(result.Answer.Citations),
		"confidence", result.Answer.Confidence,
	)
	return nil
}
