package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/hondana-dev/hondana/internal/app/cli"
	"github.com/hondana-dev/hondana/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定（LOG_LEVEL / LOG_FORMAT で上書き可能）
	logger.New(logger.FromEnv())

	app := &cli.Command{
		Name:  "hondana",
		Usage: "書籍本文を唯一の知識源とするグラウンデッド質問応答エンジン",
		Commands: []*cli.Command{
			{
				Name:  "ingest",
				Usage: "書籍テキストを取り込んでインデックス化",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "file",
						Usage:    "書籍本文のテキストファイルパス",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "book-id",
						Usage: "書籍ID（省略時は自動生成）",
					},
					&cli.StringFlag{
						Name:     "title",
						Usage:    "書籍タイトル",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "author",
						Usage: "著者名",
					},
				},
				Action: appcli.IngestAction,
			},
			{
				Name:      "ask",
				Usage:     "書籍に対して質問する",
				ArgsUsage: "<質問文>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:  "book",
						Usage: "質問対象の書籍ID（full_bookモードで必須）",
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "証拠の選定方式 (full_book/selected_text_only)",
						Value: "full_book",
					},
					&cli.StringFlag{
						Name:  "selected-text",
						Usage: "ユーザー選択テキスト（selected_text_onlyモードで必須）",
					},
					&cli.StringFlag{
						Name:  "session",
						Usage: "会話履歴を引き継ぐセッションID",
					},
					&cli.BoolFlag{
						Name:  "show-sources",
						Usage: "回答の引用元を表示",
					},
				},
				Action: appcli.AskAction,
			},
			{
				Name:  "book",
				Usage: "書籍管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "取り込み済み書籍の一覧を表示",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
						},
						Action: appcli.BookListAction,
					},
					{
						Name:  "show",
						Usage: "書籍の詳細を表示",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "book-id",
								Usage:    "書籍ID",
								Required: true,
							},
						},
						Action: appcli.BookShowAction,
					},
					{
						Name:  "delete",
						Usage: "書籍とそのチャンクを削除",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "book-id",
								Usage:    "書籍ID",
								Required: true,
							},
						},
						Action: appcli.BookDeleteAction,
					},
				},
			},
			{
				Name:  "server",
				Usage: "サーバ関連コマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTPサーバを起動",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.IntFlag{
								Name:  "port",
								Usage: "HTTPポート（省略時は環境変数またはデフォルトの8080）",
							},
						},
						Action: appcli.ServerStartAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
