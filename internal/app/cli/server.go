package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/hondana-dev/hondana/internal/app/server"
)

// ServerStartAction はHTTPサーバを起動するコマンドのアクション
// シグナルによるコンテキストのキャンセルでグレースフルに停止する
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	port := cmd.Int("port")
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if port == 0 {
		port = appCtx.Config.ServerPort
	}
	addr := fmt.Sprintf(":%d", port)

	srv := server.NewServer(
		appCtx.Container.Chat,
		appCtx.Container.Ingestion,
		appCtx.Container.Sessions,
		addr,
		appCtx.Logger(),
	)

	if err := srv.Start(ctx); err != nil {
		slog.Error("サーバの実行に失敗しました", "error", err)
		return err
	}

	slog.Info("サーバを停止しました")
	return nil
}
