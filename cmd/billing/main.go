// 請求主体サービスのエントリポイント。
// 納税者番号を持つ請求主体の作成、一覧、取得、削除を担当する。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/liquidar/internal/billing"
	"github.com/nao1215/liquidar/pkg/config"
	"github.com/nao1215/liquidar/pkg/database"
	"github.com/nao1215/liquidar/pkg/logger"
	"github.com/nao1215/liquidar/pkg/migration"
	"github.com/nao1215/liquidar/pkg/rpc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "請求主体サービスの起動に失敗: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.ServiceBilling)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Service, cfg.LogLevel, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migration.Run(ctx, db, cfg.DatabaseDriver, billing.Migrations(), log); err != nil {
		return err
	}

	resolver, deregister, err := rpc.Discover(cfg, log)
	if err != nil {
		return err
	}
	defer deregister()

	client := rpc.NewClient(resolver, rpc.WithTimeout(cfg.RPCTimeout))
	server := billing.NewServer(cfg.Port, db, client, log)

	log.Info().Str("port", cfg.Port).Msg("請求主体サービスを起動します")
	return server.Run(ctx)
}
