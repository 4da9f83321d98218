// 認証サービスのエントリポイント。
// ユーザー登録、ログイン、トークン検証、メールアドレス確認、Googleログインを担当する。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/liquidar/internal/auth"
	"github.com/nao1215/liquidar/pkg/config"
	"github.com/nao1215/liquidar/pkg/database"
	"github.com/nao1215/liquidar/pkg/logger"
	"github.com/nao1215/liquidar/pkg/migration"
	"github.com/nao1215/liquidar/pkg/rpc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "認証サービスの起動に失敗: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.ServiceAuth)
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

	if err := migration.Run(ctx, db, cfg.DatabaseDriver, auth.Migrations(), log); err != nil {
		return err
	}

	resolver, deregister, err := rpc.Discover(cfg, log)
	if err != nil {
		return err
	}
	defer deregister()

	client := rpc.NewClient(resolver, rpc.WithTimeout(cfg.RPCTimeout))
	service := auth.NewService(db, auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiresIn), auth.Collaborators{
		Notifier:  auth.NewRPCNotifier(client),
		BillItems: auth.NewRPCBillItemFetcher(client),
		Google:    auth.NewGoogleVerifier(cfg.GoogleClientID),
	}, log)
	server := auth.NewServer(cfg.Port, service, log)

	log.Info().Str("port", cfg.Port).Msg("認証サービスを起動します")
	return server.Run(ctx)
}
