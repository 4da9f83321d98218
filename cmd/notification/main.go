// 通知サービスのエントリポイント。
// 確認メールとようこそメールの送信を担当する。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/liquidar/internal/notification"
	"github.com/nao1215/liquidar/pkg/config"
	"github.com/nao1215/liquidar/pkg/database"
	"github.com/nao1215/liquidar/pkg/logger"
	"github.com/nao1215/liquidar/pkg/migration"
	"github.com/nao1215/liquidar/pkg/rpc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "通知サービスの起動に失敗: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.ServiceNotification)
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

	if err := migration.Run(ctx, db, cfg.DatabaseDriver, notification.Migrations(), log); err != nil {
		return err
	}

	// 他サービスを呼ばないが、Consul利用時は自身を登録する
	_, deregister, err := rpc.Discover(cfg, log)
	if err != nil {
		return err
	}
	defer deregister()

	sender := notification.NewSender(notification.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, log)
	server := notification.NewServer(cfg.Port, db, sender, cfg.VerificationURL, log)

	log.Info().Str("port", cfg.Port).Msg("通知サービスを起動します")
	return server.Run(ctx)
}
