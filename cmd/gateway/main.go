// API Gatewayサービスのエントリポイント。
// 外部からアクセス可能な唯一のサービスで、HTTPリクエストを内部サービスのパターンに変換する。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/liquidar/internal/gateway"
	"github.com/nao1215/liquidar/pkg/config"
	"github.com/nao1215/liquidar/pkg/logger"
	"github.com/nao1215/liquidar/pkg/rpc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Gatewayサービスの起動に失敗: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.ServiceGateway)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Service, cfg.LogLevel, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolver, deregister, err := rpc.Discover(cfg, log)
	if err != nil {
		return err
	}
	defer deregister()

	client := rpc.NewClient(resolver, rpc.WithTimeout(cfg.RPCTimeout))
	server := gateway.NewServer(cfg.Port, client, cfg.AllowedOrigins, log)

	log.Info().Str("port", cfg.Port).Msg("Gatewayサービスを起動します")
	return server.Run(ctx)
}
