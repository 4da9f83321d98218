package rpc

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/nao1215/liquidar/pkg/config"
)

// Discover は設定に応じた Resolver を返す。
// Consulを使う場合は自サービスを登録し、返す関数で登録を解除する。
func Discover(cfg *config.Config, logger zerolog.Logger) (Resolver, func(), error) {
	if cfg.Discovery != config.DiscoveryConsul {
		return StaticResolver(cfg.ServiceURLs()), func() {}, nil
	}

	resolver, err := NewConsulResolver(cfg.ConsulAddr)
	if err != nil {
		return nil, nil, err
	}

	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		return nil, nil, fmt.Errorf("ポート番号が不正です: %w", err)
	}
	deregister, err := Register(cfg.ConsulAddr, Registration{Name: cfg.Service, Host: cfg.AdvertiseHost, Port: port})
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Str("consul", cfg.ConsulAddr).Msg("Consulにサービスを登録しました")

	return resolver, func() {
		if err := deregister(); err != nil {
			logger.Warn().Err(err).Msg("Consulからの登録解除に失敗しました")
		}
	}, nil
}
