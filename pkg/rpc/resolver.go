package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"

	consul "github.com/hashicorp/consul/api"
)

// ErrUnknownService は接続先が解決できないサービス名を指定したことを表す。
var ErrUnknownService = errors.New("接続先が登録されていないサービスです")

// Resolver はサービス名から接続先のベースURLを解決する。
type Resolver interface {
	Resolve(ctx context.Context, service string) (string, error)
}

// StaticResolver は設定で与えられた固定の接続先を返す。
type StaticResolver map[string]string

// Resolve はサービス名に対応するベースURLを返す。
func (r StaticResolver) Resolve(_ context.Context, service string) (string, error) {
	base, ok := r[service]
	if !ok || base == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	return base, nil
}

// healthAPI はConsulのヘルスチェックAPIのうち使用する部分。
type healthAPI interface {
	Service(service, tag string, passingOnly bool, q *consul.QueryOptions) ([]*consul.ServiceEntry, *consul.QueryMeta, error)
}

// ConsulResolver はConsulカタログから正常なインスタンスを選んで接続先を返す。
// 複数インスタンスがある場合はラウンドロビンで選択する。
type ConsulResolver struct {
	// health はConsulのヘルスチェックAPI。
	health healthAPI
	// next はラウンドロビンの位置。
	next atomic.Uint64
}

// NewConsulResolver は指定アドレスのConsulエージェントを使用するResolverを生成する。
func NewConsulResolver(addr string) (*ConsulResolver, error) {
	client, err := newConsulClient(addr)
	if err != nil {
		return nil, err
	}
	return &ConsulResolver{health: client.Health()}, nil
}

// Resolve はサービス名に対応する正常なインスタンスのベースURLを返す。
func (r *ConsulResolver) Resolve(ctx context.Context, service string) (string, error) {
	q := (&consul.QueryOptions{}).WithContext(ctx)
	entries, _, err := r.health.Service(service, "", true, q)
	if err != nil {
		return "", fmt.Errorf("Consulへの問い合わせに失敗: %w", err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownService, service)
	}

	entry := entries[(r.next.Add(1)-1)%uint64(len(entries))]
	host := entry.Service.Address
	if host == "" {
		host = entry.Node.Address
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(entry.Service.Port)), nil
}

// Registration はConsulに登録するサービスインスタンスの情報。
type Registration struct {
	// Name はサービス名。
	Name string
	// Host は他サービスから到達可能なホスト名。
	Host string
	// Port はリッスンポート。
	Port int
}

// Register はサービスインスタンスを /health のHTTPチェック付きでConsulに登録する。
// 返される関数を呼ぶと登録を解除する。
func Register(addr string, reg Registration) (func() error, error) {
	client, err := newConsulClient(addr)
	if err != nil {
		return nil, err
	}

	id := fmt.Sprintf("%s-%s-%d", reg.Name, reg.Host, reg.Port)
	base := "http://" + net.JoinHostPort(reg.Host, strconv.Itoa(reg.Port))
	err = client.Agent().ServiceRegister(&consul.AgentServiceRegistration{
		ID:      id,
		Name:    reg.Name,
		Address: reg.Host,
		Port:    reg.Port,
		Check: &consul.AgentServiceCheck{
			HTTP:                           base + "/health",
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Consulへのサービス登録に失敗: %w", err)
	}

	return func() error {
		return client.Agent().ServiceDeregister(id)
	}, nil
}

// newConsulClient は指定アドレスのConsulクライアントを生成する。
func newConsulClient(addr string) (*consul.Client, error) {
	cfg := consul.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	client, err := consul.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("Consulクライアントの生成に失敗: %w", err)
	}
	return client, nil
}
