// Package config は環境変数と任意の設定ファイルからサービスの設定を読み込む。
//
// 値の優先順位は 環境変数 > CONFIG_FILE で指定したファイル > 既定値 の順。
// キー名は環境変数名を小文字にしたもの（例: JWT_SECRET は jwt_secret）。
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nao1215/liquidar/pkg/database"
	"github.com/nao1215/liquidar/pkg/validation"
)

// サービス名。Consulの登録名やログのserviceフィールドにも使用する。
const (
	ServiceGateway      = "gateway"
	ServiceAuth         = "auth"
	ServiceBilling      = "billing"
	ServiceNotification = "notification"
)

// Discovery の値。
const (
	DiscoveryStatic = "static"
	DiscoveryConsul = "consul"
)

// defaultPorts はサービスごとの既定ポート。
var defaultPorts = map[string]string{
	ServiceGateway:      "3000",
	ServiceAuth:         "3001",
	ServiceBilling:      "3003",
	ServiceNotification: "3004",
}

// Config はサービスの設定。各サービスは必要な項目だけを参照する。
type Config struct {
	// Service はサービス名。
	Service string `mapstructure:"-"`
	// Port はリッスンポート。
	Port string `mapstructure:"port" validate:"required,numeric"`
	// LogLevel はログレベル。
	LogLevel string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`

	// DatabaseDriver はデータベースドライバ名（sqlite または pgx）。
	DatabaseDriver string `mapstructure:"database_driver" validate:"oneof=sqlite pgx"`
	// DatabaseDSN はデータベースの接続文字列。
	DatabaseDSN string `mapstructure:"database_dsn" validate:"required"`

	// JWTSecret はトークンの署名鍵。
	JWTSecret string `mapstructure:"jwt_secret" validate:"required"`
	// JWTExpiresIn はセッショントークンの有効期間。
	JWTExpiresIn time.Duration `mapstructure:"jwt_expires_in" validate:"gt=0"`
	// VerificationURL はメール確認リンクのURL。トークンはクエリパラメータで付与する。
	VerificationURL string `mapstructure:"verification_url" validate:"required,url"`
	// GoogleClientID はGoogleのOAuthクライアントID。IDトークンのaudienceと照合する。
	GoogleClientID string `mapstructure:"google_client_id"`

	// RPCTimeout はサービス間リクエストのタイムアウト。
	RPCTimeout time.Duration `mapstructure:"rpc_timeout" validate:"gt=0"`
	// Discovery は接続先の解決方法（static または consul）。
	Discovery string `mapstructure:"discovery" validate:"oneof=static consul"`
	// ConsulAddr はConsulエージェントのアドレス。
	ConsulAddr string `mapstructure:"consul_addr" validate:"required_if=Discovery consul"`
	// AdvertiseHost はConsulに登録する自サービスのホスト名。
	AdvertiseHost string `mapstructure:"advertise_host"`
	// AuthServiceURL は認証サービスのベースURL。
	AuthServiceURL string `mapstructure:"auth_service_url"`
	// BillingServiceURL は請求主体サービスのベースURL。
	BillingServiceURL string `mapstructure:"billing_service_url"`
	// NotificationServiceURL は通知サービスのベースURL。
	NotificationServiceURL string `mapstructure:"notification_service_url"`

	// AllowedOrigins はCORSで許可するオリジン（カンマ区切り）。
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// SMTPHost はSMTPサーバーのホスト名。空の場合はメールを送信せずログに記録する。
	SMTPHost string `mapstructure:"smtp_host"`
	// SMTPPort はSMTPサーバーのポート。
	SMTPPort int `mapstructure:"smtp_port"`
	// SMTPUsername はSMTP認証のユーザー名。
	SMTPUsername string `mapstructure:"smtp_username"`
	// SMTPPassword はSMTP認証のパスワード。
	SMTPPassword string `mapstructure:"smtp_password"`
	// SMTPFrom は送信元アドレス。
	SMTPFrom string `mapstructure:"smtp_from"`
}

// Load はserviceの設定を読み込み、検証する。
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 設定ファイルは環境変数より優先度が低い
	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("設定の解析に失敗: %w", err)
	}
	cfg.Service = service

	if err := validation.Struct(cfg); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}
	return cfg, nil
}

// setDefaults は全キーの既定値を設定する。AutomaticEnvは既定値のあるキーだけを環境変数から読む。
func setDefaults(v *viper.Viper, service string) {
	port, ok := defaultPorts[service]
	if !ok {
		port = "8080"
	}

	v.SetDefault("config_file", "")
	v.SetDefault("port", port)
	v.SetDefault("log_level", "info")
	v.SetDefault("database_driver", database.DriverSQLite)
	v.SetDefault("database_dsn", database.SQLiteDSN(filepath.Join("data", service+".db")))
	v.SetDefault("jwt_secret", "dev_jwt_secret_key")
	v.SetDefault("jwt_expires_in", "1h")
	v.SetDefault("verification_url", "http://localhost:3000/api/verify")
	v.SetDefault("google_client_id", "")
	v.SetDefault("rpc_timeout", "10s")
	v.SetDefault("discovery", DiscoveryStatic)
	v.SetDefault("consul_addr", "")
	v.SetDefault("advertise_host", "localhost")
	v.SetDefault("auth_service_url", "http://localhost:3001")
	v.SetDefault("billing_service_url", "http://localhost:3003")
	v.SetDefault("notification_service_url", "http://localhost:3004")
	v.SetDefault("allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("smtp_host", "")
	v.SetDefault("smtp_port", 587)
	v.SetDefault("smtp_username", "")
	v.SetDefault("smtp_password", "")
	v.SetDefault("smtp_from", "no-reply@liquidar.local")
}

// ServiceURLs は静的な接続先の一覧を返す。
func (c *Config) ServiceURLs() map[string]string {
	return map[string]string{
		ServiceAuth:         c.AuthServiceURL,
		ServiceBilling:      c.BillingServiceURL,
		ServiceNotification: c.NotificationServiceURL,
	}
}
