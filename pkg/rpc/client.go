package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nao1215/liquidar/pkg/httpclient"
)

// DefaultTimeout はタイムアウト未指定時のリクエストタイムアウト。
const DefaultTimeout = 10 * time.Second

// Client はサービス名とパターン名を指定してリクエストを送るクライアント。
// 接続プールは全サービスで共有する。
type Client struct {
	// resolver はサービス名から接続先を解決する。
	resolver Resolver
	// httpClient は全サービスで共有するHTTPクライアント。
	httpClient *http.Client
	// timeout は1リクエストあたりのタイムアウト。
	timeout time.Duration
}

// ClientOption はClientの設定を変更する関数。
type ClientOption func(*Client)

// WithTimeout は1リクエストあたりのタイムアウトを設定する。
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// NewClient は新しいClientを生成する。
func NewClient(resolver Resolver, opts ...ClientOption) *Client {
	c := &Client{
		resolver:   resolver,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send はサービスにリクエストを送り、リプライをそのまま返す。
// 接続失敗、タイムアウト、2xx以外のステータスは KindTransport の障害として返す。
// リトライは行わない。
func (c *Client) Send(ctx context.Context, service, pattern string, payload any) (json.RawMessage, error) {
	var reply json.RawMessage
	if err := c.post(ctx, service, "/rpc/"+pattern, payload, &reply); err != nil {
		return nil, err
	}
	if len(reply) == 0 {
		reply = json.RawMessage("null")
	}
	return reply, nil
}

// Call はリクエストを送り、リプライを Normalize してからoutにデコードする。
// operationはエラーエンベロープにメッセージが無い場合の既定メッセージに使用する。
// outがnilの場合はデコードしない。
func (c *Client) Call(ctx context.Context, service, pattern, operation string, payload any, out any) error {
	reply, err := c.Send(ctx, service, pattern, payload)
	if err != nil {
		return err
	}
	data, err := Normalize(reply, operation)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return Internal(fmt.Sprintf("%sに失敗しました", operation), fmt.Errorf("リプライのデコードに失敗: %w", err))
	}
	return nil
}

// Emit はサービスにイベントを送る。受け付けられた時点で戻り、処理結果は待たない。
func (c *Client) Emit(ctx context.Context, service, pattern string, payload any) error {
	return c.post(ctx, service, "/events/"+pattern, payload, nil)
}

// post は接続先を解決してJSONをPOSTする共通処理。
func (c *Client) post(ctx context.Context, service, path string, payload any, out any) error {
	base, err := c.resolver.Resolve(ctx, service)
	if err != nil {
		return Transport(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	hc := httpclient.New(base, httpclient.WithHTTPClient(c.httpClient))
	if err := hc.PostJSON(ctx, path, payload, out); err != nil {
		return Transport(fmt.Errorf("%s%s: %w", service, path, err))
	}
	return nil
}
