package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// loginRequest はテスト用のリクエストペイロード。
type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// setupTestService はRouterをマウントしたテスト用サービスを起動し、そのURLを返す。
func setupTestService(t *testing.T, register func(r *Router)) string {
	t.Helper()

	engine := gin.New()
	r := NewRouter(zerolog.Nop())
	register(r)
	r.Mount(engine)

	ts := httptest.NewServer(engine)
	t.Cleanup(ts.Close)
	return ts.URL
}

// TestClientCall はRouterとClientを組み合わせたリクエスト/リプライを検証する。
func TestClientCall(t *testing.T) {
	t.Parallel()

	url := setupTestService(t, func(r *Router) {
		r.Handle("auth.login", func(_ context.Context, payload json.RawMessage) Result {
			req, f := Bind[loginRequest](payload)
			if f != nil {
				return Err(f)
			}
			if req.Password != "pw123456" {
				return Err(Unauthorized("パスワードが正しくありません"))
			}
			return Ok(map[string]string{"token": "abc"})
		})
		r.Handle("auth.validate", func(_ context.Context, _ json.RawMessage) Result {
			return Ok(nil)
		})
		r.Handle("auth.broken", func(_ context.Context, _ json.RawMessage) Result {
			return From(nil, errors.New("db down"), "処理に失敗しました")
		})
	})
	client := NewClient(StaticResolver{"auth": url})

	t.Run("成功値をデコードできること", func(t *testing.T) {
		t.Parallel()

		var out map[string]string
		err := client.Call(t.Context(), "auth", "auth.login", "ログイン", loginRequest{Email: "a@x.com", Password: "pw123456"}, &out)
		require.NoError(t, err)
		assert.Equal(t, "abc", out["token"])
	})

	t.Run("業務エラーがFaultとして返ること", func(t *testing.T) {
		t.Parallel()

		err := client.Call(t.Context(), "auth", "auth.login", "ログイン", loginRequest{Email: "a@x.com", Password: "wrong"}, nil)
		var f *Fault
		require.True(t, errors.As(err, &f))
		assert.Equal(t, KindUnauthorized, f.Kind)
		assert.Equal(t, "パスワードが正しくありません", f.Message)
	})

	t.Run("検証エラーはコード400のエンベロープになること", func(t *testing.T) {
		t.Parallel()

		reply, err := client.Send(t.Context(), "auth", "auth.login", loginRequest{Email: "bad"})
		require.NoError(t, err)

		var env Envelope
		require.NoError(t, json.Unmarshal(reply, &env))
		assert.Equal(t, StatusError, env.Status)
		assert.Equal(t, http.StatusBadRequest, env.Code)
		assert.NotEmpty(t, env.Message)
	})

	t.Run("nullの成功値がそのまま返ること", func(t *testing.T) {
		t.Parallel()

		reply, err := client.Send(t.Context(), "auth", "auth.validate", "garbage")
		require.NoError(t, err)
		assert.Equal(t, "null", string(reply))

		data, err := Normalize(reply, "トークン検証")
		require.NoError(t, err)
		assert.Equal(t, "null", string(data))
	})

	t.Run("想定外のエラーは汎用メッセージのコード500になること", func(t *testing.T) {
		t.Parallel()

		reply, err := client.Send(t.Context(), "auth", "auth.broken", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"status":"error","message":"処理に失敗しました","code":500}`, string(reply))
	})

	t.Run("未登録のパターンはトランスポート障害になること", func(t *testing.T) {
		t.Parallel()

		_, err := client.Send(t.Context(), "auth", "auth.unknown", nil)
		var f *Fault
		require.True(t, errors.As(err, &f))
		assert.Equal(t, KindTransport, f.Kind)
	})

	t.Run("未登録のサービスはトランスポート障害になること", func(t *testing.T) {
		t.Parallel()

		_, err := client.Send(t.Context(), "billing", "bill-item.getBillItems", "u1")
		var f *Fault
		require.True(t, errors.As(err, &f))
		assert.Equal(t, KindTransport, f.Kind)
		assert.ErrorIs(t, err, ErrUnknownService)
	})
}

// TestClientTransportFault は通信障害の扱いを検証する。
func TestClientTransportFault(t *testing.T) {
	t.Parallel()

	t.Run("タイムアウトはトランスポート障害になりリトライされないこと", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		release := make(chan struct{})
		ts := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer ts.Close()
		defer close(release)

		client := NewClient(StaticResolver{"notification": ts.URL}, WithTimeout(50*time.Millisecond))
		_, err := client.Send(t.Context(), "notification", "notifications.sendWelcomeEmail", nil)

		var f *Fault
		require.True(t, errors.As(err, &f))
		assert.Equal(t, KindTransport, f.Kind)
		assert.Equal(t, http.StatusInternalServerError, f.Code)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("接続できない場合はトランスポート障害になること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.NotFoundHandler())
		url := ts.URL
		ts.Close()

		client := NewClient(StaticResolver{"auth": url})
		err := client.Call(t.Context(), "auth", "auth.login", "ログイン", nil, nil)
		var f *Fault
		require.True(t, errors.As(err, &f))
		assert.Equal(t, KindTransport, f.Kind)
	})
}

// TestClientEmit はイベント送信を検証する。
func TestClientEmit(t *testing.T) {
	t.Parallel()

	t.Run("イベントハンドラが呼ばれ失敗しても送信元にはエラーが返らないこと", func(t *testing.T) {
		t.Parallel()

		received := make(chan string, 1)
		url := setupTestService(t, func(r *Router) {
			r.HandleEvent("user.bill-item", func(_ context.Context, payload json.RawMessage) error {
				received <- string(payload)
				return errors.New("ユーザーが見つかりません")
			})
		})

		client := NewClient(StaticResolver{"auth": url})
		err := client.Emit(t.Context(), "auth", "user.bill-item", map[string]string{"userId": "u1", "billId": "b1"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"userId":"u1","billId":"b1"}`, <-received)
	})

	t.Run("未登録のイベントはトランスポート障害になること", func(t *testing.T) {
		t.Parallel()

		url := setupTestService(t, func(_ *Router) {})
		client := NewClient(StaticResolver{"auth": url})
		err := client.Emit(t.Context(), "auth", "user.unknown", nil)

		var f *Fault
		require.True(t, errors.As(err, &f))
		assert.Equal(t, KindTransport, f.Kind)
	})
}
