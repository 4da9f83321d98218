package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPayload はテスト用のリクエスト/レスポンスペイロード。
type testPayload struct {
	// Name はテスト用の名前フィールド。
	Name string `json:"name"`
	// Value はテスト用の値フィールド。
	Value int `json:"value"`
}

// TestNew はNew関数でクライアントが正しく生成されることを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("既定のタイムアウトが10秒に設定されていること", func(t *testing.T) {
		t.Parallel()

		client := New("http://localhost:3001")
		require.NotNil(t, client.httpClient)
		assert.Equal(t, "http://localhost:3001", client.baseURL)
		assert.Equal(t, 10*time.Second, client.httpClient.Timeout)
	})

	t.Run("WithTimeoutでタイムアウトを変更できること", func(t *testing.T) {
		t.Parallel()

		client := New("http://localhost:3001", WithTimeout(3*time.Second))
		assert.Equal(t, 3*time.Second, client.httpClient.Timeout)
	})

	t.Run("WithHTTPClientで共有クライアントを使用できること", func(t *testing.T) {
		t.Parallel()

		shared := &http.Client{Timeout: time.Second}
		client := New("http://localhost:3001", WithHTTPClient(shared))
		assert.Same(t, shared, client.httpClient)
	})
}

// TestPostJSON はPostJSON関数を検証する。
func TestPostJSON(t *testing.T) {
	t.Parallel()

	t.Run("正常にPOSTリクエストを送信してレスポンスを取得できること", func(t *testing.T) {
		t.Parallel()

		var (
			method, path, contentType string
			body                      []byte
		)
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method = r.Method
			path = r.URL.Path
			contentType = r.Header.Get("Content-Type")
			body, _ = io.ReadAll(r.Body)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(testPayload{Name: "response", Value: 200})
		}))
		defer ts.Close()

		var result testPayload
		err := New(ts.URL).PostJSON(t.Context(), "/rpc/auth.login", testPayload{Name: "request", Value: 1}, &result)
		require.NoError(t, err)

		assert.Equal(t, http.MethodPost, method)
		assert.Equal(t, "/rpc/auth.login", path)
		assert.Equal(t, "application/json", contentType)
		assert.JSONEq(t, `{"name":"request","value":1}`, string(body))
		assert.Equal(t, testPayload{Name: "response", Value: 200}, result)
	})

	t.Run("2xx以外のステータスでStatusErrorが返ること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unavailable"))
		}))
		defer ts.Close()

		err := New(ts.URL).PostJSON(t.Context(), "/rpc/x", nil, nil)
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
		assert.Equal(t, "unavailable", statusErr.Body)
	})

	t.Run("resultがnilの場合でもエラーにならないこと", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}))
		defer ts.Close()

		assert.NoError(t, New(ts.URL).PostJSON(t.Context(), "/events/x", map[string]string{"a": "b"}, nil))
	})

	t.Run("タイムアウトを超えた場合にエラーが返ること", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer ts.Close()
		defer close(release)

		err := New(ts.URL, WithTimeout(50*time.Millisecond)).PostJSON(t.Context(), "/rpc/slow", nil, nil)
		assert.Error(t, err)
	})

	t.Run("キャンセルされたコンテキストでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		assert.Error(t, New(ts.URL).PostJSON(ctx, "/rpc/x", nil, nil))
	})

	t.Run("不正なJSONレスポンスでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("{invalid"))
		}))
		defer ts.Close()

		var result testPayload
		assert.Error(t, New(ts.URL).PostJSON(t.Context(), "/rpc/x", nil, &result))
	})
}

// TestRequestID はリクエストIDの伝播を検証する。
func TestRequestID(t *testing.T) {
	t.Parallel()

	t.Run("コンテキストのリクエストIDがヘッダーに設定されること", func(t *testing.T) {
		t.Parallel()

		var got string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Get(HeaderRequestID)
			_, _ = w.Write([]byte("null"))
		}))
		defer ts.Close()

		ctx := WithRequestID(t.Context(), "req-123")
		require.NoError(t, New(ts.URL).PostJSON(ctx, "/rpc/x", nil, nil))
		assert.Equal(t, "req-123", got)
	})

	t.Run("未設定の場合は空文字列が返ること", func(t *testing.T) {
		t.Parallel()

		assert.Empty(t, RequestIDFrom(context.Background()))
	})
}
