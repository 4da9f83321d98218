package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/liquidar/pkg/billitem"
	"github.com/nao1215/liquidar/pkg/config"
	"github.com/nao1215/liquidar/pkg/identity"
	"github.com/nao1215/liquidar/pkg/rpc"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestServer は認証サーバーをテスト用に起動し、接続済みのクライアントを返す。
func setupTestServer(t *testing.T) (*testEnv, *rpc.Client, *httptest.Server) {
	t.Helper()

	env := setupTestEnv(t)
	ts := httptest.NewServer(NewServer("0", env.service, zerolog.Nop()).Handler())
	t.Cleanup(ts.Close)

	client := rpc.NewClient(rpc.StaticResolver{config.ServiceAuth: ts.URL})
	return env, client, ts
}

// TestServer は認証サービスのパターンを検証する。
func TestServer(t *testing.T) {
	t.Parallel()

	t.Run("登録の重複はコード409のエンベロープで返ること", func(t *testing.T) {
		t.Parallel()

		_, client, _ := setupTestServer(t)
		in := RegisterInput{Email: "a@x.com", Password: "pw123456", FirstName: "A", LastName: "B"}

		var res RegisterResult
		require.NoError(t, client.Call(t.Context(), config.ServiceAuth, identity.PatternRegister, "ユーザー登録", in, &res))
		assert.Equal(t, "a@x.com", res.User.Email)

		err := client.Call(t.Context(), config.ServiceAuth, identity.PatternRegister, "ユーザー登録", in, nil)
		var f *rpc.Fault
		require.ErrorAs(t, err, &f)
		assert.Equal(t, rpc.KindConflict, f.Kind)
		assert.Equal(t, http.StatusConflict, f.Code)
	})

	t.Run("入力値が不正な場合はValidationのエンベロープで返ること", func(t *testing.T) {
		t.Parallel()

		_, client, _ := setupTestServer(t)
		reply, err := client.Send(t.Context(), config.ServiceAuth, identity.PatternRegister, map[string]string{"email": "not-an-email"})
		require.NoError(t, err)

		var env rpc.Envelope
		require.NoError(t, json.Unmarshal(reply, &env))
		assert.Equal(t, rpc.StatusError, env.Status)
		assert.Equal(t, http.StatusBadRequest, env.Code)
		assert.NotEmpty(t, env.Message)
	})

	t.Run("不正なトークンの検証はnullで返ること", func(t *testing.T) {
		t.Parallel()

		_, client, _ := setupTestServer(t)
		reply, err := client.Send(t.Context(), config.ServiceAuth, identity.PatternValidate, "garbage")
		require.NoError(t, err)
		assert.JSONEq(t, "null", string(reply))

		reply, err = client.Send(t.Context(), config.ServiceAuth, identity.PatternValidate, map[string]string{"token": "x"})
		require.NoError(t, err)
		assert.JSONEq(t, "null", string(reply))
	})

	t.Run("有効なトークンの検証でユーザー情報が返ること", func(t *testing.T) {
		t.Parallel()

		env, client, _ := setupTestServer(t)
		reg := env.register(t, "a@x.com", "pw123456")
		token, err := env.tokens.IssueSession(env.getUser(t, "a@x.com"))
		require.NoError(t, err)

		var info TokenInfo
		require.NoError(t, client.Call(t.Context(), config.ServiceAuth, identity.PatternValidate, "トークンの検証", token, &info))
		assert.Equal(t, reg.User.ID, info.UserID)
	})

	t.Run("未確認ユーザーのログインはコード401で返ること", func(t *testing.T) {
		t.Parallel()

		env, client, _ := setupTestServer(t)
		env.register(t, "a@x.com", "pw123456")

		err := client.Call(t.Context(), config.ServiceAuth, identity.PatternLogin, "ログイン",
			LoginInput{Email: "a@x.com", Password: "pw123456"}, nil)
		var f *rpc.Fault
		require.ErrorAs(t, err, &f)
		assert.Equal(t, rpc.KindUnauthorized, f.Kind)
		assert.Equal(t, http.StatusUnauthorized, f.Code)
	})

	t.Run("確認と再送のパターンが文字列のペイロードを受け付けること", func(t *testing.T) {
		t.Parallel()

		env, client, _ := setupTestServer(t)
		env.register(t, "a@x.com", "pw123456")

		var msg MessageResult
		require.NoError(t, client.Call(t.Context(), config.ServiceAuth, identity.PatternVerifyEmail, "メールアドレスの確認",
			env.notifier.lastVerification(t).Token, &msg))
		assert.Equal(t, "メールアドレスを確認しました", msg.Message)

		err := client.Call(t.Context(), config.ServiceAuth, identity.PatternResendVerification, "確認メールの再送", "a@x.com", nil)
		var f *rpc.Fault
		require.ErrorAs(t, err, &f)
		assert.Equal(t, rpc.KindBadRequest, f.Kind)
	})

	t.Run("user.bill-itemイベントで参照が追加されること", func(t *testing.T) {
		t.Parallel()

		env, client, _ := setupTestServer(t)
		reg := env.register(t, "a@x.com", "pw123456")

		require.NoError(t, client.Emit(t.Context(), config.ServiceAuth, billitem.PatternUserBillItem,
			billitem.UserBillItemEvent{UserID: reg.User.ID, BillID: "bill-1"}))
		assert.Equal(t, []string{"bill-1"}, env.getUser(t, "a@x.com").BillItems)

		// 失敗したイベントも受け付けられる
		require.NoError(t, client.Emit(t.Context(), config.ServiceAuth, billitem.PatternUserBillItem,
			billitem.UserBillItemEvent{UserID: "missing", BillID: "bill-1"}))
	})

	t.Run("ヘルスチェックが応答すること", func(t *testing.T) {
		t.Parallel()

		_, _, ts := setupTestServer(t)
		resp, err := ts.Client().Get(ts.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "auth", body["service"])
	})
}
