package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/liquidar/pkg/rpc"
)

// stubValidator はテスト用のTokenValidator。
type stubValidator struct {
	principals map[string]*Principal
	err        error
}

func (s stubValidator) ValidateToken(_ context.Context, token string) (*Principal, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.principals[token], nil
}

// doAuthRequest はTokenAuthを適用したルーターにリクエストを送る。
func doAuthRequest(t *testing.T, v TokenValidator, abort AbortFunc, authHeader string) (*httptest.ResponseRecorder, *Principal) {
	t.Helper()

	var captured *Principal
	router := gin.New()
	router.Use(TokenAuth(v, abort))
	router.GET("/test", func(c *gin.Context) {
		captured = GetPrincipal(c)
		c.JSON(http.StatusOK, gin.H{"userId": GetUserID(c)})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w, captured
}

// TestTokenAuth はTokenAuthミドルウェアを検証する。
func TestTokenAuth(t *testing.T) {
	t.Parallel()

	validator := stubValidator{principals: map[string]*Principal{
		"good-token": {UserID: "user-1", Email: "a@x.com", Roles: []string{"USER"}},
	}}

	t.Run("有効なトークンで利用者がコンテキストに設定されること", func(t *testing.T) {
		t.Parallel()

		w, p := doAuthRequest(t, validator, nil, "Bearer good-token")
		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, p)
		assert.Equal(t, "user-1", p.UserID)
		assert.Equal(t, []string{"USER"}, p.Roles)
	})

	t.Run("Authorizationヘッダーが無い場合401が返ること", func(t *testing.T) {
		t.Parallel()

		w, _ := doAuthRequest(t, validator, nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "Authorizationヘッダーが必要です", body["error"])
	})

	t.Run("Bearer形式でない場合401が返ること", func(t *testing.T) {
		t.Parallel()

		w, _ := doAuthRequest(t, validator, nil, "Basic abc")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("検証結果がnullの場合401が返ること", func(t *testing.T) {
		t.Parallel()

		w, p := doAuthRequest(t, validator, nil, "Bearer garbage")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Nil(t, p)
	})

	t.Run("検証先との通信障害は500になること", func(t *testing.T) {
		t.Parallel()

		failing := stubValidator{err: rpc.Transport(errors.New("connection refused"))}
		w, _ := doAuthRequest(t, failing, nil, "Bearer good-token")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("独自のabort関数が使用されること", func(t *testing.T) {
		t.Parallel()

		var got error
		abort := func(c *gin.Context, err error) {
			got = err
			c.AbortWithStatus(http.StatusTeapot)
		}
		w, _ := doAuthRequest(t, validator, abort, "")
		assert.Equal(t, http.StatusTeapot, w.Code)

		var f *rpc.Fault
		require.True(t, errors.As(got, &f))
		assert.Equal(t, rpc.KindUnauthorized, f.Kind)
	})
}
