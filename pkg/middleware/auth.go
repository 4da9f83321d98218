package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/liquidar/pkg/rpc"
)

// Principal は検証済みのセッショントークンが表す利用者。
type Principal struct {
	// UserID はユーザーの一意識別子。
	UserID string `json:"userId"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
	// Roles はユーザーのロール。
	Roles []string `json:"roles"`
}

// TokenValidator はセッショントークンを検証する。
// 無効なトークンにはエラーではなく (nil, nil) を返す。
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Principal, error)
}

// AbortFunc はミドルウェアがリクエストを中断するときのレスポンスを書き込む。
type AbortFunc func(c *gin.Context, err error)

// contextKeyPrincipal はGinコンテキストに利用者を格納するキー。
const contextKeyPrincipal = "principal"

// TokenAuth はBearerトークンをvalidatorで検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに Principal を設定する。
// abortがnilの場合は {"error": メッセージ} を返す。
func TokenAuth(validator TokenValidator, abort AbortFunc) gin.HandlerFunc {
	if abort == nil {
		abort = defaultAbort
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, rpc.Unauthorized("Authorizationヘッダーが必要です"))
			return
		}

		token, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || token == "" {
			abort(c, rpc.Unauthorized("Bearer トークン形式が不正です"))
			return
		}

		principal, err := validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			abort(c, err)
			return
		}
		if principal == nil {
			abort(c, rpc.Unauthorized("トークンが無効です"))
			return
		}

		c.Set(contextKeyPrincipal, principal)
		c.Next()
	}
}

// defaultAbort は障害の種類に応じたステータスでエラーを返す。
func defaultAbort(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	f := rpc.AsFault(err, "内部サーバーエラーが発生しました")
	if f.Kind == rpc.KindUnauthorized {
		status = http.StatusUnauthorized
	}
	c.AbortWithStatusJSON(status, gin.H{"error": f.Message})
}

// GetPrincipal はGinコンテキストから利用者を取得する。
// TokenAuthミドルウェアが事前に適用されていない場合はnilを返す。
func GetPrincipal(c *gin.Context) *Principal {
	v, ok := c.Get(contextKeyPrincipal)
	if !ok {
		return nil
	}
	p, _ := v.(*Principal)
	return p
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
func GetUserID(c *gin.Context) string {
	if p := GetPrincipal(c); p != nil {
		return p.UserID
	}
	return ""
}
