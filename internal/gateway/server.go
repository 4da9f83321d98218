package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nao1215/liquidar/pkg/config"
	"github.com/nao1215/liquidar/pkg/httpserver"
	"github.com/nao1215/liquidar/pkg/identity"
	"github.com/nao1215/liquidar/pkg/middleware"
	"github.com/nao1215/liquidar/pkg/rpc"
	"github.com/nao1215/liquidar/pkg/validation"
)

// Server はゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// client は内部サービスへのクライアント。
	client *rpc.Client
	// logger はサービスのロガー。
	logger zerolog.Logger
	// now はレスポンスのtimestampに使う現在時刻を返す。
	now func() time.Time
}

// NewServer は新しいゲートウェイサーバーを生成する。
func NewServer(port string, client *rpc.Client, allowedOrigins []string, logger zerolog.Logger) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(allowedOrigins))

	s := &Server{
		router: router,
		port:   port,
		client: client,
		logger: logger,
		now:    time.Now,
	}
	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はctxがキャンセルされるまでHTTPサーバーを動かす。
func (s *Server) Run(ctx context.Context) error {
	return httpserver.Serve(ctx, fmt.Sprintf(":%s", s.port), s.router, s.logger)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")

	// 認証（トークン不要）
	auth := api.Group("/auth")
	{
		auth.POST("/register", s.handleRegister())
		auth.POST("/login", s.handleLogin())
		auth.POST("/validate", s.handleValidate())
		auth.GET("/verify-email", s.handleVerifyEmail())
		auth.POST("/resend-verification", s.handleResendVerification())
		auth.POST("/google-login", s.handleGoogleLogin())
	}
	// 確認メールのリンク先
	api.GET("/verify", s.handleVerifyEmail())

	// 請求主体（トークン必須）
	general := api.Group("/general")
	general.Use(middleware.TokenAuth(authValidator{client: s.client}, s.fail))
	{
		general.POST("/bill-item", s.handleCreateBillItem())
		general.GET("/bill-item", s.handleListBillItems())
		general.GET("/bill-item/:id", s.handleGetBillItem())
		general.PATCH("/bill-item/:id", s.handleUpdateBillItem())
		general.DELETE("/bill-item/:id", s.handleRemoveBillItem())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
}

// validateRequest はトークン検証リクエストのJSON構造。
type validateRequest struct {
	Token string `json:"token" validate:"required"`
}

// resendRequest は確認メール再送リクエストのJSON構造。
type resendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// bindJSON はリクエストボディをvにデコードし、validateタグを検証する。
func bindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return rpc.Validation("リクエストボディの形式が不正です")
	}
	if err := validation.Struct(v); err != nil {
		return rpc.Validation(err.Error())
	}
	return nil
}

// forward はサービスにリクエストを送り、リプライを正規化して返す。
// operationはエラーエンベロープにメッセージが無い場合の既定メッセージに使う。
func (s *Server) forward(c *gin.Context, service, pattern, operation string, payload any) (json.RawMessage, error) {
	reply, err := s.client.Send(c.Request.Context(), service, pattern, payload)
	if err != nil {
		return nil, err
	}
	return rpc.Normalize(reply, operation)
}

// relay はforwardの結果をそのままレスポンスとして書き込む。
func (s *Server) relay(c *gin.Context, status int, service, pattern, operation string, payload any) {
	data, err := s.forward(c, service, pattern, operation, payload)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.succeed(c, status, data)
}

// handleRegister はユーザー登録を認証サービスに転送する。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req identity.RegisterRequest
		if err := bindJSON(c, &req); err != nil {
			s.fail(c, err)
			return
		}
		s.relay(c, http.StatusCreated, config.ServiceAuth, identity.PatternRegister, "ユーザー登録", req)
	}
}

// handleLogin はログインを認証サービスに転送する。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req identity.LoginRequest
		if err := bindJSON(c, &req); err != nil {
			s.fail(c, err)
			return
		}
		s.relay(c, http.StatusOK, config.ServiceAuth, identity.PatternLogin, "ログイン", req)
	}
}

// handleValidate はトークン検証を認証サービスに転送する。
// 無効なトークンでは data が null の成功レスポンスになる。
func (s *Server) handleValidate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validateRequest
		if err := bindJSON(c, &req); err != nil {
			s.fail(c, err)
			return
		}
		s.relay(c, http.StatusOK, config.ServiceAuth, identity.PatternValidate, "トークンの検証", req.Token)
	}
}

// handleVerifyEmail はクエリのトークンでメールアドレスの確認を認証サービスに転送する。
func (s *Server) handleVerifyEmail() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			s.fail(c, rpc.Validation("tokenは必須です"))
			return
		}
		s.relay(c, http.StatusOK, config.ServiceAuth, identity.PatternVerifyEmail, "メールアドレスの確認", token)
	}
}

// handleResendVerification は確認メールの再送を認証サービスに転送する。
func (s *Server) handleResendVerification() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resendRequest
		if err := bindJSON(c, &req); err != nil {
			s.fail(c, err)
			return
		}
		s.relay(c, http.StatusOK, config.ServiceAuth, identity.PatternResendVerification, "確認メールの再送", req.Email)
	}
}

// handleGoogleLogin はGoogleログインを認証サービスに転送する。
func (s *Server) handleGoogleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req identity.GoogleLoginRequest
		if err := bindJSON(c, &req); err != nil {
			s.fail(c, err)
			return
		}
		s.relay(c, http.StatusOK, config.ServiceAuth, identity.PatternGoogleLogin, "Googleログイン", req)
	}
}
