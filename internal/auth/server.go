package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nao1215/liquidar/pkg/billitem"
	"github.com/nao1215/liquidar/pkg/httpserver"
	"github.com/nao1215/liquidar/pkg/identity"
	"github.com/nao1215/liquidar/pkg/middleware"
	"github.com/nao1215/liquidar/pkg/rpc"
)

// Server は認証サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// service は認証の状態遷移を実行する。
	service *Service
	// logger はサービスのロガー。
	logger zerolog.Logger
}

// NewServer は新しい認証サーバーを生成する。
func NewServer(port string, service *Service, logger zerolog.Logger) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))

	s := &Server{
		router:  router,
		port:    port,
		service: service,
		logger:  logger,
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

// setupRoutes はパターンとヘルスチェックを登録する。
func (s *Server) setupRoutes() {
	r := rpc.NewRouter(s.logger)
	r.Handle(identity.PatternRegister, s.handleRegister())
	r.Handle(identity.PatternLogin, s.handleLogin())
	r.Handle(identity.PatternValidate, s.handleValidate())
	r.Handle(identity.PatternVerifyEmail, s.handleVerifyEmail())
	r.Handle(identity.PatternResendVerification, s.handleResendVerification())
	r.Handle(identity.PatternGoogleLogin, s.handleGoogleLogin())
	r.HandleEvent(billitem.PatternUserBillItem, s.handleUserBillItem())
	r.Mount(s.router)

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "auth"})
	})
}

// handleRegister はローカルアカウントを登録する。
func (s *Server) handleRegister() rpc.Handler {
	return func(ctx context.Context, payload json.RawMessage) rpc.Result {
		in, f := rpc.Bind[RegisterInput](payload)
		if f != nil {
			return rpc.Err(f)
		}
		out, err := s.service.Register(ctx, in)
		return rpc.From(out, err, "ユーザー登録に失敗しました")
	}
}

// handleLogin はメールアドレスとパスワードでログインする。
func (s *Server) handleLogin() rpc.Handler {
	return func(ctx context.Context, payload json.RawMessage) rpc.Result {
		in, f := rpc.Bind[LoginInput](payload)
		if f != nil {
			return rpc.Err(f)
		}
		out, err := s.service.Login(ctx, in)
		return rpc.From(out, err, "ログインに失敗しました")
	}
}

// handleValidate はセッショントークンを検証する。
// 無効なトークンには障害ではなくnullを返す。
func (s *Server) handleValidate() rpc.Handler {
	return func(ctx context.Context, payload json.RawMessage) rpc.Result {
		token, f := rpc.Bind[string](payload)
		if f != nil {
			return rpc.Ok(nil)
		}
		info, err := s.service.ValidateToken(ctx, token)
		if err != nil {
			return rpc.Err(rpc.AsFault(err, "トークンの検証に失敗しました"))
		}
		if info == nil {
			return rpc.Ok(nil)
		}
		return rpc.Ok(info)
	}
}

// handleVerifyEmail は確認トークンでメールアドレスを確認済みにする。
func (s *Server) handleVerifyEmail() rpc.Handler {
	return func(ctx context.Context, payload json.RawMessage) rpc.Result {
		token, f := rpc.Bind[string](payload)
		if f != nil {
			return rpc.Err(f)
		}
		out, err := s.service.VerifyEmail(ctx, token)
		return rpc.From(out, err, "メールアドレスの確認に失敗しました")
	}
}

// handleResendVerification は確認メールを再送する。
func (s *Server) handleResendVerification() rpc.Handler {
	return func(ctx context.Context, payload json.RawMessage) rpc.Result {
		email, f := rpc.Bind[string](payload)
		if f != nil {
			return rpc.Err(f)
		}
		out, err := s.service.ResendVerificationEmail(ctx, email)
		return rpc.From(out, err, "確認メールの再送に失敗しました")
	}
}

// handleGoogleLogin はGoogleのトークンでログインする。
func (s *Server) handleGoogleLogin() rpc.Handler {
	return func(ctx context.Context, payload json.RawMessage) rpc.Result {
		in, f := rpc.Bind[GoogleLoginInput](payload)
		if f != nil {
			return rpc.Err(f)
		}
		out, err := s.service.GoogleLogin(ctx, in)
		return rpc.From(out, err, "Googleログインに失敗しました")
	}
}

// handleUserBillItem はユーザーに請求主体の参照を追加する。
func (s *Server) handleUserBillItem() rpc.EventHandler {
	return func(ctx context.Context, payload json.RawMessage) error {
		ev, f := rpc.Bind[billitem.UserBillItemEvent](payload)
		if f != nil {
			return f
		}
		return s.service.AddBillItem(ctx, ev.UserID, ev.BillID)
	}
}
