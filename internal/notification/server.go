package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nao1215/liquidar/pkg/httpserver"
	"github.com/nao1215/liquidar/pkg/middleware"
	"github.com/nao1215/liquidar/pkg/notice"
	"github.com/nao1215/liquidar/pkg/rpc"
)

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はdeliveriesテーブルへのクエリ。
	queries *Queries
	// sender はメールの送信先。
	sender Sender
	// verificationURL は確認リンクのベースURL。
	verificationURL string
	// logger はサービスのロガー。
	logger zerolog.Logger
	// now は現在時刻を返す。
	now func() time.Time
}

// NewServer は新しい通知サーバーを生成する。
// スキーマはマイグレーション済みであること。
func NewServer(port string, db *sql.DB, sender Sender, verificationURL string, logger zerolog.Logger) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))

	s := &Server{
		router:          router,
		port:            port,
		queries:         NewQueries(db),
		sender:          sender,
		verificationURL: verificationURL,
		logger:          logger,
		now:             time.Now,
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
	r.Handle(notice.PatternSendVerificationEmail, s.handleSendVerificationEmail)
	r.Handle(notice.PatternSendWelcomeEmail, s.handleSendWelcomeEmail)
	r.Mount(s.router)

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notification"})
	})
}

// handleSendVerificationEmail は確認リンク付きのメールを送る。
func (s *Server) handleSendVerificationEmail(ctx context.Context, payload json.RawMessage) rpc.Result {
	req, f := rpc.Bind[notice.VerificationEmailRequest](payload)
	if f != nil {
		return rpc.Err(f)
	}

	link, err := verificationLink(s.verificationURL, req.VerificationToken)
	if err != nil {
		return rpc.Err(rpc.Internal("確認メールの送信に失敗しました", err))
	}
	body, err := render("verification.html", mailData{FirstName: req.FirstName, Link: link})
	if err != nil {
		return rpc.Err(rpc.Internal("確認メールの送信に失敗しました", err))
	}

	mail := Mail{To: req.Email, Subject: subjectVerification, HTML: body}
	if err := s.deliver(ctx, KindVerification, mail); err != nil {
		return rpc.Err(rpc.Internal("確認メールの送信に失敗しました", err))
	}
	return rpc.Ok(notice.Reply{Status: "success", Message: "確認メールを送信しました"})
}

// handleSendWelcomeEmail はようこそメールを送る。
func (s *Server) handleSendWelcomeEmail(ctx context.Context, payload json.RawMessage) rpc.Result {
	req, f := rpc.Bind[notice.WelcomeEmailRequest](payload)
	if f != nil {
		return rpc.Err(f)
	}

	body, err := render("welcome.html", mailData{FirstName: req.FirstName})
	if err != nil {
		return rpc.Err(rpc.Internal("ようこそメールの送信に失敗しました", err))
	}

	mail := Mail{To: req.Email, Subject: subjectWelcome, HTML: body}
	if err := s.deliver(ctx, KindWelcome, mail); err != nil {
		return rpc.Err(rpc.Internal("ようこそメールの送信に失敗しました", err))
	}
	return rpc.Ok(notice.Reply{Status: "success", Message: "ようこそメールを送信しました"})
}

// deliver はメールを送信し、結果を配信記録に残す。
// 記録の失敗は送信結果を変えない。
func (s *Server) deliver(ctx context.Context, kind Kind, m Mail) error {
	sendErr := s.sender.Send(ctx, m)

	d := Delivery{
		ID:        uuid.New().String(),
		Recipient: m.To,
		Kind:      kind,
		Status:    DeliverySent,
		CreatedAt: s.now().UTC(),
	}
	if sendErr != nil {
		d.Status = DeliveryFailed
		d.Error = sendErr.Error()
	}
	if err := s.queries.CreateDelivery(ctx, d); err != nil {
		s.logger.Warn().Err(err).Str("kind", string(kind)).Msg("配信記録の保存に失敗しました")
	}

	if sendErr != nil {
		return sendErr
	}
	s.logger.Info().Str("kind", string(kind)).Str("delivery_id", d.ID).Msg("メールを送信しました")
	return nil
}
