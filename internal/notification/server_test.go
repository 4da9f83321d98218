package notification

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/liquidar/internal/auth"
	"github.com/nao1215/liquidar/pkg/config"
	"github.com/nao1215/liquidar/pkg/database"
	"github.com/nao1215/liquidar/pkg/migration"
	"github.com/nao1215/liquidar/pkg/notice"
	"github.com/nao1215/liquidar/pkg/rpc"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeSender は送信を記録する Sender。errが設定されていれば失敗する。
type fakeSender struct {
	mu    sync.Mutex
	mails []Mail
	err   error
}

func (s *fakeSender) Send(_ context.Context, m Mail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.mails = append(s.mails, m)
	return nil
}

func (s *fakeSender) sent() []Mail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Mail(nil), s.mails...)
}

// setupTestServer はテスト用の通知サーバーを起動し、接続済みのクライアントを返す。
func setupTestServer(t *testing.T, sender Sender) (*Server, *rpc.Client) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "notification.db")
	db, err := database.Open(t.Context(), database.DriverSQLite, database.SQLiteDSN(path))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migration.Run(t.Context(), db, database.DriverSQLite, Migrations(), zerolog.Nop()))

	s := NewServer("0", db, sender, "http://localhost:3000/api/verify", zerolog.Nop())
	s.now = func() time.Time { return time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC) }

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, rpc.NewClient(rpc.StaticResolver{config.ServiceNotification: ts.URL})
}

// TestSendVerificationEmail は notifications.sendVerificationEmail を検証する。
func TestSendVerificationEmail(t *testing.T) {
	t.Parallel()

	t.Run("確認リンク付きのメールが送信され配信記録が残ること", func(t *testing.T) {
		t.Parallel()

		sender := &fakeSender{}
		s, client := setupTestServer(t, sender)

		var reply notice.Reply
		require.NoError(t, client.Call(t.Context(), config.ServiceNotification, notice.PatternSendVerificationEmail,
			"確認メールの送信",
			notice.VerificationEmailRequest{Email: "a@x.com", FirstName: "Ana", VerificationToken: "tok.en-1"}, &reply))
		assert.Equal(t, "success", reply.Status)

		mails := sender.sent()
		require.Len(t, mails, 1)
		assert.Equal(t, "a@x.com", mails[0].To)
		assert.Equal(t, subjectVerification, mails[0].Subject)
		assert.Contains(t, mails[0].HTML, "Ana")
		assert.Contains(t, mails[0].HTML, `href="http://localhost:3000/api/verify?token=tok.en-1"`)

		deliveries, err := s.queries.ListDeliveriesByRecipient(t.Context(), "a@x.com")
		require.NoError(t, err)
		require.Len(t, deliveries, 1)
		assert.Equal(t, KindVerification, deliveries[0].Kind)
		assert.Equal(t, DeliverySent, deliveries[0].Status)
	})

	t.Run("トークンが無い場合はValidationになること", func(t *testing.T) {
		t.Parallel()

		sender := &fakeSender{}
		_, client := setupTestServer(t, sender)

		err := client.Call(t.Context(), config.ServiceNotification, notice.PatternSendVerificationEmail, "確認メールの送信",
			notice.VerificationEmailRequest{Email: "a@x.com"}, nil)
		var f *rpc.Fault
		require.ErrorAs(t, err, &f)
		assert.Equal(t, rpc.KindValidation, f.Kind)
		assert.Empty(t, sender.sent())
	})

	t.Run("送信に失敗した場合は内部障害になり失敗が記録されること", func(t *testing.T) {
		t.Parallel()

		sender := &fakeSender{err: errors.New("smtp: connection refused")}
		s, client := setupTestServer(t, sender)

		err := client.Call(t.Context(), config.ServiceNotification, notice.PatternSendVerificationEmail, "確認メールの送信",
			notice.VerificationEmailRequest{Email: "a@x.com", VerificationToken: "t"}, nil)
		var f *rpc.Fault
		require.ErrorAs(t, err, &f)
		assert.Equal(t, http.StatusInternalServerError, f.Code)
		assert.Equal(t, "確認メールの送信に失敗しました", f.Message)

		deliveries, err := s.queries.ListDeliveriesByRecipient(t.Context(), "a@x.com")
		require.NoError(t, err)
		require.Len(t, deliveries, 1)
		assert.Equal(t, DeliveryFailed, deliveries[0].Status)
		assert.Contains(t, deliveries[0].Error, "connection refused")
	})
}

// TestSendWelcomeEmail は notifications.sendWelcomeEmail を検証する。
func TestSendWelcomeEmail(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	s, client := setupTestServer(t, sender)

	var reply notice.Reply
	require.NoError(t, client.Call(t.Context(), config.ServiceNotification, notice.PatternSendWelcomeEmail,
		"ようこそメールの送信", notice.WelcomeEmailRequest{Email: "a@x.com", FirstName: "<b>Ana</b>"}, &reply))
	assert.Equal(t, "success", reply.Status)

	mails := sender.sent()
	require.Len(t, mails, 1)
	assert.Equal(t, subjectWelcome, mails[0].Subject)
	// 宛名はエスケープされる
	assert.Contains(t, mails[0].HTML, "&lt;b&gt;Ana&lt;/b&gt;")

	deliveries, err := s.queries.ListDeliveriesByRecipient(t.Context(), "a@x.com")
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, KindWelcome, deliveries[0].Kind)
}

// TestRPCNotifier は認証サービスの通知クライアントと通知サービスの組み合わせを検証する。
func TestRPCNotifier(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	_, client := setupTestServer(t, sender)
	notifier := auth.NewRPCNotifier(client)

	require.NoError(t, notifier.SendVerificationEmail(t.Context(), "a@x.com", "Ana", "token-1"))
	require.NoError(t, notifier.SendWelcomeEmail(t.Context(), "a@x.com", "Ana"))

	mails := sender.sent()
	require.Len(t, mails, 2)
	assert.Equal(t, subjectVerification, mails[0].Subject)
	assert.Equal(t, subjectWelcome, mails[1].Subject)
}

// TestVerificationLink は確認リンクの組み立てを検証する。
func TestVerificationLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		base string
		want string
	}{
		{name: "クエリの無いURLにtokenが付くこと", base: "https://app.example.com/verify", want: "https://app.example.com/verify?token=abc"},
		{name: "既存のクエリが保持されること", base: "https://app.example.com/verify?lang=es", want: "https://app.example.com/verify?lang=es&token=abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := verificationLink(tt.base, "abc")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestNewSender は設定による送信方法の切り替えを検証する。
func TestNewSender(t *testing.T) {
	t.Parallel()

	t.Run("SMTPホストが空の場合はログに記録すること", func(t *testing.T) {
		t.Parallel()

		sender := NewSender(SMTPConfig{}, zerolog.Nop())
		require.IsType(t, &LogSender{}, sender)
		assert.NoError(t, sender.Send(t.Context(), Mail{To: "a@x.com"}))
	})

	t.Run("SMTPホストが設定されていればSMTPで送ること", func(t *testing.T) {
		t.Parallel()

		sender := NewSender(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "no-reply@example.com"}, zerolog.Nop())
		assert.IsType(t, &SMTPSender{}, sender)
	})

	t.Run("キャンセル済みのコンテキストでは接続しないこと", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		err := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: 1}).Send(ctx, Mail{To: "a@x.com"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

// TestHealthCheck はヘルスチェックを検証する。
func TestHealthCheck(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t, &fakeSender{})
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","service":"notification"}`, w.Body.String())
}
