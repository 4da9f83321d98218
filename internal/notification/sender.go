package notification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// Mail は送信するメール。
type Mail struct {
	To      string
	Subject string
	HTML    string
}

// Sender はメールを送信する。
type Sender interface {
	Send(ctx context.Context, m Mail) error
}

// SMTPConfig はSMTPサーバーへの接続設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender はgomailでSMTPサーバーにメールを送る。
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPSender は新しいSMTPSenderを生成する。
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// Send はメールを1通送信する。送信ごとに接続する。
func (s *SMTPSender) Send(ctx context.Context, m Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/html", m.HTML)

	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("メールの送信に失敗: %w", err)
	}
	return nil
}

// LogSender はメールを送らずにログへ記録する。開発環境向け。
type LogSender struct {
	logger zerolog.Logger
}

// NewLogSender は新しいLogSenderを生成する。
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send はメールの宛先と件名をログに記録する。
func (s *LogSender) Send(_ context.Context, m Mail) error {
	s.logger.Info().
		Str("to", m.To).
		Str("subject", m.Subject).
		Int("html_bytes", len(m.HTML)).
		Msg("SMTPが未設定のためメールをログに記録しました")
	return nil
}

// NewSender はSMTPのホストが設定されていればSMTPSenderを、そうでなければLogSenderを返す。
func NewSender(cfg SMTPConfig, logger zerolog.Logger) Sender {
	if cfg.Host == "" {
		return NewLogSender(logger)
	}
	return NewSMTPSender(cfg)
}
