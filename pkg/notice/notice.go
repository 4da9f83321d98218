// Package notice は通知サービスのパターン名とペイロードを定義する。
package notice

// パターン名。
const (
	PatternSendVerificationEmail = "notifications.sendVerificationEmail"
	PatternSendWelcomeEmail      = "notifications.sendWelcomeEmail"
)

// VerificationEmailRequest は確認メール送信のペイロード。
type VerificationEmailRequest struct {
	// Email は宛先のメールアドレス。
	Email string `json:"email" validate:"required,email"`
	// FirstName は宛名に使う名。
	FirstName string `json:"firstName"`
	// VerificationToken は確認リンクに埋め込むトークン。
	VerificationToken string `json:"verificationToken" validate:"required"`
}

// WelcomeEmailRequest はようこそメール送信のペイロード。
type WelcomeEmailRequest struct {
	// Email は宛先のメールアドレス。
	Email string `json:"email" validate:"required,email"`
	// FirstName は宛名に使う名。
	FirstName string `json:"firstName"`
}

// Reply は送信成功時のリプライ。
type Reply struct {
	// Status は常に "success"。
	Status string `json:"status"`
	// Message は結果のメッセージ。
	Message string `json:"message"`
}
