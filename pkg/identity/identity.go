// Package identity は認証サービスのパターン名とワイヤ形式を定義する。
package identity

// パターン名。
const (
	PatternRegister           = "auth.register"
	PatternLogin              = "auth.login"
	PatternValidate           = "auth.validate"
	PatternVerifyEmail        = "auth.verify-email"
	PatternResendVerification = "auth.resend-verification"
	PatternGoogleLogin        = "auth.google-login"
)

// RegisterRequest は auth.register のペイロード。
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
}

// LoginRequest は auth.login のペイロード。
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// GoogleLoginRequest は auth.google-login のペイロード。
type GoogleLoginRequest struct {
	GoogleToken string `json:"googleToken" validate:"required"`
}
