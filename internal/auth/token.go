package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenTypeVerification は確認トークンの識別タグ。
	TokenTypeVerification = "email_verification"
	// tokenTypeAccess はセッショントークンの識別タグ。
	tokenTypeAccess = "access"
	// verificationTTL は確認トークンの有効期間。
	verificationTTL = 24 * time.Hour
	// tokenIssuer はトークンの発行者。
	tokenIssuer = "liquidar-auth"
)

// ErrInvalidToken はトークンの署名、有効期限、識別タグのいずれかが不正であることを表す。
var ErrInvalidToken = errors.New("トークンが無効です")

// SessionClaims はセッショントークンのクレーム。
type SessionClaims struct {
	jwt.RegisteredClaims
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
	// Roles はユーザーのロール。
	Roles []Role `json:"roles"`
	// Type はトークンの識別タグ。
	Type string `json:"type"`
}

// VerificationClaims は確認トークンのクレーム。
type VerificationClaims struct {
	jwt.RegisteredClaims
	// Email は確認対象のメールアドレス。
	Email string `json:"email"`
	// Type はトークンの識別タグ。常に TokenTypeVerification。
	Type string `json:"type"`
}

// TokenIssuer はHS256で署名したトークンを発行・検証する。
type TokenIssuer struct {
	// secret は署名鍵。
	secret []byte
	// sessionTTL はセッショントークンの有効期間。
	sessionTTL time.Duration
	// now は現在時刻を返す。
	now func() time.Time
}

// NewTokenIssuer は新しいTokenIssuerを生成する。
func NewTokenIssuer(secret string, sessionTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), sessionTTL: sessionTTL, now: time.Now}
}

// IssueSession はユーザーID、メールアドレス、ロールを持つセッショントークンを発行する。
func (i *TokenIssuer) IssueSession(u User) (string, error) {
	now := i.now()
	claims := SessionClaims{
		RegisteredClaims: i.registered(u.ID, now, i.sessionTTL),
		Email:            u.Email,
		Roles:            u.Roles,
		Type:             tokenTypeAccess,
	}
	return i.sign(claims)
}

// IssueVerification はメール確認用のトークンを発行する。有効期間は24時間。
func (i *TokenIssuer) IssueVerification(u User) (string, error) {
	now := i.now()
	claims := VerificationClaims{
		RegisteredClaims: i.registered(u.ID, now, verificationTTL),
		Email:            u.Email,
		Type:             TokenTypeVerification,
	}
	return i.sign(claims)
}

// ParseSession はセッショントークンを検証する。確認トークンは受け付けない。
func (i *TokenIssuer) ParseSession(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := i.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.Type == TokenTypeVerification || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseVerification は確認トークンを検証する。識別タグが一致しないトークンは受け付けない。
func (i *TokenIssuer) ParseVerification(token string) (*VerificationClaims, error) {
	claims := &VerificationClaims{}
	if err := i.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeVerification || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// registered は共通の登録済みクレームを生成する。
func (i *TokenIssuer) registered(subject string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// sign はクレームにHS256で署名する。
func (i *TokenIssuer) sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// parse は署名と有効期限を検証してclaimsに展開する。HMAC以外の署名方式は拒否する。
func (i *TokenIssuer) parse(token string, claims jwt.Claims) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(i.now),
	)
	if _, err := parser.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return i.secret, nil
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}
