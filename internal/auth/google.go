package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// accessTokenPrefix はGoogleのアクセストークンの接頭辞。
// これで始まるトークンはuserinfoで、それ以外はIDトークンとして検証する。
const accessTokenPrefix = "ya29."

var (
	// ErrInvalidGoogleToken はGoogleのトークンを検証できなかったことを表す。
	ErrInvalidGoogleToken = errors.New("Googleのトークンが無効です")
	// ErrInvalidGoogleAudience はIDトークンの発行先が自サービスのクライアントIDと一致しないことを表す。
	ErrInvalidGoogleAudience = errors.New("GoogleのIDトークンの発行先が一致しません")
)

// GoogleProfile はGoogleアカウントから得た正規化前のプロフィール。
type GoogleProfile struct {
	// ID はGoogleアカウントの識別子。
	ID string
	// Email はメールアドレス。
	Email string
	// GivenName は名。
	GivenName string
	// FamilyName は姓。
	FamilyName string
}

// GoogleVerifier はGoogleのトークンを検証してプロフィールを返す。
type GoogleVerifier interface {
	Verify(ctx context.Context, token string) (GoogleProfile, error)
}

// GoogleOAuthVerifier はGoogleのOAuth2 APIでトークンを検証する。
type GoogleOAuthVerifier struct {
	// clientID はIDトークンのaudienceと照合するクライアントID。
	clientID string
	// httpClient はGoogle APIの呼び出しに使用するHTTPクライアント。
	httpClient *http.Client
	// endpoint はAPIのベースURL。空の場合は既定のURLを使用する。
	endpoint string
}

// GoogleOption はGoogleOAuthVerifierの設定を変更する関数。
type GoogleOption func(*GoogleOAuthVerifier)

// WithGoogleEndpoint はAPIのベースURLを変更する。
func WithGoogleEndpoint(endpoint string) GoogleOption {
	return func(v *GoogleOAuthVerifier) {
		v.endpoint = endpoint
	}
}

// WithGoogleHTTPClient はHTTPクライアントを変更する。
func WithGoogleHTTPClient(hc *http.Client) GoogleOption {
	return func(v *GoogleOAuthVerifier) {
		v.httpClient = hc
	}
}

// NewGoogleVerifier は新しいGoogleOAuthVerifierを生成する。
func NewGoogleVerifier(clientID string, opts ...GoogleOption) *GoogleOAuthVerifier {
	v := &GoogleOAuthVerifier{clientID: clientID, httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify はトークンの接頭辞で検証方法を選び、プロフィールを返す。
func (v *GoogleOAuthVerifier) Verify(ctx context.Context, token string) (GoogleProfile, error) {
	var (
		profile GoogleProfile
		err     error
	)
	if strings.HasPrefix(token, accessTokenPrefix) {
		profile, err = v.verifyAccessToken(ctx, token)
	} else {
		profile, err = v.verifyIDToken(ctx, token)
	}
	if err != nil {
		return GoogleProfile{}, fmt.Errorf("%w: %w", ErrInvalidGoogleToken, err)
	}
	if profile.Email == "" {
		return GoogleProfile{}, fmt.Errorf("%w: メールアドレスが含まれていません", ErrInvalidGoogleToken)
	}
	return profile, nil
}

// verifyAccessToken はアクセストークンでuserinfoを取得する。
func (v *GoogleOAuthVerifier) verifyAccessToken(ctx context.Context, token string) (GoogleProfile, error) {
	base := context.WithValue(ctx, oauth2.HTTPClient, v.httpClient)
	hc := oauth2.NewClient(base, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))

	svc, err := googleoauth2.NewService(ctx, v.options(hc)...)
	if err != nil {
		return GoogleProfile{}, fmt.Errorf("OAuth2サービスの生成に失敗: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return GoogleProfile{}, fmt.Errorf("userinfoの取得に失敗: %w", err)
	}
	return GoogleProfile{
		ID:         info.Id,
		Email:      info.Email,
		GivenName:  info.GivenName,
		FamilyName: info.FamilyName,
	}, nil
}

// verifyIDToken はIDトークンをtokeninfoで検証し、audienceを照合する。
// 名前はtokeninfoに含まれないため、検証済みトークンのクレームから読み取る。
func (v *GoogleOAuthVerifier) verifyIDToken(ctx context.Context, token string) (GoogleProfile, error) {
	svc, err := googleoauth2.NewService(ctx, v.options(v.httpClient)...)
	if err != nil {
		return GoogleProfile{}, fmt.Errorf("OAuth2サービスの生成に失敗: %w", err)
	}
	info, err := svc.Tokeninfo().IdToken(token).Context(ctx).Do()
	if err != nil {
		return GoogleProfile{}, fmt.Errorf("tokeninfoの取得に失敗: %w", err)
	}
	if info.Audience != v.clientID {
		return GoogleProfile{}, ErrInvalidGoogleAudience
	}

	profile := GoogleProfile{ID: info.UserId, Email: info.Email}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		profile.GivenName, _ = claims["given_name"].(string)
		profile.FamilyName, _ = claims["family_name"].(string)
		if profile.ID == "" {
			profile.ID, _ = claims["sub"].(string)
		}
	}
	return profile, nil
}

// options はGoogle APIクライアントのオプションを返す。
func (v *GoogleOAuthVerifier) options(hc *http.Client) []option.ClientOption {
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if v.endpoint != "" {
		opts = append(opts, option.WithEndpoint(v.endpoint))
	}
	return opts
}
