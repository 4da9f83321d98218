package auth

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/liquidar/pkg/billitem"
)

// Role はユーザーのロール。
type Role string

const (
	// RoleUser は一般ユーザー。
	RoleUser Role = "USER"
	// RolePayedUser は有料プランのユーザー。
	RolePayedUser Role = "PAYEDUSER"
	// RoleAdmin は管理者。
	RoleAdmin Role = "ADMIN"
	// RoleSuperAdmin は特権管理者。
	RoleSuperAdmin Role = "SUPERADMIN"
)

// Provider は認証プロバイダ。
type Provider string

const (
	// ProviderLocal はメールアドレスとパスワードによる認証。
	ProviderLocal Provider = "local"
	// ProviderGoogle はGoogleアカウントによる認証。
	ProviderGoogle Provider = "google"
)

// User はユーザーの永続化された状態。
type User struct {
	// ID はユーザーの一意識別子（UUID）。
	ID string
	// Email は小文字に正規化したメールアドレス。
	Email string
	// PasswordHash はbcryptハッシュ。Googleアカウントでは空。
	PasswordHash string
	// FirstName は名。
	FirstName string
	// LastName は姓。
	LastName string
	// GoogleID はGoogleアカウントの識別子。未連携の場合は空。
	GoogleID string
	// Provider は認証プロバイダ。
	Provider Provider
	// IsActive は有効なアカウントであればtrue。
	IsActive bool
	// IsVerified はメール確認済みであればtrue。
	IsVerified bool
	// Roles はロールの集合。空にはならない。
	Roles []Role
	// BillItems は請求主体のIDの一覧。
	BillItems []string
	// LastVerificationSentAt は最後に確認メールを送った日時。
	LastVerificationSentAt *time.Time
	// CreatedAt は作成日時。
	CreatedAt time.Time
	// UpdatedAt は更新日時。
	UpdatedAt time.Time
}

// checkPassword はpasswordが保存済みのハッシュと一致すればtrueを返す。
func (u User) checkPassword(password string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// addBillItem は請求主体のIDを追加する。既に含まれていれば何もしない。
func (u *User) addBillItem(billID string) {
	if !slices.Contains(u.BillItems, billID) {
		u.BillItems = append(u.BillItems, billID)
	}
}

// PublicUser は登録結果として返すユーザー情報。
type PublicUser struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Roles      []Role `json:"roles"`
	IsVerified bool   `json:"isVerified"`
}

// SessionUser はログイン結果として返すユーザー情報。
type SessionUser struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	FirstName string          `json:"firstName"`
	LastName  string          `json:"lastName"`
	Roles     []Role          `json:"roles"`
	BillItems []billitem.Item `json:"billItems"`
	Provider  Provider        `json:"provider"`
}

// publicUser はユーザーの公開フィールドを返す。
func (u User) publicUser() PublicUser {
	return PublicUser{
		ID:         u.ID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Roles:      u.Roles,
		IsVerified: u.IsVerified,
	}
}

// normalizeEmail はメールアドレスを比較用に正規化する。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
