package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/liquidar/pkg/billitem"
	"github.com/nao1215/liquidar/pkg/database"
	"github.com/nao1215/liquidar/pkg/identity"
	"github.com/nao1215/liquidar/pkg/rpc"
)

// resendInterval は確認メールを再送できる最短の間隔。
const resendInterval = 10 * time.Minute

// errUnverified はログイン時にメールアドレスが未確認だったことを表す。
// トランザクションを巻き戻してから再送するための内部的な合図で、呼び出し元には返さない。
var errUnverified = errors.New("メールアドレスが未確認です")

// RegisterInput は登録の入力。
type RegisterInput = identity.RegisterRequest

// LoginInput はログインの入力。
type LoginInput = identity.LoginRequest

// GoogleLoginInput はGoogleログインの入力。
type GoogleLoginInput = identity.GoogleLoginRequest

// RegisterResult は登録結果。
type RegisterResult struct {
	User    PublicUser `json:"user"`
	Message string     `json:"message"`
}

// LoginResult はログイン結果。BillItemsは機密フィールドを除去済み。
type LoginResult struct {
	User  SessionUser `json:"user"`
	Token string      `json:"token"`
}

// TokenInfo は有効なセッショントークンが指すユーザーの情報。
type TokenInfo struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Roles  []Role `json:"roles"`
}

// MessageResult はメッセージだけを返す操作の結果。
type MessageResult struct {
	Message string `json:"message"`
}

// Collaborators は認証サービスが利用する外部の協力者。
type Collaborators struct {
	// Notifier は確認メールとようこそメールを送る。
	Notifier Notifier
	// BillItems はログイン結果に含める請求主体を取得する。
	BillItems BillItemFetcher
	// Google はGoogleのトークンを検証する。
	Google GoogleVerifier
}

// Service は認証の状態遷移を実行する。
type Service struct {
	db       *sql.DB
	tokens   *TokenIssuer
	notifier Notifier
	bills    BillItemFetcher
	google   GoogleVerifier
	logger   zerolog.Logger
	now      func() time.Time
}

// Option はServiceの設定を変更する関数。
type Option func(*Service)

// WithClock は現在時刻を返す関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService は新しいServiceを生成する。
func NewService(db *sql.DB, tokens *TokenIssuer, c Collaborators, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		db:       db,
		tokens:   tokens,
		notifier: c.Notifier,
		bills:    c.BillItems,
		google:   c.Google,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register はローカルアカウントを未確認の状態で作成し、確認メールを送る。
// 確認メールの送信失敗は記録するだけで登録は成功させる。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	email := normalizeEmail(in.Email)
	now := s.now()
	user := User{
		ID:                     uuid.NewString(),
		Email:                  email,
		FirstName:              in.FirstName,
		LastName:               in.LastName,
		Provider:               ProviderLocal,
		IsActive:               true,
		Roles:                  []Role{RoleUser},
		BillItems:              []string{},
		LastVerificationSentAt: &now,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		q := NewQueries(tx)
		if _, err := q.GetUserByEmail(ctx, email); err == nil {
			return rpc.Conflict("このメールアドレスは既に登録されています")
		} else if !errors.Is(err, ErrUserNotFound) {
			return err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
		}
		user.PasswordHash = string(hash)

		if err := q.CreateUser(ctx, user); err != nil {
			if database.IsUniqueViolation(err) {
				return rpc.Conflict("このメールアドレスは既に登録されています")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.discard("確認メールの送信", s.sendVerification(ctx, user))

	return &RegisterResult{
		User:    user.publicUser(),
		Message: "ユーザーを登録しました。メールを確認してアカウントを有効化してください",
	}, nil
}

// Login はメールアドレスとパスワードでログインする。
// 検査は「存在」「パスワード」「有効」「確認済み」の順に行い、最初に失敗したものを返す。
// 請求主体の取得はコミット後に行うため、その失敗でログインは巻き戻らない。
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := normalizeEmail(in.Email)

	var (
		user  User
		token string
	)
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		u, err := NewQueries(tx).GetUserByEmail(ctx, email)
		if errors.Is(err, ErrUserNotFound) {
			return rpc.NotFound("ユーザーが見つかりません。メールアドレスとパスワードを確認してください")
		}
		if err != nil {
			return err
		}
		if !u.checkPassword(in.Password) {
			return rpc.Unauthorized("パスワードが正しくありません")
		}
		if !u.IsActive {
			return rpc.Unauthorized("アカウントが無効化されています")
		}
		if !u.IsVerified {
			return errUnverified
		}

		t, err := s.tokens.IssueSession(u)
		if err != nil {
			return err
		}
		user, token = u, t
		return nil
	})
	if errors.Is(err, errUnverified) {
		_, resendErr := s.ResendVerificationEmail(ctx, email)
		s.discard("確認メールの再送", resendErr)
		return nil, rpc.Unauthorized("アカウントが未確認です。確認メールを再送しました")
	}
	if err != nil {
		return nil, err
	}

	return s.session(ctx, user, token)
}

// ValidateToken はセッショントークンを検証する。
// トークンが無効な場合やユーザーが存在しないか無効な場合は、エラーではなくnilを返す。
func (s *Service) ValidateToken(ctx context.Context, token string) (*TokenInfo, error) {
	claims, err := s.tokens.ParseSession(token)
	if err != nil {
		return nil, nil
	}

	u, err := NewQueries(s.db).GetUserByID(ctx, claims.Subject)
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, nil
	}
	return &TokenInfo{UserID: u.ID, Email: u.Email, Roles: u.Roles}, nil
}

// VerifyEmail は確認トークンでメールアドレスを確認済みにする。
// 確認済みのユーザーには状態を変えずに同じ結果を返す。
func (s *Service) VerifyEmail(ctx context.Context, token string) (*MessageResult, error) {
	invalid := rpc.Unauthorized("確認トークンが無効か期限切れです")

	claims, err := s.tokens.ParseVerification(token)
	if err != nil {
		return nil, invalid
	}

	var (
		user    User
		changed bool
	)
	err = database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		q := NewQueries(tx)
		u, err := q.GetUserByID(ctx, claims.Subject)
		if errors.Is(err, ErrUserNotFound) {
			return invalid
		}
		if err != nil {
			return err
		}
		if u.IsVerified {
			user = u
			return nil
		}

		u.IsVerified = true
		u.UpdatedAt = s.now()
		if err := q.UpdateUser(ctx, u); err != nil {
			return err
		}
		user, changed = u, true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return &MessageResult{Message: "アカウントは既に確認済みです"}, nil
	}

	s.discard("ようこそメールの送信", s.notifier.SendWelcomeEmail(ctx, user.Email, user.FirstName))
	return &MessageResult{Message: "メールアドレスを確認しました"}, nil
}

// ResendVerificationEmail は確認メールを再送する。
// 最終送信日時を先に更新してから送信し、送信の失敗はそのまま返す。
func (s *Service) ResendVerificationEmail(ctx context.Context, email string) (*MessageResult, error) {
	email = normalizeEmail(email)

	var user User
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		q := NewQueries(tx)
		u, err := q.GetUserByEmail(ctx, email)
		if errors.Is(err, ErrUserNotFound) {
			return rpc.NotFound("ユーザーが見つかりません")
		}
		if err != nil {
			return err
		}
		if u.IsVerified {
			return rpc.BadRequest("アカウントは既に確認済みです")
		}

		now := s.now()
		if u.LastVerificationSentAt != nil && now.Sub(*u.LastVerificationSentAt) < resendInterval {
			return rpc.BadRequest("確認メールの再送は10分以上の間隔を空けてください")
		}

		u.LastVerificationSentAt = &now
		u.UpdatedAt = now
		if err := q.UpdateUser(ctx, u); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.sendVerification(ctx, user); err != nil {
		return nil, err
	}
	return &MessageResult{Message: "確認メールを再送しました"}, nil
}

// GoogleLogin はGoogleのトークンでログインする。
// 未登録のメールアドレスであれば確認済みのユーザーを作成し、
// Googleアカウント未連携の既存ユーザーであれば連携して確認済みにする。
func (s *Service) GoogleLogin(ctx context.Context, in GoogleLoginInput) (*LoginResult, error) {
	profile, err := s.google.Verify(ctx, in.GoogleToken)
	if err != nil {
		s.logger.Info().Err(err).Msg("Googleトークンの検証に失敗しました")
		return nil, rpc.Unauthorized("Googleのトークンが無効です")
	}
	email := normalizeEmail(profile.Email)

	var (
		user    User
		created bool
	)
	err = database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		q := NewQueries(tx)
		u, err := q.GetUserByEmail(ctx, email)
		switch {
		case errors.Is(err, ErrUserNotFound):
			now := s.now()
			u = User{
				ID:                     uuid.NewString(),
				Email:                  email,
				FirstName:              profile.GivenName,
				LastName:               profile.FamilyName,
				GoogleID:               profile.ID,
				Provider:               ProviderGoogle,
				IsActive:               true,
				IsVerified:             true,
				Roles:                  []Role{RoleUser},
				BillItems:              []string{},
				LastVerificationSentAt: &now,
				CreatedAt:              now,
				UpdatedAt:              now,
			}
			if err := q.CreateUser(ctx, u); err != nil {
				if database.IsUniqueViolation(err) {
					return rpc.Conflict("このGoogleアカウントは別のユーザーに連携されています")
				}
				return err
			}
			created = true
		case err != nil:
			return err
		case u.GoogleID == "":
			u.GoogleID = profile.ID
			u.Provider = ProviderGoogle
			u.IsVerified = true
			u.UpdatedAt = s.now()
			if err := q.UpdateUser(ctx, u); err != nil {
				if database.IsUniqueViolation(err) {
					return rpc.Conflict("このGoogleアカウントは別のユーザーに連携されています")
				}
				return err
			}
		}

		if !u.IsActive {
			return rpc.Unauthorized("アカウントが無効化されています")
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.IssueSession(user)
	if err != nil {
		return nil, err
	}
	if created {
		s.discard("ようこそメールの送信", s.notifier.SendWelcomeEmail(ctx, user.Email, user.FirstName))
	}
	return s.session(ctx, user, token)
}

// AddBillItem はユーザーの請求主体一覧にIDを追加する。既に含まれていれば何もしない。
func (s *Service) AddBillItem(ctx context.Context, userID, billID string) error {
	return database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		q := NewQueries(tx)
		u, err := q.GetUserByID(ctx, userID)
		if errors.Is(err, ErrUserNotFound) {
			return rpc.NotFound("ユーザーが見つかりません")
		}
		if err != nil {
			return err
		}
		u.addBillItem(billID)
		u.UpdatedAt = s.now()
		return q.UpdateUser(ctx, u)
	})
}

// session はログイン結果を組み立てる。請求主体は機密フィールドを除去してから含める。
func (s *Service) session(ctx context.Context, u User, token string) (*LoginResult, error) {
	items, err := s.bills.GetBillItems(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		User: SessionUser{
			ID:        u.ID,
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Roles:     u.Roles,
			BillItems: billitem.Sanitize(items),
			Provider:  u.Provider,
		},
		Token: token,
	}, nil
}

// sendVerification は確認トークンを発行して確認メールを送る。
func (s *Service) sendVerification(ctx context.Context, u User) error {
	token, err := s.tokens.IssueVerification(u)
	if err != nil {
		return err
	}
	return s.notifier.SendVerificationEmail(ctx, u.Email, u.FirstName, token)
}

// discard はベストエフォートの処理の失敗を記録して捨てる。
func (s *Service) discard(action string, err error) {
	if err == nil {
		return
	}
	s.logger.Warn().Err(err).Str("action", action).Msg("処理に失敗しましたが続行します")
}
