package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nao1215/liquidar/pkg/database"
)

// ErrUserNotFound は対象のユーザーが存在しないことを表す。
var ErrUserNotFound = errors.New("ユーザーが見つかりません")

// userColumns はusersテーブルから読み出す列。scanUserの引数順と一致させること。
const userColumns = `id, email, password_hash, first_name, last_name, google_id, provider,
	is_active, is_verified, roles, bill_items, last_verification_sent_at, created_at, updated_at`

// Queries はusersテーブルへのクエリを実行する。
// *sql.DB と *sql.Tx のどちらでも動作する。
type Queries struct {
	db database.DBTX
}

// NewQueries は新しいQueriesを生成する。
func NewQueries(db database.DBTX) *Queries {
	return &Queries{db: db}
}

// GetUserByEmail は正規化済みのメールアドレスでユーザーを取得する。
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// GetUserByID はIDでユーザーを取得する。
func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// CreateUser はユーザーを挿入する。
func (q *Queries) CreateUser(ctx context.Context, u User) error {
	roles, bills, err := encodeLists(u)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		u.ID, u.Email, nullString(u.PasswordHash), u.FirstName, u.LastName, nullString(u.GoogleID),
		string(u.Provider), u.IsActive, u.IsVerified, roles, bills, nullTime(u),
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ユーザーの作成に失敗: %w", err)
	}
	return nil
}

// UpdateUser はID以外の全列を更新する。
func (q *Queries) UpdateUser(ctx context.Context, u User) error {
	roles, bills, err := encodeLists(u)
	if err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE users SET
			email = $2, password_hash = $3, first_name = $4, last_name = $5, google_id = $6,
			provider = $7, is_active = $8, is_verified = $9, roles = $10, bill_items = $11,
			last_verification_sent_at = $12, updated_at = $13
		WHERE id = $1`,
		u.ID, u.Email, nullString(u.PasswordHash), u.FirstName, u.LastName, nullString(u.GoogleID),
		string(u.Provider), u.IsActive, u.IsVerified, roles, bills, nullTime(u), u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ユーザーの更新に失敗: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// rowScanner は *sql.Row と *sql.Rows の共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser は1行をUserに変換する。行が無い場合は ErrUserNotFound を返す。
func scanUser(row rowScanner) (User, error) {
	var (
		u                    User
		passwordHash, gid    sql.NullString
		provider             string
		roles, bills         string
		lastVerificationSent sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Email, &passwordHash, &u.FirstName, &u.LastName, &gid, &provider,
		&u.IsActive, &u.IsVerified, &roles, &bills, &lastVerificationSent, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("ユーザーの読み込みに失敗: %w", err)
	}

	u.PasswordHash = passwordHash.String
	u.GoogleID = gid.String
	u.Provider = Provider(provider)
	if lastVerificationSent.Valid {
		t := lastVerificationSent.Time
		u.LastVerificationSentAt = &t
	}
	if err := json.Unmarshal([]byte(roles), &u.Roles); err != nil {
		return User{}, fmt.Errorf("ロールの解析に失敗: %w", err)
	}
	if err := json.Unmarshal([]byte(bills), &u.BillItems); err != nil {
		return User{}, fmt.Errorf("請求主体一覧の解析に失敗: %w", err)
	}
	if len(u.Roles) == 0 {
		u.Roles = []Role{RoleUser}
	}
	if u.BillItems == nil {
		u.BillItems = []string{}
	}
	return u, nil
}

// encodeLists はロールと請求主体一覧をJSON文字列に変換する。
// ロールが空の場合は USER を補う。
func encodeLists(u User) (string, string, error) {
	r := u.Roles
	if len(r) == 0 {
		r = []Role{RoleUser}
	}
	b := u.BillItems
	if b == nil {
		b = []string{}
	}
	roles, err := json.Marshal(r)
	if err != nil {
		return "", "", fmt.Errorf("ロールのシリアライズに失敗: %w", err)
	}
	bills, err := json.Marshal(b)
	if err != nil {
		return "", "", fmt.Errorf("請求主体一覧のシリアライズに失敗: %w", err)
	}
	return string(roles), string(bills), nil
}

// nullString は空文字列をNULLとして扱う。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullTime は最終送信日時をNULL許容の値に変換する。
func nullTime(u User) sql.NullTime {
	if u.LastVerificationSentAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *u.LastVerificationSentAt, Valid: true}
}
