package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/liquidar/pkg/database"
)

// ErrBillItemNotFound は対象の請求主体が存在しないことを表す。
var ErrBillItemNotFound = errors.New("請求主体が見つかりません")

// billItemColumns はbill_itemsテーブルから読み出す列。scanBillItemの引数順と一致させること。
const billItemColumns = `id, user_id, cuit, afip_password, name, real_person, address, phone, created_at, updated_at`

// BillItem は請求主体。AfipPasswordはbcryptハッシュ。
type BillItem struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Cuit         string    `json:"cuit"`
	AfipPassword string    `json:"afipPassword"`
	Name         string    `json:"name"`
	RealPerson   bool      `json:"realPerson"`
	Address      string    `json:"address"`
	Phone        string    `json:"phone"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NormalizeCuit は納税者番号から区切りのハイフンと空白を取り除く。
func NormalizeCuit(cuit string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(cuit))
}

// Queries はbill_itemsテーブルへのクエリを実行する。
type Queries struct {
	db database.DBTX
}

// NewQueries は新しいQueriesを生成する。
func NewQueries(db database.DBTX) *Queries {
	return &Queries{db: db}
}

// CreateBillItem は請求主体を挿入する。
func (q *Queries) CreateBillItem(ctx context.Context, b BillItem) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO bill_items (`+billItemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.UserID, b.Cuit, b.AfipPassword, b.Name, b.RealPerson, b.Address, b.Phone,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("請求主体の作成に失敗: %w", err)
	}
	return nil
}

// ListBillItemsByUserID はユーザーの請求主体を作成日時の昇順で返す。
// 該当が無い場合は空のスライスを返す。
func (q *Queries) ListBillItemsByUserID(ctx context.Context, userID string) ([]BillItem, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+billItemColumns+` FROM bill_items WHERE user_id = $1 ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("請求主体一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	items := []BillItem{}
	for rows.Next() {
		b, err := scanBillItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("請求主体一覧の読み込みに失敗: %w", err)
	}
	return items, nil
}

// GetBillItemByID はIDで請求主体を取得する。
func (q *Queries) GetBillItemByID(ctx context.Context, id string) (BillItem, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+billItemColumns+` FROM bill_items WHERE id = $1`, id)
	b, err := scanBillItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return BillItem{}, ErrBillItemNotFound
	}
	return b, err
}

// UpdateBillItem はID、所有ユーザー、作成日時以外の列を更新する。
func (q *Queries) UpdateBillItem(ctx context.Context, b BillItem) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE bill_items SET
			cuit = $2, afip_password = $3, name = $4, real_person = $5,
			address = $6, phone = $7, updated_at = $8
		WHERE id = $1`,
		b.ID, b.Cuit, b.AfipPassword, b.Name, b.RealPerson, b.Address, b.Phone, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("請求主体の更新に失敗: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrBillItemNotFound
	}
	return nil
}

// DeleteBillItem はIDで請求主体を削除する。
func (q *Queries) DeleteBillItem(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM bill_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("請求主体の削除に失敗: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrBillItemNotFound
	}
	return nil
}

// scanner は *sql.Row と *sql.Rows の共通部分。
type scanner interface {
	Scan(dest ...any) error
}

func scanBillItem(s scanner) (BillItem, error) {
	var b BillItem
	err := s.Scan(&b.ID, &b.UserID, &b.Cuit, &b.AfipPassword, &b.Name, &b.RealPerson,
		&b.Address, &b.Phone, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BillItem{}, err
		}
		return BillItem{}, fmt.Errorf("請求主体の読み込みに失敗: %w", err)
	}
	return b, nil
}
