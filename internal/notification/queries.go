package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/liquidar/pkg/database"
)

// Kind はメールの種類。
type Kind string

const (
	// KindVerification は確認メール。
	KindVerification Kind = "verification"
	// KindWelcome はようこそメール。
	KindWelcome Kind = "welcome"
)

// 配信結果。
const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

// Delivery はメール1通の配信記録。
type Delivery struct {
	ID        string
	Recipient string
	Kind      Kind
	Status    string
	Error     string
	CreatedAt time.Time
}

// Queries はdeliveriesテーブルへのクエリを実行する。
type Queries struct {
	db database.DBTX
}

// NewQueries は新しいQueriesを生成する。
func NewQueries(db database.DBTX) *Queries {
	return &Queries{db: db}
}

// CreateDelivery は配信記録を挿入する。
func (q *Queries) CreateDelivery(ctx context.Context, d Delivery) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, recipient, kind, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.Recipient, string(d.Kind), d.Status, d.Error, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("配信記録の作成に失敗: %w", err)
	}
	return nil
}

// ListDeliveriesByRecipient は宛先の配信記録を古い順に返す。
func (q *Queries) ListDeliveriesByRecipient(ctx context.Context, recipient string) ([]Delivery, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, recipient, kind, status, error, created_at
		FROM deliveries WHERE recipient = $1 ORDER BY created_at ASC, id ASC`, recipient)
	if err != nil {
		return nil, fmt.Errorf("配信記録の取得に失敗: %w", err)
	}
	defer rows.Close()

	deliveries := []Delivery{}
	for rows.Next() {
		var d Delivery
		var kind string
		if err := rows.Scan(&d.ID, &d.Recipient, &kind, &d.Status, &d.Error, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("配信記録の読み込みに失敗: %w", err)
		}
		d.Kind = Kind(kind)
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("配信記録の読み込みに失敗: %w", err)
	}
	return deliveries, nil
}
