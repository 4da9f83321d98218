// Package billitem は請求主体（納税者番号を持つ発行者）のワイヤ形式を定義する。
//
// 請求主体は billing サービスが所有し、auth サービスは参照を保持するだけ。
// 外部システムの認証情報 afipPassword は呼び出し元に返す前に必ず取り除く。
package billitem

import (
	"encoding/json"
	"fmt"
)

// SensitiveField は呼び出し元に返してはならないフィールドのワイヤ名。
const SensitiveField = "afipPassword"

// パターン名。
const (
	PatternCreate       = "bill-item.create"
	PatternGetBillItems = "bill-item.getBillItems"
	PatternFindOne      = "bill-item.findOne"
	PatternUpdate       = "bill-item.update"
	PatternRemove       = "bill-item.remove"
	PatternUserBillItem = "user.bill-item"
)

// OperationGetBillItems は一覧取得の失敗時の既定メッセージに使う操作名。
const OperationGetBillItems = "請求主体の取得"

// CreateRequest は bill-item.create のペイロード。
type CreateRequest struct {
	// UserID は所有ユーザーのID。
	UserID string `json:"userId" validate:"required"`
	// Cuit は納税者番号（区切りのハイフンを含んでもよい）。
	Cuit string `json:"cuit" validate:"required,min=11,max=20"`
	// AfipPassword は外部システムの認証情報。
	AfipPassword string `json:"afipPassword" validate:"required"`
	// Name は表示名。
	Name string `json:"name" validate:"required"`
	// RealPerson は自然人であればtrue。省略時はtrue。
	RealPerson *bool `json:"realPerson"`
	// Address は住所。
	Address string `json:"address"`
	// Phone は電話番号。
	Phone string `json:"phone"`
}

// UpdateRequest は bill-item.update のペイロード。
// nilのフィールドは変更しない。
type UpdateRequest struct {
	// ID は更新する請求主体のID。
	ID string `json:"id" validate:"required"`
	// Cuit は新しい納税者番号。
	Cuit *string `json:"cuit" validate:"omitempty,min=11,max=20"`
	// AfipPassword は新しい外部システムの認証情報。
	AfipPassword *string `json:"afipPassword" validate:"omitempty,min=1"`
	// Name は新しい表示名。
	Name *string `json:"name" validate:"omitempty,min=1"`
	// RealPerson は自然人であればtrue。
	RealPerson *bool `json:"realPerson"`
	// Address は新しい住所。
	Address *string `json:"address"`
	// Phone は新しい電話番号。
	Phone *string `json:"phone"`
}

// UserBillItemEvent は user.bill-item イベントのペイロード。
type UserBillItemEvent struct {
	// UserID は参照を追加するユーザーのID。
	UserID string `json:"userId" validate:"required"`
	// BillID は追加する請求主体のID。
	BillID string `json:"billId" validate:"required"`
}

// Item は請求主体のワイヤ形式。
// 一覧取得の結果には SensitiveField が含まれるため、返却前に Sanitize すること。
type Item map[string]json.RawMessage

// Sanitize は各請求主体から SensitiveField を取り除いた新しいスライスを返す。
// 入力は変更しない。nilを渡した場合も空のスライスを返す。
func Sanitize(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		clean := make(Item, len(item))
		for k, v := range item {
			if k == SensitiveField {
				continue
			}
			clean[k] = v
		}
		out = append(out, clean)
	}
	return out
}

// Decode はリプライを請求主体の一覧にデコードする。nullは空の一覧として扱う。
func Decode(data json.RawMessage) ([]Item, error) {
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("請求主体一覧のデコードに失敗: %w", err)
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}
