package auth

import (
	"context"
	"encoding/json"

	"github.com/nao1215/liquidar/pkg/billitem"
	"github.com/nao1215/liquidar/pkg/config"
	"github.com/nao1215/liquidar/pkg/notice"
	"github.com/nao1215/liquidar/pkg/rpc"
)

// Notifier はメール送信を依頼する。
type Notifier interface {
	SendVerificationEmail(ctx context.Context, email, firstName, token string) error
	SendWelcomeEmail(ctx context.Context, email, firstName string) error
}

// BillItemFetcher はユーザーに紐づく請求主体を取得する。
// 返される一覧には機密フィールドが含まれる。
type BillItemFetcher interface {
	GetBillItems(ctx context.Context, userID string) ([]billitem.Item, error)
}

// RPCNotifier は通知サービスへの Notifier。
type RPCNotifier struct {
	client *rpc.Client
}

// NewRPCNotifier は新しいRPCNotifierを生成する。
func NewRPCNotifier(client *rpc.Client) *RPCNotifier {
	return &RPCNotifier{client: client}
}

// SendVerificationEmail は確認メールの送信を依頼する。
func (n *RPCNotifier) SendVerificationEmail(ctx context.Context, email, firstName, token string) error {
	return n.client.Call(ctx, config.ServiceNotification, notice.PatternSendVerificationEmail, "確認メールの送信",
		notice.VerificationEmailRequest{Email: email, FirstName: firstName, VerificationToken: token}, nil)
}

// SendWelcomeEmail はようこそメールの送信を依頼する。
func (n *RPCNotifier) SendWelcomeEmail(ctx context.Context, email, firstName string) error {
	return n.client.Call(ctx, config.ServiceNotification, notice.PatternSendWelcomeEmail, "ようこそメールの送信",
		notice.WelcomeEmailRequest{Email: email, FirstName: firstName}, nil)
}

// RPCBillItemFetcher は請求主体サービスへの BillItemFetcher。
type RPCBillItemFetcher struct {
	client *rpc.Client
}

// NewRPCBillItemFetcher は新しいRPCBillItemFetcherを生成する。
func NewRPCBillItemFetcher(client *rpc.Client) *RPCBillItemFetcher {
	return &RPCBillItemFetcher{client: client}
}

// GetBillItems はユーザーIDで請求主体の一覧を取得する。
func (f *RPCBillItemFetcher) GetBillItems(ctx context.Context, userID string) ([]billitem.Item, error) {
	var raw json.RawMessage
	if err := f.client.Call(ctx, config.ServiceBilling, billitem.PatternGetBillItems,
		billitem.OperationGetBillItems, userID, &raw); err != nil {
		return nil, err
	}
	items, err := billitem.Decode(raw)
	if err != nil {
		return nil, rpc.Internal(billitem.OperationGetBillItems+"に失敗しました", err)
	}
	return items, nil
}
