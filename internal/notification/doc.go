// Package notification は通知サービスの内部実装を提供する。
//
// 認証サービスから依頼された確認メールとようこそメールを送信し、
// 送信結果を配信記録として保存する。SMTPサーバーが設定されていない場合は
// メールを送らずに内容をログに記録する。
package notification
