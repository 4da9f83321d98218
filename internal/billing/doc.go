// Package billing は請求主体サービスの内部実装を提供する。
//
// 請求主体（納税者番号を持つ発行者）の作成、一覧、取得、削除を扱う。
// 作成に成功すると user.bill-item イベントを認証サービスに送り、
// ユーザーの参照一覧に追加させる。イベントの失敗は記録するだけで作成は巻き戻さない。
package billing
