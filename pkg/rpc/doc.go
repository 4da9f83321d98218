// Package rpc はサービス間のリクエスト/リプライ通信を提供する。
//
// 呼び出し側は Client でサービス名とパターン名を指定してリクエストを送り、
// Normalize でエラーエンベロープを型付きの Fault に変換する。
// 受け側は Router にパターンごとのハンドラを登録し、ハンドラは Result を返す。
//
// ワイヤ形式はJSONで、業務エラーはHTTPステータス200の
// {"status":"error","message":...,"code":...} で表す。
// 接続失敗、タイムアウト、2xx以外のステータスはトランスポート障害として扱う。
package rpc
