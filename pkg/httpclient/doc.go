// Package httpclient はサービス間のHTTP通信を行う低レベルのクライアントを提供する。
//
// JSONのシリアライズ、タイムアウト、リクエストIDの伝播をまとめて扱う。
// パターン名による呼び出しや異常系の分類は pkg/rpc がこの上に実装する。
package httpclient
