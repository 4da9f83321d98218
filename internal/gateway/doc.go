// Package gateway は外部公開用のHTTPゲートウェイを提供する。
//
// 外部からのリクエストを検証し、pkg/rpc のクライアントで内部サービスに転送する。
// 内部サービスから返った障害をHTTPステータスに変換するのはこのパッケージだけで、
// サービス名ではなくエンベロープのコードとメッセージだけを見て変換する。
package gateway
