// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// 認証サービスへの問い合わせによるBearerトークンの検証、zerologによるリクエストログ、
// パニックリカバリ、CORS設定など、gatewayと各サービスで共通して使用するミドルウェアを含む。
package middleware
