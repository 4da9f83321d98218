// Package auth は認証サービスの内部実装を提供する。
//
// ローカルアカウントの登録、メール確認、ログイン、セッショントークンの検証、
// Googleアカウントによるログインを扱う。ユーザーの状態は
// 未登録 → 登録済み（未確認） → 確認済み と遷移し、Googleアカウントは
// 作成時点で確認済みになる。有効/無効は状態とは独立したフラグ。
//
// 通知サービスと請求主体サービスへは pkg/rpc 経由で問い合わせる。
package auth
