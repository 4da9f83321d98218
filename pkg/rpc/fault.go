package rpc

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind は障害の種類。
type Kind int

const (
	// KindBadRequest は分類されない業務エラー。
	KindBadRequest Kind = iota
	// KindValidation は入力値の形式不正。
	KindValidation
	// KindUnauthorized は認証情報の不一致、無効化済み、未確認、トークン不正。
	KindUnauthorized
	// KindNotFound は対象が存在しないこと。
	KindNotFound
	// KindConflict は一意制約の重複。
	KindConflict
	// KindTransport は他サービスとの通信障害。
	KindTransport
	// KindInternal は想定外の障害。
	KindInternal
)

// String は障害の種類の名前を返す。
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransport:
		return "transport"
	case KindInternal:
		return "internal"
	default:
		return "bad_request"
	}
}

// code はエンベロープに載せるコードを返す。
func (k Kind) code() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTransport, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Fault はサービス境界を越えて伝播する型付きの障害。
type Fault struct {
	// Kind は障害の種類。
	Kind Kind
	// Code はエンベロープのコード。
	Code int
	// Message は呼び出し元に返すメッセージ。
	Message string
	// Err は原因となったエラー。呼び出し元には送信しない。
	Err error
}

// Error はエラーメッセージを返す。
func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Err)
	}
	return f.Message
}

// Unwrap は原因となったエラーを返す。
func (f *Fault) Unwrap() error {
	return f.Err
}

// NewFault は指定された種類の障害を生成する。
func NewFault(kind Kind, message string) *Fault {
	return &Fault{Kind: kind, Code: kind.code(), Message: message}
}

// BadRequest は分類されない業務エラーを生成する。
func BadRequest(message string) *Fault { return NewFault(KindBadRequest, message) }

// Validation は入力値の形式不正を生成する。
func Validation(message string) *Fault { return NewFault(KindValidation, message) }

// Unauthorized は認証エラーを生成する。
func Unauthorized(message string) *Fault { return NewFault(KindUnauthorized, message) }

// NotFound は対象が存在しないエラーを生成する。
func NotFound(message string) *Fault { return NewFault(KindNotFound, message) }

// Conflict は一意制約の重複エラーを生成する。
func Conflict(message string) *Fault { return NewFault(KindConflict, message) }

// Internal は想定外の障害を生成する。messageは呼び出し元に返す汎用メッセージ。
func Internal(message string, err error) *Fault {
	f := NewFault(KindInternal, message)
	f.Err = err
	return f
}

// Transport は通信障害を生成する。
func Transport(err error) *Fault {
	f := NewFault(KindTransport, "サービスとの通信に失敗しました")
	f.Err = err
	return f
}

// FaultFromCode はエンベロープのコードとメッセージから障害を生成する。
// 401、404、409以外のコードはすべて KindBadRequest として扱い、コードはそのまま保持する。
func FaultFromCode(code int, message string) *Fault {
	kind := KindBadRequest
	switch code {
	case http.StatusUnauthorized:
		kind = KindUnauthorized
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusConflict:
		kind = KindConflict
	}
	return &Fault{Kind: kind, Code: code, Message: message}
}

// AsFault はerrから Fault を取り出す。Fault を含まないエラーは
// messageを汎用メッセージとする KindInternal の障害に変換する。
func AsFault(err error, message string) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return Internal(message, err)
}
