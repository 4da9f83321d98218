package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// StatusError はエラーエンベロープのstatusフィールドの値。
const StatusError = "error"

// Envelope は業務エラーを表すワイヤ形式。
type Envelope struct {
	// Status は常に "error"。
	Status string `json:"status"`
	// Message はエラーメッセージ。
	Message string `json:"message"`
	// Code はエラーコード（HTTPステータスコードと同じ体系）。
	Code int `json:"code"`
}

// NewEnvelope は障害からエラーエンベロープを生成する。
func NewEnvelope(f *Fault) Envelope {
	return Envelope{Status: StatusError, Message: f.Message, Code: f.Code}
}

// Normalize はサービスからのリプライを検査する。
// エラーエンベロープであれば Fault を返し、それ以外は受け取った値をそのまま返す。
// operationはメッセージが欠けている場合の既定メッセージに使用する。
func Normalize(reply json.RawMessage, operation string) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(reply, &fields); err != nil || fields == nil {
		// オブジェクト以外（配列、文字列、null）は常に成功値
		return reply, nil
	}

	var status string
	if raw, ok := fields["status"]; !ok || json.Unmarshal(raw, &status) != nil || status != StatusError {
		return reply, nil
	}

	message := fmt.Sprintf("%sに失敗しました", operation)
	if raw, ok := fields["message"]; ok {
		var m string
		if json.Unmarshal(raw, &m) == nil && m != "" {
			message = m
		}
	}

	code := http.StatusBadRequest
	if raw, ok := fields["code"]; ok {
		var c float64
		if json.Unmarshal(raw, &c) == nil && c != 0 {
			code = int(c)
		}
	}

	return nil, FaultFromCode(code, message)
}
