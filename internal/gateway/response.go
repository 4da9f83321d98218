package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/liquidar/pkg/rpc"
)

// timestampLayout はレスポンスのtimestampの書式（ミリ秒まで、UTC）。
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// 応答のstatusフィールドの値。
const (
	statusSuccess = "success"
	statusError   = "error"
)

// successBody は成功時のレスポンス。
type successBody struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"statusCode"`
	Timestamp  string          `json:"timestamp"`
	Path       string          `json:"path"`
	Data       json.RawMessage `json:"data"`
}

// errorBody は失敗時のレスポンス。
type errorBody struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
	Message    string `json:"message"`
}

// statusFor は障害の種類をHTTPステータスに変換する。
func statusFor(kind rpc.Kind) int {
	switch kind {
	case rpc.KindUnauthorized:
		return http.StatusUnauthorized
	case rpc.KindNotFound:
		return http.StatusNotFound
	case rpc.KindConflict:
		return http.StatusConflict
	case rpc.KindTransport, rpc.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// succeed は成功レスポンスを書き込む。dataが空の場合はnullとして扱う。
func (s *Server) succeed(c *gin.Context, status int, data json.RawMessage) {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	c.JSON(status, successBody{
		Status:     statusSuccess,
		StatusCode: status,
		Timestamp:  s.now().UTC().Format(timestampLayout),
		Path:       c.Request.URL.RequestURI(),
		Data:       data,
	})
}

// fail は障害をHTTPステータスに変換して失敗レスポンスを書き込む。
// 通信障害と内部障害は詳細を返さずに記録する。
func (s *Server) fail(c *gin.Context, err error) {
	f := rpc.AsFault(err, "内部サーバーエラーが発生しました")
	status := statusFor(f.Kind)

	message := f.Message
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Str("kind", f.Kind.String()).Msg("内部サービスの呼び出しに失敗しました")
		message = "内部サーバーエラーが発生しました"
	}

	c.AbortWithStatusJSON(status, errorBody{
		Status:     statusError,
		StatusCode: status,
		Timestamp:  s.now().UTC().Format(timestampLayout),
		Path:       c.Request.URL.RequestURI(),
		Message:    message,
	})
}
