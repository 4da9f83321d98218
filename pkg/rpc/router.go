package rpc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nao1215/liquidar/pkg/validation"
)

// Handler はリクエストパターンのハンドラ。
type Handler func(ctx context.Context, payload json.RawMessage) Result

// EventHandler はイベントパターンのハンドラ。エラーは記録されるだけで送信元には返らない。
type EventHandler func(ctx context.Context, payload json.RawMessage) error

// Router はパターン名でハンドラを振り分ける。
// ハンドラの Result をワイヤ形式に変換するのはRouterだけが行う。
type Router struct {
	// handlers はリクエストパターンごとのハンドラ。
	handlers map[string]Handler
	// events はイベントパターンごとのハンドラ。
	events map[string]EventHandler
	// logger は障害とイベント処理失敗の記録先。
	logger zerolog.Logger
}

// NewRouter は新しいRouterを生成する。
func NewRouter(logger zerolog.Logger) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		events:   make(map[string]EventHandler),
		logger:   logger,
	}
}

// Handle はリクエストパターンにハンドラを登録する。
func (r *Router) Handle(pattern string, h Handler) {
	r.handlers[pattern] = h
}

// HandleEvent はイベントパターンにハンドラを登録する。
func (r *Router) HandleEvent(pattern string, h EventHandler) {
	r.events[pattern] = h
}

// Mount はGinのルーターに /rpc/:pattern と /events/:pattern を登録する。
func (r *Router) Mount(router gin.IRouter) {
	router.POST("/rpc/:pattern", r.serveRequest())
	router.POST("/events/:pattern", r.serveEvent())
}

// serveRequest はリクエストパターンを処理するハンドラ。
func (r *Router) serveRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		pattern := c.Param("pattern")
		h, ok := r.handlers[pattern]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "未登録のパターンです: " + pattern})
			return
		}

		payload, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディの読み込みに失敗しました"})
			return
		}

		r.write(c, pattern, h(c.Request.Context(), payload))
	}
}

// write は Result をワイヤ形式で書き込む。業務エラーもHTTPステータス200で返す。
func (r *Router) write(c *gin.Context, pattern string, res Result) {
	f := res.Fault()
	if f == nil {
		c.JSON(http.StatusOK, res.Value())
		return
	}

	event := r.logger.Info()
	if f.Kind == KindInternal || f.Kind == KindTransport {
		event = r.logger.Error()
	}
	event.Err(f.Err).
		Str("pattern", pattern).
		Str("kind", f.Kind.String()).
		Int("code", f.Code).
		Msg(f.Message)

	c.JSON(http.StatusOK, NewEnvelope(f))
}

// serveEvent はイベントパターンを処理するハンドラ。
func (r *Router) serveEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		pattern := c.Param("pattern")
		h, ok := r.events[pattern]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "未登録のイベントです: " + pattern})
			return
		}

		payload, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディの読み込みに失敗しました"})
			return
		}

		if err := h(c.Request.Context(), payload); err != nil {
			r.logger.Warn().Err(err).Str("pattern", pattern).Msg("イベントの処理に失敗しました")
		}
		c.Status(http.StatusAccepted)
	}
}

// Bind はペイロードをTにデコードし、validateタグを検証する。
// 失敗した場合は KindValidation の障害を返す。
func Bind[T any](payload json.RawMessage) (T, *Fault) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, Validation("リクエストの形式が不正です")
	}
	if err := validation.Struct(v); err != nil {
		return v, Validation(err.Error())
	}
	return v, nil
}
