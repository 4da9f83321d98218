package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/liquidar/pkg/billitem"
	"github.com/nao1215/liquidar/pkg/config"
	"github.com/nao1215/liquidar/pkg/database"
	"github.com/nao1215/liquidar/pkg/httpserver"
	"github.com/nao1215/liquidar/pkg/middleware"
	"github.com/nao1215/liquidar/pkg/rpc"
)

// Server は請求主体サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db は請求主体のデータベース。
	db *sql.DB
	// queries はbill_itemsテーブルへのクエリ。
	queries *Queries
	// client はイベントの送信に使う内部サービスへのクライアント。
	client *rpc.Client
	// logger はサービスのロガー。
	logger zerolog.Logger
	// now は現在時刻を返す。
	now func() time.Time
}

// NewServer は新しい請求主体サーバーを生成する。
// スキーマはマイグレーション済みであること。
func NewServer(port string, db *sql.DB, client *rpc.Client, logger zerolog.Logger) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))

	s := &Server{
		router:  router,
		port:    port,
		db:      db,
		queries: NewQueries(db),
		client:  client,
		logger:  logger,
		now:     time.Now,
	}
	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はctxがキャンセルされるまでHTTPサーバーを動かす。
func (s *Server) Run(ctx context.Context) error {
	return httpserver.Serve(ctx, fmt.Sprintf(":%s", s.port), s.router, s.logger)
}

// setupRoutes はパターンとヘルスチェックを登録する。
func (s *Server) setupRoutes() {
	r := rpc.NewRouter(s.logger)
	r.Handle(billitem.PatternCreate, s.handleCreate)
	r.Handle(billitem.PatternGetBillItems, s.handleGetBillItems)
	r.Handle(billitem.PatternFindOne, s.handleFindOne)
	r.Handle(billitem.PatternUpdate, s.handleUpdate)
	r.Handle(billitem.PatternRemove, s.handleRemove)
	r.Mount(s.router)

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "billing"})
	})
}

// handleCreate は請求主体を作成し、認証サービスに参照の追加を通知する。
func (s *Server) handleCreate(ctx context.Context, payload json.RawMessage) rpc.Result {
	req, f := rpc.Bind[billitem.CreateRequest](payload)
	if f != nil {
		return rpc.Err(f)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.AfipPassword), bcrypt.DefaultCost)
	if err != nil {
		return rpc.Err(rpc.Internal("請求主体の作成に失敗しました", err))
	}

	now := s.now().UTC()
	item := BillItem{
		ID:           uuid.New().String(),
		UserID:       req.UserID,
		Cuit:         NormalizeCuit(req.Cuit),
		AfipPassword: string(hash),
		Name:         req.Name,
		RealPerson:   req.RealPerson == nil || *req.RealPerson,
		Address:      req.Address,
		Phone:        req.Phone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.queries.CreateBillItem(ctx, item); err != nil {
		if database.IsUniqueViolation(err) {
			return rpc.Err(rpc.Conflict("この納税者番号の請求主体は既に登録されています"))
		}
		return rpc.Err(rpc.Internal("請求主体の作成に失敗しました", err))
	}

	s.emitUserBillItem(ctx, item)
	return rpc.Ok(item)
}

// handleGetBillItems はユーザーIDで請求主体の一覧を返す。
func (s *Server) handleGetBillItems(ctx context.Context, payload json.RawMessage) rpc.Result {
	userID, f := bindID(payload, "userId")
	if f != nil {
		return rpc.Err(f)
	}
	items, err := s.queries.ListBillItemsByUserID(ctx, userID)
	return rpc.From(items, err, "請求主体の取得に失敗しました")
}

// handleFindOne はIDで請求主体を返す。
func (s *Server) handleFindOne(ctx context.Context, payload json.RawMessage) rpc.Result {
	id, f := bindID(payload, "id")
	if f != nil {
		return rpc.Err(f)
	}
	item, err := s.queries.GetBillItemByID(ctx, id)
	if errors.Is(err, ErrBillItemNotFound) {
		return rpc.Err(rpc.NotFound(ErrBillItemNotFound.Error()))
	}
	return rpc.From(item, err, "請求主体の取得に失敗しました")
}

// handleUpdate は指定されたフィールドだけを更新した請求主体を返す。
// 認証情報が指定された場合はハッシュし直す。
func (s *Server) handleUpdate(ctx context.Context, payload json.RawMessage) rpc.Result {
	req, f := rpc.Bind[billitem.UpdateRequest](payload)
	if f != nil {
		return rpc.Err(f)
	}

	var item BillItem
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		q := NewQueries(tx)
		current, err := q.GetBillItemByID(ctx, req.ID)
		if err != nil {
			return err
		}
		if err := applyUpdate(&current, req); err != nil {
			return err
		}
		current.UpdatedAt = s.now().UTC()
		if err := q.UpdateBillItem(ctx, current); err != nil {
			return err
		}
		item = current
		return nil
	})
	switch {
	case err == nil:
		return rpc.Ok(item)
	case errors.Is(err, ErrBillItemNotFound):
		return rpc.Err(rpc.NotFound(ErrBillItemNotFound.Error()))
	case database.IsUniqueViolation(err):
		return rpc.Err(rpc.Conflict("この納税者番号の請求主体は既に登録されています"))
	default:
		return rpc.Err(rpc.Internal("請求主体の更新に失敗しました", err))
	}
}

// applyUpdate はreqでnilでないフィールドをbに反映する。
func applyUpdate(b *BillItem, req billitem.UpdateRequest) error {
	if req.Cuit != nil {
		b.Cuit = NormalizeCuit(*req.Cuit)
	}
	if req.AfipPassword != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.AfipPassword), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("認証情報のハッシュ化に失敗: %w", err)
		}
		b.AfipPassword = string(hash)
	}
	if req.Name != nil {
		b.Name = *req.Name
	}
	if req.RealPerson != nil {
		b.RealPerson = *req.RealPerson
	}
	if req.Address != nil {
		b.Address = *req.Address
	}
	if req.Phone != nil {
		b.Phone = *req.Phone
	}
	return nil
}

// handleRemove はIDで請求主体を削除する。
func (s *Server) handleRemove(ctx context.Context, payload json.RawMessage) rpc.Result {
	id, f := bindID(payload, "id")
	if f != nil {
		return rpc.Err(f)
	}
	if err := s.queries.DeleteBillItem(ctx, id); err != nil {
		if errors.Is(err, ErrBillItemNotFound) {
			return rpc.Err(rpc.NotFound(ErrBillItemNotFound.Error()))
		}
		return rpc.Err(rpc.Internal("請求主体の削除に失敗しました", err))
	}
	return rpc.Ok(gin.H{"message": "請求主体を削除しました"})
}

// emitUserBillItem は user.bill-item イベントを認証サービスに送る。
// 失敗は記録するだけで、作成済みの請求主体は残す。
func (s *Server) emitUserBillItem(ctx context.Context, item BillItem) {
	ev := billitem.UserBillItemEvent{UserID: item.UserID, BillID: item.ID}
	if err := s.client.Emit(ctx, config.ServiceAuth, billitem.PatternUserBillItem, ev); err != nil {
		s.logger.Warn().Err(err).
			Str("user_id", item.UserID).
			Str("bill_id", item.ID).
			Msg("user.bill-itemイベントの送信に失敗しました")
	}
}

// bindID は文字列のペイロードを取り出す。空文字は入力値の不正として扱う。
func bindID(payload json.RawMessage, field string) (string, *rpc.Fault) {
	id, f := rpc.Bind[string](payload)
	if f != nil {
		return "", f
	}
	if id == "" {
		return "", rpc.Validation(field + "は必須です")
	}
	return id, nil
}
