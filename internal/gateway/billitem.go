package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/liquidar/pkg/billitem"
	"github.com/nao1215/liquidar/pkg/config"
	"github.com/nao1215/liquidar/pkg/identity"
	"github.com/nao1215/liquidar/pkg/middleware"
	"github.com/nao1215/liquidar/pkg/rpc"
	"github.com/nao1215/liquidar/pkg/validation"
)

// authValidator は認証サービスの auth.validate でトークンを検証する。
type authValidator struct {
	client *rpc.Client
}

// ValidateToken は middleware.TokenValidator を実装する。
func (v authValidator) ValidateToken(ctx context.Context, token string) (*middleware.Principal, error) {
	var p *middleware.Principal
	if err := v.client.Call(ctx, config.ServiceAuth, identity.PatternValidate, "トークンの検証", token, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// handleCreateBillItem は利用者の請求主体を作成する。
func (s *Server) handleCreateBillItem() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req billitem.CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, rpc.Validation("リクエストボディの形式が不正です"))
			return
		}
		req.UserID = middleware.GetUserID(c)
		if err := validation.Struct(req); err != nil {
			s.fail(c, rpc.Validation(err.Error()))
			return
		}

		data, err := s.forward(c, config.ServiceBilling, billitem.PatternCreate, "請求主体の作成", req)
		if err != nil {
			s.fail(c, err)
			return
		}
		s.succeedItem(c, http.StatusCreated, data)
	}
}

// handleListBillItems は利用者の請求主体の一覧を返す。
func (s *Server) handleListBillItems() gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := s.forward(c, config.ServiceBilling, billitem.PatternGetBillItems,
			billitem.OperationGetBillItems, middleware.GetUserID(c))
		if err != nil {
			s.fail(c, err)
			return
		}
		items, err := billitem.Decode(data)
		if err != nil {
			s.fail(c, rpc.Internal("請求主体の取得に失敗しました", err))
			return
		}
		s.succeedJSON(c, http.StatusOK, billitem.Sanitize(items))
	}
}

// handleGetBillItem は利用者が所有する請求主体を1件返す。
func (s *Server) handleGetBillItem() gin.HandlerFunc {
	return func(c *gin.Context) {
		item, err := s.ownedBillItem(c)
		if err != nil {
			s.fail(c, err)
			return
		}
		s.succeedJSON(c, http.StatusOK, billitem.Sanitize([]billitem.Item{item})[0])
	}
}

// handleUpdateBillItem は利用者が所有する請求主体を更新する。
func (s *Server) handleUpdateBillItem() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := s.ownedBillItem(c); err != nil {
			s.fail(c, err)
			return
		}

		var req billitem.UpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, rpc.Validation("リクエストボディの形式が不正です"))
			return
		}
		req.ID = c.Param("id")
		if err := validation.Struct(req); err != nil {
			s.fail(c, rpc.Validation(err.Error()))
			return
		}

		data, err := s.forward(c, config.ServiceBilling, billitem.PatternUpdate, "請求主体の更新", req)
		if err != nil {
			s.fail(c, err)
			return
		}
		s.succeedItem(c, http.StatusOK, data)
	}
}

// handleRemoveBillItem は利用者が所有する請求主体を削除する。
func (s *Server) handleRemoveBillItem() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := s.ownedBillItem(c); err != nil {
			s.fail(c, err)
			return
		}
		s.relay(c, http.StatusOK, config.ServiceBilling, billitem.PatternRemove, "請求主体の削除", c.Param("id"))
	}
}

// ownedBillItem はパスのIDで請求主体を取得する。
// 他の利用者の請求主体は存在しないものとして扱う。
func (s *Server) ownedBillItem(c *gin.Context) (billitem.Item, error) {
	data, err := s.forward(c, config.ServiceBilling, billitem.PatternFindOne, "請求主体の取得", c.Param("id"))
	if err != nil {
		return nil, err
	}

	var item billitem.Item
	if err := json.Unmarshal(data, &item); err != nil || item == nil {
		return nil, rpc.NotFound("請求主体が見つかりません")
	}
	var owner string
	if err := json.Unmarshal(item["userId"], &owner); err != nil || owner != middleware.GetUserID(c) {
		return nil, rpc.NotFound("請求主体が見つかりません")
	}
	return item, nil
}

// succeedItem は請求主体1件を機密フィールドを除いて書き込む。
func (s *Server) succeedItem(c *gin.Context, status int, data json.RawMessage) {
	var item billitem.Item
	if err := json.Unmarshal(data, &item); err != nil || item == nil {
		s.succeed(c, status, data)
		return
	}
	s.succeedJSON(c, status, billitem.Sanitize([]billitem.Item{item})[0])
}

// succeedJSON はvをJSONに変換して成功レスポンスを書き込む。
func (s *Server) succeedJSON(c *gin.Context, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.fail(c, rpc.Internal("レスポンスの生成に失敗しました", err))
		return
	}
	s.succeed(c, status, data)
}
