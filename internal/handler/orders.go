package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"trader-core/internal/engine"
	"trader-core/internal/handler/response"
	"trader-core/pkg/errno"
)

type OrderHandler struct {
	Engine *engine.Engine
}

func NewOrderHandler(e *engine.Engine) *OrderHandler {
	return &OrderHandler{Engine: e}
}

type createOrderRequest struct {
	UserID       int64  `json:"user_id" binding:"required"`
	TokenAddress string `json:"token_address" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	TriggerPrice string `json:"trigger_price" binding:"required"`
	Kind         string `json:"kind" binding:"required,oneof=limit stop_loss take_profit"`
}

// Create 挂条件单
func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, errno.ErrBadAmount)
		return
	}
	trigger, err := decimal.NewFromString(req.TriggerPrice)
	if err != nil {
		response.Error(c, errno.ErrBadAmount)
		return
	}

	orderID, err := h.Engine.CreateConditionalOrder(c.Request.Context(),
		req.UserID, req.TokenAddress, amount, trigger, req.Kind)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"order_id": orderID})
}

// List 查询条件单，可按状态过滤
func (h *OrderHandler) List(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID == 0 {
		response.Error(c, errno.ErrBind)
		return
	}
	orders, err := h.Engine.ListOrders(c.Request.Context(), userID, c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"orders": orders})
}

// Cancel 撤单，只有 pending 可撤
func (h *OrderHandler) Cancel(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID == 0 {
		response.Error(c, errno.ErrBind)
		return
	}
	if err := h.Engine.CancelOrder(c.Request.Context(), userID, c.Param("order_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
