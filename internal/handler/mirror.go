package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"trader-core/internal/handler/response"
	"trader-core/internal/mirror"
	"trader-core/pkg/errno"
)

type MirrorHandler struct {
	Monitor *mirror.Monitor
	Store   mirror.Store
}

func NewMirrorHandler(m *mirror.Monitor, store mirror.Store) *MirrorHandler {
	return &MirrorHandler{Monitor: m, Store: store}
}

type configureMirrorRequest struct {
	UserID            int64  `json:"user_id" binding:"required"`
	TargetWallet      string `json:"target_wallet" binding:"required"`
	MaxAmountPerTrade string `json:"max_amount_per_trade" binding:"required"` // Wei
	SlippageGuardPct  string `json:"slippage_guard_pct" binding:"required"`
	SandboxMode       bool   `json:"sandbox_mode"`
}

// Configure 配置 (或覆盖) 跟单
func (h *MirrorHandler) Configure(c *gin.Context) {
	var req configureMirrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	maxAmount, err := decimal.NewFromString(req.MaxAmountPerTrade)
	if err != nil {
		response.Error(c, errno.ErrBadAmount)
		return
	}
	guard, err := decimal.NewFromString(req.SlippageGuardPct)
	if err != nil {
		response.Error(c, errno.ErrBadAmount)
		return
	}

	err = h.Monitor.Configure(c.Request.Context(), req.UserID,
		req.TargetWallet, maxAmount, guard, req.SandboxMode)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (h *MirrorHandler) userID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID == 0 {
		response.Error(c, errno.ErrBind)
		return 0, false
	}
	return userID, true
}

// Get 查询跟单配置
func (h *MirrorHandler) Get(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	cfg, err := h.Store.Get(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, cfg)
}

// Delete 删除配置并停止观察
func (h *MirrorHandler) Delete(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	if err := h.Monitor.Delete(c.Request.Context(), userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

type mirrorToggleRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// Pause 暂停观察，配置保留
func (h *MirrorHandler) Pause(c *gin.Context) {
	var req mirrorToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	if err := h.Monitor.Pause(c.Request.Context(), req.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Resume 恢复观察
func (h *MirrorHandler) Resume(c *gin.Context) {
	var req mirrorToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	if err := h.Monitor.Resume(c.Request.Context(), req.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
