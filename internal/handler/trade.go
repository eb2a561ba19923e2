package handler

import (
	"github.com/gin-gonic/gin"

	"trader-core/internal/aggregator"
	"trader-core/internal/engine"
	"trader-core/internal/handler/response"
	"trader-core/pkg/errno"
)

type TradeHandler struct {
	Engine *engine.Engine
}

func NewTradeHandler(e *engine.Engine) *TradeHandler {
	return &TradeHandler{Engine: e}
}

type quoteRequest struct {
	UserID       int64  `json:"user_id" binding:"required"`
	TokenAddress string `json:"token_address" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	Direction    string `json:"direction" binding:"required,oneof=buy sell"`
}

// Quote 询价，不要求解锁
func (h *TradeHandler) Quote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	res, err := h.Engine.Quote(c.Request.Context(), &engine.TradeRequest{
		UserID:           req.UserID,
		TokenAddress:     req.TokenAddress,
		AmountExpression: req.Amount,
		Direction:        req.Direction,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"amount_in":    res.AmountIn.String(),
		"fee_amount":   res.FeeAmount.String(),
		"expected_out": res.Quote.AmountOut.String(),
		"price_impact": res.Quote.PriceImpactPct.String(),
		"fetched_at":   res.Quote.FetchedAt,
	})
}

type executeRequest struct {
	UserID       int64  `json:"user_id" binding:"required"`
	TokenAddress string `json:"token_address" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	Direction    string `json:"direction" binding:"required,oneof=buy sell"`
	SlippageBps  int64  `json:"slippage_bps" binding:"required,min=1,max=10000"`
	Sandbox      bool   `json:"sandbox"`
}

// Execute 下单。钱包未解锁时返回 ErrWalletLocked；
// 拆单部分失败时错误码为 PartialSplitFailure，逐腿结果在 data 里。
func (h *TradeHandler) Execute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}
	direction := aggregator.DirectionBuy
	if req.Direction == "sell" {
		direction = aggregator.DirectionSell
	}
	res, err := h.Engine.Execute(c.Request.Context(), &engine.TradeRequest{
		UserID:           req.UserID,
		TokenAddress:     req.TokenAddress,
		AmountExpression: req.Amount,
		Direction:        direction,
		SlippageBps:      req.SlippageBps,
		Sandbox:          req.Sandbox,
	})
	if err != nil {
		if res != nil {
			response.ErrorWithData(c, err, res)
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
