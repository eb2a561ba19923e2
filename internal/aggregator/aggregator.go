// Package aggregator 封装 DEX 聚合器的报价与换币接口。
package aggregator

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Direction 交易方向
const (
	DirectionBuy  = "buy"
	DirectionSell = "sell"
)

// QuoteRequest 报价请求。Amount 始终为投入侧的基础单位数量：
// 买入时是 Wei，卖出时是代币基础单位。
type QuoteRequest struct {
	TokenAddress string
	Direction    string
	AmountIn     *big.Int
	UserAddress  string
}

// Quote 聚合器返回的一条报价。Route 原样透传给 BuildSwap，不做解析。
type Quote struct {
	TokenAddress   string
	Direction      string
	AmountIn       *big.Int
	AmountOut      *big.Int
	PriceImpactPct decimal.Decimal
	Route          json.RawMessage
	FetchedAt      time.Time
}

// Age 报价距今的时长，用于过期判断
func (q *Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.FetchedAt)
}

// SwapTx 聚合器构造好的换币交易
type SwapTx struct {
	To          string
	Data        []byte
	Value       *big.Int
	GasEstimate uint64
}

// Source 报价来源。HTTP 实现走聚合器 REST 接口，测试用假实现。
type Source interface {
	// Quote 获取当前报价，无可用路径时返回 errno.ErrNoRoute
	Quote(ctx context.Context, req *QuoteRequest) (*Quote, error)
	// BuildSwap 把报价换成可签名的交易参数，minOut 为滑点下界
	BuildSwap(ctx context.Context, q *Quote, userAddr string, minOut *big.Int) (*SwapTx, error)
	// Price 查询代币对 ETH 的现价，条件单轮询用
	Price(ctx context.Context, tokenAddress string) (decimal.Decimal, error)
}
