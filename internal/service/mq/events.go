package mq

import (
	"context"
	"encoding/json"
	"strconv"
	"time"
)

// 事件主题
const (
	TopicTradeExecuted  = "trader_events_trade"
	TopicMirrorSkipped  = "trader_events_mirror_skip"
	TopicMirrorCopied   = "trader_events_mirror_copy"
	TopicOrderTriggered = "trader_events_order"
)

// TradeExecutedEvent 交易完成 (或拆单部分完成) 事件
type TradeExecutedEvent struct {
	UserID     int64     `json:"user_id"`
	Token      string    `json:"token"`
	Direction  string    `json:"direction"`
	AmountIn   string    `json:"amount_in"`
	FeeAmount  string    `json:"fee_amount"`
	TxHashes   []string  `json:"tx_hashes"`
	FailedLegs int       `json:"failed_legs,omitempty"`
	Sandbox    bool      `json:"sandbox"`
	At         time.Time `json:"at"`
}

// MirrorSkippedEvent 跟单被滑点护栏拦下的事件，必须通知用户
type MirrorSkippedEvent struct {
	UserID       int64     `json:"user_id"`
	TargetWallet string    `json:"target_wallet"`
	Token        string    `json:"token"`
	PriceImpact  string    `json:"price_impact"`
	GuardPct     string    `json:"guard_pct"`
	At           time.Time `json:"at"`
}

// MirrorCopiedEvent 跟单成交事件
type MirrorCopiedEvent struct {
	UserID       int64     `json:"user_id"`
	TargetWallet string    `json:"target_wallet"`
	Token        string    `json:"token"`
	Direction    string    `json:"direction"`
	AmountIn     string    `json:"amount_in"`
	TxHashes     []string  `json:"tx_hashes"`
	Sandbox      bool      `json:"sandbox"`
	At           time.Time `json:"at"`
}

// OrderTriggeredEvent 条件单触发事件
type OrderTriggeredEvent struct {
	UserID  int64     `json:"user_id"`
	OrderID string    `json:"order_id"`
	Kind    string    `json:"kind"`
	Token   string    `json:"token"`
	TxHash  string    `json:"tx_hash,omitempty"`
	Err     string    `json:"err,omitempty"`
	At      time.Time `json:"at"`
}

// PublishJSON 序列化并发布，key 取 userID 保证同一用户的事件有序
func PublishJSON(ctx context.Context, p Producer, topic string, userID int64, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Publish(ctx, topic, strconv.FormatInt(userID, 10), payload)
}
