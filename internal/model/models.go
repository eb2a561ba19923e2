package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VaultRecord 每个用户一条，保存加密后的签名私钥及解锁凭据。
// 不变量: 明文私钥绝不落库，只存密文 (SealedKey JSON) 与 Blake3 校验哈希。
type VaultRecord struct {
	ID              uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64          `gorm:"not null;uniqueIndex" json:"user_id"`
	Address         string         `gorm:"type:varchar(64);not null" json:"address"`
	SealedKey       []byte         `gorm:"type:text;not null" json:"-"`                  // crypto_util.SealedKey JSON (口令封存)
	SealedKeyPin    []byte         `gorm:"type:text;not null" json:"-"`                  // 同一私钥的 PIN 封存副本，快速解锁用
	KeyVerifyHash   string         `gorm:"type:varchar(64);not null" json:"-"`           // Blake3(明文私钥)
	PinHash         string         `gorm:"type:varchar(255);not null" json:"-"`          // bcrypt (自带 salt)
	TwoFactorOn     bool           `gorm:"not null;default:false" json:"two_factor_on"`
	TwoFactorSecret string         `gorm:"type:varchar(64)" json:"-"`                    // 生成即存，启用前无效
	BackupCodes     []byte         `gorm:"type:text" json:"-"`                           // SHA256 哈希数组 JSON，一次性
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// MirrorConfig 跟单配置，每个订阅用户一条
type MirrorConfig struct {
	ID                uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID            int64           `gorm:"not null;uniqueIndex" json:"user_id"`
	TargetWallet      string          `gorm:"type:varchar(64);not null;index" json:"target_wallet"`
	MaxAmountPerTrade decimal.Decimal `gorm:"type:decimal(32,0);not null" json:"max_amount_per_trade"` // Wei
	SlippageGuardPct  decimal.Decimal `gorm:"type:decimal(8,4);not null" json:"slippage_guard_pct"`
	Active            bool            `gorm:"not null;default:true" json:"active"`
	SandboxMode       bool            `gorm:"not null;default:false" json:"sandbox_mode"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// 成交模式
const (
	TradeModeLive    = "live"
	TradeModeSandbox = "sandbox"
)

// 条件单类型
const (
	OrderKindLimit      = "limit"
	OrderKindStopLoss   = "stop_loss"
	OrderKindTakeProfit = "take_profit"
)

// 条件单状态机: pending -> triggered | cancelled (终态)
const (
	OrderStatusPending   = "pending"
	OrderStatusTriggered = "triggered"
	OrderStatusCancelled = "cancelled"
)

// ConditionalOrder 条件单 (限价/止损/止盈)
type ConditionalOrder struct {
	ID           uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID      string          `gorm:"type:varchar(36);not null;uniqueIndex" json:"order_id"` // UUID
	UserID       int64           `gorm:"not null;index" json:"user_id"`
	TokenAddress string          `gorm:"type:varchar(64);not null" json:"token_address"`
	Amount       decimal.Decimal `gorm:"type:decimal(32,0);not null" json:"amount"` // 基础单位
	TriggerPrice decimal.Decimal `gorm:"type:decimal(32,18);not null" json:"trigger_price"`
	Kind         string          `gorm:"type:varchar(20);not null" json:"kind"`
	Status       string          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TradeRecord 成交记录 (含拆单腿和跟单)
type TradeRecord struct {
	ID           uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64           `gorm:"not null;index" json:"user_id"`
	TxHash       string          `gorm:"type:varchar(80);not null" json:"tx_hash"`
	TokenAddress string          `gorm:"type:varchar(64);not null" json:"token_address"`
	Direction    string          `gorm:"type:varchar(10);not null" json:"direction"` // buy / sell
	AmountIn     decimal.Decimal `gorm:"type:decimal(32,0);not null" json:"amount_in"`
	AmountOut    decimal.Decimal `gorm:"type:decimal(32,0)" json:"amount_out"`
	FeeAmount    decimal.Decimal `gorm:"type:decimal(32,0);not null" json:"fee_amount"`
	Mode         string          `gorm:"type:varchar(20);not null;default:'live'" json:"mode"` // live / sandbox
	Status       string          `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (VaultRecord) TableName() string {
	return "vault_records"
}

func (MirrorConfig) TableName() string {
	return "mirror_configs"
}

func (ConditionalOrder) TableName() string {
	return "conditional_orders"
}

func (TradeRecord) TableName() string {
	return "trade_records"
}
