package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrTimeout     = errors.New("RPC 请求超时")
	ErrUnreachable = errors.New("RPC 节点不可达")
)

// TokenInfo ERC-20 元数据
type TokenInfo struct {
	Address     string   `json:"address"`
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	Decimals    uint8    `json:"decimals"`
	TotalSupply *big.Int `json:"total_supply"`
}

// TargetTrade 被观察钱包在链上的一笔 swap
type TargetTrade struct {
	TxHash    string
	Wallet    string
	Token     string
	Direction string // buy / sell
	AmountIn  *big.Int
	Block     uint64
}

// Backend 定义交易引擎与跟单监控所需的链上读写原语。
// 生产实现走 ethclient；测试用假实现替换。
type Backend interface {
	// ChainID 返回链 ID (EIP-155)
	ChainID() *big.Int

	// NativeBalance 查询原生币余额 (Wei)
	NativeBalance(ctx context.Context, addr string) (*big.Int, error)
	// TokenBalance 查询 ERC-20 余额 (基础单位)
	TokenBalance(ctx context.Context, token, owner string) (*big.Int, error)
	// TokenInfo 查询 ERC-20 元数据 (带缓存)
	TokenInfo(ctx context.Context, token string) (*TokenInfo, error)
	// Allowance 查询 ERC-20 授权额度
	Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error)

	// PendingNonce 查询账户待定 Nonce
	PendingNonce(ctx context.Context, addr string) (uint64, error)
	// GasFees 返回 (建议 BaseFee, 建议小费) — 拆单腿在此基础上递增小费
	GasFees(ctx context.Context) (baseFee *big.Int, tip *big.Int, err error)

	// SendTransaction 广播已签名交易
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	// Receipt 查询交易回执，未上链时返回 ethereum.NotFound
	Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// RecentTrades 扫描最近区块，返回 wallet 发起的 swap 交易 (fromBlock 之后)
	RecentTrades(ctx context.Context, wallet string, fromBlock uint64) ([]TargetTrade, uint64, error)
}
