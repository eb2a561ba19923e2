package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"trader-core/pkg/cache"
	"trader-core/pkg/config"
	"trader-core/pkg/logger"
)

// 跟单扫描单次最多回看的区块数，Base 2 秒出块，40 块约 80 秒
const maxScanBlocks = 40

// EthBackend 基于 ethclient 的链上适配器。
// 代币元数据不可变，用多级缓存避免重复 RPC。
type EthBackend struct {
	client     *ethclient.Client
	chainID    *big.Int
	routerAddr common.Address
	timeout    time.Duration
	tokenCache cache.Cache
}

func NewEthBackend(cfg *config.ChainConfig, routerAddr string, tokenCache cache.Cache) (*EthBackend, error) {
	client, err := ethclient.Dial(cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("连接 RPC 节点失败: %w", err)
	}
	timeout := cfg.RpcTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EthBackend{
		client:     client,
		chainID:    big.NewInt(cfg.ChainID),
		routerAddr: common.HexToAddress(routerAddr),
		timeout:    timeout,
		tokenCache: tokenCache,
	}, nil
}

func (b *EthBackend) Close() {
	b.client.Close()
}

func (b *EthBackend) ChainID() *big.Int {
	return new(big.Int).Set(b.chainID)
}

func (b *EthBackend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

// rpcErr 把底层错误归入超时/不可达两类，方便上层重试判断
func rpcErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

func (b *EthBackend) NativeBalance(ctx context.Context, addr string) (*big.Int, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	bal, err := b.client.BalanceAt(ctx, common.HexToAddress(addr), nil)
	if err != nil {
		return nil, rpcErr(err)
	}
	return bal, nil
}

func (b *EthBackend) callERC20(ctx context.Context, token common.Address, method string, out interface{}, args ...interface{}) error {
	data, err := packERC20Call(method, args...)
	if err != nil {
		return err
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	ret, err := b.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return rpcErr(err)
	}
	return erc20ABI.UnpackIntoInterface(out, method, ret)
}

func (b *EthBackend) TokenBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	var bal *big.Int
	err := b.callERC20(ctx, common.HexToAddress(token), "balanceOf", &bal, common.HexToAddress(owner))
	if err != nil {
		return nil, err
	}
	return bal, nil
}

func (b *EthBackend) Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	var allowance *big.Int
	err := b.callERC20(ctx, common.HexToAddress(token), "allowance",
		&allowance, common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, err
	}
	return allowance, nil
}

func (b *EthBackend) TokenInfo(ctx context.Context, token string) (*TokenInfo, error) {
	token = strings.ToLower(token)
	cacheKey := "token_info:" + token

	if b.tokenCache != nil {
		var cached TokenInfo
		if err := b.tokenCache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	addr := common.HexToAddress(token)
	info := &TokenInfo{Address: addr.Hex()}
	if err := b.callERC20(ctx, addr, "name", &info.Name); err != nil {
		return nil, fmt.Errorf("查询代币 name 失败: %w", err)
	}
	if err := b.callERC20(ctx, addr, "symbol", &info.Symbol); err != nil {
		return nil, fmt.Errorf("查询代币 symbol 失败: %w", err)
	}
	if err := b.callERC20(ctx, addr, "decimals", &info.Decimals); err != nil {
		return nil, fmt.Errorf("查询代币 decimals 失败: %w", err)
	}
	if err := b.callERC20(ctx, addr, "totalSupply", &info.TotalSupply); err != nil {
		return nil, fmt.Errorf("查询代币 totalSupply 失败: %w", err)
	}

	if b.tokenCache != nil {
		// 元数据不可变，缓存 24 小时
		if err := b.tokenCache.Set(ctx, cacheKey, info, 24*time.Hour); err != nil {
			logger.Warn("缓存代币元数据失败", zap.String("token", token), zap.Error(err))
		}
	}
	return info, nil
}

func (b *EthBackend) PendingNonce(ctx context.Context, addr string) (uint64, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	nonce, err := b.client.PendingNonceAt(ctx, common.HexToAddress(addr))
	if err != nil {
		return 0, rpcErr(err)
	}
	return nonce, nil
}

func (b *EthBackend) GasFees(ctx context.Context) (*big.Int, *big.Int, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	head, err := b.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, rpcErr(err)
	}
	tip, err := b.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, rpcErr(err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	return baseFee, tip, nil
}

func (b *EthBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	if err := b.client.SendTransaction(ctx, tx); err != nil {
		return rpcErr(err)
	}
	return nil
}

func (b *EthBackend) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	receipt, err := b.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ethereum.NotFound
		}
		return nil, rpcErr(err)
	}
	return receipt, nil
}

// RecentTrades 逐块扫描目标钱包发往路由的 swap。
// 只看 calldata，不解析收据日志，漏掉聚合器路径是可接受的取舍。
func (b *EthBackend) RecentTrades(ctx context.Context, wallet string, fromBlock uint64) ([]TargetTrade, uint64, error) {
	target := common.HexToAddress(wallet)

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	latest, err := b.client.BlockNumber(ctx)
	if err != nil {
		return nil, fromBlock, rpcErr(err)
	}
	if latest <= fromBlock {
		return nil, fromBlock, nil
	}
	start := fromBlock + 1
	if latest-start >= maxScanBlocks {
		start = latest - maxScanBlocks + 1
	}

	signer := types.LatestSignerForChainID(b.chainID)
	var trades []TargetTrade
	for n := start; n <= latest; n++ {
		block, err := b.client.BlockByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			return trades, n - 1, rpcErr(err)
		}
		for _, tx := range block.Transactions() {
			if tx.To() == nil || *tx.To() != b.routerAddr {
				continue
			}
			from, err := types.Sender(signer, tx)
			if err != nil || from != target {
				continue
			}
			direction, token, amountIn, ok := decodeRouterInput(tx.Data())
			if !ok {
				continue
			}
			if direction == "buy" {
				amountIn = tx.Value()
			}
			trades = append(trades, TargetTrade{
				TxHash:    tx.Hash().Hex(),
				Wallet:    target.Hex(),
				Token:     token,
				Direction: direction,
				AmountIn:  amountIn,
				Block:     n,
			})
		}
	}
	return trades, latest, nil
}
