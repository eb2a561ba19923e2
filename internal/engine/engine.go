// Package engine 交易执行引擎：把用户意图 ("买 10%") 变成
// 扣费、限滑点、可拆单的链上交易。
package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trader-core/internal/aggregator"
	"trader-core/internal/chain"
	"trader-core/internal/model"
	"trader-core/internal/service/mq"
	"trader-core/internal/vault"
	"trader-core/pkg/config"
	"trader-core/pkg/errno"
	"trader-core/pkg/logger"
	"trader-core/pkg/monitor"
)

// Signer 引擎需要的签名能力，vault.Signer 满足
type Signer interface {
	Address() string
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// SignerSource 签名人来源。取签名人要求会话存活，查地址不要求。
type SignerSource interface {
	GetSigner(userID int64) (Signer, error)
	Address(ctx context.Context, userID int64) (string, error)
}

// VaultSigners 把保险库适配成 SignerSource
type VaultSigners struct {
	Vault *vault.Vault
}

func (s VaultSigners) GetSigner(userID int64) (Signer, error) {
	signer, err := s.Vault.GetSigner(userID)
	if err != nil {
		return nil, err
	}
	return signer, nil
}

func (s VaultSigners) Address(ctx context.Context, userID int64) (string, error) {
	return s.Vault.Address(ctx, userID)
}

// TradeRequest 一次买卖意图，构造即用，不持久化
type TradeRequest struct {
	UserID           int64
	TokenAddress     string
	AmountExpression string
	Direction        string // aggregator.DirectionBuy / DirectionSell
	SlippageBps      int64
	Sandbox          bool
	Cap              *big.Int // 跟单的单笔上限，nil 表示不限
}

// QuoteResult 报价结果。FeeAmount 在送入路由前扣除。
type QuoteResult struct {
	Quote     *aggregator.Quote
	AmountIn  *big.Int // 总投入 (含费)
	FeeAmount *big.Int
}

// LegResult 拆单中单条腿的结果，失败的腿记录原因但不回滚其他腿
type LegResult struct {
	Index    int      `json:"index"`
	AmountIn *big.Int `json:"amount_in"`
	TxHash   string   `json:"tx_hash,omitempty"`
	Err      string   `json:"err,omitempty"`
}

// TradeResult 执行结果
type TradeResult struct {
	UserID      int64       `json:"user_id"`
	Token       string      `json:"token"`
	Direction   string      `json:"direction"`
	AmountIn    *big.Int    `json:"amount_in"`
	FeeAmount   *big.Int    `json:"fee_amount"`
	ExpectedOut *big.Int    `json:"expected_out"`
	MinOut      *big.Int    `json:"min_out"`
	TxHashes    []string    `json:"tx_hashes"`
	Legs        []LegResult `json:"legs,omitempty"`
	Sandbox     bool        `json:"sandbox"`
}

type Engine struct {
	signers  SignerSource
	backend  chain.Backend
	source   aggregator.Source
	store    Store
	producer mq.Producer
	cfg      config.TradeConfig

	threshold *big.Int // 解析后的拆单阈值

	now   func() time.Time
	sleep func(time.Duration)
}

func New(signers SignerSource, backend chain.Backend, source aggregator.Source,
	store Store, producer mq.Producer, cfg *config.TradeConfig) *Engine {

	threshold := new(big.Int)
	if _, ok := threshold.SetString(cfg.LargeOrderThreshold, 10); !ok {
		threshold = nil // 阈值非法时视为未开启拆单
	}
	return &Engine{
		signers:   signers,
		backend:   backend,
		source:    source,
		store:     store,
		producer:  producer,
		cfg:       *cfg,
		threshold: threshold,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// balanceFor 买入看原生币余额，卖出看代币余额
func (e *Engine) balanceFor(ctx context.Context, addr, token, direction string) (*big.Int, error) {
	if direction == aggregator.DirectionBuy {
		return e.backend.NativeBalance(ctx, addr)
	}
	return e.backend.TokenBalance(ctx, token, addr)
}

// resolveAmountIn 解析金额表达式并做余额与上限检查
func (e *Engine) resolveAmountIn(ctx context.Context, addr string, req *TradeRequest) (*big.Int, error) {
	balance, err := e.balanceFor(ctx, addr, req.TokenAddress, req.Direction)
	if err != nil {
		return nil, err
	}
	amountIn, err := ResolveAmount(req.AmountExpression, balance)
	if err != nil {
		return nil, err
	}
	if amountIn.Cmp(balance) > 0 {
		return nil, errno.ErrInsufficientBalance
	}
	if req.Cap != nil && amountIn.Cmp(req.Cap) > 0 {
		amountIn = new(big.Int).Set(req.Cap)
	}
	return amountIn, nil
}

// Quote 报价。不要求解锁，余额按用户落库地址查询。
func (e *Engine) Quote(ctx context.Context, req *TradeRequest) (*QuoteResult, error) {
	addr, err := e.signers.Address(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	amountIn, err := e.resolveAmountIn(ctx, addr, req)
	if err != nil {
		return nil, err
	}

	fee := feeFor(amountIn, e.cfg.FeeRateBps)
	routeAmount := new(big.Int).Sub(amountIn, fee)
	if routeAmount.Sign() <= 0 {
		return nil, errno.ErrBadAmount
	}

	quote, err := e.source.Quote(ctx, &aggregator.QuoteRequest{
		TokenAddress: req.TokenAddress,
		Direction:    req.Direction,
		AmountIn:     routeAmount,
		UserAddress:  addr,
	})
	if err != nil {
		return nil, err
	}
	return &QuoteResult{Quote: quote, AmountIn: amountIn, FeeAmount: fee}, nil
}

// freshQuote 拿一条足够新鲜的报价。过期自动重报一次，再过期才报 ErrStaleQuote。
func (e *Engine) freshQuote(ctx context.Context, req *TradeRequest, routeAmount *big.Int, addr string) (*aggregator.Quote, error) {
	qr := &aggregator.QuoteRequest{
		TokenAddress: req.TokenAddress,
		Direction:    req.Direction,
		AmountIn:     routeAmount,
		UserAddress:  addr,
	}
	for attempt := 0; attempt < 2; attempt++ {
		quote, err := e.source.Quote(ctx, qr)
		if err != nil {
			return nil, err
		}
		if quote.Age(e.now()) <= e.cfg.QuoteTTL {
			return quote, nil
		}
		logger.Warn("报价已过期，自动重报",
			zap.Int64("user_id", req.UserID), zap.Int("attempt", attempt+1))
	}
	return nil, errno.ErrStaleQuote
}

// Execute 执行交易。要求会话已解锁；超过拆单阈值时走拆单路径。
func (e *Engine) Execute(ctx context.Context, req *TradeRequest) (*TradeResult, error) {
	signer, err := e.signers.GetSigner(req.UserID)
	if err != nil {
		return nil, err // ErrWalletLocked 原样上抛
	}

	amountIn, err := e.resolveAmountIn(ctx, signer.Address(), req)
	if err != nil {
		monitor.Business.TradeFailedTotal.WithLabelValues(req.Direction, "resolve").Inc()
		return nil, err
	}

	var result *TradeResult
	if e.cfg.MEVProtect && e.threshold != nil &&
		e.cfg.SplitCount > 1 && amountIn.Cmp(e.threshold) > 0 {
		result, err = e.executeSplit(ctx, signer, req, amountIn)
	} else {
		result, err = e.executeSingle(ctx, signer, req, amountIn)
	}
	if err != nil && result == nil {
		monitor.Business.TradeFailedTotal.WithLabelValues(req.Direction, "execute").Inc()
		return nil, err
	}

	e.publishResult(ctx, result)
	return result, err
}

func (e *Engine) executeSingle(ctx context.Context, signer Signer, req *TradeRequest, amountIn *big.Int) (*TradeResult, error) {
	out, err := e.executeLeg(ctx, signer, req, amountIn, 0)
	if err != nil {
		return nil, err
	}

	mode := model.TradeModeLive
	if req.Sandbox {
		mode = model.TradeModeSandbox
	}
	monitor.Business.TradeExecutedTotal.WithLabelValues(req.Direction, mode).Inc()

	return &TradeResult{
		UserID:      req.UserID,
		Token:       req.TokenAddress,
		Direction:   req.Direction,
		AmountIn:    amountIn,
		FeeAmount:   out.fee,
		ExpectedOut: out.expectedOut,
		MinOut:      out.minOut,
		TxHashes:    out.txHashes,
		Sandbox:     req.Sandbox,
	}, nil
}

// legOutcome 单条腿的内部执行结果
type legOutcome struct {
	txHashes    []string // 费用/授权/换币交易哈希，换币在最后
	swapHash    string
	fee         *big.Int
	expectedOut *big.Int
	minOut      *big.Int
}

// executeLeg 扣费 → (卖出时确保授权) → 限滑点换币，一条腿从头到尾。
// tipBoostBps 为拆单腿的小费加成，单笔交易传 0。
func (e *Engine) executeLeg(ctx context.Context, signer Signer, req *TradeRequest, amountIn *big.Int, tipBoostBps int64) (*legOutcome, error) {
	fee := feeFor(amountIn, e.cfg.FeeRateBps)
	routeAmount := new(big.Int).Sub(amountIn, fee)
	if routeAmount.Sign() <= 0 {
		return nil, errno.ErrBadAmount
	}

	quote, err := e.freshQuote(ctx, req, routeAmount, signer.Address())
	if err != nil {
		return nil, err
	}
	minOut := minOutFor(quote.AmountOut, req.SlippageBps)

	swap, err := e.source.BuildSwap(ctx, quote, signer.Address(), minOut)
	if err != nil {
		return nil, err
	}

	outcome := &legOutcome{fee: fee, expectedOut: quote.AmountOut, minOut: minOut}

	if req.Sandbox {
		// 沙盒：同样的决策路径，最后的广播换成模拟结果
		outcome.swapHash = "sandbox-" + uuid.NewString()
		outcome.txHashes = []string{outcome.swapHash}
		e.saveTrade(ctx, req, amountIn, quote.AmountOut, fee, outcome.swapHash, model.TradeModeSandbox)
		return outcome, nil
	}

	baseFee, tip, err := e.backend.GasFees(ctx)
	if err != nil {
		return nil, err
	}
	if tipBoostBps > 0 {
		tip = new(big.Int).Mul(tip, big.NewInt(10000+tipBoostBps))
		tip.Quo(tip, bpsDenominator)
	}
	// feeCap = 2*base + tip，容忍两个区块的 base fee 上浮
	feeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)

	nonce, err := e.backend.PendingNonce(ctx, signer.Address())
	if err != nil {
		return nil, err
	}

	// 1. 协议费划转，先于换币上链
	if fee.Sign() > 0 {
		feeTx, err := e.buildFeeTx(req, fee, nonce, tip, feeCap)
		if err != nil {
			return nil, err
		}
		hash, err := e.signAndSend(ctx, signer, feeTx)
		if err != nil {
			return nil, fmt.Errorf("协议费划转失败: %w", err)
		}
		outcome.txHashes = append(outcome.txHashes, hash)
		nonce++
	}

	// 2. 卖出需要先给路由授权
	if req.Direction == aggregator.DirectionSell {
		hash, bumped, err := e.ensureAllowance(ctx, signer, req.TokenAddress, swap.To, routeAmount, nonce, tip, feeCap)
		if err != nil {
			return nil, err
		}
		if bumped {
			outcome.txHashes = append(outcome.txHashes, hash)
			nonce++
		}
	}

	// 3. 换币
	gas := swap.GasEstimate
	if gas == 0 {
		gas = 400000
	}
	swapTx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   e.backend.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        addrPtr(swap.To),
		Value:     swap.Value,
		Data:      swap.Data,
	})
	hash, err := e.signAndSend(ctx, signer, swapTx)
	if err != nil {
		return nil, fmt.Errorf("换币交易广播失败: %w", err)
	}
	outcome.swapHash = hash
	outcome.txHashes = append(outcome.txHashes, hash)

	e.saveTrade(ctx, req, amountIn, quote.AmountOut, fee, hash, model.TradeModeLive)
	return outcome, nil
}

// buildFeeTx 买入从原生币扣费，卖出从代币扣费
func (e *Engine) buildFeeTx(req *TradeRequest, fee *big.Int, nonce uint64, tip, feeCap *big.Int) (*types.Transaction, error) {
	if req.Direction == aggregator.DirectionBuy {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   e.backend.ChainID(),
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       21000,
			To:        addrPtr(e.cfg.FeeRecipient),
			Value:     fee,
		}), nil
	}
	data, err := chain.PackTransfer(e.cfg.FeeRecipient, fee)
	if err != nil {
		return nil, err
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   e.backend.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       80000,
		To:        addrPtr(req.TokenAddress),
		Value:     big.NewInt(0),
		Data:      data,
	}), nil
}

// ensureAllowance 授权额度不足时提交一笔最大额度授权
func (e *Engine) ensureAllowance(ctx context.Context, signer Signer, token, spender string,
	need *big.Int, nonce uint64, tip, feeCap *big.Int) (hash string, bumped bool, err error) {

	allowance, err := e.backend.Allowance(ctx, token, signer.Address(), spender)
	if err != nil {
		return "", false, err
	}
	if allowance.Cmp(need) >= 0 {
		return "", false, nil
	}

	data, err := chain.PackApprove(spender, chain.MaxApproval)
	if err != nil {
		return "", false, err
	}
	approveTx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   e.backend.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       80000,
		To:        addrPtr(token),
		Value:     big.NewInt(0),
		Data:      data,
	})
	hash, err = e.signAndSend(ctx, signer, approveTx)
	if err != nil {
		return "", false, fmt.Errorf("授权交易失败: %w", err)
	}
	return hash, true, nil
}

func (e *Engine) signAndSend(ctx context.Context, signer Signer, tx *types.Transaction) (string, error) {
	signed, err := signer.SignTx(tx, e.backend.ChainID())
	if err != nil {
		return "", err
	}
	if err := e.backend.SendTransaction(ctx, signed); err != nil {
		return "", err
	}
	return signed.Hash().Hex(), nil
}

func (e *Engine) saveTrade(ctx context.Context, req *TradeRequest, amountIn, amountOut, fee *big.Int, txHash, mode string) {
	rec := &model.TradeRecord{
		UserID:       req.UserID,
		TxHash:       txHash,
		TokenAddress: req.TokenAddress,
		Direction:    req.Direction,
		AmountIn:     decimal.NewFromBigInt(amountIn, 0),
		AmountOut:    decimal.NewFromBigInt(amountOut, 0),
		FeeAmount:    decimal.NewFromBigInt(fee, 0),
		Mode:         mode,
		Status:       "submitted",
	}
	if err := e.store.SaveTrade(ctx, rec); err != nil {
		logger.Error("交易记录落库失败", zap.Int64("user_id", req.UserID), zap.Error(err))
	}
}

func (e *Engine) publishResult(ctx context.Context, result *TradeResult) {
	if e.producer == nil || result == nil {
		return
	}
	failed := 0
	for _, leg := range result.Legs {
		if leg.Err != "" {
			failed++
		}
	}
	event := &mq.TradeExecutedEvent{
		UserID:     result.UserID,
		Token:      result.Token,
		Direction:  result.Direction,
		AmountIn:   result.AmountIn.String(),
		FeeAmount:  result.FeeAmount.String(),
		TxHashes:   result.TxHashes,
		FailedLegs: failed,
		Sandbox:    result.Sandbox,
		At:         e.now(),
	}
	if err := mq.PublishJSON(ctx, e.producer, mq.TopicTradeExecuted, result.UserID, event); err != nil {
		logger.Warn("交易事件发布失败", zap.Int64("user_id", result.UserID), zap.Error(err))
	}
}

func addrPtr(hexAddr string) *common.Address {
	a := common.HexToAddress(hexAddr)
	return &a
}
