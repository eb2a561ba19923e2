package mirror

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"trader-core/internal/aggregator"
	"trader-core/internal/chain"
	"trader-core/internal/engine"
	"trader-core/internal/model"
	"trader-core/pkg/errno"
)

const (
	testTarget = "0x5555555555555555555555555555555555555555"
	testToken  = "0x1111111111111111111111111111111111111111"
)

type fakeBackend struct {
	mu     sync.Mutex
	trades []chain.TargetTrade
	latest uint64
	polls  int
}

func (b *fakeBackend) ChainID() *big.Int { return big.NewInt(8453) }

func (b *fakeBackend) NativeBalance(ctx context.Context, addr string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (b *fakeBackend) TokenBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (b *fakeBackend) TokenInfo(ctx context.Context, token string) (*chain.TokenInfo, error) {
	return &chain.TokenInfo{Address: token}, nil
}

func (b *fakeBackend) Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (b *fakeBackend) PendingNonce(ctx context.Context, addr string) (uint64, error) {
	return 0, nil
}

func (b *fakeBackend) GasFees(ctx context.Context) (*big.Int, *big.Int, error) {
	return big.NewInt(100), big.NewInt(10), nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return nil
}

func (b *fakeBackend) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return nil, nil
}

func (b *fakeBackend) RecentTrades(ctx context.Context, wallet string, fromBlock uint64) ([]chain.TargetTrade, uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls++
	b.latest++
	return b.trades, b.latest, nil
}

type fakeSource struct {
	impact decimal.Decimal
}

func (s *fakeSource) Quote(ctx context.Context, req *aggregator.QuoteRequest) (*aggregator.Quote, error) {
	return &aggregator.Quote{
		TokenAddress:   req.TokenAddress,
		Direction:      req.Direction,
		AmountIn:       new(big.Int).Set(req.AmountIn),
		AmountOut:      new(big.Int).Mul(req.AmountIn, big.NewInt(2)),
		PriceImpactPct: s.impact,
		FetchedAt:      time.Now(),
	}, nil
}

func (s *fakeSource) BuildSwap(ctx context.Context, q *aggregator.Quote, userAddr string, minOut *big.Int) (*aggregator.SwapTx, error) {
	return &aggregator.SwapTx{To: testTarget, Data: []byte{1}, Value: big.NewInt(0)}, nil
}

func (s *fakeSource) Price(ctx context.Context, tokenAddress string) (decimal.Decimal, error) {
	return decimal.NewFromInt(1), nil
}

type fakeExecutor struct {
	mu       sync.Mutex
	requests []*engine.TradeRequest
}

func (e *fakeExecutor) Execute(ctx context.Context, req *engine.TradeRequest) (*engine.TradeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	amount, _ := new(big.Int).SetString(req.AmountExpression, 10)
	if amount == nil {
		amount = big.NewInt(0)
	}
	return &engine.TradeResult{
		UserID:    req.UserID,
		AmountIn:  amount,
		FeeAmount: big.NewInt(0),
		TxHashes:  []string{"0xmirror"},
		Sandbox:   req.Sandbox,
	}, nil
}

func (e *fakeExecutor) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

func testMirrorConfig(sandbox bool) *model.MirrorConfig {
	return &model.MirrorConfig{
		UserID:            1,
		TargetWallet:      testTarget,
		MaxAmountPerTrade: decimal.NewFromInt(1000),
		SlippageGuardPct:  decimal.NewFromInt(5),
		Active:            true,
		SandboxMode:       sandbox,
	}
}

func TestGuardSkipsHighImpact(t *testing.T) {
	// 6% 冲击 > 5% 护栏：两种模式都必须跳过，不排队不重试
	for _, sandbox := range []bool{false, true} {
		executor := &fakeExecutor{}
		m := New(NewMemStore(), &fakeBackend{}, &fakeSource{impact: decimal.NewFromInt(6)},
			executor, nil, time.Second)

		trade := &chain.TargetTrade{
			Token:     testToken,
			Direction: aggregator.DirectionBuy,
			AmountIn:  big.NewInt(500),
		}
		m.handleTrade(context.Background(), testMirrorConfig(sandbox), trade)

		if executor.calls() != 0 {
			t.Errorf("sandbox=%v: guard should skip, executor called %d times", sandbox, executor.calls())
		}
	}
}

func TestGuardPassesAndCapsAmount(t *testing.T) {
	executor := &fakeExecutor{}
	m := New(NewMemStore(), &fakeBackend{}, &fakeSource{impact: decimal.NewFromInt(1)},
		executor, nil, time.Second)

	// 目标交易 5000 超过单笔上限 1000，应被封顶
	trade := &chain.TargetTrade{
		Token:     testToken,
		Direction: aggregator.DirectionBuy,
		AmountIn:  big.NewInt(5000),
	}
	m.handleTrade(context.Background(), testMirrorConfig(true), trade)

	if executor.calls() != 1 {
		t.Fatalf("executor calls = %d, want 1", executor.calls())
	}
	req := executor.requests[0]
	if req.AmountExpression != "1000" {
		t.Errorf("amount = %s, want capped 1000", req.AmountExpression)
	}
	if !req.Sandbox {
		t.Error("sandbox flag should propagate to the engine")
	}
	if req.Cap.Int64() != 1000 {
		t.Errorf("cap = %v, want 1000", req.Cap)
	}
	// 护栏百分比换算成基点传给引擎
	if req.SlippageBps != 500 {
		t.Errorf("slippage bps = %d, want 500", req.SlippageBps)
	}
}

func TestConfigureReplacesObserver(t *testing.T) {
	m := New(NewMemStore(), &fakeBackend{}, &fakeSource{impact: decimal.Zero},
		&fakeExecutor{}, nil, time.Hour)
	defer m.Shutdown()
	ctx := context.Background()

	max := decimal.NewFromInt(1000)
	guard := decimal.NewFromInt(5)

	if err := m.Configure(ctx, 1, testTarget, max, guard, false); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if m.ObserverCount() != 1 {
		t.Fatalf("observers = %d, want 1", m.ObserverCount())
	}

	// 重复配置替换而不是叠加
	if err := m.Configure(ctx, 1, testTarget, max, guard, true); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if m.ObserverCount() != 1 {
		t.Errorf("observers after reconfigure = %d, want 1", m.ObserverCount())
	}

	if err := m.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if m.ObserverCount() != 0 {
		t.Errorf("observers after delete = %d, want 0", m.ObserverCount())
	}
}

func TestConfigureRejectsBadWallet(t *testing.T) {
	m := New(NewMemStore(), &fakeBackend{}, &fakeSource{}, &fakeExecutor{}, nil, time.Hour)
	err := m.Configure(context.Background(), 1, "not-an-address",
		decimal.NewFromInt(1000), decimal.NewFromInt(5), false)
	if err != errno.ErrBadTargetWallet {
		t.Errorf("err = %v, want ErrBadTargetWallet", err)
	}
	if m.ObserverCount() != 0 {
		t.Error("invalid configure must not start an observer")
	}
}

func TestPauseStopsObserver(t *testing.T) {
	m := New(NewMemStore(), &fakeBackend{}, &fakeSource{}, &fakeExecutor{}, nil, time.Hour)
	defer m.Shutdown()
	ctx := context.Background()

	if err := m.Configure(ctx, 1, testTarget, decimal.NewFromInt(1000), decimal.NewFromInt(5), false); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if err := m.Pause(ctx, 1); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if m.ObserverCount() != 0 {
		t.Errorf("observers after pause = %d, want 0", m.ObserverCount())
	}

	if err := m.Resume(ctx, 1); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if m.ObserverCount() != 1 {
		t.Errorf("observers after resume = %d, want 1", m.ObserverCount())
	}
}

func TestObserveWarmupSkipsHistory(t *testing.T) {
	backend := &fakeBackend{trades: []chain.TargetTrade{{
		Token:     testToken,
		Direction: aggregator.DirectionBuy,
		AmountIn:  big.NewInt(100),
	}}}
	executor := &fakeExecutor{}
	m := New(NewMemStore(), backend, &fakeSource{impact: decimal.Zero},
		executor, nil, 5*time.Millisecond)
	defer m.Shutdown()

	if err := m.Configure(context.Background(), 1, testTarget,
		decimal.NewFromInt(1000), decimal.NewFromInt(5), true); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	// 第一轮只定位游标，之后的轮次才会复制
	deadline := time.After(2 * time.Second)
	for executor.calls() == 0 {
		select {
		case <-deadline:
			t.Fatal("observer never copied a trade")
		case <-time.After(10 * time.Millisecond):
		}
	}

	backend.mu.Lock()
	polls := backend.polls
	backend.mu.Unlock()
	if polls < 2 {
		t.Errorf("polls = %d, want at least 2 (warmup + copy)", polls)
	}
}
