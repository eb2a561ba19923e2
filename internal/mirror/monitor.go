// Package mirror 跟单监控：观察目标钱包的链上交易，
// 通过滑点护栏后以订阅用户的身份复制执行。
package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trader-core/internal/aggregator"
	"trader-core/internal/chain"
	"trader-core/internal/engine"
	"trader-core/internal/model"
	"trader-core/internal/service/mq"
	"trader-core/pkg/address"
	"trader-core/pkg/errno"
	"trader-core/pkg/logger"
	"trader-core/pkg/monitor"
)

// Executor 跟单需要的引擎入口，与手动交易走同一条执行路径
type Executor interface {
	Execute(ctx context.Context, req *engine.TradeRequest) (*engine.TradeResult, error)
}

// observer 一个用户的观察协程句柄
type observer struct {
	cancel context.CancelFunc
	done   chan struct{}
	target string
}

type Monitor struct {
	store    Store
	backend  chain.Backend
	source   aggregator.Source
	executor Executor
	producer mq.Producer
	interval time.Duration

	mu        sync.Mutex
	observers map[int64]*observer
}

func New(store Store, backend chain.Backend, source aggregator.Source,
	executor Executor, producer mq.Producer, pollInterval time.Duration) *Monitor {

	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	return &Monitor{
		store:     store,
		backend:   backend,
		source:    source,
		executor:  executor,
		producer:  producer,
		interval:  pollInterval,
		observers: make(map[int64]*observer),
	}
}

// Configure 写入 (或覆盖) 跟单配置并 (重) 启观察协程。
// 同一用户重复配置是替换而不是叠加：旧协程先取消再起新的。
func (m *Monitor) Configure(ctx context.Context, userID int64, targetWallet string,
	maxAmountPerTrade, slippageGuardPct decimal.Decimal, sandboxMode bool) error {

	normalized, err := address.Normalize(targetWallet)
	if err != nil {
		return errno.ErrBadTargetWallet
	}
	if maxAmountPerTrade.Sign() <= 0 || slippageGuardPct.Sign() < 0 {
		return errno.ErrBadTargetWallet
	}

	cfg := &model.MirrorConfig{
		UserID:            userID,
		TargetWallet:      normalized,
		MaxAmountPerTrade: maxAmountPerTrade,
		SlippageGuardPct:  slippageGuardPct,
		Active:            true,
		SandboxMode:       sandboxMode,
	}
	if err := m.store.Upsert(ctx, cfg); err != nil {
		return err
	}

	m.startObserver(cfg)
	logger.Info("跟单配置已更新",
		zap.Int64("user_id", userID), zap.String("target", normalized),
		zap.Bool("sandbox", sandboxMode))
	return nil
}

// Pause 暂停观察，配置保留
func (m *Monitor) Pause(ctx context.Context, userID int64) error {
	cfg, err := m.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	cfg.Active = false
	if err := m.store.Upsert(ctx, cfg); err != nil {
		return err
	}
	m.stopObserver(userID)
	return nil
}

// Resume 恢复观察
func (m *Monitor) Resume(ctx context.Context, userID int64) error {
	cfg, err := m.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	cfg.Active = true
	if err := m.store.Upsert(ctx, cfg); err != nil {
		return err
	}
	m.startObserver(cfg)
	return nil
}

// Delete 删除配置并停止观察
func (m *Monitor) Delete(ctx context.Context, userID int64) error {
	if err := m.store.Delete(ctx, userID); err != nil {
		return err
	}
	m.stopObserver(userID)
	return nil
}

// ResumeAll 进程启动时恢复所有 active 配置的观察协程
func (m *Monitor) ResumeAll(ctx context.Context) error {
	cfgs, err := m.store.ListActive(ctx)
	if err != nil {
		return err
	}
	for i := range cfgs {
		m.startObserver(&cfgs[i])
	}
	logger.Info("跟单观察已恢复", zap.Int("count", len(cfgs)))
	return nil
}

// Shutdown 停掉所有观察协程并等待退出
func (m *Monitor) Shutdown() {
	m.mu.Lock()
	obs := make([]*observer, 0, len(m.observers))
	for userID, o := range m.observers {
		obs = append(obs, o)
		delete(m.observers, userID)
	}
	m.mu.Unlock()

	for _, o := range obs {
		o.cancel()
		<-o.done
	}
}

// ObserverCount 当前活跃观察协程数，测试与运维接口用
func (m *Monitor) ObserverCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.observers)
}

// startObserver 原子替换：持锁期间旧协程已被取消并从表中移除
func (m *Monitor) startObserver(cfg *model.MirrorConfig) {
	m.mu.Lock()
	if old, ok := m.observers[cfg.UserID]; ok {
		old.cancel()
		delete(m.observers, cfg.UserID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &observer{cancel: cancel, done: make(chan struct{}), target: cfg.TargetWallet}
	m.observers[cfg.UserID] = o
	m.mu.Unlock()

	cfgCopy := *cfg
	go m.observe(ctx, &cfgCopy, o.done)
}

func (m *Monitor) stopObserver(userID int64) {
	m.mu.Lock()
	o, ok := m.observers[userID]
	if ok {
		delete(m.observers, userID)
	}
	m.mu.Unlock()
	if ok {
		o.cancel()
		<-o.done
	}
}

// observe 单用户观察循环。首轮只定位游标，不回放历史交易。
func (m *Monitor) observe(ctx context.Context, cfg *model.MirrorConfig, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var cursor uint64
	warmedUp := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		trades, latest, err := m.backend.RecentTrades(ctx, cfg.TargetWallet, cursor)
		if err != nil {
			logger.Warn("目标钱包扫描失败",
				zap.Int64("user_id", cfg.UserID), zap.Error(err))
			continue
		}
		cursor = latest
		if !warmedUp {
			warmedUp = true
			continue
		}

		for _, trade := range trades {
			m.handleTrade(ctx, cfg, &trade)
		}
	}
}

// handleTrade 单笔目标交易的决策：
// 先拿新鲜报价评估滑点护栏，超限即跳过并上报 (不排队、不重试)；
// 通过则按上限封顶复制执行。沙盒与实盘走完全相同的判定路径。
func (m *Monitor) handleTrade(ctx context.Context, cfg *model.MirrorConfig, trade *chain.TargetTrade) {
	maxAmount := cfg.MaxAmountPerTrade.BigInt()
	amount := trade.AmountIn
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	if amount.Cmp(maxAmount) > 0 {
		amount = maxAmount
	}

	quote, err := m.source.Quote(ctx, &aggregator.QuoteRequest{
		TokenAddress: trade.Token,
		Direction:    trade.Direction,
		AmountIn:     amount,
	})
	if err != nil {
		logger.Warn("跟单报价失败",
			zap.Int64("user_id", cfg.UserID), zap.String("token", trade.Token), zap.Error(err))
		return
	}

	if quote.PriceImpactPct.GreaterThan(cfg.SlippageGuardPct) {
		m.reportSkip(ctx, cfg, trade, quote)
		return
	}

	guardBps := cfg.SlippageGuardPct.Mul(decimal.NewFromInt(100)).IntPart()
	result, err := m.executor.Execute(ctx, &engine.TradeRequest{
		UserID:           cfg.UserID,
		TokenAddress:     trade.Token,
		AmountExpression: amount.String(),
		Direction:        trade.Direction,
		SlippageBps:      guardBps,
		Sandbox:          cfg.SandboxMode,
		Cap:              maxAmount,
	})
	if err != nil {
		// 跟单失败只影响这一笔，观察循环继续
		logger.Warn("跟单执行失败",
			zap.Int64("user_id", cfg.UserID), zap.String("token", trade.Token), zap.Error(err))
		return
	}

	monitor.Business.MirrorCopiedTotal.Inc()
	if m.producer != nil {
		event := &mq.MirrorCopiedEvent{
			UserID:       cfg.UserID,
			TargetWallet: cfg.TargetWallet,
			Token:        trade.Token,
			Direction:    trade.Direction,
			AmountIn:     result.AmountIn.String(),
			TxHashes:     result.TxHashes,
			Sandbox:      cfg.SandboxMode,
			At:           time.Now(),
		}
		if err := mq.PublishJSON(ctx, m.producer, mq.TopicMirrorCopied, cfg.UserID, event); err != nil {
			logger.Warn("跟单事件发布失败", zap.Int64("user_id", cfg.UserID), zap.Error(err))
		}
	}
}

// reportSkip 护栏拦截必须让用户知道
func (m *Monitor) reportSkip(ctx context.Context, cfg *model.MirrorConfig, trade *chain.TargetTrade, quote *aggregator.Quote) {
	monitor.Business.MirrorSkippedTotal.Inc()
	logger.Info("跟单被滑点护栏拦截",
		zap.Int64("user_id", cfg.UserID),
		zap.String("token", trade.Token),
		zap.String("impact", quote.PriceImpactPct.String()),
		zap.String("guard", cfg.SlippageGuardPct.String()))

	if m.producer == nil {
		return
	}
	event := &mq.MirrorSkippedEvent{
		UserID:       cfg.UserID,
		TargetWallet: cfg.TargetWallet,
		Token:        trade.Token,
		PriceImpact:  quote.PriceImpactPct.String(),
		GuardPct:     cfg.SlippageGuardPct.String(),
		At:           time.Now(),
	}
	if err := mq.PublishJSON(ctx, m.producer, mq.TopicMirrorSkipped, cfg.UserID, event); err != nil {
		logger.Warn("跳过事件发布失败", zap.Int64("user_id", cfg.UserID), zap.Error(err))
	}
}
