// Package watch 条件单盯盘进程：定时轮询聚合器价格，
// 触发满足条件的挂单并推进其状态机。
package watch

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trader-core/internal/aggregator"
	"trader-core/internal/engine"
	"trader-core/internal/model"
	"trader-core/internal/service/mq"
	"trader-core/pkg/logger"
	"trader-core/pkg/monitor"
	"trader-core/pkg/utils/lock"
)

const (
	lockKey = "conditional_order_watch"
	lockTTL = 25 * time.Second
)

// Executor 触发后的下单入口
type Executor interface {
	Execute(ctx context.Context, req *engine.TradeRequest) (*engine.TradeResult, error)
	MarkTriggered(ctx context.Context, orderID string) error
}

type Watcher struct {
	store    engine.Store
	executor Executor
	source   aggregator.Source
	locker   lock.DistributedLock
	producer mq.Producer
	cron     *cron.Cron
}

func New(store engine.Store, executor Executor, source aggregator.Source,
	locker lock.DistributedLock, producer mq.Producer) *Watcher {

	return &Watcher{
		store:    store,
		executor: executor,
		source:   source,
		locker:   locker,
		producer: producer,
		cron:     cron.New(),
	}
}

// Start 按固定节奏轮询。多实例部署靠 Redis 锁保证单节点评估。
func (w *Watcher) Start() error {
	_, err := w.cron.AddFunc("@every 30s", func() {
		ctx, cancel := context.WithTimeout(context.Background(), lockTTL)
		defer cancel()
		w.RunOnce(ctx)
	})
	if err != nil {
		return err
	}
	w.cron.Start()
	logger.Info("条件单盯盘已启动")
	return nil
}

func (w *Watcher) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
}

// RunOnce 跑一轮触发检查
func (w *Watcher) RunOnce(ctx context.Context) {
	if w.locker != nil {
		ok, err := w.locker.Acquire(ctx, lockKey, lockTTL)
		if err != nil {
			logger.Warn("盯盘锁获取失败", zap.Error(err))
			return
		}
		if !ok {
			return // 其他节点在跑
		}
		defer func() {
			if err := w.locker.Release(ctx, lockKey); err != nil {
				logger.Warn("盯盘锁释放失败", zap.Error(err))
			}
		}()
	}

	orders, err := w.store.ListPendingOrders(ctx)
	if err != nil {
		logger.Error("挂单查询失败", zap.Error(err))
		return
	}

	// 同一代币只问一次价
	prices := make(map[string]decimal.Decimal)
	for i := range orders {
		order := &orders[i]
		price, ok := prices[order.TokenAddress]
		if !ok {
			price, err = w.source.Price(ctx, order.TokenAddress)
			if err != nil {
				logger.Warn("价格查询失败",
					zap.String("token", order.TokenAddress), zap.Error(err))
				continue
			}
			prices[order.TokenAddress] = price
		}

		if !shouldTrigger(order.Kind, order.TriggerPrice, price) {
			continue
		}
		w.fire(ctx, order, price)
	}
}

// shouldTrigger 触发判定：
// 限价买入 — 价格跌到触发价及以下；
// 止损 — 价格跌破触发价；止盈 — 价格涨到触发价及以上。
func shouldTrigger(kind string, trigger, price decimal.Decimal) bool {
	switch kind {
	case model.OrderKindLimit, model.OrderKindStopLoss:
		return price.LessThanOrEqual(trigger)
	case model.OrderKindTakeProfit:
		return price.GreaterThanOrEqual(trigger)
	}
	return false
}

// directionFor 限价单买入，止损/止盈卖出
func directionFor(kind string) string {
	if kind == model.OrderKindLimit {
		return aggregator.DirectionBuy
	}
	return aggregator.DirectionSell
}

// fire 执行并推进状态。先把挂单从 pending 迁到 triggered 再下单，
// 同一挂单不可能被重复成交；执行失败时回退到 pending，下一轮重试。
func (w *Watcher) fire(ctx context.Context, order *model.ConditionalOrder, price decimal.Decimal) {
	logger.Info("条件单触发",
		zap.String("order_id", order.OrderID),
		zap.String("kind", order.Kind),
		zap.String("price", price.String()))

	// 迁移失败说明挂单已被取消或其他节点抢先，放弃执行
	if err := w.executor.MarkTriggered(ctx, order.OrderID); err != nil {
		logger.Warn("条件单状态迁移失败",
			zap.String("order_id", order.OrderID), zap.Error(err))
		return
	}

	result, err := w.executor.Execute(ctx, &engine.TradeRequest{
		UserID:           order.UserID,
		TokenAddress:     order.TokenAddress,
		AmountExpression: order.Amount.String(),
		Direction:        directionFor(order.Kind),
		SlippageBps:      100, // 触发单固定 1% 容忍
	})

	event := &mq.OrderTriggeredEvent{
		UserID:  order.UserID,
		OrderID: order.OrderID,
		Kind:    order.Kind,
		Token:   order.TokenAddress,
		At:      time.Now(),
	}
	if err != nil {
		event.Err = err.Error()
		logger.Warn("条件单执行失败",
			zap.String("order_id", order.OrderID), zap.Error(err))
		if rbErr := w.store.UpdateOrderStatus(ctx, order.OrderID,
			model.OrderStatusTriggered, model.OrderStatusPending); rbErr != nil {
			logger.Error("条件单状态回退失败",
				zap.String("order_id", order.OrderID), zap.Error(rbErr))
		}
		w.publish(ctx, order.UserID, event)
		return
	}

	if len(result.TxHashes) > 0 {
		event.TxHash = result.TxHashes[len(result.TxHashes)-1]
	}
	monitor.Business.OrderTriggeredTotal.WithLabelValues(order.Kind).Inc()
	w.publish(ctx, order.UserID, event)
}

func (w *Watcher) publish(ctx context.Context, userID int64, event *mq.OrderTriggeredEvent) {
	if w.producer == nil {
		return
	}
	if err := mq.PublishJSON(ctx, w.producer, mq.TopicOrderTriggered, userID, event); err != nil {
		logger.Warn("条件单事件发布失败", zap.String("order_id", event.OrderID), zap.Error(err))
	}
}
