package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trader-core/internal/model"
	"trader-core/pkg/errno"
)

// 条件单种类合法性检查
func validOrderKind(kind string) bool {
	switch kind {
	case model.OrderKindLimit, model.OrderKindStopLoss, model.OrderKindTakeProfit:
		return true
	}
	return false
}

// CreateConditionalOrder 挂一张 pending 条件单。
// 引擎本身不盯盘，触发由 watch 包的轮询进程负责。
func (e *Engine) CreateConditionalOrder(ctx context.Context, userID int64,
	tokenAddress string, amount, triggerPrice decimal.Decimal, kind string) (string, error) {

	if !validOrderKind(kind) {
		return "", errno.ErrBadAmount
	}
	if amount.Sign() <= 0 || triggerPrice.Sign() <= 0 {
		return "", errno.ErrBadAmount
	}

	order := &model.ConditionalOrder{
		OrderID:      uuid.NewString(),
		UserID:       userID,
		TokenAddress: tokenAddress,
		Amount:       amount,
		TriggerPrice: triggerPrice,
		Kind:         kind,
		Status:       model.OrderStatusPending,
	}
	if err := e.store.CreateOrder(ctx, order); err != nil {
		return "", err
	}
	return order.OrderID, nil
}

// ListOrders 查询用户条件单，status 为空表示不过滤
func (e *Engine) ListOrders(ctx context.Context, userID int64, status string) ([]model.ConditionalOrder, error) {
	return e.store.ListOrders(ctx, userID, status)
}

// CancelOrder 撤单。只有 pending 可撤，触发/已撤是终态。
func (e *Engine) CancelOrder(ctx context.Context, userID int64, orderID string) error {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return errno.ErrOrderNotFound
	}
	return e.store.UpdateOrderStatus(ctx, orderID, model.OrderStatusPending, model.OrderStatusCancelled)
}

// MarkTriggered pending -> triggered，watch 进程触发成功后调用
func (e *Engine) MarkTriggered(ctx context.Context, orderID string) error {
	return e.store.UpdateOrderStatus(ctx, orderID, model.OrderStatusPending, model.OrderStatusTriggered)
}
