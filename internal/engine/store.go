package engine

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"

	"trader-core/internal/model"
	"trader-core/pkg/errno"
)

// Store 交易记录与条件单的持久化契约
type Store interface {
	SaveTrade(ctx context.Context, rec *model.TradeRecord) error
	CreateOrder(ctx context.Context, order *model.ConditionalOrder) error
	GetOrder(ctx context.Context, orderID string) (*model.ConditionalOrder, error)
	ListOrders(ctx context.Context, userID int64, status string) ([]model.ConditionalOrder, error)
	ListPendingOrders(ctx context.Context) ([]model.ConditionalOrder, error)
	UpdateOrderStatus(ctx context.Context, orderID, from, to string) error
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) SaveTrade(ctx context.Context, rec *model.TradeRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return errno.ErrDatabase
	}
	return nil
}

func (s *GormStore) CreateOrder(ctx context.Context, order *model.ConditionalOrder) error {
	if err := s.db.WithContext(ctx).Create(order).Error; err != nil {
		return errno.ErrDatabase
	}
	return nil
}

func (s *GormStore) GetOrder(ctx context.Context, orderID string) (*model.ConditionalOrder, error) {
	var order model.ConditionalOrder
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrOrderNotFound
		}
		return nil, errno.ErrDatabase
	}
	return &order, nil
}

func (s *GormStore) ListOrders(ctx context.Context, userID int64, status string) ([]model.ConditionalOrder, error) {
	var orders []model.ConditionalOrder
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, errno.ErrDatabase
	}
	return orders, nil
}

func (s *GormStore) ListPendingOrders(ctx context.Context) ([]model.ConditionalOrder, error) {
	var orders []model.ConditionalOrder
	err := s.db.WithContext(ctx).
		Where("status = ?", model.OrderStatusPending).
		Find(&orders).Error
	if err != nil {
		return nil, errno.ErrDatabase
	}
	return orders, nil
}

// UpdateOrderStatus 条件状态迁移，from 不匹配时不更新 (并发触发下的乐观保护)
func (s *GormStore) UpdateOrderStatus(ctx context.Context, orderID, from, to string) error {
	res := s.db.WithContext(ctx).Model(&model.ConditionalOrder{}).
		Where("order_id = ? AND status = ?", orderID, from).
		Update("status", to)
	if res.Error != nil {
		return errno.ErrDatabase
	}
	if res.RowsAffected == 0 {
		return errno.ErrOrderNotFound
	}
	return nil
}

// MemStore 内存实现，引擎测试用
type MemStore struct {
	mu     sync.Mutex
	Trades []model.TradeRecord
	orders map[string]*model.ConditionalOrder
}

func NewMemStore() *MemStore {
	return &MemStore{orders: make(map[string]*model.ConditionalOrder)}
}

func (s *MemStore) SaveTrade(ctx context.Context, rec *model.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Trades = append(s.Trades, *rec)
	return nil
}

func (s *MemStore) CreateOrder(ctx context.Context, order *model.ConditionalOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *order
	s.orders[order.OrderID] = &cp
	return nil
}

func (s *MemStore) GetOrder(ctx context.Context, orderID string) (*model.ConditionalOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, errno.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (s *MemStore) ListOrders(ctx context.Context, userID int64, status string) ([]model.ConditionalOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ConditionalOrder
	for _, o := range s.orders {
		if o.UserID == userID && (status == "" || o.Status == status) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *MemStore) ListPendingOrders(ctx context.Context) ([]model.ConditionalOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ConditionalOrder
	for _, o := range s.orders {
		if o.Status == model.OrderStatusPending {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *MemStore) UpdateOrderStatus(ctx context.Context, orderID, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok || order.Status != from {
		return errno.ErrOrderNotFound
	}
	order.Status = to
	return nil
}
