package mirror

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trader-core/internal/model"
	"trader-core/pkg/errno"
)

// Store 跟单配置持久化
type Store interface {
	Get(ctx context.Context, userID int64) (*model.MirrorConfig, error)
	Upsert(ctx context.Context, cfg *model.MirrorConfig) error
	Delete(ctx context.Context, userID int64) error
	ListActive(ctx context.Context) ([]model.MirrorConfig, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, userID int64) (*model.MirrorConfig, error) {
	var cfg model.MirrorConfig
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrMirrorNotFound
		}
		return nil, errno.ErrDatabase
	}
	return &cfg, nil
}

func (s *GormStore) Upsert(ctx context.Context, cfg *model.MirrorConfig) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"target_wallet", "max_amount_per_trade", "slippage_guard_pct",
			"active", "sandbox_mode", "updated_at",
		}),
	}).Create(cfg).Error
	if err != nil {
		return errno.ErrDatabase
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, userID int64) error {
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.MirrorConfig{})
	if res.Error != nil {
		return errno.ErrDatabase
	}
	if res.RowsAffected == 0 {
		return errno.ErrMirrorNotFound
	}
	return nil
}

func (s *GormStore) ListActive(ctx context.Context) ([]model.MirrorConfig, error) {
	var cfgs []model.MirrorConfig
	if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&cfgs).Error; err != nil {
		return nil, errno.ErrDatabase
	}
	return cfgs, nil
}

// MemStore 内存实现，测试用
type MemStore struct {
	mu      sync.Mutex
	configs map[int64]*model.MirrorConfig
}

func NewMemStore() *MemStore {
	return &MemStore{configs: make(map[int64]*model.MirrorConfig)}
}

func (s *MemStore) Get(ctx context.Context, userID int64) (*model.MirrorConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[userID]
	if !ok {
		return nil, errno.ErrMirrorNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (s *MemStore) Upsert(ctx context.Context, cfg *model.MirrorConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cfg
	s.configs[cfg.UserID] = &cp
	return nil
}

func (s *MemStore) Delete(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[userID]; !ok {
		return errno.ErrMirrorNotFound
	}
	delete(s.configs, userID)
	return nil
}

func (s *MemStore) ListActive(ctx context.Context) ([]model.MirrorConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MirrorConfig
	for _, cfg := range s.configs {
		if cfg.Active {
			out = append(out, *cfg)
		}
	}
	return out, nil
}
