package vault

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"

	"trader-core/internal/model"
	"trader-core/pkg/errno"
)

// Store 保险库记录的持久化契约：启动加载、变更保存。
type Store interface {
	Get(ctx context.Context, userID int64) (*model.VaultRecord, error)
	Create(ctx context.Context, rec *model.VaultRecord) error
	Update(ctx context.Context, rec *model.VaultRecord) error
}

// GormStore 生产实现
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, userID int64) (*model.VaultRecord, error) {
	var rec model.VaultRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrWalletNotFound
		}
		return nil, errno.ErrDatabase
	}
	return &rec, nil
}

func (s *GormStore) Create(ctx context.Context, rec *model.VaultRecord) error {
	err := s.db.WithContext(ctx).Create(rec).Error
	if err != nil {
		// 唯一索引冲突视为已存在
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errno.ErrWalletExists
		}
		return errno.ErrDatabase
	}
	return nil
}

func (s *GormStore) Update(ctx context.Context, rec *model.VaultRecord) error {
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return errno.ErrDatabase
	}
	return nil
}

// MemStore 内存实现，测试和离线 CLI 用
type MemStore struct {
	mu      sync.RWMutex
	records map[int64]*model.VaultRecord
	nextID  uint64
}

func NewMemStore() *MemStore {
	return &MemStore{records: make(map[int64]*model.VaultRecord)}
}

func (s *MemStore) Get(ctx context.Context, userID int64) (*model.VaultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	if !ok {
		return nil, errno.ErrWalletNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemStore) Create(ctx context.Context, rec *model.VaultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.UserID]; ok {
		return errno.ErrWalletExists
	}
	s.nextID++
	rec.ID = s.nextID
	cp := *rec
	s.records[rec.UserID] = &cp
	return nil
}

func (s *MemStore) Update(ctx context.Context, rec *model.VaultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.UserID]; !ok {
		return errno.ErrWalletNotFound
	}
	cp := *rec
	s.records[rec.UserID] = &cp
	return nil
}
