package repository

import (
	"context"

	"github.com/pu-ac-cn/admin-auth/internal/model"
	"gorm.io/gorm"
)

// LoginLogRepository 登录日志仓库接口
type LoginLogRepository interface {
	BatchCreate(ctx context.Context, logs []*model.LoginLog) error
}

// OperLogRepository 操作日志仓库接口
type OperLogRepository interface {
	BatchCreate(ctx context.Context, logs []*model.OperLog) error
}

type loginLogRepository struct {
	db *gorm.DB
}

// NewLoginLogRepository 创建登录日志仓库
func NewLoginLogRepository(db *gorm.DB) LoginLogRepository {
	return &loginLogRepository{db: db}
}

func (r *loginLogRepository) BatchCreate(ctx context.Context, logs []*model.LoginLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(logs, 100).Error
}

type operLogRepository struct {
	db *gorm.DB
}

// NewOperLogRepository 创建操作日志仓库
func NewOperLogRepository(db *gorm.DB) OperLogRepository {
	return &operLogRepository{db: db}
}

func (r *operLogRepository) BatchCreate(ctx context.Context, logs []*model.OperLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(logs, 100).Error
}
