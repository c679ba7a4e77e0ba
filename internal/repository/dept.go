package repository

import (
	"context"
	"errors"

	"github.com/pu-ac-cn/admin-auth/internal/model"
	"gorm.io/gorm"
)

// 错误定义
var (
	ErrDeptNotFound = errors.New("部门不存在")
)

// DeptRepository 部门数据访问接口
type DeptRepository interface {
	Create(ctx context.Context, dept *model.Dept) error
	GetByID(ctx context.Context, id string) (*model.Dept, error)
	// ListAll 返回全部部门的 ID 与父 ID，用于计算数据范围
	ListAll(ctx context.Context) ([]model.DeptNode, error)
}

// deptRepository 部门数据访问实现
type deptRepository struct {
	db *gorm.DB
}

// NewDeptRepository 创建部门数据访问实例
func NewDeptRepository(db *gorm.DB) DeptRepository {
	return &deptRepository{db: db}
}

// Create 创建部门
func (r *deptRepository) Create(ctx context.Context, dept *model.Dept) error {
	return r.db.WithContext(ctx).Create(dept).Error
}

// GetByID 根据 ID 获取部门
func (r *deptRepository) GetByID(ctx context.Context, id string) (*model.Dept, error) {
	var dept model.Dept
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&dept).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeptNotFound
		}
		return nil, err
	}
	return &dept, nil
}

// ListAll 查询部门树快照
func (r *deptRepository) ListAll(ctx context.Context) ([]model.DeptNode, error) {
	var nodes []model.DeptNode
	err := r.db.WithContext(ctx).
		Model(&model.Dept{}).
		Select("id", "parent_id").
		Find(&nodes).Error
	if err != nil {
		return nil, err
	}
	return nodes, nil
}
