package repository

import (
	"context"
	"errors"

	"github.com/pu-ac-cn/admin-auth/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRoleNotFound       = errors.New("角色不存在")
	ErrPermissionNotFound = errors.New("权限不存在")
)

// RoleRepository 角色仓库接口
type RoleRepository interface {
	Create(ctx context.Context, role *model.Role) error
	GetByCode(ctx context.Context, code string) (*model.Role, error)
	AddPermissions(ctx context.Context, roleID string, permissionIDs []string) error
}

// PermissionRepository 权限仓库接口
type PermissionRepository interface {
	Create(ctx context.Context, perm *model.Permission) error
	GetByCode(ctx context.Context, code string) (*model.Permission, error)
	List(ctx context.Context) ([]*model.Permission, error)
}

// UserRoleRepository 用户角色仓库接口
type UserRoleRepository interface {
	// Assign 重复分配同一角色不报错
	Assign(ctx context.Context, userID, roleID string) error
	// GetUserRoles 返回用户的启用角色，已预加载权限
	GetUserRoles(ctx context.Context, userID string) ([]*model.Role, error)
	HasRole(ctx context.Context, userID, roleCode string) (bool, error)
}

// roleRepository 角色仓库实现
type roleRepository struct {
	db *gorm.DB
}

// NewRoleRepository 创建角色仓库
func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) Create(ctx context.Context, role *model.Role) error {
	return r.db.WithContext(ctx).Create(role).Error
}

func (r *roleRepository) GetByCode(ctx context.Context, code string) (*model.Role, error) {
	var role model.Role
	if err := r.db.WithContext(ctx).Preload("Permissions").First(&role, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	return &role, nil
}

// AddPermissions 直接写关联表，已存在的关联忽略
func (r *roleRepository) AddPermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	links := make([]model.RolePermission, 0, len(permissionIDs))
	for _, id := range permissionIDs {
		links = append(links, model.RolePermission{RoleID: roleID, PermissionID: id})
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error
}

// permissionRepository 权限仓库实现
type permissionRepository struct {
	db *gorm.DB
}

// NewPermissionRepository 创建权限仓库
func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

func (r *permissionRepository) Create(ctx context.Context, perm *model.Permission) error {
	return r.db.WithContext(ctx).Create(perm).Error
}

func (r *permissionRepository) GetByCode(ctx context.Context, code string) (*model.Permission, error) {
	var perm model.Permission
	if err := r.db.WithContext(ctx).First(&perm, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPermissionNotFound
		}
		return nil, err
	}
	return &perm, nil
}

func (r *permissionRepository) List(ctx context.Context) ([]*model.Permission, error) {
	var perms []*model.Permission
	if err := r.db.WithContext(ctx).Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

// userRoleRepository 用户角色仓库实现
type userRoleRepository struct {
	db *gorm.DB
}

// NewUserRoleRepository 创建用户角色仓库
func NewUserRoleRepository(db *gorm.DB) UserRoleRepository {
	return &userRoleRepository{db: db}
}

// Assign 依赖 (user_id, role_id) 唯一索引，并发分配只会留下一行
func (r *userRoleRepository) Assign(ctx context.Context, userID, roleID string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.UserRole{UserID: userID, RoleID: roleID}).Error
}

func (r *userRoleRepository) GetUserRoles(ctx context.Context, userID string) ([]*model.Role, error) {
	var links []model.UserRole
	err := r.db.WithContext(ctx).
		Preload("Role.Permissions").
		Where("user_id = ?", userID).
		Find(&links).Error
	if err != nil {
		return nil, err
	}

	// 停用或已删除的角色不计入权限快照
	roles := make([]*model.Role, 0, len(links))
	for _, link := range links {
		if link.Role != nil && link.Role.IsActive() {
			roles = append(roles, link.Role)
		}
	}
	return roles, nil
}

func (r *userRoleRepository) HasRole(ctx context.Context, userID, roleCode string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.UserRole{}).
		Joins("JOIN roles ON roles.id = user_roles.role_id AND roles.deleted_at IS NULL").
		Where("user_roles.user_id = ? AND roles.code = ?", userID, roleCode).
		Count(&count).Error
	return count > 0, err
}
