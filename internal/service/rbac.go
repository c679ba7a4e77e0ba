// Package service 业务逻辑层
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/pu-ac-cn/admin-auth/internal/model"
	"github.com/pu-ac-cn/admin-auth/internal/repository"
)

var (
	ErrRoleNotFound = errors.New("角色不存在")
)

// PermissionEvaluator 权限判定
// 只支持超级管理员角色、通配权限 *:*:* 与精确匹配，不做前缀通配
type PermissionEvaluator struct{}

// HasPermission 主体是否拥有指定权限
func (PermissionEvaluator) HasPermission(p *model.Principal, required string) bool {
	if p == nil {
		return false
	}
	if p.HasRole(model.RoleSuperAdmin) || p.HasPermissionCode(model.PermissionAll) {
		return true
	}
	return required != "" && p.HasPermissionCode(required)
}

// IsSuperAdmin 超级管理员不受数据范围限制
func (PermissionEvaluator) IsSuperAdmin(p *model.Principal) bool {
	if p == nil {
		return false
	}
	return p.HasRole(model.RoleSuperAdmin) || p.HasPermissionCode(model.PermissionAll)
}

// RBACService RBAC 服务接口
type RBACService interface {
	// AssignRoleByCode 按角色代码为用户分配角色
	AssignRoleByCode(ctx context.Context, userID, roleCode string) error
	// GetUserAuthorities 获取用户的角色代码与权限代码，均已去重排序
	GetUserAuthorities(ctx context.Context, userID string) (roles []string, permissions []string, err error)
	// InitDefaultRolesAndPermissions 初始化内置角色与权限，可重复执行
	InitDefaultRolesAndPermissions(ctx context.Context) error
}

type rbacService struct {
	roleRepo     repository.RoleRepository
	permRepo     repository.PermissionRepository
	userRoleRepo repository.UserRoleRepository
}

// NewRBACService 创建 RBAC 服务
func NewRBACService(roleRepo repository.RoleRepository, permRepo repository.PermissionRepository, userRoleRepo repository.UserRoleRepository) RBACService {
	return &rbacService{
		roleRepo:     roleRepo,
		permRepo:     permRepo,
		userRoleRepo: userRoleRepo,
	}
}

func (s *rbacService) AssignRoleByCode(ctx context.Context, userID, roleCode string) error {
	role, err := s.roleRepo.GetByCode(ctx, roleCode)
	if errors.Is(err, repository.ErrRoleNotFound) {
		return ErrRoleNotFound
	}
	if err != nil {
		return fmt.Errorf("查询角色失败: %w", err)
	}

	has, err := s.userRoleRepo.HasRole(ctx, userID, roleCode)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	return s.userRoleRepo.Assign(ctx, userID, role.ID)
}

func (s *rbacService) GetUserAuthorities(ctx context.Context, userID string) ([]string, []string, error) {
	roles, err := s.userRoleRepo.GetUserRoles(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("查询用户角色失败: %w", err)
	}

	roleSet := make(map[string]struct{})
	permSet := make(map[string]struct{})
	for _, role := range roles {
		roleSet[role.Code] = struct{}{}
		// 超级管理员直接授予通配权限
		if role.Code == model.RoleSuperAdmin {
			permSet[model.PermissionAll] = struct{}{}
		}
		for _, perm := range role.Permissions {
			permSet[perm.Code] = struct{}{}
		}
	}
	return sortedKeys(roleSet), sortedKeys(permSet), nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// 初始化默认角色和权限

func (s *rbacService) InitDefaultRolesAndPermissions(ctx context.Context) error {
	for _, perm := range model.DefaultSystemPermissions() {
		_, err := s.permRepo.GetByCode(ctx, perm.Code)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrPermissionNotFound) {
			return fmt.Errorf("查询权限 %s 失败: %w", perm.Code, err)
		}
		perm := perm
		if err := s.permRepo.Create(ctx, &perm); err != nil {
			return err
		}
	}

	allPerms, err := s.permRepo.List(ctx)
	if err != nil {
		return err
	}
	allPermIDs := make([]string, 0, len(allPerms))
	var userListID string
	for _, p := range allPerms {
		allPermIDs = append(allPermIDs, p.ID)
		if p.Code == model.PermUserList {
			userListID = p.ID
		}
	}

	for _, role := range model.DefaultSystemRoles() {
		_, err := s.roleRepo.GetByCode(ctx, role.Code)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrRoleNotFound) {
			return fmt.Errorf("查询角色 %s 失败: %w", role.Code, err)
		}
		role := role
		if err := s.roleRepo.Create(ctx, &role); err != nil {
			return err
		}

		switch role.Code {
		case model.RoleSuperAdmin:
			// 超级管理员拥有所有权限
			err = s.roleRepo.AddPermissions(ctx, role.ID, allPermIDs)
		case model.RoleCommon:
			if userListID != "" {
				err = s.roleRepo.AddPermissions(ctx, role.ID, []string{userListID})
			}
		}
		if err != nil {
			return err
		}
	}

	return nil
}
