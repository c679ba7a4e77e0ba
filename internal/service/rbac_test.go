package service

import (
	"context"
	"errors"
	"testing"

	"github.com/pu-ac-cn/admin-auth/internal/model"
	"github.com/pu-ac-cn/admin-auth/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRoleRepository 角色仓库 Mock
type MockRoleRepository struct {
	mock.Mock
}

func (m *MockRoleRepository) Create(ctx context.Context, role *model.Role) error {
	args := m.Called(ctx, role)
	if role.ID == "" {
		role.ID = "role-" + role.Code
	}
	return args.Error(0)
}

func (m *MockRoleRepository) GetByCode(ctx context.Context, code string) (*model.Role, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Role), args.Error(1)
}

func (m *MockRoleRepository) AddPermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	args := m.Called(ctx, roleID, permissionIDs)
	return args.Error(0)
}

// MockPermissionRepository 权限仓库 Mock
type MockPermissionRepository struct {
	mock.Mock
}

func (m *MockPermissionRepository) Create(ctx context.Context, perm *model.Permission) error {
	args := m.Called(ctx, perm)
	return args.Error(0)
}

func (m *MockPermissionRepository) GetByCode(ctx context.Context, code string) (*model.Permission, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Permission), args.Error(1)
}

func (m *MockPermissionRepository) List(ctx context.Context) ([]*model.Permission, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*model.Permission), args.Error(1)
}

// MockUserRoleRepository 用户角色仓库 Mock
type MockUserRoleRepository struct {
	mock.Mock
}

func (m *MockUserRoleRepository) Assign(ctx context.Context, userID, roleID string) error {
	args := m.Called(ctx, userID, roleID)
	return args.Error(0)
}

func (m *MockUserRoleRepository) GetUserRoles(ctx context.Context, userID string) ([]*model.Role, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Role), args.Error(1)
}

func (m *MockUserRoleRepository) HasRole(ctx context.Context, userID, roleCode string) (bool, error) {
	args := m.Called(ctx, userID, roleCode)
	return args.Bool(0), args.Error(1)
}

func TestPermissionEvaluator_HasPermission(t *testing.T) {
	var ev PermissionEvaluator
	tests := []struct {
		name      string
		principal *model.Principal
		required  string
		want      bool
	}{
		{"空主体", nil, model.PermUserList, false},
		{"超级管理员角色", &model.Principal{Roles: []string{model.RoleSuperAdmin}}, "any:thing:here", true},
		{"通配权限", &model.Principal{Permissions: []string{model.PermissionAll}}, "any:thing:here", true},
		{"精确匹配", &model.Principal{Permissions: []string{model.PermUserList}}, model.PermUserList, true},
		{"不支持前缀通配", &model.Principal{Permissions: []string{"system:*:*"}}, model.PermUserList, false},
		{"不支持部分通配", &model.Principal{Permissions: []string{"system:user:*"}}, model.PermUserList, false},
		{"没有权限", &model.Principal{Roles: []string{model.RoleCommon}}, model.PermOnlineList, false},
		{"空权限要求", &model.Principal{Permissions: []string{""}}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ev.HasPermission(tt.principal, tt.required))
		})
	}
}

func TestPermissionEvaluator_IsSuperAdmin(t *testing.T) {
	var ev PermissionEvaluator
	assert.True(t, ev.IsSuperAdmin(&model.Principal{Roles: []string{model.RoleSuperAdmin}}))
	assert.True(t, ev.IsSuperAdmin(&model.Principal{Permissions: []string{model.PermissionAll}}))
	assert.False(t, ev.IsSuperAdmin(&model.Principal{Roles: []string{model.RoleCommon}, Permissions: []string{model.PermUserList}}))
	assert.False(t, ev.IsSuperAdmin(nil))
}

func TestRBACService_GetUserAuthorities(t *testing.T) {
	ctx := context.Background()

	t.Run("合并去重", func(t *testing.T) {
		userRoleRepo := new(MockUserRoleRepository)
		svc := NewRBACService(nil, nil, userRoleRepo)
		userRoleRepo.On("GetUserRoles", ctx, "u1").Return([]*model.Role{
			{Code: "editor", Permissions: []model.Permission{{Code: "b:b:b"}, {Code: "a:a:a"}}},
			{Code: model.RoleCommon, Permissions: []model.Permission{{Code: "a:a:a"}}},
		}, nil)

		roles, perms, err := svc.GetUserAuthorities(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{model.RoleCommon, "editor"}, roles)
		assert.Equal(t, []string{"a:a:a", "b:b:b"}, perms)
	})

	t.Run("超级管理员获得通配权限", func(t *testing.T) {
		userRoleRepo := new(MockUserRoleRepository)
		svc := NewRBACService(nil, nil, userRoleRepo)
		userRoleRepo.On("GetUserRoles", ctx, "root").Return([]*model.Role{{Code: model.RoleSuperAdmin}}, nil)

		roles, perms, err := svc.GetUserAuthorities(ctx, "root")
		require.NoError(t, err)
		assert.Equal(t, []string{model.RoleSuperAdmin}, roles)
		assert.Equal(t, []string{model.PermissionAll}, perms)
	})

	t.Run("查询失败", func(t *testing.T) {
		userRoleRepo := new(MockUserRoleRepository)
		svc := NewRBACService(nil, nil, userRoleRepo)
		userRoleRepo.On("GetUserRoles", ctx, "u2").Return(nil, errors.New("db down"))

		_, _, err := svc.GetUserAuthorities(ctx, "u2")
		assert.Error(t, err)
	})
}

func TestRBACService_AssignRoleByCode(t *testing.T) {
	ctx := context.Background()

	t.Run("分配成功", func(t *testing.T) {
		roleRepo := new(MockRoleRepository)
		userRoleRepo := new(MockUserRoleRepository)
		svc := NewRBACService(roleRepo, nil, userRoleRepo)

		roleRepo.On("GetByCode", ctx, model.RoleSuperAdmin).Return(&model.Role{BaseModel: model.BaseModel{ID: "r1"}, Code: model.RoleSuperAdmin}, nil)
		userRoleRepo.On("HasRole", ctx, "u1", model.RoleSuperAdmin).Return(false, nil)
		userRoleRepo.On("Assign", ctx, "u1", "r1").Return(nil)

		require.NoError(t, svc.AssignRoleByCode(ctx, "u1", model.RoleSuperAdmin))
		userRoleRepo.AssertExpectations(t)
	})

	t.Run("已拥有角色不重复分配", func(t *testing.T) {
		roleRepo := new(MockRoleRepository)
		userRoleRepo := new(MockUserRoleRepository)
		svc := NewRBACService(roleRepo, nil, userRoleRepo)

		roleRepo.On("GetByCode", ctx, model.RoleSuperAdmin).Return(&model.Role{BaseModel: model.BaseModel{ID: "r1"}}, nil)
		userRoleRepo.On("HasRole", ctx, "u1", model.RoleSuperAdmin).Return(true, nil)

		require.NoError(t, svc.AssignRoleByCode(ctx, "u1", model.RoleSuperAdmin))
		userRoleRepo.AssertNotCalled(t, "Assign", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("角色不存在", func(t *testing.T) {
		roleRepo := new(MockRoleRepository)
		svc := NewRBACService(roleRepo, nil, nil)
		roleRepo.On("GetByCode", ctx, "ghost").Return(nil, repository.ErrRoleNotFound)

		assert.ErrorIs(t, svc.AssignRoleByCode(ctx, "u1", "ghost"), ErrRoleNotFound)
	})

	t.Run("数据库错误不当作角色不存在", func(t *testing.T) {
		roleRepo := new(MockRoleRepository)
		svc := NewRBACService(roleRepo, nil, nil)
		dbErr := errors.New("connection refused")
		roleRepo.On("GetByCode", ctx, model.RoleCommon).Return(nil, dbErr)

		err := svc.AssignRoleByCode(ctx, "u1", model.RoleCommon)
		assert.ErrorIs(t, err, dbErr)
		assert.NotErrorIs(t, err, ErrRoleNotFound)
	})
}

func TestRBACService_InitDefaultRolesAndPermissions(t *testing.T) {
	ctx := context.Background()
	roleRepo := new(MockRoleRepository)
	permRepo := new(MockPermissionRepository)
	svc := NewRBACService(roleRepo, permRepo, nil)

	var stored []*model.Permission
	var allIDs []string
	for i, p := range model.DefaultSystemPermissions() {
		permRepo.On("GetByCode", ctx, p.Code).Return(nil, repository.ErrPermissionNotFound)
		id := string(rune('a' + i))
		stored = append(stored, &model.Permission{BaseModel: model.BaseModel{ID: id}, Code: p.Code})
		allIDs = append(allIDs, id)
	}
	permRepo.On("Create", ctx, mock.AnythingOfType("*model.Permission")).Return(nil)
	permRepo.On("List", ctx).Return(stored, nil)

	roleRepo.On("GetByCode", ctx, model.RoleSuperAdmin).Return(nil, repository.ErrRoleNotFound)
	roleRepo.On("GetByCode", ctx, model.RoleCommon).Return(nil, repository.ErrRoleNotFound)
	roleRepo.On("Create", ctx, mock.AnythingOfType("*model.Role")).Return(nil)
	roleRepo.On("AddPermissions", ctx, "role-"+model.RoleSuperAdmin, allIDs).Return(nil)
	roleRepo.On("AddPermissions", ctx, "role-"+model.RoleCommon, []string{"b"}).Return(nil)

	require.NoError(t, svc.InitDefaultRolesAndPermissions(ctx))
	permRepo.AssertNumberOfCalls(t, "Create", len(model.DefaultSystemPermissions()))
	roleRepo.AssertNumberOfCalls(t, "Create", 2)
	roleRepo.AssertExpectations(t)
}

func TestRBACService_InitDefaultRolesAndPermissions_QueryError(t *testing.T) {
	ctx := context.Background()
	permRepo := new(MockPermissionRepository)
	svc := NewRBACService(new(MockRoleRepository), permRepo, nil)

	first := model.DefaultSystemPermissions()[0]
	permRepo.On("GetByCode", ctx, first.Code).Return(nil, errors.New("connection refused"))

	err := svc.InitDefaultRolesAndPermissions(ctx)
	assert.Error(t, err)
	permRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}
