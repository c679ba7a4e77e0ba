package service

import (
	"context"
	"testing"

	"github.com/pu-ac-cn/admin-auth/internal/model"
	"github.com/pu-ac-cn/admin-auth/internal/repository"
	"github.com/pu-ac-cn/admin-auth/internal/reqctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// mockUserRepository 内存用户仓库，List 按上下文中的数据范围过滤
type mockUserRepository struct {
	users       map[string]*model.User
	usernameMap map[string]string
	lastPage    *repository.Pagination
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users:       make(map[string]*model.User),
		usernameMap: make(map[string]string),
	}
}

func (m *mockUserRepository) Create(ctx context.Context, user *model.User) error {
	if _, exists := m.usernameMap[user.Username]; exists {
		return repository.ErrUserUsernameExists
	}
	user.ID = "test-user-" + user.Username
	m.users[user.ID] = user
	m.usernameMap[user.Username] = user.ID
	return nil
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	if user, exists := m.users[id]; exists {
		return user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	if id, exists := m.usernameMap[username]; exists {
		return m.users[id], nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) List(ctx context.Context, filter *repository.UserFilter, page *repository.Pagination) ([]*model.User, int64, error) {
	m.lastPage = page
	scope, scoped := reqctx.DeptScope(ctx)
	allowed := make(map[string]struct{}, len(scope))
	for _, id := range scope {
		allowed[id] = struct{}{}
	}
	var out []*model.User
	for _, u := range m.users {
		if scoped {
			if _, ok := allowed[u.DeptID]; !ok {
				continue
			}
		}
		out = append(out, u)
	}
	return out, int64(len(out)), nil
}

func (m *mockUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, exists := m.usernameMap[username]
	return exists, nil
}

func TestUserService_Create(t *testing.T) {
	repo := newMockUserRepository()
	svc := NewUserService(repo, nil, NewCredentialStore(bcrypt.MinCost))
	ctx := context.Background()

	user := &model.User{Username: " testuser ", DeptID: "d1"}
	require.NoError(t, svc.Create(ctx, user, "password123"))
	assert.Equal(t, "testuser", user.Username)
	assert.Equal(t, model.StatusActive, user.Status)
	assert.NotEqual(t, "password123", user.PasswordHash)
	assert.True(t, NewCredentialStore(0).Verify(user.PasswordHash, "password123"))

	assert.ErrorIs(t, svc.Create(ctx, &model.User{Username: "testuser"}, "password123"), repository.ErrUserUsernameExists)
}

func TestUserService_CreateValidation(t *testing.T) {
	svc := NewUserService(newMockUserRepository(), nil, NewCredentialStore(bcrypt.MinCost))
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"空用户名", "", "password123", ErrUsernameEmpty},
		{"用户名过短", "ab", "password123", ErrUsernameTooShort},
		{"非法字符", "bad name", "password123", ErrUsernameInvalid},
		{"空密码", "gooduser", "", ErrPasswordEmpty},
		{"密码过短", "gooduser", "short", ErrPasswordTooShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Create(ctx, &model.User{Username: tt.username}, tt.password)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUserService_LoadUserByUsername(t *testing.T) {
	repo := newMockUserRepository()
	userRoleRepo := new(MockUserRoleRepository)
	svc := NewUserService(repo, NewRBACService(nil, nil, userRoleRepo), NewCredentialStore(bcrypt.MinCost))
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, &model.User{Username: "alice"}, "password123"))
	userRoleRepo.On("GetUserRoles", ctx, "test-user-alice").Return([]*model.Role{
		{Code: model.RoleCommon, Permissions: []model.Permission{{Code: model.PermUserList}}},
	}, nil)

	details, err := svc.LoadUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", details.User.Username)
	assert.Equal(t, []string{model.RoleCommon}, details.Roles)
	assert.Equal(t, []string{model.PermUserList}, details.Permissions)

	_, err = svc.LoadUserByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestUserService_ListScoped(t *testing.T) {
	repo := newMockUserRepository()
	svc := NewUserService(repo, nil, NewCredentialStore(bcrypt.MinCost))
	ctx := context.Background()

	for _, u := range []*model.User{
		{Username: "u_root", DeptID: "100"},
		{Username: "u_child", DeptID: "101"},
		{Username: "u_other", DeptID: "200"},
	} {
		require.NoError(t, svc.Create(ctx, u, "password123"))
	}

	all, total, err := svc.List(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, 20, repo.lastPage.PageSize, "默认分页")

	scoped := reqctx.WithDeptScope(ctx, []string{"100", "101"})
	users, _, err := svc.List(scoped, nil, &repository.Pagination{Page: 1, PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 100, repo.lastPage.PageSize, "每页数量有上限")
}
