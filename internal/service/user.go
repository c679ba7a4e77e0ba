package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/pu-ac-cn/admin-auth/internal/model"
	"github.com/pu-ac-cn/admin-auth/internal/repository"
)

var (
	ErrUsernameEmpty    = errors.New("用户名不能为空")
	ErrUsernameInvalid  = errors.New("用户名只能包含字母、数字和下划线")
	ErrUsernameTooShort = errors.New("用户名长度不能少于 3 个字符")
	ErrPasswordEmpty    = errors.New("密码不能为空")
	ErrPasswordTooShort = errors.New("密码长度不能少于 8 个字符")
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// UserDetails 登录所需的用户信息
type UserDetails struct {
	User        *model.User
	Roles       []string
	Permissions []string
}

// UserDetailsService 按用户名加载用户及其权限，用户不存在返回 repository.ErrUserNotFound
type UserDetailsService interface {
	LoadUserByUsername(ctx context.Context, username string) (*UserDetails, error)
}

// UserService 用户服务
type UserService interface {
	UserDetailsService
	Create(ctx context.Context, user *model.User, password string) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// List 按上下文中的数据范围查询
	List(ctx context.Context, filter *repository.UserFilter, page *repository.Pagination) ([]*model.User, int64, error)
}

type userService struct {
	userRepo repository.UserRepository
	rbac     RBACService
	creds    CredentialStore
}

// NewUserService 创建用户服务
func NewUserService(userRepo repository.UserRepository, rbac RBACService, creds CredentialStore) UserService {
	return &userService{userRepo: userRepo, rbac: rbac, creds: creds}
}

func (s *userService) Create(ctx context.Context, user *model.User, password string) error {
	if err := s.validateUser(user); err != nil {
		return err
	}
	if err := s.validatePassword(password); err != nil {
		return err
	}
	hash, err := s.creds.Hash(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if user.Status == "" {
		user.Status = model.StatusActive
	}
	return s.userRepo.Create(ctx, user)
}

func (s *userService) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *userService) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.userRepo.GetByUsername(ctx, strings.TrimSpace(username))
}

func (s *userService) List(ctx context.Context, filter *repository.UserFilter, page *repository.Pagination) ([]*model.User, int64, error) {
	if page == nil {
		page = &repository.Pagination{Page: 1, PageSize: 20}
	}
	if page.Page < 1 {
		page.Page = 1
	}
	switch {
	case page.PageSize < 1:
		page.PageSize = 20
	case page.PageSize > 100:
		page.PageSize = 100
	}
	return s.userRepo.List(ctx, filter, page)
}

func (s *userService) LoadUserByUsername(ctx context.Context, username string) (*UserDetails, error) {
	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	roles, perms, err := s.rbac.GetUserAuthorities(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &UserDetails{User: user, Roles: roles, Permissions: perms}, nil
}

func (s *userService) validateUser(user *model.User) error {
	if user == nil {
		return errors.New("用户信息不能为空")
	}
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" {
		return ErrUsernameEmpty
	}
	if len(user.Username) < 3 {
		return ErrUsernameTooShort
	}
	if !usernameRegex.MatchString(user.Username) {
		return ErrUsernameInvalid
	}
	return nil
}

func (s *userService) validatePassword(password string) error {
	if password == "" {
		return ErrPasswordEmpty
	}
	if len(password) < 8 {
		return ErrPasswordTooShort
	}
	return nil
}
