package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pu-ac-cn/admin-auth/internal/metrics"
	"github.com/pu-ac-cn/admin-auth/internal/model"
	"github.com/pu-ac-cn/admin-auth/internal/repository"
	"go.uber.org/zap"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Username    string
	Password    string
	CaptchaID   string
	CaptchaCode string
	IP          string
	UserAgent   string
}

// LoginResult 登录结果
type LoginResult struct {
	Token      string           `json:"token"`
	ExpireTime int64            `json:"expire_time"` // 毫秒时间戳
	Principal  *model.Principal `json:"-"`
}

// AuthService 认证服务接口
type AuthService interface {
	// Login 验证码 -> 锁定检查 -> 凭据校验 -> 签发令牌 -> 写入会话
	Login(ctx context.Context, req *LoginRequest) (*LoginResult, error)
	// Logout 吊销令牌对应的会话，会话不存在也视为成功
	Logout(ctx context.Context, token string) error
	// Refresh 换发令牌并迁移会话
	Refresh(ctx context.Context, token string) (*LoginResult, error)
	// Authenticate 解析令牌得到登录主体，令牌无效或会话已吊销返回 ErrInvalidToken
	Authenticate(ctx context.Context, token string) (*model.Principal, error)

	// ListSessions 列出用户的会话，当前会话置顶
	ListSessions(ctx context.Context, p *model.Principal) ([]*SessionView, error)
	// RevokeSession 吊销用户自己的某个会话
	RevokeSession(ctx context.Context, p *model.Principal, sessionID string) error
	// RevokeOtherSessions 吊销除当前外的全部会话
	RevokeOtherSessions(ctx context.Context, p *model.Principal) (int, error)
	// ListOnline 管理员查看在线会话
	ListOnline(ctx context.Context, username string) ([]*SessionView, error)
	// ForceLogout 管理员强制下线任意会话
	ForceLogout(ctx context.Context, sessionID string) error
}

// AuthServiceConfig 认证服务依赖
type AuthServiceConfig struct {
	Users    UserDetailsService
	Creds    CredentialStore
	Tokens   TokenService
	Sessions SessionRegistry
	Lockout  LoginLockout
	Captcha  CaptchaService   // 为空或未启用时跳过验证码
	LoginLog LoginLogService  // 可选
	Metrics  *metrics.Metrics // 可选
	Logger   *zap.Logger
	Now      func() time.Time
}

type authService struct {
	users    UserDetailsService
	creds    CredentialStore
	tokens   TokenService
	sessions SessionRegistry
	lockout  LoginLockout
	captcha  CaptchaService
	loginLog LoginLogService
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

// NewAuthService 创建认证服务
func NewAuthService(cfg *AuthServiceConfig) AuthService {
	s := &authService{
		users:    cfg.Users,
		creds:    cfg.Creds,
		tokens:   cfg.Tokens,
		sessions: cfg.Sessions,
		lockout:  cfg.Lockout,
		captcha:  cfg.Captcha,
		loginLog: cfg.LoginLog,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
		now:      cfg.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *authService) Login(ctx context.Context, req *LoginRequest) (*LoginResult, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, ErrCredentialsRequired
	}
	client := ParseUserAgent(req.UserAgent)
	fail := func(result string, err error) (*LoginResult, error) {
		s.metrics.ObserveLogin(result)
		s.record(username, req, client, model.LoginStatusFail, err.Error())
		return nil, err
	}

	if s.captcha != nil && s.captcha.Enabled() {
		if err := s.captcha.Verify(ctx, req.CaptchaID, req.CaptchaCode); err != nil {
			if isBizError(err) {
				return fail(metrics.LoginCaptcha, err)
			}
			return nil, s.infraError("校验验证码失败", err)
		}
	}

	// 锁定期间不校验凭据
	if err := s.lockout.Check(ctx, username); err != nil {
		if errors.Is(err, ErrAccountLocked) {
			s.log.Warn("账户已锁定，拒绝登录", zap.String("username", username), zap.String("ip", req.IP))
			return fail(metrics.LoginLocked, err)
		}
		return nil, s.infraError("检查登录锁定失败", err)
	}

	details, err := s.users.LoadUserByUsername(ctx, username)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, s.infraError("加载用户失败", err)
	}

	// 用户不存在与密码错误同样计数，避免暴露用户名是否存在
	if details == nil || !s.creds.Verify(details.User.PasswordHash, req.Password) {
		n, err := s.lockout.RecordFailure(ctx, username)
		if err != nil {
			return nil, s.infraError("记录登录失败失败", err)
		}
		authErr := badCredentialsError(s.lockout.Threshold()-int(n), s.lockout.Window())
		if authErr.Remaining <= 0 {
			s.log.Warn("登录失败次数达到上限，账户锁定", zap.String("username", username), zap.String("ip", req.IP))
		}
		return fail(metrics.LoginBadCredentials, authErr)
	}

	user := details.User
	if !user.IsActive() {
		return fail(metrics.LoginDisabled, ErrAccountDisabled)
	}

	if err := s.lockout.Reset(ctx, username); err != nil {
		return nil, s.infraError("清除登录失败计数失败", err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, s.infraError("签发令牌失败", err)
	}
	expireTime, _ := s.tokens.ExpiresAt(token)

	principal := &model.Principal{
		UserID:      user.ID,
		Username:    user.Username,
		Nickname:    user.Nickname,
		DeptID:      user.DeptID,
		Roles:       details.Roles,
		Permissions: details.Permissions,
		Enabled:     true,
		IP:          req.IP,
		Browser:     client.Browser,
		OS:          client.OS,
		LoginTime:   s.now().UnixMilli(),
		ExpireTime:  expireTime,
	}
	if err := s.sessions.Put(ctx, token, principal, s.tokens.Expiration()); err != nil {
		return nil, s.infraError("写入会话失败", err)
	}
	principal.SessionID = SessionID(token)

	s.metrics.ObserveLogin(metrics.LoginSuccess)
	s.record(username, req, client, model.LoginStatusSuccess, "登录成功")
	s.log.Info("用户登录成功", zap.String("username", username), zap.String("ip", req.IP))

	return &LoginResult{Token: token, ExpireTime: expireTime, Principal: principal}, nil
}

func (s *authService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	p, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if err := s.sessions.Revoke(ctx, token); err != nil {
		return err
	}
	s.metrics.ObserveRevocation(metrics.RevokeLogout, 1)
	if s.loginLog != nil {
		s.loginLog.Record(&model.LoginLog{
			Username: p.Username,
			Status:   model.LoginStatusSuccess,
			IP:       p.IP,
			Browser:  p.Browser,
			OS:       p.OS,
			Message:  "退出成功",
		})
	}
	return nil
}

func (s *authService) Refresh(ctx context.Context, token string) (*LoginResult, error) {
	fresh, ok := s.tokens.Refresh(token)
	if !ok {
		return nil, ErrInvalidToken
	}
	p, err := s.sessions.Replace(ctx, token, fresh, s.tokens.Expiration())
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	s.metrics.ObserveRevocation(metrics.RevokeRefresh, 1)
	expireTime, _ := s.tokens.ExpiresAt(fresh)
	return &LoginResult{Token: fresh, ExpireTime: expireTime, Principal: p}, nil
}

func (s *authService) Authenticate(ctx context.Context, token string) (*model.Principal, error) {
	subject, ok := s.tokens.SubjectOf(token)
	if !ok {
		return nil, ErrInvalidToken
	}
	p, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if p.UserID != subject {
		return nil, ErrInvalidToken
	}
	return p, nil
}

func (s *authService) ListSessions(ctx context.Context, p *model.Principal) ([]*SessionView, error) {
	return s.sessions.ListSessions(ctx, p.UserID, p.SessionID)
}

func (s *authService) RevokeSession(ctx context.Context, p *model.Principal, sessionID string) error {
	target, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if target.UserID != p.UserID {
		return ErrSessionNotOwned
	}
	if err := s.sessions.RevokeByID(ctx, sessionID); err != nil {
		return err
	}
	s.metrics.ObserveRevocation(metrics.RevokeSelf, 1)
	return nil
}

func (s *authService) RevokeOtherSessions(ctx context.Context, p *model.Principal) (int, error) {
	n, err := s.sessions.RevokeAllExcept(ctx, p.UserID, p.SessionID)
	if err != nil {
		return 0, err
	}
	s.metrics.ObserveRevocation(metrics.RevokeOthers, n)
	return n, nil
}

func (s *authService) ListOnline(ctx context.Context, username string) ([]*SessionView, error) {
	return s.sessions.ListOnline(ctx, strings.TrimSpace(username))
}

func (s *authService) ForceLogout(ctx context.Context, sessionID string) error {
	if _, err := s.sessions.GetByID(ctx, sessionID); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if err := s.sessions.RevokeByID(ctx, sessionID); err != nil {
		return err
	}
	s.metrics.ObserveRevocation(metrics.RevokeForce, 1)
	return nil
}

func (s *authService) record(username string, req *LoginRequest, client ClientInfo, status int, msg string) {
	if s.loginLog == nil {
		return
	}
	s.loginLog.Record(&model.LoginLog{
		Username:  username,
		Status:    status,
		IP:        req.IP,
		Browser:   client.Browser,
		OS:        client.OS,
		Message:   msg,
		UserAgent: req.UserAgent,
		LoginTime: s.now(),
	})
}

func (s *authService) infraError(msg string, err error) error {
	s.metrics.ObserveLogin(metrics.LoginError)
	s.log.Error(msg, zap.Error(err))
	return fmt.Errorf("%s: %w", msg, err)
}

func isBizError(err error) bool {
	var b *bizError
	return errors.As(err, &b)
}
