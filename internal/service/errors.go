package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/pu-ac-cn/admin-auth/pkg/response"
)

// bizError 带业务码的哨兵错误
type bizError struct {
	code int
	msg  string
}

func (e *bizError) Error() string { return e.msg }

// BizCode 业务错误码
func (e *bizError) BizCode() int { return e.code }

func newBizError(code int, msg string) error {
	return &bizError{code: code, msg: msg}
}

// 认证与防护相关错误，可用 errors.Is 判断类别
var (
	ErrCredentialsRequired = newBizError(response.CodeMissingParam, "用户名和密码不能为空")
	ErrInvalidCredentials  = newBizError(response.CodeInvalidCredentials, "用户名或密码错误")
	ErrAccountLocked       = newBizError(response.CodeAccountLocked, "账户已锁定，请稍后重试")
	ErrAccountDisabled     = newBizError(response.CodeAccountDisabled, "账户已停用")
	ErrCaptchaRequired     = newBizError(response.CodeMissingParam, "验证码不能为空")
	ErrCaptchaExpired      = newBizError(response.CodeCaptchaExpired, "验证码已过期")
	ErrCaptchaMismatch     = newBizError(response.CodeInvalidCode, "验证码错误")
	ErrInvalidToken        = newBizError(response.CodeInvalidToken, "令牌无效或已过期")
	ErrSessionNotFound     = newBizError(response.CodeSessionNotFound, "会话不存在")
	ErrSessionNotOwned     = newBizError(response.CodeSessionNotOwned, "无权操作")
	ErrPermissionDenied    = newBizError(response.CodeForbidden, "没有权限执行此操作")
	ErrRateLimited         = newBizError(response.CodeTooManyReq, "请求过于频繁，请稍后再试")
	ErrDuplicateSubmit     = newBizError(response.CodeDuplicateSubmit, "请勿重复提交")
	ErrUserNotExist        = newBizError(response.CodeUserNotFound, "用户不存在")

	// ErrScopeResolution 仅影响数据范围计算，不直接返回给调用方
	ErrScopeResolution = errors.New("数据范围解析失败")
)

// AuthError 携带附加信息的认证错误
// Kind 为上面的哨兵错误之一，Msg 覆盖默认提示
type AuthError struct {
	Kind       error
	Msg        string
	RetryAfter time.Duration // 锁定剩余时间，仅 ErrAccountLocked 有值
	Remaining  int           // 剩余可尝试次数，仅 ErrInvalidCredentials 有值
}

func (e *AuthError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Kind.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Kind
}

// BizCode 业务错误码
func (e *AuthError) BizCode() int {
	var coder response.Coder
	if errors.As(e.Kind, &coder) {
		return coder.BizCode()
	}
	return response.CodeServerError
}

func lockedError(retryAfter time.Duration) *AuthError {
	minutes := int((retryAfter + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return &AuthError{
		Kind:       ErrAccountLocked,
		Msg:        fmt.Sprintf("密码错误次数过多，账号已被锁定，请%d分钟后重试", minutes),
		RetryAfter: retryAfter,
	}
}

func badCredentialsError(remaining int, window time.Duration) *AuthError {
	if remaining <= 0 {
		return &AuthError{
			Kind: ErrInvalidCredentials,
			Msg:  fmt.Sprintf("密码错误次数过多，账号已被锁定%d分钟", int(window/time.Minute)),
		}
	}
	return &AuthError{
		Kind:      ErrInvalidCredentials,
		Msg:       fmt.Sprintf("用户名或密码错误，还可尝试%d次", remaining),
		Remaining: remaining,
	}
}
