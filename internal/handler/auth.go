// Package handler HTTP 处理器
package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/admin-auth/internal/middleware"
	"github.com/pu-ac-cn/admin-auth/internal/reqctx"
	"github.com/pu-ac-cn/admin-auth/internal/service"
	"github.com/pu-ac-cn/admin-auth/pkg/response"
	"go.uber.org/zap"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	authService    service.AuthService
	captchaService service.CaptchaService
	tokenHeader    string
	tokenPrefix    string
}

// NewAuthHandler 创建认证处理器
// header 与 prefix 用于在未认证时仍能读取令牌，如退出登录
func NewAuthHandler(authSvc service.AuthService, captchaSvc service.CaptchaService, header, prefix string) *AuthHandler {
	return &AuthHandler{
		authService:    authSvc,
		captchaService: captchaSvc,
		tokenHeader:    header,
		tokenPrefix:    prefix,
	}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Code     string `json:"code"` // 验证码
	UUID     string `json:"uuid"` // 验证码标识
}

// Captcha 获取验证码
// GET /api/v1/auth/captcha
func (h *AuthHandler) Captcha(c *gin.Context) {
	if h.captchaService == nil || !h.captchaService.Enabled() {
		response.Success(c, gin.H{"enabled": false})
		return
	}

	id, image, err := h.captchaService.Generate(c.Request.Context())
	if err != nil {
		middleware.GetLogger().Error("生成验证码失败", zap.Error(err))
		response.Error(c, response.CodeServerError)
		return
	}

	response.Success(c, gin.H{
		"enabled": true,
		"uuid":    id,
		"image":   image,
	})
}

// Login 用户登录
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidRequest, "参数错误: "+err.Error())
		return
	}

	result, err := h.authService.Login(c.Request.Context(), &service.LoginRequest{
		Username:    req.Username,
		Password:    req.Password,
		CaptchaID:   req.UUID,
		CaptchaCode: req.Code,
		IP:          c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	})
	if err != nil {
		failAuth(c, err)
		return
	}

	response.Success(c, gin.H{
		"token":       result.Token,
		"expire_time": result.ExpireTime,
	})
}

// failAuth 认证错误附带锁定倒计时或剩余尝试次数
func failAuth(c *gin.Context, err error) {
	var authErr *service.AuthError
	if !errors.As(err, &authErr) {
		response.Fail(c, err)
		return
	}
	switch {
	case authErr.RetryAfter > 0:
		response.ErrorWithData(c, authErr.BizCode(), authErr.Error(), gin.H{
			"retry_after": int64((authErr.RetryAfter.Seconds()) + 0.5),
		})
	case authErr.Remaining > 0:
		response.ErrorWithData(c, authErr.BizCode(), authErr.Error(), gin.H{
			"remaining": authErr.Remaining,
		})
	default:
		response.ErrorWithMsg(c, authErr.BizCode(), authErr.Error())
	}
}

// Logout 退出登录
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	token := reqctx.Token(c.Request.Context())
	if token == "" {
		token = middleware.ExtractToken(c, h.tokenHeader, h.tokenPrefix)
	}
	// 退出总是成功，吊销失败只记录日志
	if err := h.authService.Logout(c.Request.Context(), token); err != nil {
		middleware.GetLogger().Error("退出登录时吊销会话失败", zap.Error(err))
	}
	response.SuccessWithMsg(c, "退出成功", nil)
}

// Refresh 换发令牌
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	result, err := h.authService.Refresh(c.Request.Context(), reqctx.Token(c.Request.Context()))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"token":       result.Token,
		"expire_time": result.ExpireTime,
	})
}

// Info 当前登录用户信息
// GET /api/v1/auth/info
func (h *AuthHandler) Info(c *gin.Context) {
	p, _ := middleware.CurrentPrincipal(c)
	response.Success(c, gin.H{
		"user_id":     p.UserID,
		"username":    p.Username,
		"nickname":    p.Nickname,
		"dept_id":     p.DeptID,
		"roles":       p.Roles,
		"permissions": p.Permissions,
		"login_time":  p.LoginTime,
		"expire_time": p.ExpireTime,
	})
}

// ListSessions 当前用户的全部会话，当前会话排在最前
// GET /api/v1/auth/sessions
func (h *AuthHandler) ListSessions(c *gin.Context) {
	p, _ := middleware.CurrentPrincipal(c)
	sessions, err := h.authService.ListSessions(c.Request.Context(), p)
	if err != nil {
		middleware.GetLogger().Error("查询会话列表失败", zap.Error(err), zap.String("username", p.Username))
		response.Error(c, response.CodeServerError)
		return
	}
	response.Success(c, sessions)
}

// RevokeSession 下线自己的某个会话
// DELETE /api/v1/auth/sessions/:id
func (h *AuthHandler) RevokeSession(c *gin.Context) {
	p, _ := middleware.CurrentPrincipal(c)
	if err := h.authService.RevokeSession(c.Request.Context(), p, c.Param("id")); err != nil {
		response.Fail(c, err)
		return
	}
	response.SuccessWithMsg(c, "会话已下线", nil)
}

// RevokeOtherSessions 下线除当前外的全部会话
// DELETE /api/v1/auth/sessions/other
func (h *AuthHandler) RevokeOtherSessions(c *gin.Context) {
	p, _ := middleware.CurrentPrincipal(c)
	n, err := h.authService.RevokeOtherSessions(c.Request.Context(), p)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"revoked": n})
}
