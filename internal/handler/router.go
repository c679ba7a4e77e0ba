package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/admin-auth/internal/metrics"
	"github.com/pu-ac-cn/admin-auth/internal/middleware"
	"github.com/pu-ac-cn/admin-auth/internal/model"
	"github.com/pu-ac-cn/admin-auth/internal/service"
)

// RouteDeps 注册路由所需的服务
type RouteDeps struct {
	Auth        service.AuthService
	Captcha     service.CaptchaService
	Users       service.UserService
	RBAC        service.RBACService
	Sessions    service.SessionRegistry
	Depts       service.DeptService
	RateLimiter service.RateLimiter
	Idempotency service.IdempotencyGuard
	OperLog     service.OperLogService
	Metrics     *metrics.Metrics

	TokenHeader          string
	TokenPrefix          string
	RateLimitCount       int
	RateLimitWindow      time.Duration
	RepeatSubmitInterval time.Duration
}

// RegisterRoutes 注册 /api/v1 下的认证、会话与系统管理路由
// 全局的日志、恢复、跨域、指标与认证中间件由调用方挂载
func RegisterRoutes(api *gin.RouterGroup, d *RouteDeps) {
	var evaluator service.PermissionEvaluator

	authHandler := NewAuthHandler(d.Auth, d.Captcha, d.TokenHeader, d.TokenPrefix)
	onlineHandler := NewOnlineHandler(d.Auth, d.Sessions)
	userHandler := NewUserHandler(d.Users)
	rbacHandler := NewRBACHandler(d.RBAC, d.Users)

	limit := func(resource string) gin.HandlerFunc {
		return middleware.RateLimit(d.RateLimiter, middleware.RateLimitOptions{
			Count:    d.RateLimitCount,
			Window:   d.RateLimitWindow,
			Resource: resource,
			Metrics:  d.Metrics,
		})
	}
	perm := func(code string) gin.HandlerFunc {
		return middleware.RequirePermission(evaluator, d.Metrics, code)
	}

	// 认证路由（公开）
	auth := api.Group("/auth")
	{
		auth.GET("/captcha", limit("auth:captcha"), authHandler.Captcha)
		auth.POST("/login", limit("auth:login"), authHandler.Login)
		auth.POST("/logout", authHandler.Logout)
	}

	// 需要登录的路由
	authed := api.Group("/auth", middleware.RequireLogin())
	{
		authed.POST("/refresh", authHandler.Refresh)
		authed.GET("/info", authHandler.Info)
		authed.GET("/sessions", authHandler.ListSessions)
		authed.DELETE("/sessions/other",
			middleware.RepeatSubmit(d.Idempotency, d.RepeatSubmitInterval, d.Metrics),
			authHandler.RevokeOtherSessions,
		)
		authed.DELETE("/sessions/:id", authHandler.RevokeSession)
	}

	system := api.Group("/system", middleware.RequireLogin())
	{
		system.GET("/online/list", perm(model.PermOnlineList), onlineHandler.List)
		system.DELETE("/online/:id",
			perm(model.PermOnlineForceLogout),
			middleware.OperLog(d.OperLog, "强制退出", onlineHandler),
			onlineHandler.ForceLogout,
		)
		system.GET("/user/list",
			perm(model.PermUserList),
			limit("system:user:list"),
			middleware.DataScope(d.Depts, evaluator),
			userHandler.ListUsers,
		)
		system.GET("/user/:id/authorities", perm(model.PermUserRoleAssign), rbacHandler.GetAuthorities)
		system.PUT("/user/:id/role",
			perm(model.PermUserRoleAssign),
			middleware.RepeatSubmit(d.Idempotency, d.RepeatSubmitInterval, d.Metrics),
			middleware.OperLog(d.OperLog, "分配角色", rbacHandler),
			rbacHandler.AssignRole,
		)
	}
}
