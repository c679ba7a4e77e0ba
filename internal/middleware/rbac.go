// Package middleware 中间件
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/admin-auth/internal/metrics"
	"github.com/pu-ac-cn/admin-auth/internal/service"
	"github.com/pu-ac-cn/admin-auth/pkg/response"
	"go.uber.org/zap"
)

// RequirePermission 权限检查中间件
// 未登录返回令牌无效，超级管理员与通配权限直接放行
func RequirePermission(evaluator service.PermissionEvaluator, m *metrics.Metrics, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok {
			response.Error(c, response.CodeInvalidToken)
			c.Abort()
			return
		}

		if !evaluator.HasPermission(p, permission) {
			m.ObserveGuardRejection(metrics.GuardPermission)
			logger.Warn("权限不足",
				zap.String("username", p.Username),
				zap.String("permission", permission),
				zap.String("path", c.Request.URL.Path),
			)
			response.Fail(c, service.ErrPermissionDenied)
			c.Abort()
			return
		}

		c.Next()
	}
}
