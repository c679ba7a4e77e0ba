package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/admin-auth/internal/metrics"
	"github.com/pu-ac-cn/admin-auth/internal/service"
	"github.com/pu-ac-cn/admin-auth/pkg/response"
	"go.uber.org/zap"
)

// RepeatSubmit 防重复提交
// 同一调用方在 interval 内对同一地址只放行一次；处理失败或 panic 时释放标记，允许立即重试
func RepeatSubmit(guard service.IdempotencyGuard, interval time.Duration, m *metrics.Metrics) gin.HandlerFunc {
	if interval <= 0 {
		interval = 3 * time.Second
	}

	return func(c *gin.Context) {
		who := identity(c)
		key := who + ":" + c.Request.Method + ":" + c.Request.URL.Path

		claim, ok, err := guard.Claim(c.Request.Context(), key, interval)
		if err != nil {
			logger.Error("防重复提交标记失败", zap.Error(err), zap.String("path", c.Request.URL.Path))
			response.Error(c, response.CodeServerError)
			c.Abort()
			return
		}
		if !ok {
			m.ObserveGuardRejection(metrics.GuardRepeatSubmit)
			logger.Warn("重复提交", zap.String("identity", who), zap.String("path", c.Request.URL.Path))
			response.Fail(c, service.ErrDuplicateSubmit)
			c.Abort()
			return
		}

		release := func() {
			if err := claim.Release(c.Request.Context()); err != nil {
				logger.Warn("释放防重复提交标记失败", zap.Error(err), zap.String("key", claim.Key()))
			}
		}

		defer func() {
			if r := recover(); r != nil {
				release()
				panic(r)
			}
		}()

		c.Next()

		if len(c.Errors) > 0 || c.Writer.Status() >= http.StatusBadRequest {
			release()
		}
	}
}
