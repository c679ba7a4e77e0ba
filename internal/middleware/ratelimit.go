package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/admin-auth/internal/metrics"
	"github.com/pu-ac-cn/admin-auth/internal/service"
	"github.com/pu-ac-cn/admin-auth/pkg/response"
	"go.uber.org/zap"
)

// RateLimitOptions 限流参数
type RateLimitOptions struct {
	Count    int           // 窗口内允许的请求数
	Window   time.Duration // 固定窗口长度
	Resource string        // 限流资源名，为空时使用请求路径
	Message  string        // 拒绝提示，为空时使用默认文案
	Metrics  *metrics.Metrics
}

// RateLimit 固定窗口限流
// 计数键为 调用方标识:资源，超出后直接拒绝，不执行后续处理
func RateLimit(limiter service.RateLimiter, opts RateLimitOptions) gin.HandlerFunc {
	if opts.Count <= 0 {
		opts.Count = 10
	}
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}

	return func(c *gin.Context) {
		resource := opts.Resource
		if resource == "" {
			resource = c.Request.URL.Path
		}
		who := identity(c)

		count, err := limiter.Allow(c.Request.Context(), who+":"+resource, opts.Window)
		if err != nil {
			logger.Error("限流计数失败", zap.Error(err), zap.String("resource", resource))
			response.Error(c, response.CodeServerError)
			c.Abort()
			return
		}

		if count > int64(opts.Count) {
			opts.Metrics.ObserveGuardRejection(metrics.GuardRateLimit)
			logger.Warn("请求过于频繁",
				zap.String("identity", who),
				zap.String("resource", resource),
				zap.Int64("count", count),
			)
			if opts.Message != "" {
				response.ErrorWithMsg(c, response.CodeTooManyReq, opts.Message)
			} else {
				response.Fail(c, service.ErrRateLimited)
			}
			c.Abort()
			return
		}

		c.Next()
	}
}
