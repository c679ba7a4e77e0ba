package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/admin-auth/internal/metrics"
)

// Metrics 记录请求数与耗时
// 路径使用路由模板，避免路径参数撑爆标签基数
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
