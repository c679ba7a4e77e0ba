package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/admin-auth/internal/model"
	"github.com/pu-ac-cn/admin-auth/internal/reqctx"
	"github.com/pu-ac-cn/admin-auth/internal/service"
	"github.com/pu-ac-cn/admin-auth/pkg/response"
	"go.uber.org/zap"
)

// Authenticate 可选认证中间件
// 令牌有效时把登录主体与令牌挂到请求上下文；缺失、无效或会话已吊销时按匿名继续，
// 由 RequireLogin / RequirePermission 决定是否拒绝
func Authenticate(authService service.AuthService, header, prefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c, header, prefix)
		if token == "" {
			c.Next()
			return
		}

		p, err := authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, service.ErrInvalidToken) {
				logger.Error("解析登录会话失败，按匿名处理", zap.Error(err), zap.String("ip", c.ClientIP()))
			}
			c.Next()
			return
		}

		ctx := reqctx.WithPrincipal(c.Request.Context(), p)
		ctx = reqctx.WithToken(ctx, token)
		c.Request = c.Request.WithContext(ctx)
		c.Set("user_id", p.UserID)
		c.Set("username", p.Username)

		c.Next()
	}
}

// ExtractToken 从请求头读取令牌
// prefix 非空时要求 "<prefix> <token>" 格式，前缀不区分大小写
func ExtractToken(c *gin.Context, header, prefix string) string {
	raw := strings.TrimSpace(c.GetHeader(header))
	if raw == "" {
		return ""
	}
	if prefix == "" {
		return raw
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], prefix) {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireLogin 要求已登录
func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentPrincipal(c); !ok {
			response.ErrorWithMsg(c, response.CodeInvalidToken, "未登录或登录已过期")
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentPrincipal 当前请求的登录主体
func CurrentPrincipal(c *gin.Context) (*model.Principal, bool) {
	return reqctx.Principal(c.Request.Context())
}

// identity 防护键中的调用方标识，匿名请求按客户端 IP 区分
func identity(c *gin.Context) string {
	if p, ok := CurrentPrincipal(c); ok {
		return p.Username
	}
	return "anonymous:" + c.ClientIP()
}
