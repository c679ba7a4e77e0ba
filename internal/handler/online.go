package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/admin-auth/internal/middleware"
	"github.com/pu-ac-cn/admin-auth/internal/service"
	"github.com/pu-ac-cn/admin-auth/pkg/response"
	"go.uber.org/zap"
)

// OnlineHandler 在线用户管理
type OnlineHandler struct {
	authService service.AuthService
	sessions    service.SessionRegistry
}

// NewOnlineHandler 创建在线用户处理器
func NewOnlineHandler(authSvc service.AuthService, sessions service.SessionRegistry) *OnlineHandler {
	return &OnlineHandler{authService: authSvc, sessions: sessions}
}

// List 在线会话列表，可按用户名过滤
// GET /api/v1/system/online/list
func (h *OnlineHandler) List(c *gin.Context) {
	sessions, err := h.authService.ListOnline(c.Request.Context(), c.Query("username"))
	if err != nil {
		middleware.GetLogger().Error("查询在线用户失败", zap.Error(err))
		response.Error(c, response.CodeServerError)
		return
	}
	response.Success(c, gin.H{
		"list":  sessions,
		"total": len(sessions),
	})
}

// ForceLogout 强制下线
// DELETE /api/v1/system/online/:id
func (h *OnlineHandler) ForceLogout(c *gin.Context) {
	if err := h.authService.ForceLogout(c.Request.Context(), c.Param("id")); err != nil {
		middleware.GetLogger().Error("强制下线失败", zap.Error(err))
		response.Fail(c, err)
		return
	}
	response.SuccessWithMsg(c, "已强制下线", nil)
}

// LoadOldValue 审计用，记录被下线会话的快照
func (h *OnlineHandler) LoadOldValue(c *gin.Context) (interface{}, error) {
	p, err := h.sessions.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	return gin.H{
		"token_key":  c.Param("id"),
		"user_id":    p.UserID,
		"username":   p.Username,
		"ip":         p.IP,
		"login_time": p.LoginTime,
	}, nil
}
