package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/admin-auth/internal/middleware"
	"github.com/pu-ac-cn/admin-auth/internal/model"
	"github.com/pu-ac-cn/admin-auth/internal/repository"
	"github.com/pu-ac-cn/admin-auth/internal/service"
	"github.com/pu-ac-cn/admin-auth/pkg/response"
	"go.uber.org/zap"
)

// RBACHandler 用户角色处理器
type RBACHandler struct {
	rbacService service.RBACService
	userService service.UserService
	evaluator   service.PermissionEvaluator
}

// NewRBACHandler 创建用户角色处理器
func NewRBACHandler(rbacSvc service.RBACService, userSvc service.UserService) *RBACHandler {
	return &RBACHandler{rbacService: rbacSvc, userService: userSvc}
}

// AssignRoleRequest 分配角色请求
type AssignRoleRequest struct {
	RoleCode string `json:"role_code" binding:"required"`
}

// GetAuthorities 查询用户的角色与权限
// GET /api/v1/system/user/:id/authorities
func (h *RBACHandler) GetAuthorities(c *gin.Context) {
	v, err := h.LoadOldValue(c)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, v)
}

// AssignRole 为用户分配角色
// PUT /api/v1/system/user/:id/role
// 已登录的会话持有旧的权限快照，重新登录后生效
func (h *RBACHandler) AssignRole(c *gin.Context) {
	var req AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidRequest, "参数错误: "+err.Error())
		return
	}

	// 只有超级管理员能授予超级管理员角色
	if req.RoleCode == model.RoleSuperAdmin {
		caller, _ := middleware.CurrentPrincipal(c)
		if !h.evaluator.IsSuperAdmin(caller) {
			response.Fail(c, service.ErrPermissionDenied)
			return
		}
	}

	user, err := h.loadUser(c)
	if err != nil {
		response.Fail(c, err)
		return
	}

	if err := h.rbacService.AssignRoleByCode(c.Request.Context(), user.ID, req.RoleCode); err != nil {
		if errors.Is(err, service.ErrRoleNotFound) {
			response.ErrorWithMsg(c, response.CodeInvalidRequest, err.Error())
			return
		}
		middleware.GetLogger().Error("分配角色失败", zap.Error(err), zap.String("user_id", user.ID))
		response.Error(c, response.CodeServerError)
		return
	}
	response.SuccessWithMsg(c, "分配成功，重新登录后生效", nil)
}

// LoadOldValue 审计用，记录分配前的角色与权限
func (h *RBACHandler) LoadOldValue(c *gin.Context) (interface{}, error) {
	user, err := h.loadUser(c)
	if err != nil {
		return nil, err
	}
	roles, perms, err := h.rbacService.GetUserAuthorities(c.Request.Context(), user.ID)
	if err != nil {
		return nil, err
	}
	return gin.H{
		"user_id":     user.ID,
		"username":    user.Username,
		"roles":       roles,
		"permissions": perms,
	}, nil
}

func (h *RBACHandler) loadUser(c *gin.Context) (*model.User, error) {
	user, err := h.userService.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, service.ErrUserNotExist
	}
	return user, err
}
