package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/admin-auth/internal/middleware"
	"github.com/pu-ac-cn/admin-auth/internal/repository"
	"github.com/pu-ac-cn/admin-auth/internal/service"
	"github.com/pu-ac-cn/admin-auth/pkg/response"
	"go.uber.org/zap"
)

// UserHandler 用户查询处理器
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建用户处理器
func NewUserHandler(userSvc service.UserService) *UserHandler {
	return &UserHandler{userService: userSvc}
}

// ListUsers 获取用户列表，结果受请求上下文中的数据范围限制
// GET /api/v1/system/user/list
func (h *UserHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := &repository.UserFilter{
		Username: c.Query("username"),
		Status:   c.Query("status"),
		DeptID:   c.Query("dept_id"),
	}
	pagination := &repository.Pagination{
		Page:     page,
		PageSize: pageSize,
	}

	users, total, err := h.userService.List(c.Request.Context(), filter, pagination)
	if err != nil {
		middleware.GetLogger().Error("查询用户列表失败", zap.Error(err))
		response.Error(c, response.CodeServerError)
		return
	}

	// 转换为响应格式（隐藏敏感字段）
	list := make([]gin.H, len(users))
	for i, user := range users {
		list[i] = gin.H{
			"id":         user.ID,
			"username":   user.Username,
			"nickname":   user.Nickname,
			"email":      user.Email,
			"phone":      user.Phone,
			"dept_id":    user.DeptID,
			"status":     user.Status,
			"created_at": user.CreatedAt,
		}
	}

	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      pagination.Page,
		"page_size": pagination.PageSize,
	})
}
