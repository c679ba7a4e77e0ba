package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/admin-auth/internal/reqctx"
	"github.com/pu-ac-cn/admin-auth/internal/service"
	"go.uber.org/zap"
)

// DataScope 数据范围注入
// 非超级管理员挂载本部门及全部下级部门；请求结束时恢复原请求，panic 时同样恢复
func DataScope(deptService service.DeptService, evaluator service.PermissionEvaluator) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok || evaluator.IsSuperAdmin(p) {
			c.Next()
			return
		}

		original := c.Request
		defer func() { c.Request = original }()

		var scope []string
		if p.DeptID != "" {
			ids, err := deptService.ChildDeptIDs(original.Context(), p.DeptID)
			if err != nil {
				// 部门树异常时退化为仅本部门
				logger.Error("计算数据范围失败", zap.Error(err), zap.String("dept_id", p.DeptID))
				ids = []string{p.DeptID}
			}
			scope = ids
		}
		// 未归属部门的用户挂载空范围，查询不到任何数据
		c.Request = original.WithContext(reqctx.WithDeptScope(original.Context(), scope))

		c.Next()
	}
}
