package repository

import (
	"context"

	"github.com/pu-ac-cn/admin-auth/internal/reqctx"
	"gorm.io/gorm"
)

// DataScope 按请求上下文中的部门范围过滤
// 上下文未挂载范围时不加条件；范围为空时不返回任何数据
func DataScope(ctx context.Context, column string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		ids, ok := reqctx.DeptScope(ctx)
		if !ok {
			return db
		}
		if len(ids) == 0 {
			return db.Where("1 = 0")
		}
		return db.Where(column+" IN ?", ids)
	}
}
