// Package reqctx 请求级上下文
// 登录主体、当前令牌与数据范围都挂在 context.Context 上，随请求传递，请求结束即失效
package reqctx

import (
	"context"

	"github.com/pu-ac-cn/admin-auth/internal/model"
)

type principalKey struct{}

type tokenKey struct{}

type deptScopeKey struct{}

// WithPrincipal 挂载登录主体
func WithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// Principal 获取登录主体，匿名请求返回 nil, false
func Principal(ctx context.Context) (*model.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*model.Principal)
	return p, ok && p != nil
}

// WithToken 挂载当前请求携带的令牌
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// Token 获取当前请求携带的令牌
func Token(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}

// WithDeptScope 挂载数据范围（部门 ID 闭包）
// 传入切片会被复制，调用方后续修改不影响已挂载的值
func WithDeptScope(ctx context.Context, deptIDs []string) context.Context {
	cp := make([]string, len(deptIDs))
	copy(cp, deptIDs)
	return context.WithValue(ctx, deptScopeKey{}, cp)
}

// DeptScope 获取数据范围；未挂载表示不受限
// 返回值为副本
func DeptScope(ctx context.Context) ([]string, bool) {
	ids, ok := ctx.Value(deptScopeKey{}).([]string)
	if !ok {
		return nil, false
	}
	cp := make([]string, len(ids))
	copy(cp, ids)
	return cp, true
}
