package service

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pu-ac-cn/admin-auth/internal/model"
	"github.com/pu-ac-cn/admin-auth/internal/repository"
	"golang.org/x/sync/singleflight"
)

// ExpandScope 计算部门及其全部下级部门
// 结果以 root 开头且不含重复；遇到环也能终止
func ExpandScope(root string, units []model.DeptNode) []string {
	children := make(map[string][]string, len(units))
	for _, u := range units {
		if u.ID == "" || u.ID == u.ParentID {
			continue
		}
		children[u.ParentID] = append(children[u.ParentID], u.ID)
	}

	visited := map[string]struct{}{root: {}}
	out := []string{root}
	for i := 0; i < len(out); i++ {
		for _, child := range children[out[i]] {
			if _, ok := visited[child]; ok {
				continue
			}
			visited[child] = struct{}{}
			out = append(out, child)
		}
	}
	return out
}

// DeptService 部门服务
type DeptService interface {
	// ChildDeptIDs 部门及其全部下级部门 ID，加载失败返回 ErrScopeResolution
	ChildDeptIDs(ctx context.Context, root string) ([]string, error)
	// Invalidate 部门变更后清除缓存的部门树
	Invalidate()
}

// DeptServiceConfig 部门服务配置
type DeptServiceConfig struct {
	CacheTTL    time.Duration // 部门树快照缓存时间，默认 1 分钟
	LoadTimeout time.Duration // 加载部门树的超时时间，默认 5 秒
}

const deptSnapshotKey = "all"

type deptService struct {
	repo        repository.DeptRepository
	cache       *expirable.LRU[string, []model.DeptNode]
	group       singleflight.Group
	loadTimeout time.Duration
}

// NewDeptService 创建部门服务
func NewDeptService(repo repository.DeptRepository, cfg *DeptServiceConfig) DeptService {
	ttl := time.Minute
	loadTimeout := 5 * time.Second
	if cfg != nil {
		if cfg.CacheTTL > 0 {
			ttl = cfg.CacheTTL
		}
		if cfg.LoadTimeout > 0 {
			loadTimeout = cfg.LoadTimeout
		}
	}
	return &deptService{
		repo:        repo,
		cache:       expirable.NewLRU[string, []model.DeptNode](1, nil, ttl),
		loadTimeout: loadTimeout,
	}
}

func (s *deptService) ChildDeptIDs(ctx context.Context, root string) ([]string, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: 部门 ID 为空", ErrScopeResolution)
	}
	nodes, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return ExpandScope(root, nodes), nil
}

// snapshot 读取部门树快照，并发加载合并为一次查询
func (s *deptService) snapshot(ctx context.Context) ([]model.DeptNode, error) {
	if nodes, ok := s.cache.Get(deptSnapshotKey); ok {
		return nodes, nil
	}
	v, err, _ := s.group.Do(deptSnapshotKey, func() (interface{}, error) {
		// 同一次加载由多个请求共享，不随发起者的请求取消
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()
		nodes, err := s.repo.ListAll(loadCtx)
		if err != nil {
			return nil, err
		}
		s.cache.Add(deptSnapshotKey, nodes)
		return nodes, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScopeResolution, err)
	}
	return v.([]model.DeptNode), nil
}

func (s *deptService) Invalidate() {
	s.cache.Purge()
}
