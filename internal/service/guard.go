package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter 固定窗口限流器
type RateLimiter interface {
	// Allow 原子自增窗口计数并返回当前计数，由调用方与上限比较
	// 被拒绝的请求同样计入窗口
	Allow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// IdempotencyGuard 防重复提交
type IdempotencyGuard interface {
	// Claim 键不存在时占用，返回 false 表示已有相同请求在处理或刚完成
	Claim(ctx context.Context, key string, ttl time.Duration) (*Claim, bool, error)
}

// GuardConfig 防护组件配置
type GuardConfig struct {
	KeyPrefix string
}

// Claim 一次成功的占用，只有持有者能释放
type Claim struct {
	redis redis.UniversalClient
	key   string
	owner string
}

// Key 占用的 Redis 键
func (c *Claim) Key() string { return c.key }

// releaseScript 仅当值仍为本次持有者时删除
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Release 提前释放占用，业务失败时调用以免客户端重试被拦截
// 请求已取消时仍会执行
func (c *Claim) Release(ctx context.Context) error {
	if c == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	if err := releaseScript.Run(ctx, c.redis, []string{c.key}, c.owner).Err(); err != nil {
		return fmt.Errorf("释放防重复提交标记失败: %w", err)
	}
	return nil
}

type rateLimiter struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRateLimiter 创建限流器
func NewRateLimiter(client redis.UniversalClient, cfg *GuardConfig) RateLimiter {
	return &rateLimiter{redis: client, prefix: guardPrefix(cfg) + "rate_limit:"}
}

func (r *rateLimiter) Allow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if window < time.Millisecond {
		return 0, fmt.Errorf("限流窗口无效: %s", window)
	}
	n, err := incrWithWindow.Run(ctx, r.redis, []string{r.prefix + key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("限流计数失败: %w", err)
	}
	return n, nil
}

type idempotencyGuard struct {
	redis  redis.UniversalClient
	prefix string
}

// NewIdempotencyGuard 创建防重复提交守卫
func NewIdempotencyGuard(client redis.UniversalClient, cfg *GuardConfig) IdempotencyGuard {
	return &idempotencyGuard{redis: client, prefix: guardPrefix(cfg) + "repeat_submit:"}
}

func (g *idempotencyGuard) Claim(ctx context.Context, key string, ttl time.Duration) (*Claim, bool, error) {
	if ttl < time.Millisecond {
		return nil, false, fmt.Errorf("防重复提交间隔无效: %s", ttl)
	}
	full := g.prefix + key
	owner := uuid.New().String()
	ok, err := g.redis.SetNX(ctx, full, owner, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("防重复提交占用失败: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Claim{redis: g.redis, key: full, owner: owner}, true, nil
}

func guardPrefix(cfg *GuardConfig) string {
	if cfg == nil || cfg.KeyPrefix == "" {
		return "admin:"
	}
	return cfg.KeyPrefix
}
