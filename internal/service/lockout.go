package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginLockout 登录失败计数与锁定
type LoginLockout interface {
	// Check 计数达到阈值时返回带剩余锁定时间的 AuthError
	Check(ctx context.Context, username string) error
	// RecordFailure 记录一次失败，返回当前计数；首次失败开启锁定窗口
	RecordFailure(ctx context.Context, username string) (int64, error)
	// Reset 登录成功后清除计数
	Reset(ctx context.Context, username string) error
	// Threshold 锁定阈值
	Threshold() int
	// Window 锁定窗口
	Window() time.Duration
}

// LoginLockoutConfig 锁定配置
type LoginLockoutConfig struct {
	KeyPrefix string
	Threshold int           // 默认 5
	Window    time.Duration // 默认 30 分钟
}

type loginLockout struct {
	redis     redis.UniversalClient
	prefix    string
	threshold int
	window    time.Duration
}

// NewLoginLockout 创建登录锁定器
func NewLoginLockout(client redis.UniversalClient, cfg *LoginLockoutConfig) LoginLockout {
	if cfg == nil {
		cfg = &LoginLockoutConfig{}
	}
	l := &loginLockout{
		redis:     client,
		prefix:    cfg.KeyPrefix,
		threshold: cfg.Threshold,
		window:    cfg.Window,
	}
	if l.prefix == "" {
		l.prefix = "admin:"
	}
	l.prefix += "login_fail:"
	if l.threshold <= 0 {
		l.threshold = 5
	}
	if l.window <= 0 {
		l.window = 30 * time.Minute
	}
	return l
}

// incrWithWindow 自增计数，仅在本次自增创建键时设置过期时间
// 同一脚本也用于限流窗口
var incrWithWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// key 用户名不区分大小写，大小写变体共用同一计数
func (l *loginLockout) key(username string) string {
	return l.prefix + strings.ToLower(strings.TrimSpace(username))
}

func (l *loginLockout) Threshold() int { return l.threshold }

func (l *loginLockout) Window() time.Duration { return l.window }

func (l *loginLockout) Check(ctx context.Context, username string) error {
	key := l.key(username)
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("读取登录失败计数失败: %w", err)
	}
	if count < int64(l.threshold) {
		return nil
	}

	ttl, err := l.redis.PTTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("读取锁定剩余时间失败: %w", err)
	}
	if ttl == -2 {
		// 检查之间恰好过期
		return nil
	}
	if ttl < 0 {
		// 计数键缺少过期时间，补上窗口避免永久锁定
		_ = l.redis.PExpire(ctx, key, l.window).Err()
		ttl = l.window
	}
	return lockedError(ttl)
}

func (l *loginLockout) RecordFailure(ctx context.Context, username string) (int64, error) {
	n, err := incrWithWindow.Run(ctx, l.redis, []string{l.key(username)}, l.window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("记录登录失败计数失败: %w", err)
	}
	return n, nil
}

func (l *loginLockout) Reset(ctx context.Context, username string) error {
	if err := l.redis.Del(ctx, l.key(username)).Err(); err != nil {
		return fmt.Errorf("清除登录失败计数失败: %w", err)
	}
	return nil
}
