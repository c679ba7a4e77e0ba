// Package redis Redis 连接管理
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pu-ac-cn/admin-auth/internal/config"
	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// NewClient 按配置创建 Redis 客户端
// 所有命令都带 I/O 超时，不会无限期阻塞
func NewClient(cfg *config.RedisConfig) *redis.Client {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	return redis.NewClient(opts)
}

// Init 初始化 Redis 连接
func Init(cfg *config.RedisConfig) error {
	client = NewClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("连接 Redis 失败: %w", err)
	}

	return nil
}

// GetClient 获取 Redis 客户端实例
func GetClient() *redis.Client {
	return client
}

// Ping 检查 Redis 连接
func Ping(ctx context.Context) error {
	if client == nil {
		return errors.New("Redis 未初始化")
	}
	return client.Ping(ctx).Err()
}

// Close 关闭 Redis 连接
func Close() error {
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}
