package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SessionJanitor 定期清理用户会话索引中的失效成员
// 会话列表本身会自愈，这里只做卫生清理
type SessionJanitor struct {
	registry SessionRegistry
	cron     *cron.Cron
	spec     string
	timeout  time.Duration
	log      *zap.Logger
}

// NewSessionJanitor 创建会话清理任务，spec 为 cron 表达式，默认每 30 分钟
func NewSessionJanitor(registry SessionRegistry, spec string, log *zap.Logger) (*SessionJanitor, error) {
	if spec == "" {
		spec = "@every 30m"
	}
	if log == nil {
		log = zap.NewNop()
	}
	j := &SessionJanitor{
		registry: registry,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		spec:     spec,
		timeout:  time.Minute,
		log:      log,
	}
	if _, err := j.cron.AddFunc(spec, j.RunOnce); err != nil {
		return nil, fmt.Errorf("会话清理任务表达式无效: %w", err)
	}
	return j, nil
}

// RunOnce 执行一次清理
func (j *SessionJanitor) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	n, err := j.registry.SweepIndexes(ctx)
	if err != nil {
		j.log.Error("清理会话索引失败", zap.Error(err))
		return
	}
	j.log.Info("清理会话索引完成",
		zap.Int("pruned", n),
		zap.Duration("duration", time.Since(start)),
	)
}

// Start 启动定时任务
func (j *SessionJanitor) Start() {
	j.cron.Start()
	j.log.Info("会话清理任务已启动", zap.String("spec", j.spec))
}

// Stop 停止定时任务并等待正在执行的清理结束
func (j *SessionJanitor) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
