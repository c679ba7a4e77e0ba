package service

import (
	"context"
	"sync"
	"time"

	"github.com/pu-ac-cn/admin-auth/internal/model"
	"github.com/pu-ac-cn/admin-auth/internal/repository"
	"go.uber.org/zap"
)

// LogWriterConfig 异步日志写入配置
type LogWriterConfig struct {
	QueueSize     int           // 队列长度，默认 1024
	BatchSize     int           // 单次批量写入条数，默认 100
	FlushInterval time.Duration // 定时刷新间隔，默认 1 秒
	Logger        *zap.Logger
}

// batchWriter 缓冲队列 + 批量落库，启动后由单个协程消费
// 队列满时丢弃并告警，不阻塞请求
type batchWriter[T any] struct {
	name     string
	queue    chan T
	flush    func(ctx context.Context, items []T) error
	size     int
	interval time.Duration
	log      *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	finished  chan struct{}
}

func newBatchWriter[T any](name string, cfg *LogWriterConfig, flush func(ctx context.Context, items []T) error) *batchWriter[T] {
	if cfg == nil {
		cfg = &LogWriterConfig{}
	}
	w := &batchWriter[T]{
		name:     name,
		flush:    flush,
		size:     cfg.BatchSize,
		interval: cfg.FlushInterval,
		log:      cfg.Logger,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	w.queue = make(chan T, queueSize)
	if w.size <= 0 {
		w.size = 100
	}
	if w.interval <= 0 {
		w.interval = time.Second
	}
	if w.log == nil {
		w.log = zap.NewNop()
	}
	return w
}

// enqueue 非阻塞入队，已停止或队列满时返回 false
func (w *batchWriter[T]) enqueue(item T) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.queue <- item:
		return true
	default:
		w.log.Warn("日志队列已满，丢弃记录", zap.String("writer", w.name))
		return false
	}
}

// Start 启动消费协程，重复调用无效
func (w *batchWriter[T]) Start() {
	w.startOnce.Do(func() {
		go w.run()
	})
}

// Stop 停止接收并写完队列中剩余记录
func (w *batchWriter[T]) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	// 未启动时就地清空
	w.startOnce.Do(func() {
		go w.run()
	})
	select {
	case <-w.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *batchWriter[T]) run() {
	defer close(w.finished)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	batch := make([]T, 0, w.size)
	write := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := w.flush(ctx, batch); err != nil {
			w.log.Error("批量写入日志失败", zap.String("writer", w.name), zap.Int("count", len(batch)), zap.Error(err))
		}
		batch = make([]T, 0, w.size)
	}

	for {
		select {
		case item := <-w.queue:
			batch = append(batch, item)
			if len(batch) >= w.size {
				write()
			}
		case <-ticker.C:
			write()
		case <-w.done:
			for {
				select {
				case item := <-w.queue:
					batch = append(batch, item)
					if len(batch) >= w.size {
						write()
					}
				default:
					write()
					return
				}
			}
		}
	}
}

// LoginLogService 登录日志异步记录
type LoginLogService interface {
	Record(entry *model.LoginLog)
	Start()
	Stop(ctx context.Context) error
}

type loginLogService struct {
	*batchWriter[*model.LoginLog]
}

// NewLoginLogService 创建登录日志服务
func NewLoginLogService(repo repository.LoginLogRepository, cfg *LogWriterConfig) LoginLogService {
	return &loginLogService{newBatchWriter("login_log", cfg, repo.BatchCreate)}
}

// Record 记录一次登录尝试
func (s *loginLogService) Record(entry *model.LoginLog) {
	if entry == nil {
		return
	}
	if entry.LoginTime.IsZero() {
		entry.LoginTime = time.Now()
	}
	entry.UserAgent = truncate(entry.UserAgent, 500)
	entry.Message = truncate(entry.Message, 255)
	s.enqueue(entry)
}

// OperLogService 操作日志异步记录
type OperLogService interface {
	Record(entry *model.OperLog)
	Start()
	Stop(ctx context.Context) error
}

type operLogService struct {
	*batchWriter[*model.OperLog]
}

// NewOperLogService 创建操作日志服务
func NewOperLogService(repo repository.OperLogRepository, cfg *LogWriterConfig) OperLogService {
	return &operLogService{newBatchWriter("oper_log", cfg, repo.BatchCreate)}
}

// Record 记录一次操作
func (s *operLogService) Record(entry *model.OperLog) {
	if entry == nil {
		return
	}
	if entry.OperTime.IsZero() {
		entry.OperTime = time.Now()
	}
	entry.Params = truncate(entry.Params, 2000)
	entry.OldValue = truncate(entry.OldValue, 2000)
	entry.Result = truncate(entry.Result, 2000)
	entry.ErrorMsg = truncate(entry.ErrorMsg, 2000)
	s.enqueue(entry)
}

// truncate 按字符截断
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
