package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/admin-auth/internal/config"
	"github.com/pu-ac-cn/admin-auth/internal/database"
	"github.com/pu-ac-cn/admin-auth/internal/handler"
	"github.com/pu-ac-cn/admin-auth/internal/metrics"
	"github.com/pu-ac-cn/admin-auth/internal/middleware"
	"github.com/pu-ac-cn/admin-auth/internal/redis"
	"github.com/pu-ac-cn/admin-auth/internal/repository"
	"github.com/pu-ac-cn/admin-auth/internal/service"
	"github.com/pu-ac-cn/admin-auth/pkg/response"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径")
	flag.Parse()

	// 加载配置
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("配置无效: %v", err)
	}
	if err := middleware.SetLevel(cfg.Log.Level); err != nil {
		log.Fatalf("日志级别无效: %v", err)
	}
	logger := middleware.GetLogger()
	defer func() { _ = logger.Sync() }()

	// 初始化数据库连接
	if err := database.Init(&cfg.Database, logger); err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	defer database.Close()
	logger.Info("数据库连接成功", zap.String("driver", cfg.Database.Driver))

	// 初始化 Redis 连接
	if err := redis.Init(&cfg.Redis); err != nil {
		logger.Fatal("初始化 Redis 失败", zap.Error(err))
	}
	defer redis.Close()
	logger.Info("Redis 连接成功", zap.String("addr", cfg.Redis.Addr))

	db := database.GetDB()
	rdb := redis.GetClient()
	sec := cfg.Security
	m := metrics.NewMetrics(nil)

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	permRepo := repository.NewPermissionRepository(db)
	userRoleRepo := repository.NewUserRoleRepository(db)
	deptRepo := repository.NewDeptRepository(db)

	// 异步日志
	writerCfg := &service.LogWriterConfig{QueueSize: sec.LogQueueSize, Logger: logger}
	loginLog := service.NewLoginLogService(repository.NewLoginLogRepository(db), writerCfg)
	operLog := service.NewOperLogService(repository.NewOperLogRepository(db), writerCfg)
	loginLog.Start()
	operLog.Start()

	// 初始化 Service
	creds := service.NewCredentialStore(0)
	rbacService := service.NewRBACService(roleRepo, permRepo, userRoleRepo)
	userService := service.NewUserService(userRepo, rbacService, creds)
	tokenService := service.NewTokenService(&service.TokenServiceConfig{
		Secret:     []byte(cfg.JWT.Secret),
		Issuer:     cfg.JWT.Issuer,
		Expiration: cfg.JWT.Expiration,
	})
	sessions := service.NewSessionRegistry(rdb, &service.SessionRegistryConfig{KeyPrefix: sec.KeyPrefix})
	captcha := service.NewCaptchaService(rdb, &service.CaptchaConfig{
		Enabled:   sec.CaptchaEnabled,
		KeyPrefix: sec.KeyPrefix,
		Expire:    sec.CaptchaExpire,
		Length:    sec.CaptchaLength,
		Width:     sec.CaptchaWidth,
		Height:    sec.CaptchaHeight,
	})
	authService := service.NewAuthService(&service.AuthServiceConfig{
		Users:    userService,
		Creds:    creds,
		Tokens:   tokenService,
		Sessions: sessions,
		Lockout: service.NewLoginLockout(rdb, &service.LoginLockoutConfig{
			KeyPrefix: sec.KeyPrefix,
			Threshold: sec.LockoutThreshold,
			Window:    sec.LockoutWindow,
		}),
		Captcha:  captcha,
		LoginLog: loginLog,
		Metrics:  m,
		Logger:   logger,
	})
	guardCfg := &service.GuardConfig{KeyPrefix: sec.KeyPrefix}

	// 会话索引清理
	janitor, err := service.NewSessionJanitor(sessions, sec.SessionSweepSpec, logger)
	if err != nil {
		logger.Fatal("创建会话清理任务失败", zap.Error(err))
	}
	janitor.Start()

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Fatal("可信代理配置无效", zap.Error(err))
	}

	// 全局中间件
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSOrigins...))
	router.Use(middleware.Metrics(m))
	router.Use(middleware.Authenticate(authService, cfg.JWT.Header, cfg.JWT.Prefix))

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		dbStatus := "ok"
		if err := database.Ping(); err != nil {
			dbStatus = "error"
		}
		redisStatus := "ok"
		if err := redis.Ping(c.Request.Context()); err != nil {
			redisStatus = "error"
		}

		data := gin.H{
			"status":   "ok",
			"time":     time.Now().Format(time.RFC3339),
			"database": dbStatus,
			"redis":    redisStatus,
		}
		if dbStatus != "ok" || redisStatus != "ok" {
			data["status"] = "degraded"
			response.ErrorWithData(c, response.CodeUnavailable, response.Message(response.CodeUnavailable), data)
			return
		}
		response.Success(c, data)
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	// API 路由组
	api := router.Group("/api/v1")
	api.GET("/ping", func(c *gin.Context) {
		response.Success(c, "pong")
	})
	handler.RegisterRoutes(api, &handler.RouteDeps{
		Auth:                 authService,
		Captcha:              captcha,
		Users:                userService,
		RBAC:                 rbacService,
		Sessions:             sessions,
		Depts:                service.NewDeptService(deptRepo, &service.DeptServiceConfig{CacheTTL: sec.DeptCacheTTL}),
		RateLimiter:          service.NewRateLimiter(rdb, guardCfg),
		Idempotency:          service.NewIdempotencyGuard(rdb, guardCfg),
		OperLog:              operLog,
		Metrics:              m,
		TokenHeader:          cfg.JWT.Header,
		TokenPrefix:          cfg.JWT.Prefix,
		RateLimitCount:       sec.RateLimitCount,
		RateLimitWindow:      sec.RateLimitWindow,
		RepeatSubmitInterval: sec.RepeatSubmitInterval,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("服务启动", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("服务启动失败", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务...")

	// 优雅关闭：先停止接收请求，再停后台任务并清空日志队列
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务关闭失败", zap.Error(err))
	}
	if err := janitor.Stop(ctx); err != nil {
		logger.Warn("等待会话清理任务结束超时", zap.Error(err))
	}
	if err := loginLog.Stop(ctx); err != nil {
		logger.Warn("登录日志未完全写入", zap.Error(err))
	}
	if err := operLog.Stop(ctx); err != nil {
		logger.Warn("操作日志未完全写入", zap.Error(err))
	}

	logger.Info("服务已关闭")
}
