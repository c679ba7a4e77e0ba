// Package config 应用配置
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var current *Config

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Security SecurityConfig `mapstructure:"security"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	Mode           string        `mapstructure:"mode"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
	CORSOrigins    []string      `mapstructure:"cors_origins"` // 为空表示回显请求 Origin
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver        string         `mapstructure:"driver"`
	Postgres      PostgresConfig `mapstructure:"postgres"`
	MySQL         MySQLConfig    `mapstructure:"mysql"`
	LogLevel      string         `mapstructure:"log_level"` // silent, error, warn, info
	SlowThreshold time.Duration  `mapstructure:"slow_threshold"`
	MaxIdleConns  int            `mapstructure:"max_idle_conns"`
	MaxOpenConns  int            `mapstructure:"max_open_conns"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// MySQLConfig MySQL 配置
type MySQLConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	DBName    string `mapstructure:"dbname"`
	Charset   string `mapstructure:"charset"`
	ParseTime bool   `mapstructure:"parse_time"`
	Loc       string `mapstructure:"loc"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// JWTConfig 令牌配置
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Issuer     string        `mapstructure:"issuer"`
	Expiration time.Duration `mapstructure:"expiration"`
	Header     string        `mapstructure:"header"`
	Prefix     string        `mapstructure:"prefix"`
}

// SecurityConfig 登录与请求防护配置
type SecurityConfig struct {
	KeyPrefix            string        `mapstructure:"key_prefix"`
	CaptchaEnabled       bool          `mapstructure:"captcha_enabled"`
	CaptchaExpire        time.Duration `mapstructure:"captcha_expire"`
	CaptchaLength        int           `mapstructure:"captcha_length"`
	CaptchaWidth         int           `mapstructure:"captcha_width"`
	CaptchaHeight        int           `mapstructure:"captcha_height"`
	LockoutThreshold     int           `mapstructure:"lockout_threshold"`
	LockoutWindow        time.Duration `mapstructure:"lockout_window"`
	RateLimitCount       int           `mapstructure:"rate_limit_count"`
	RateLimitWindow      time.Duration `mapstructure:"rate_limit_window"`
	RepeatSubmitInterval time.Duration `mapstructure:"repeat_submit_interval"`
	DeptCacheTTL         time.Duration `mapstructure:"dept_cache_ttl"`
	SessionSweepSpec     string        `mapstructure:"session_sweep_spec"`
	LogQueueSize         int           `mapstructure:"log_queue_size"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load 加载配置
// 依次在 ./configs 和当前目录查找 config.yaml，文件不存在时使用默认值
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}
	return unmarshal(v)
}

// LoadFromFile 从指定文件加载配置
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	// 支持环境变量覆盖，如 JWT_SECRET 覆盖 jwt.secret
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	current = &cfg
	return &cfg, nil
}

// Get 获取最近一次加载的配置
func Get() *Config {
	return current
}

// Validate 校验配置
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return errors.New("jwt.secret 长度不能少于 32 个字符")
	}
	if c.JWT.Expiration <= 0 {
		return errors.New("jwt.expiration 必须大于 0")
	}
	if c.JWT.Header == "" {
		return errors.New("jwt.header 不能为空")
	}
	s := c.Security
	if s.LockoutThreshold <= 0 || s.LockoutWindow <= 0 {
		return errors.New("security.lockout_threshold 与 lockout_window 必须大于 0")
	}
	if s.RateLimitCount <= 0 || s.RateLimitWindow < time.Second {
		return errors.New("security.rate_limit_count 必须大于 0，rate_limit_window 不能小于 1s")
	}
	if s.RepeatSubmitInterval < time.Millisecond {
		return errors.New("security.repeat_submit_interval 必须大于 0")
	}
	if s.CaptchaEnabled && s.CaptchaExpire <= 0 {
		return errors.New("security.captcha_expire 必须大于 0")
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")

	// 数据库默认配置
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "admin")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.mysql.charset", "utf8mb4")
	v.SetDefault("database.mysql.parse_time", true)
	v.SetDefault("database.mysql.loc", "Local")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.slow_threshold", "200ms")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)

	// Redis 默认配置
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	// 令牌默认配置
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "admin-auth")
	v.SetDefault("jwt.expiration", "24h")
	v.SetDefault("jwt.header", "Authorization")
	v.SetDefault("jwt.prefix", "Bearer")

	// 安全防护默认配置
	v.SetDefault("security.key_prefix", "admin:")
	v.SetDefault("security.captcha_enabled", true)
	v.SetDefault("security.captcha_expire", "5m")
	v.SetDefault("security.captcha_length", 4)
	v.SetDefault("security.captcha_width", 120)
	v.SetDefault("security.captcha_height", 40)
	v.SetDefault("security.lockout_threshold", 5)
	v.SetDefault("security.lockout_window", "30m")
	v.SetDefault("security.rate_limit_count", 10)
	v.SetDefault("security.rate_limit_window", "60s")
	v.SetDefault("security.repeat_submit_interval", "3s")
	v.SetDefault("security.dept_cache_ttl", "1m")
	v.SetDefault("security.session_sweep_spec", "@every 30m")
	v.SetDefault("security.log_queue_size", 1024)

	v.SetDefault("log.level", "info")
}
