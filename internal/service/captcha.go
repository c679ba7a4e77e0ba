package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mojocn/base64Captcha"
	"github.com/redis/go-redis/v9"
)

// CaptchaService 图形验证码服务
type CaptchaService interface {
	// Generate 生成验证码，返回标识与 base64 图片
	Generate(ctx context.Context) (id string, image string, err error)
	// Verify 校验验证码；无论结果如何，验证码都在首次校验后删除
	Verify(ctx context.Context, id, answer string) error
	// Enabled 是否启用验证码
	Enabled() bool
}

// CaptchaConfig 验证码配置
type CaptchaConfig struct {
	Enabled   bool
	KeyPrefix string
	Expire    time.Duration // 默认 5 分钟
	Length    int           // 默认 4 位
	Width     int
	Height    int
	Driver    base64Captcha.Driver // 为空时使用数字验证码
}

type captchaService struct {
	redis   redis.UniversalClient
	enabled bool
	prefix  string
	expire  time.Duration
	driver  base64Captcha.Driver
}

// NewCaptchaService 创建验证码服务
func NewCaptchaService(client redis.UniversalClient, cfg *CaptchaConfig) CaptchaService {
	if cfg == nil {
		cfg = &CaptchaConfig{Enabled: true}
	}
	s := &captchaService{
		redis:   client,
		enabled: cfg.Enabled,
		prefix:  cfg.KeyPrefix,
		expire:  cfg.Expire,
		driver:  cfg.Driver,
	}
	if s.prefix == "" {
		s.prefix = "admin:"
	}
	s.prefix += "captcha:"
	if s.expire <= 0 {
		s.expire = 5 * time.Minute
	}
	if s.driver == nil {
		length, width, height := cfg.Length, cfg.Width, cfg.Height
		if length <= 0 {
			length = 4
		}
		if width <= 0 {
			width = 120
		}
		if height <= 0 {
			height = 40
		}
		s.driver = base64Captcha.NewDriverDigit(height, width, length, 0.7, 80)
	}
	return s
}

func (s *captchaService) Enabled() bool { return s.enabled }

func (s *captchaService) key(id string) string { return s.prefix + id }

func (s *captchaService) Generate(ctx context.Context) (string, string, error) {
	_, content, answer := s.driver.GenerateIdQuestionAnswer()
	item, err := s.driver.DrawCaptcha(content)
	if err != nil {
		return "", "", fmt.Errorf("生成验证码图片失败: %w", err)
	}

	id := uuid.New().String()
	if err := s.redis.Set(ctx, s.key(id), answer, s.expire).Err(); err != nil {
		return "", "", fmt.Errorf("存储验证码失败: %w", err)
	}
	return id, item.EncodeB64string(), nil
}

func (s *captchaService) Verify(ctx context.Context, id, answer string) error {
	if id == "" {
		return ErrCaptchaRequired
	}
	// GETDEL 保证同一验证码只能校验一次
	stored, err := s.redis.GetDel(ctx, s.key(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCaptchaExpired
		}
		return fmt.Errorf("读取验证码失败: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return ErrCaptchaRequired
	}
	if !strings.EqualFold(stored, answer) {
		return ErrCaptchaMismatch
	}
	return nil
}
