package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenService 令牌服务接口
// 纯计算，不访问外部存储；令牌是否被吊销由会话注册表决定
type TokenService interface {
	// Issue 为主体签发令牌
	Issue(subject string) (string, error)
	// Validate 校验令牌签名、有效期及主体，任何错误都返回 false
	Validate(token, expectedSubject string) bool
	// SubjectOf 解析令牌主体，令牌无效时返回 false
	SubjectOf(token string) (string, bool)
	// Refresh 以相同主体重新签发，允许已过期但签名合法的令牌
	Refresh(token string) (string, bool)
	// ExpiresAt 令牌过期时间（毫秒时间戳）
	ExpiresAt(token string) (int64, bool)
	// Expiration 令牌有效期
	Expiration() time.Duration
}

// TokenServiceConfig 令牌服务配置
type TokenServiceConfig struct {
	Secret     []byte
	Issuer     string
	Expiration time.Duration    // 默认 24 小时
	Now        func() time.Time // 测试注入时钟
}

type tokenService struct {
	secret     []byte
	issuer     string
	expiration time.Duration
	now        func() time.Time
}

var signingMethod = jwt.SigningMethodHS512

// NewTokenService 创建令牌服务
// 进程生命周期内使用同一密钥，密钥轮换需同时清空会话
func NewTokenService(cfg *TokenServiceConfig) TokenService {
	s := &tokenService{
		secret:     cfg.Secret,
		issuer:     cfg.Issuer,
		expiration: cfg.Expiration,
		now:        cfg.Now,
	}
	if s.expiration <= 0 {
		s.expiration = 24 * time.Hour
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *tokenService) Expiration() time.Duration {
	return s.expiration
}

// Issue 签发令牌
func (s *tokenService) Issue(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("令牌主体不能为空")
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
		// jti 保证同一毫秒内签发的令牌也不相同
		ID: uuid.New().String(),
	}
	return jwt.NewWithClaims(signingMethod, claims).SignedString(s.secret)
}

func (s *tokenService) Validate(token, expectedSubject string) bool {
	claims, err := s.parse(token, true)
	if err != nil {
		return false
	}
	return claims.Subject != "" && claims.Subject == expectedSubject
}

func (s *tokenService) SubjectOf(token string) (string, bool) {
	claims, err := s.parse(token, true)
	if err != nil || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

func (s *tokenService) ExpiresAt(token string) (int64, bool) {
	claims, err := s.parse(token, true)
	if err != nil || claims.ExpiresAt == nil {
		return 0, false
	}
	return claims.ExpiresAt.UnixMilli(), true
}

func (s *tokenService) Refresh(token string) (string, bool) {
	claims, err := s.parse(token, false)
	if err != nil || claims.Subject == "" {
		return "", false
	}
	fresh, err := s.Issue(claims.Subject)
	if err != nil {
		return "", false
	}
	return fresh, true
}

// parse 解析并校验签名；checkClaims 为 false 时跳过有效期校验
func (s *tokenService) parse(token string, checkClaims bool) (*jwt.RegisteredClaims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if checkClaims {
		opts = append(opts, jwt.WithExpirationRequired())
		if s.issuer != "" {
			opts = append(opts, jwt.WithIssuer(s.issuer))
		}
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if !checkClaims && s.issuer != "" && claims.Issuer != s.issuer {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
