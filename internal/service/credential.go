package service

import (
	"golang.org/x/crypto/bcrypt"
)

// CredentialStore 凭据校验
// 无状态，仅比较提交的口令与存储的哈希
type CredentialStore interface {
	Hash(secret string) (string, error)
	Verify(hash, secret string) bool
}

type bcryptCredentialStore struct {
	cost int
}

// NewCredentialStore 创建 bcrypt 凭据校验器，cost 为 0 时使用默认值
func NewCredentialStore(cost int) CredentialStore {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &bcryptCredentialStore{cost: cost}
}

func (s *bcryptCredentialStore) Hash(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify 任何错误（哈希格式不对、口令过长等）都视为不匹配
func (s *bcryptCredentialStore) Verify(hash, secret string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
