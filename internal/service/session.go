package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pu-ac-cn/admin-auth/internal/model"
	"github.com/redis/go-redis/v9"
)

// SessionView 会话列表项
type SessionView struct {
	SessionID  string `json:"token_key"`
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	DeptID     string `json:"dept_id,omitempty"`
	IP         string `json:"ip"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	LoginTime  int64  `json:"login_time"`
	ExpireTime int64  `json:"expire_time"`
	TTLSeconds int64  `json:"ttl_seconds"`
	Current    bool   `json:"current"`
}

// SessionRegistry 会话注册表
// 令牌摘要 -> 登录主体快照，用户 -> 令牌摘要集合；注册表是吊销的唯一依据
type SessionRegistry interface {
	// Put 写入会话并加入用户索引，索引 TTL 不短于会话 TTL
	Put(ctx context.Context, token string, principal *model.Principal, ttl time.Duration) error
	// Get 按令牌查找会话，不存在返回 ErrSessionNotFound
	Get(ctx context.Context, token string) (*model.Principal, error)
	// GetByID 按会话标识查找
	GetByID(ctx context.Context, sessionID string) (*model.Principal, error)
	// ListSessions 列出用户会话，顺带清理索引中的失效成员；currentID 排在首位
	ListSessions(ctx context.Context, userID, currentID string) ([]*SessionView, error)
	// Revoke 吊销令牌，已不存在视为成功
	Revoke(ctx context.Context, token string) error
	// RevokeByID 按会话标识吊销
	RevokeByID(ctx context.Context, sessionID string) error
	// RevokeAllExcept 吊销用户除 keepID 外的全部会话，返回吊销数量
	RevokeAllExcept(ctx context.Context, userID, keepID string) (int, error)
	// Replace 将旧令牌的会话迁移到新令牌并吊销旧令牌
	Replace(ctx context.Context, oldToken, newToken string, ttl time.Duration) (*model.Principal, error)
	// ListOnline 列出全部在线会话，可按用户名模糊过滤
	ListOnline(ctx context.Context, username string) ([]*SessionView, error)
	// PruneIndex 清理单个用户索引中的失效成员
	PruneIndex(ctx context.Context, userID string) (int, error)
	// SweepIndexes 清理全部用户索引，返回清理的成员数
	SweepIndexes(ctx context.Context) (int, error)
}

// SessionRegistryConfig 会话注册表配置
type SessionRegistryConfig struct {
	KeyPrefix string // 默认 admin:
	ScanCount int64  // SCAN 每批数量，默认 200
}

type sessionRegistry struct {
	redis       redis.UniversalClient
	tokenPrefix string
	indexPrefix string
	scanCount   int64
}

// NewSessionRegistry 创建会话注册表
func NewSessionRegistry(client redis.UniversalClient, cfg *SessionRegistryConfig) SessionRegistry {
	if cfg == nil {
		cfg = &SessionRegistryConfig{}
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "admin:"
	}
	scan := cfg.ScanCount
	if scan <= 0 {
		scan = 200
	}
	return &sessionRegistry{
		redis:       client,
		tokenPrefix: prefix + "token:",
		indexPrefix: prefix + "user:tokens:",
		scanCount:   scan,
	}
}

// SessionID 令牌摘要，作为会话标识对外暴露，原始令牌不落盘
func SessionID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (r *sessionRegistry) entryKey(sessionID string) string { return r.tokenPrefix + sessionID }

func (r *sessionRegistry) indexKey(userID string) string { return r.indexPrefix + userID }

// putScript 写入会话、加入索引、按需延长索引 TTL，一次原子执行
// KEYS[1] 会话键 KEYS[2] 索引键；ARGV[1] 主体 JSON ARGV[2] TTL 毫秒 ARGV[3] 会话标识
var putScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('SADD', KEYS[2], ARGV[3])
local ttl = tonumber(ARGV[2])
if redis.call('PTTL', KEYS[2]) < ttl then
  redis.call('PEXPIRE', KEYS[2], ttl)
end
return 1
`)

func (r *sessionRegistry) Put(ctx context.Context, token string, principal *model.Principal, ttl time.Duration) error {
	if principal == nil || principal.UserID == "" {
		return errors.New("会话主体缺少用户 ID")
	}
	if ttl <= 0 {
		return errors.New("会话有效期无效")
	}
	sid := SessionID(token)
	snapshot := *principal
	snapshot.SessionID = sid

	data, err := json.Marshal(&snapshot)
	if err != nil {
		return fmt.Errorf("序列化会话失败: %w", err)
	}

	keys := []string{r.entryKey(sid), r.indexKey(snapshot.UserID)}
	if err := putScript.Run(ctx, r.redis, keys, data, ttl.Milliseconds(), sid).Err(); err != nil {
		return fmt.Errorf("存储会话失败: %w", err)
	}
	return nil
}

func (r *sessionRegistry) Get(ctx context.Context, token string) (*model.Principal, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	return r.GetByID(ctx, SessionID(token))
}

func (r *sessionRegistry) GetByID(ctx context.Context, sessionID string) (*model.Principal, error) {
	data, err := r.redis.Get(ctx, r.entryKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("获取会话失败: %w", err)
	}
	return decodePrincipal(data)
}

func decodePrincipal(data []byte) (*model.Principal, error) {
	var p model.Principal
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("反序列化会话失败: %w", err)
	}
	return &p, nil
}

type resolvedMember struct {
	sid       string
	principal *model.Principal
	ttl       time.Duration
}

// resolve 批量读取会话与剩余 TTL；缺失或无法解析的成员 principal 为 nil
func (r *sessionRegistry) resolve(ctx context.Context, sids []string) ([]resolvedMember, error) {
	if len(sids) == 0 {
		return nil, nil
	}
	pipe := r.redis.Pipeline()
	gets := make([]*redis.StringCmd, len(sids))
	ttls := make([]*redis.DurationCmd, len(sids))
	for i, sid := range sids {
		gets[i] = pipe.Get(ctx, r.entryKey(sid))
		ttls[i] = pipe.PTTL(ctx, r.entryKey(sid))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("批量读取会话失败: %w", err)
	}

	out := make([]resolvedMember, len(sids))
	for i, sid := range sids {
		out[i].sid = sid
		data, err := gets[i].Bytes()
		if err != nil {
			continue
		}
		p, err := decodePrincipal(data)
		if err != nil {
			continue
		}
		out[i].principal = p
		out[i].ttl = ttls[i].Val()
	}
	return out, nil
}

func (r *sessionRegistry) ListSessions(ctx context.Context, userID, currentID string) ([]*SessionView, error) {
	indexKey := r.indexKey(userID)
	sids, err := r.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("获取用户会话索引失败: %w", err)
	}

	members, err := r.resolve(ctx, sids)
	if err != nil {
		return nil, err
	}

	views := make([]*SessionView, 0, len(members))
	var stale []interface{}
	for _, m := range members {
		if m.principal == nil || m.principal.UserID != userID {
			stale = append(stale, m.sid)
			continue
		}
		views = append(views, toView(m.sid, m.principal, m.ttl, m.sid == currentID))
	}

	if len(stale) > 0 {
		// 清理失败不影响本次列表
		_ = r.redis.SRem(ctx, indexKey, stale...).Err()
	}

	SortSessions(views)
	return views, nil
}

func toView(sid string, p *model.Principal, ttl time.Duration, current bool) *SessionView {
	v := &SessionView{
		SessionID:  sid,
		UserID:     p.UserID,
		Username:   p.Username,
		DeptID:     p.DeptID,
		IP:         p.IP,
		Browser:    p.Browser,
		OS:         p.OS,
		LoginTime:  p.LoginTime,
		ExpireTime: p.ExpireTime,
		Current:    current,
	}
	if ttl > 0 {
		v.TTLSeconds = int64(ttl / time.Second)
	}
	return v
}

// SortSessions 当前会话置顶，其余按登录时间倒序，缺少登录时间的排最后
func SortSessions(views []*SessionView) {
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i], views[j]
		if a.Current != b.Current {
			return a.Current
		}
		if (a.LoginTime == 0) != (b.LoginTime == 0) {
			return a.LoginTime != 0
		}
		return a.LoginTime > b.LoginTime
	})
}

func (r *sessionRegistry) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return r.RevokeByID(ctx, SessionID(token))
}

func (r *sessionRegistry) RevokeByID(ctx context.Context, sessionID string) error {
	entryKey := r.entryKey(sessionID)

	// 先确定归属用户，才能清理其索引
	p, err := r.GetByID(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}

	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, entryKey)
		if p != nil {
			pipe.SRem(ctx, r.indexKey(p.UserID), sessionID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("吊销会话失败: %w", err)
	}
	return nil
}

func (r *sessionRegistry) RevokeAllExcept(ctx context.Context, userID, keepID string) (int, error) {
	indexKey := r.indexKey(userID)
	sids, err := r.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("获取用户会话索引失败: %w", err)
	}

	var victims []string
	for _, sid := range sids {
		if sid != keepID {
			victims = append(victims, sid)
		}
	}
	if len(victims) == 0 {
		return 0, nil
	}

	members, err := r.resolve(ctx, victims)
	if err != nil {
		return 0, err
	}

	revoked := 0
	_, err = r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range members {
			// 索引里混入的他人会话只从索引移除，不删除其会话
			if m.principal != nil && m.principal.UserID == userID {
				pipe.Del(ctx, r.entryKey(m.sid))
				revoked++
			}
			pipe.SRem(ctx, indexKey, m.sid)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("吊销会话失败: %w", err)
	}
	return revoked, nil
}

func (r *sessionRegistry) Replace(ctx context.Context, oldToken, newToken string, ttl time.Duration) (*model.Principal, error) {
	p, err := r.Get(ctx, oldToken)
	if err != nil {
		return nil, err
	}
	p.ExpireTime = time.Now().Add(ttl).UnixMilli()
	if err := r.Put(ctx, newToken, p, ttl); err != nil {
		return nil, err
	}
	if err := r.Revoke(ctx, oldToken); err != nil {
		return nil, err
	}
	p.SessionID = SessionID(newToken)
	return p, nil
}

// scan 遍历匹配的键
func (r *sessionRegistry) scan(ctx context.Context, pattern string, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := r.redis.Scan(ctx, cursor, pattern, r.scanCount).Result()
		if err != nil {
			return fmt.Errorf("扫描键失败: %w", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (r *sessionRegistry) ListOnline(ctx context.Context, username string) ([]*SessionView, error) {
	var views []*SessionView
	seen := make(map[string]struct{})
	err := r.scan(ctx, r.tokenPrefix+"*", func(keys []string) error {
		sids := make([]string, 0, len(keys))
		for _, k := range keys {
			sid := strings.TrimPrefix(k, r.tokenPrefix)
			if _, ok := seen[sid]; ok {
				continue
			}
			seen[sid] = struct{}{}
			sids = append(sids, sid)
		}
		members, err := r.resolve(ctx, sids)
		if err != nil {
			return err
		}
		for _, m := range members {
			if m.principal == nil {
				continue
			}
			if username != "" && !strings.Contains(m.principal.Username, username) {
				continue
			}
			views = append(views, toView(m.sid, m.principal, m.ttl, false))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	SortSessions(views)
	return views, nil
}

func (r *sessionRegistry) PruneIndex(ctx context.Context, userID string) (int, error) {
	indexKey := r.indexKey(userID)
	sids, err := r.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("获取用户会话索引失败: %w", err)
	}
	members, err := r.resolve(ctx, sids)
	if err != nil {
		return 0, err
	}
	var stale []interface{}
	for _, m := range members {
		if m.principal == nil || m.principal.UserID != userID {
			stale = append(stale, m.sid)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := r.redis.SRem(ctx, indexKey, stale...).Err(); err != nil {
		return 0, fmt.Errorf("清理会话索引失败: %w", err)
	}
	return len(stale), nil
}

func (r *sessionRegistry) SweepIndexes(ctx context.Context) (int, error) {
	total := 0
	err := r.scan(ctx, r.indexPrefix+"*", func(keys []string) error {
		for _, k := range keys {
			n, err := r.PruneIndex(ctx, strings.TrimPrefix(k, r.indexPrefix))
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	return total, err
}
