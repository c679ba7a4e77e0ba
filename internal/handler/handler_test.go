package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/admin-auth/internal/middleware"
	"github.com/pu-ac-cn/admin-auth/internal/model"
	"github.com/pu-ac-cn/admin-auth/internal/repository"
	"github.com/pu-ac-cn/admin-auth/internal/reqctx"
	"github.com/pu-ac-cn/admin-auth/internal/service"
	"github.com/pu-ac-cn/admin-auth/pkg/response"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "password123"

// memoryUsers 内存用户服务，List 按上下文数据范围过滤
type memoryUsers struct {
	service.UserService
	details map[string]*service.UserDetails
}

func (m *memoryUsers) LoadUserByUsername(ctx context.Context, username string) (*service.UserDetails, error) {
	if d, ok := m.details[username]; ok {
		return d, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *memoryUsers) GetByID(ctx context.Context, id string) (*model.User, error) {
	for _, d := range m.details {
		if d.User.ID == id {
			return d.User, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memoryUsers) List(ctx context.Context, filter *repository.UserFilter, page *repository.Pagination) ([]*model.User, int64, error) {
	scope, scoped := reqctx.DeptScope(ctx)
	allowed := make(map[string]bool, len(scope))
	for _, id := range scope {
		allowed[id] = true
	}
	var out []*model.User
	for _, d := range m.details {
		if scoped && !allowed[d.User.DeptID] {
			continue
		}
		out = append(out, d.User)
	}
	return out, int64(len(out)), nil
}

// memoryRBAC 内存角色服务，只认识内置的两个角色
type memoryRBAC struct {
	service.RBACService
	mu    sync.Mutex
	roles map[string][]string
}

func (m *memoryRBAC) AssignRoleByCode(ctx context.Context, userID, roleCode string) error {
	if roleCode != model.RoleSuperAdmin && roleCode != model.RoleCommon {
		return service.ErrRoleNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles[userID] {
		if r == roleCode {
			return nil
		}
	}
	m.roles[userID] = append(m.roles[userID], roleCode)
	return nil
}

func (m *memoryRBAC) GetUserAuthorities(ctx context.Context, userID string) ([]string, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.roles[userID]...), []string{}, nil
}

// memoryDepts 固定部门树：1 -> 100 -> 101，1 -> 200
type memoryDepts struct {
	repository.DeptRepository
}

func (memoryDepts) ListAll(ctx context.Context) ([]model.DeptNode, error) {
	return []model.DeptNode{
		{ID: "1"},
		{ID: "100", ParentID: "1"},
		{ID: "101", ParentID: "100"},
		{ID: "200", ParentID: "1"},
	}, nil
}

// memoryOperLog 同步记录操作日志
type memoryOperLog struct {
	mu      sync.Mutex
	entries []*model.OperLog
}

func (m *memoryOperLog) Record(entry *model.OperLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
}

func (m *memoryOperLog) Start() {}

func (m *memoryOperLog) Stop(ctx context.Context) error { return nil }

type testEnv struct {
	router  *gin.Engine
	mr      *miniredis.Miniredis
	operLog *memoryOperLog
}

func newTestEnv(t *testing.T, captchaEnabled bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	creds := service.NewCredentialStore(bcrypt.MinCost)
	hash, err := creds.Hash(testPassword)
	require.NoError(t, err)

	user := func(id, name, dept string, roles, perms []string) *service.UserDetails {
		return &service.UserDetails{
			User:        &model.User{BaseModel: model.BaseModel{ID: id}, Username: name, DeptID: dept, PasswordHash: hash, Status: model.StatusActive},
			Roles:       roles,
			Permissions: perms,
		}
	}
	users := &memoryUsers{details: map[string]*service.UserDetails{
		"alice": user("u-alice", "alice", "100", []string{model.RoleCommon}, []string{model.PermUserList}),
		"bob":   user("u-bob", "bob", "101", []string{model.RoleCommon}, nil),
		"carol": user("u-carol", "carol", "200", []string{model.RoleCommon}, []string{model.PermUserRoleAssign}),
		"root":  user("u-root", "root", "1", []string{model.RoleSuperAdmin}, []string{model.PermissionAll}),
	}}

	tokens := service.NewTokenService(&service.TokenServiceConfig{
		Secret:     []byte("handler-test-secret-handler-test-secret-0000"),
		Issuer:     "admin-auth-test",
		Expiration: time.Hour,
	})
	sessions := service.NewSessionRegistry(client, nil)
	captcha := service.NewCaptchaService(client, &service.CaptchaConfig{Enabled: captchaEnabled})
	authSvc := service.NewAuthService(&service.AuthServiceConfig{
		Users:    users,
		Creds:    creds,
		Tokens:   tokens,
		Sessions: sessions,
		Lockout:  service.NewLoginLockout(client, nil),
		Captcha:  captcha,
	})

	rbac := &memoryRBAC{roles: map[string][]string{"u-alice": {model.RoleCommon}}}
	operLog := &memoryOperLog{}
	router := gin.New()
	router.Use(middleware.Recovery(), middleware.Authenticate(authSvc, "Authorization", "Bearer"))
	RegisterRoutes(router.Group("/api/v1"), &RouteDeps{
		Auth:                 authSvc,
		Captcha:              captcha,
		Users:                users,
		RBAC:                 rbac,
		Sessions:             sessions,
		Depts:                service.NewDeptService(memoryDepts{}, nil),
		RateLimiter:          service.NewRateLimiter(client, nil),
		Idempotency:          service.NewIdempotencyGuard(client, nil),
		OperLog:              operLog,
		TokenHeader:          "Authorization",
		TokenPrefix:          "Bearer",
		RateLimitCount:       100,
		RateLimitWindow:      time.Minute,
		RepeatSubmitInterval: 3 * time.Second,
	})

	return &testEnv{router: router, mr: mr, operLog: operLog}
}

type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (e *testEnv) call(t *testing.T, method, path, token string, body interface{}) (int, apiResponse) {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func (e *testEnv) login(t *testing.T, username string) string {
	t.Helper()
	code, resp := e.call(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": username, "password": testPassword})
	require.Equal(t, http.StatusOK, code, resp.Msg)
	var data struct {
		Token      string `json:"token"`
		ExpireTime int64  `json:"expire_time"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.NotEmpty(t, data.Token)
	assert.Greater(t, data.ExpireTime, time.Now().UnixMilli())
	return data.Token
}

func TestAuthHandler_LoginInfoLogout(t *testing.T) {
	env := newTestEnv(t, false)
	token := env.login(t, "alice")

	code, resp := env.call(t, http.MethodGet, "/api/v1/auth/info", token, nil)
	require.Equal(t, http.StatusOK, code)
	var info struct {
		UserID      string   `json:"user_id"`
		Username    string   `json:"username"`
		DeptID      string   `json:"dept_id"`
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &info))
	assert.Equal(t, "u-alice", info.UserID)
	assert.Equal(t, "100", info.DeptID)
	assert.Equal(t, []string{model.PermUserList}, info.Permissions)

	code, _ = env.call(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, code)

	code, resp = env.call(t, http.MethodGet, "/api/v1/auth/info", token, nil)
	assert.Equal(t, http.StatusUnauthorized, code, "退出后令牌失效")
	assert.Equal(t, response.CodeInvalidToken, resp.Code)

	code, _ = env.call(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, code, "重复退出同样成功")
	code, _ = env.call(t, http.MethodPost, "/api/v1/auth/logout", "", nil)
	assert.Equal(t, http.StatusOK, code, "未携带令牌也成功")
}

func TestAuthHandler_LoginValidation(t *testing.T) {
	env := newTestEnv(t, false)

	code, resp := env.call(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, response.CodeMissingParam, resp.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader("{bad json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandler_LoginLockout(t *testing.T) {
	env := newTestEnv(t, false)
	wrong := gin.H{"username": "alice", "password": "wrong-password"}

	code, resp := env.call(t, http.MethodPost, "/api/v1/auth/login", "", wrong)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, response.CodeInvalidCredentials, resp.Code)
	assert.JSONEq(t, `{"remaining":4}`, string(resp.Data))

	for i := 0; i < 4; i++ {
		env.call(t, http.MethodPost, "/api/v1/auth/login", "", wrong)
	}

	code, resp = env.call(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice", "password": testPassword})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, response.CodeAccountLocked, resp.Code)
	assert.Contains(t, resp.Msg, "30分钟")
	var data struct {
		RetryAfter int64 `json:"retry_after"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.InDelta(t, 1800, data.RetryAfter, 2)

	env.mr.FastForward(30 * time.Minute)
	env.login(t, "alice")
}

func TestAuthHandler_Captcha(t *testing.T) {
	t.Run("未启用", func(t *testing.T) {
		env := newTestEnv(t, false)
		code, resp := env.call(t, http.MethodGet, "/api/v1/auth/captcha", "", nil)
		require.Equal(t, http.StatusOK, code)
		assert.JSONEq(t, `{"enabled":false}`, string(resp.Data))
	})

	t.Run("启用", func(t *testing.T) {
		env := newTestEnv(t, true)
		code, resp := env.call(t, http.MethodGet, "/api/v1/auth/captcha", "", nil)
		require.Equal(t, http.StatusOK, code)
		var data struct {
			Enabled bool   `json:"enabled"`
			UUID    string `json:"uuid"`
			Image   string `json:"image"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &data))
		assert.True(t, data.Enabled)
		assert.True(t, strings.HasPrefix(data.Image, "data:image/png;base64,"))

		answer, err := env.mr.Get("admin:captcha:" + data.UUID)
		require.NoError(t, err)

		code, resp = env.call(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice", "password": testPassword})
		assert.Equal(t, http.StatusBadRequest, code, "缺少验证码")
		assert.Equal(t, response.CodeMissingParam, resp.Code)

		code, resp = env.call(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
			"username": "alice", "password": testPassword, "uuid": data.UUID, "code": answer,
		})
		assert.Equal(t, http.StatusOK, code, resp.Msg)

		code, resp = env.call(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
			"username": "alice", "password": testPassword, "uuid": data.UUID, "code": answer,
		})
		assert.Equal(t, http.StatusForbidden, code, "验证码只能使用一次")
		assert.Equal(t, response.CodeCaptchaExpired, resp.Code)
	})
}

func TestAuthHandler_Sessions(t *testing.T) {
	env := newTestEnv(t, false)
	first := env.login(t, "alice")
	second := env.login(t, "alice")
	third := env.login(t, "alice")
	bobToken := env.login(t, "bob")

	code, resp := env.call(t, http.MethodGet, "/api/v1/auth/sessions", second, nil)
	require.Equal(t, http.StatusOK, code)
	var sessions []service.SessionView
	require.NoError(t, json.Unmarshal(resp.Data, &sessions))
	require.Len(t, sessions, 3)
	assert.True(t, sessions[0].Current, "当前会话排在最前")
	assert.Equal(t, service.SessionID(second), sessions[0].SessionID)
	assert.Equal(t, "Chrome 120", sessions[0].Browser)

	// 不能下线别人的会话
	code, resp = env.call(t, http.MethodDelete, "/api/v1/auth/sessions/"+service.SessionID(bobToken), first, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, response.CodeSessionNotOwned, resp.Code)

	// 下线自己的其他会话
	code, _ = env.call(t, http.MethodDelete, "/api/v1/auth/sessions/"+service.SessionID(third), first, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = env.call(t, http.MethodGet, "/api/v1/auth/info", third, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	// 下线除当前外的全部会话
	code, resp = env.call(t, http.MethodDelete, "/api/v1/auth/sessions/other", first, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"revoked":1}`, string(resp.Data))
	code, _ = env.call(t, http.MethodGet, "/api/v1/auth/info", second, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = env.call(t, http.MethodGet, "/api/v1/auth/info", first, nil)
	assert.Equal(t, http.StatusOK, code)

	// 短时间内重复提交被拦截
	code, resp = env.call(t, http.MethodDelete, "/api/v1/auth/sessions/other", first, nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, response.CodeDuplicateSubmit, resp.Code)

	code, _ = env.call(t, http.MethodGet, "/api/v1/auth/info", bobToken, nil)
	assert.Equal(t, http.StatusOK, code, "其他用户不受影响")
}

func TestAuthHandler_Refresh(t *testing.T) {
	env := newTestEnv(t, false)
	old := env.login(t, "alice")

	code, resp := env.call(t, http.MethodPost, "/api/v1/auth/refresh", old, nil)
	require.Equal(t, http.StatusOK, code)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.NotEqual(t, old, data.Token)

	code, _ = env.call(t, http.MethodGet, "/api/v1/auth/info", data.Token, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = env.call(t, http.MethodGet, "/api/v1/auth/info", old, nil)
	assert.Equal(t, http.StatusUnauthorized, code, "旧令牌失效")

	code, _ = env.call(t, http.MethodPost, "/api/v1/auth/refresh", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestOnlineHandler(t *testing.T) {
	env := newTestEnv(t, false)
	aliceToken := env.login(t, "alice")
	rootToken := env.login(t, "root")

	code, resp := env.call(t, http.MethodGet, "/api/v1/system/online/list", aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, response.CodeForbidden, resp.Code)

	code, resp = env.call(t, http.MethodGet, "/api/v1/system/online/list?username=alice", rootToken, nil)
	require.Equal(t, http.StatusOK, code)
	var online struct {
		List  []service.SessionView `json:"list"`
		Total int                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &online))
	require.Equal(t, 1, online.Total)
	assert.Equal(t, "alice", online.List[0].Username)

	sid := service.SessionID(aliceToken)
	code, _ = env.call(t, http.MethodDelete, "/api/v1/system/online/"+sid, rootToken, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = env.call(t, http.MethodGet, "/api/v1/auth/info", aliceToken, nil)
	assert.Equal(t, http.StatusUnauthorized, code, "被强制下线")

	require.Len(t, env.operLog.entries, 1)
	entry := env.operLog.entries[0]
	assert.Equal(t, "强制退出", entry.Title)
	assert.Equal(t, "root", entry.Username)
	assert.Equal(t, model.OperStatusSuccess, entry.Status)
	assert.Contains(t, entry.OldValue, `"username":"alice"`)

	code, _ = env.call(t, http.MethodDelete, "/api/v1/system/online/"+sid, rootToken, nil)
	assert.Equal(t, http.StatusOK, code, "会话已不存在也视为成功")
}

func TestUserHandler_ListScoped(t *testing.T) {
	env := newTestEnv(t, false)

	names := func(token string) []string {
		code, resp := env.call(t, http.MethodGet, "/api/v1/system/user/list", token, nil)
		require.Equal(t, http.StatusOK, code, resp.Msg)
		var data struct {
			List []struct {
				Username string `json:"username"`
			} `json:"list"`
			Page     int `json:"page"`
			PageSize int `json:"page_size"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &data))
		assert.Equal(t, 1, data.Page)
		assert.Equal(t, 20, data.PageSize)
		out := make([]string, 0, len(data.List))
		for _, u := range data.List {
			out = append(out, u.Username)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"alice", "bob"}, names(env.login(t, "alice")), "本部门及下级部门")
	assert.ElementsMatch(t, []string{"alice", "bob", "carol", "root"}, names(env.login(t, "root")), "超级管理员不受限")

	code, _ := env.call(t, http.MethodGet, "/api/v1/system/user/list", env.login(t, "bob"), nil)
	assert.Equal(t, http.StatusForbidden, code, "缺少权限")
	code, _ = env.call(t, http.MethodGet, "/api/v1/system/user/list", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRBACHandler_AssignRole(t *testing.T) {
	env := newTestEnv(t, false)
	rootToken := env.login(t, "root")

	code, resp := env.call(t, http.MethodGet, "/api/v1/system/user/u-alice/authorities", env.login(t, "alice"), nil)
	assert.Equal(t, http.StatusForbidden, code, "缺少分配角色权限")
	assert.Equal(t, response.CodeForbidden, resp.Code)

	code, resp = env.call(t, http.MethodGet, "/api/v1/system/user/u-alice/authorities", rootToken, nil)
	require.Equal(t, http.StatusOK, code, resp.Msg)
	assert.Contains(t, string(resp.Data), `"roles":["common"]`)

	code, resp = env.call(t, http.MethodGet, "/api/v1/system/user/u-nobody/authorities", rootToken, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, response.CodeUserNotFound, resp.Code)

	code, resp = env.call(t, http.MethodPut, "/api/v1/system/user/u-alice/role", rootToken, gin.H{"role_code": model.RoleSuperAdmin})
	require.Equal(t, http.StatusOK, code, resp.Msg)
	assert.Contains(t, resp.Msg, "重新登录后生效")

	require.Len(t, env.operLog.entries, 1)
	entry := env.operLog.entries[0]
	assert.Equal(t, "分配角色", entry.Title)
	assert.Equal(t, model.OperStatusSuccess, entry.Status)
	assert.Contains(t, entry.OldValue, `"roles":["common"]`, "记录分配前的角色")
	assert.Contains(t, entry.Params, model.RoleSuperAdmin)

	code, resp = env.call(t, http.MethodPut, "/api/v1/system/user/u-alice/role", rootToken, gin.H{"role_code": model.RoleCommon})
	assert.Equal(t, http.StatusTooManyRequests, code, "间隔内重复提交")
	assert.Equal(t, response.CodeDuplicateSubmit, resp.Code)

	// 失败的请求会释放防重复提交占位
	code, resp = env.call(t, http.MethodPut, "/api/v1/system/user/u-bob/role", rootToken, gin.H{"role_code": "ghost"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "角色不存在", resp.Msg)
	code, resp = env.call(t, http.MethodPut, "/api/v1/system/user/u-bob/role", rootToken, gin.H{})
	assert.Equal(t, http.StatusBadRequest, code, "重试不被拦截")
	assert.Equal(t, response.CodeInvalidRequest, resp.Code)
}

func TestRBACHandler_AssignSuperAdminRequiresSuperAdmin(t *testing.T) {
	env := newTestEnv(t, false)
	carolToken := env.login(t, "carol")

	code, resp := env.call(t, http.MethodPut, "/api/v1/system/user/u-carol/role", carolToken, gin.H{"role_code": model.RoleSuperAdmin})
	assert.Equal(t, http.StatusForbidden, code, "不能给自己授予超级管理员")
	assert.Equal(t, response.CodeForbidden, resp.Code)

	code, resp = env.call(t, http.MethodPut, "/api/v1/system/user/u-bob/role", carolToken, gin.H{"role_code": model.RoleSuperAdmin})
	assert.Equal(t, http.StatusForbidden, code, "也不能授予他人")
	assert.Equal(t, response.CodeForbidden, resp.Code)

	code, resp = env.call(t, http.MethodGet, "/api/v1/system/user/u-carol/authorities", carolToken, nil)
	require.Equal(t, http.StatusOK, code, resp.Msg)
	assert.NotContains(t, string(resp.Data), model.RoleSuperAdmin, "角色未变")

	code, resp = env.call(t, http.MethodPut, "/api/v1/system/user/u-bob/role", carolToken, gin.H{"role_code": model.RoleCommon})
	assert.Equal(t, http.StatusOK, code, resp.Msg)
}
