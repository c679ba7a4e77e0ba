package model

// Principal 登录主体快照
// 登录成功时构建并写入会话注册表，之后只读；重新登录时整体替换
type Principal struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	Nickname    string   `json:"nickname"`
	DeptID      string   `json:"dept_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Enabled     bool     `json:"enabled"`

	// 设备信息
	IP      string `json:"ip"`
	Browser string `json:"browser"`
	OS      string `json:"os"`

	LoginTime  int64  `json:"login_time"`  // 毫秒时间戳，0 表示未知
	ExpireTime int64  `json:"expire_time"` // 毫秒时间戳
	SessionID  string `json:"session_id"`  // 令牌摘要，即会话标识
}

// HasRole 是否拥有角色
func (p *Principal) HasRole(code string) bool {
	return contains(p.Roles, code)
}

// HasPermissionCode 是否精确拥有权限代码
func (p *Principal) HasPermissionCode(code string) bool {
	return contains(p.Permissions, code)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
