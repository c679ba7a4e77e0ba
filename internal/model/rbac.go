package model

// Role 角色模型
type Role struct {
	BaseModel
	Name        string `gorm:"type:varchar(100);not null" json:"name"`        // 角色名称
	Code        string `gorm:"type:varchar(50);uniqueIndex" json:"code"`      // 角色代码，如 admin, common
	Description string `gorm:"type:varchar(500)" json:"description"`          // 角色描述
	IsSystem    bool   `gorm:"default:false" json:"is_system"`                // 是否系统内置角色
	Status      string `gorm:"type:varchar(20);default:active" json:"status"` // 状态

	// 关联
	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions,omitempty"`
}

// TableName 指定表名
func (Role) TableName() string {
	return "roles"
}

// IsActive 检查角色是否启用
func (r *Role) IsActive() bool {
	return r.Status == StatusActive
}

// Permission 权限模型
// 权限代码格式：模块:资源:操作，如 system:user:list
type Permission struct {
	BaseModel
	Code        string `gorm:"type:varchar(150);uniqueIndex" json:"code"`
	Name        string `gorm:"type:varchar(100)" json:"name"`
	Description string `gorm:"type:varchar(500)" json:"description"`
	IsSystem    bool   `gorm:"default:false" json:"is_system"`
}

// TableName 指定表名
func (Permission) TableName() string {
	return "permissions"
}

// UserRole 用户角色关联模型，同一用户同一角色只有一行
type UserRole struct {
	BaseModel
	UserID string `gorm:"type:char(36);not null;uniqueIndex:idx_user_role" json:"user_id"`       // 用户 ID
	RoleID string `gorm:"type:char(36);not null;index;uniqueIndex:idx_user_role" json:"role_id"` // 角色 ID

	// 关联
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role *Role `gorm:"foreignKey:RoleID" json:"role,omitempty"`
}

// TableName 指定表名
func (UserRole) TableName() string {
	return "user_roles"
}

// RolePermission 角色权限关联模型（GORM 自动创建，这里显式定义以便查询）
type RolePermission struct {
	RoleID       string `gorm:"type:char(36);primaryKey" json:"role_id"`
	PermissionID string `gorm:"type:char(36);primaryKey" json:"permission_id"`
}

// TableName 指定表名
func (RolePermission) TableName() string {
	return "role_permissions"
}

// 系统内置角色代码
const (
	RoleSuperAdmin = "admin"  // 超级管理员
	RoleCommon     = "common" // 普通角色
)

// PermissionAll 通配权限，拥有者视为超级管理员
const PermissionAll = "*:*:*"

// 系统内置权限代码
const (
	PermUserList          = "system:user:list"
	PermOnlineList        = "system:online:list"
	PermOnlineForceLogout = "system:online:forceLogout"
	PermUserRoleAssign    = "system:user:role"
)

// DefaultSystemPermissions 系统默认权限列表
func DefaultSystemPermissions() []Permission {
	return []Permission{
		{Code: PermissionAll, Name: "全部权限", Description: "通配所有权限", IsSystem: true},
		{Code: PermUserList, Name: "用户查询", Description: "按数据范围查询用户", IsSystem: true},
		{Code: PermOnlineList, Name: "在线用户查询", Description: "查看所有在线会话", IsSystem: true},
		{Code: PermOnlineForceLogout, Name: "强制退出", Description: "强制下线任意会话", IsSystem: true},
		{Code: PermUserRoleAssign, Name: "分配角色", Description: "查看与分配用户角色", IsSystem: true},
	}
}

// DefaultSystemRoles 系统默认角色列表
func DefaultSystemRoles() []Role {
	return []Role{
		{
			Name:        "超级管理员",
			Code:        RoleSuperAdmin,
			Description: "拥有系统所有权限，不受数据范围限制",
			IsSystem:    true,
			Status:      StatusActive,
		},
		{
			Name:        "普通角色",
			Code:        RoleCommon,
			Description: "仅可查看本部门及下级部门数据",
			IsSystem:    true,
			Status:      StatusActive,
		},
	}
}
