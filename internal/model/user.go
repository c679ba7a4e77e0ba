package model

// User 用户模型
type User struct {
	BaseModel
	Username     string `gorm:"type:varchar(100);uniqueIndex" json:"username"`
	Nickname     string `gorm:"type:varchar(100)" json:"nickname"`
	Email        string `gorm:"type:varchar(255);index" json:"email,omitempty"`
	Phone        string `gorm:"type:varchar(20);index" json:"phone,omitempty"`
	PasswordHash string `gorm:"type:varchar(255)" json:"-"`
	DeptID       string `gorm:"type:char(36);index" json:"dept_id"`
	Status       string `gorm:"type:varchar(20);default:active" json:"status"`

	// 关联
	Dept *Dept `gorm:"foreignKey:DeptID" json:"dept,omitempty"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// IsActive 检查用户是否启用
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}
