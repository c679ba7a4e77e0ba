package model

import "time"

// 登录状态
const (
	LoginStatusSuccess = 0
	LoginStatusFail    = 1
)

// 操作状态
const (
	OperStatusSuccess = 0
	OperStatusFail    = 1
)

// LoginLog 登录日志
type LoginLog struct {
	BaseModel
	Username  string    `gorm:"type:varchar(100);index" json:"username"`
	Status    int       `gorm:"default:0" json:"status"`
	IP        string    `gorm:"type:varchar(64)" json:"ip"`
	Browser   string    `gorm:"type:varchar(64)" json:"browser"`
	OS        string    `gorm:"type:varchar(64)" json:"os"`
	Message   string    `gorm:"type:varchar(255)" json:"message"`
	UserAgent string    `gorm:"type:varchar(500)" json:"user_agent"`
	LoginTime time.Time `gorm:"index" json:"login_time"`
}

// TableName 指定表名
func (LoginLog) TableName() string {
	return "login_logs"
}

// OperLog 操作审计日志
type OperLog struct {
	BaseModel
	Title         string    `gorm:"type:varchar(100)" json:"title"`
	Route         string    `gorm:"type:varchar(255)" json:"route"`
	RequestMethod string    `gorm:"type:varchar(10)" json:"request_method"`
	URL           string    `gorm:"type:varchar(500)" json:"url"`
	Params        string    `gorm:"type:text" json:"params"`
	OldValue      string    `gorm:"type:text" json:"old_value"`
	Result        string    `gorm:"type:text" json:"result"`
	Status        int       `gorm:"default:0" json:"status"`
	ErrorMsg      string    `gorm:"type:varchar(2000)" json:"error_msg"`
	Username      string    `gorm:"type:varchar(100);index" json:"username"`
	IP            string    `gorm:"type:varchar(64)" json:"ip"`
	CostMs        int64     `json:"cost_ms"`
	OperTime      time.Time `gorm:"index" json:"oper_time"`
}

// TableName 指定表名
func (OperLog) TableName() string {
	return "oper_logs"
}
