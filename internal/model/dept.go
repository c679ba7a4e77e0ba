package model

// Dept 部门模型
// 部门以 ParentID 组成森林，根部门 ParentID 为空
type Dept struct {
	BaseModel
	ParentID string `gorm:"type:char(36);index" json:"parent_id"`
	Name     string `gorm:"type:varchar(100);not null" json:"name"`
	OrderNum int    `gorm:"default:0" json:"order_num"`
	Leader   string `gorm:"type:varchar(50)" json:"leader,omitempty"`
	Status   string `gorm:"type:varchar(20);default:active" json:"status"`
}

// TableName 指定表名
func (Dept) TableName() string {
	return "depts"
}

// DeptNode 部门树快照中的节点，仅包含计算数据范围所需字段
type DeptNode struct {
	ID       string
	ParentID string
}
