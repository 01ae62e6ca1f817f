package sqlstore

import (
	"time"

	"gorm.io/datatypes"
)

// ObjectModel 是 core.Node 在关系型数据库中的投影
// Data 存完整的 canonical body，读回时据此还原节点；Type / Links 冗余出来方便用 SQL 排查
type ObjectModel struct {
	// ID 是主键 (内容哈希)
	ID string `gorm:"primaryKey;type:varchar(255)"`

	Type string `gorm:"index;type:varchar(32)"`

	// Links: 子节点 ID 列表 ["hash1", "hash2"]
	Links datatypes.JSON

	Data []byte `gorm:"not null"`
	Size int

	CreatedAt time.Time
}

// TableName 强制指定表名
func (ObjectModel) TableName() string {
	return "objects"
}
