package schema

import "time"

// SchemaMeta 单行表（ID=1），记录 schema 版本与最近一次数据导入
type SchemaMeta struct {
	ID            int    `gorm:"primaryKey"`
	SchemaVersion int    `gorm:"not null"`
	ImportedFrom  string `gorm:"size:255"` // 最近一次 import 的来源（已去除口令）
	ImportedAt    *time.Time
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (SchemaMeta) TableName() string {
	return "schema_meta"
}
