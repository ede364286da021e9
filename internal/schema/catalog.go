package schema

import (
	"time"
)

// SetType 驱动盘套装
// 数据量级：十级，初始化后只读
type SetType struct {
	ID              int64     `gorm:"column:set_id;primaryKey;autoIncrement" json:"set_id"`
	Name            string    `gorm:"column:set_name;size:50;uniqueIndex;not null" json:"set_name"`
	TwoPieceEffect  string    `gorm:"column:two_piece_effect;type:text" json:"two_piece_effect"`   // 二件套效果
	FourPieceEffect string    `gorm:"column:four_piece_effect;type:text" json:"four_piece_effect"` // 四件套效果
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (SetType) TableName() string {
	return "set_types"
}

// 词条可出现的位置
const (
	StatCategoryMain = "main"
	StatCategorySub  = "sub"
	StatCategoryBoth = "both"
)

// StatType 词条类型（主词条与副词条共用一张表）
type StatType struct {
	ID        int64     `gorm:"column:stat_type_id;primaryKey;autoIncrement" json:"stat_type_id"`
	Name      string    `gorm:"column:stat_name;size:50;uniqueIndex;not null" json:"stat_name"`
	Category  string    `gorm:"column:stat_type;size:10;default:both" json:"stat_type"` // main, sub, both
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (StatType) TableName() string {
	return "stat_types"
}

// NormalizeStatCategory 未知或为空的分类统一视为 both
func NormalizeStatCategory(c string) string {
	switch c {
	case StatCategoryMain, StatCategorySub, StatCategoryBoth:
		return c
	default:
		return StatCategoryBoth
	}
}
