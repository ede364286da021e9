package schema

import (
	"time"

	"gorm.io/datatypes"
)

const (
	MinPosition = 1
	MaxPosition = 6

	// MaxTotalUpgrades 单个驱动盘的强化上限
	MaxTotalUpgrades = 5

	// 创建时副词条数量范围
	MinInitialSubstats = 3
	MaxSubstats        = 4

	// 编辑时允许整体替换为 1-4 个副词条
	MinReplaceSubstats = 1

	DefaultMainStatLevel = 15
)

// DrivePiece 驱动盘
// Substats 只是副词条名称的冗余缓存，读取时以 drive_piece_substats 为准
type DrivePiece struct {
	ID            int64                       `gorm:"column:drive_id;primaryKey;autoIncrement" json:"drive_id"`
	SetID         int64                       `gorm:"column:set_id;not null;index" json:"set_id"`
	Position      int                         `gorm:"not null;index" json:"position"` // 1-6 号位
	MainStatID    int64                       `gorm:"column:main_stat_id;not null;index" json:"main_stat_id"`
	MainStatLevel int                         `gorm:"default:15" json:"main_stat_level"`
	TotalUpgrades int                         `gorm:"not null;default:0;index" json:"total_upgrades"` // 0-5
	Substats      datatypes.JSONSlice[string] `gorm:"column:substats" json:"substats"`
	CreatedAt     time.Time                   `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (DrivePiece) TableName() string {
	return "drive_pieces"
}

// ValidPosition 检查位置是否在 1-6 之间
func ValidPosition(p int) bool {
	return p >= MinPosition && p <= MaxPosition
}

// DrivePieceSubstat 驱动盘副词条
// 同一驱动盘上同一词条只能出现一次
type DrivePieceSubstat struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DriveID   int64     `gorm:"column:drive_id;not null;uniqueIndex:unique_drive_substat" json:"drive_id"`
	StatID    int64     `gorm:"column:stat_id;not null;uniqueIndex:unique_drive_substat;index" json:"stat_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (DrivePieceSubstat) TableName() string {
	return "drive_piece_substats"
}
