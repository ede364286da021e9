package schema

import "time"

// UpgradeRecord 副词条强化记录，与副词条一一对应
// 同一驱动盘所有记录的 UpgradeCount 之和等于 DrivePiece.TotalUpgrades
type UpgradeRecord struct {
	ID           int64     `gorm:"column:upgrade_id;primaryKey;autoIncrement" json:"upgrade_id"`
	DriveID      int64     `gorm:"column:drive_id;not null;uniqueIndex:unique_drive_substat_upgrade" json:"drive_id"`
	SubstatID    int64     `gorm:"column:substat_id;not null;uniqueIndex:unique_drive_substat_upgrade" json:"substat_id"`
	IsOriginal   bool      `gorm:"not null" json:"is_original"` // 创建时即存在的词条
	UpgradeCount int       `gorm:"not null;default:0" json:"upgrade_count"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (UpgradeRecord) TableName() string {
	return "upgrade_records"
}
