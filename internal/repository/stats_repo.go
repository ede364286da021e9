package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/drivestats/internal/schema"
	"gorm.io/gorm"
)

// StatsRepository 统计查询仓储（全部为聚合查询，不加载实体）
type StatsRepository struct {
	db *gorm.DB
}

// NewStatsRepository 创建仓储
func NewStatsRepository(db *gorm.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// NameCount 名称计数
type NameCount struct {
	Name  string
	Count int64
}

// IntCount 整数键计数
type IntCount struct {
	Bucket int
	Count  int64
}

// PositionNameCount 部位 + 名称计数
type PositionNameCount struct {
	Position int
	Name     string
	Count    int64
}

// MatchExample 命中配对的驱动盘摘要
type MatchExample struct {
	DriveID  int64
	SetName  string
	Position int
	MainStat string
}

// CountPieces 驱动盘总数
func (r *StatsRepository) CountPieces(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&schema.DrivePiece{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("统计驱动盘失败: %w", err)
	}
	return n, nil
}

// CountSubstats 副词条总数
func (r *StatsRepository) CountSubstats(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&schema.DrivePieceSubstat{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("统计副词条失败: %w", err)
	}
	return n, nil
}

// ByPosition 按部位统计
func (r *StatsRepository) ByPosition(ctx context.Context) ([]IntCount, error) {
	var rows []IntCount
	err := r.db.WithContext(ctx).
		Model(&schema.DrivePiece{}).
		Select("position AS bucket, COUNT(*) AS count").
		Group("position").
		Order("position ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("按部位统计失败: %w", err)
	}
	return rows, nil
}

// BySet 按套装统计
func (r *StatsRepository) BySet(ctx context.Context) ([]NameCount, error) {
	var rows []NameCount
	err := r.db.WithContext(ctx).
		Table("drive_pieces AS p").
		Select("s.set_name AS name, COUNT(p.drive_id) AS count").
		Joins("JOIN set_types s ON s.set_id = p.set_id").
		Group("s.set_name").
		Order("count DESC, s.set_name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("按套装统计失败: %w", err)
	}
	return rows, nil
}

// ByMainStat 按主词条统计（全部部位）
func (r *StatsRepository) ByMainStat(ctx context.Context) ([]NameCount, error) {
	var rows []NameCount
	err := r.db.WithContext(ctx).
		Table("drive_pieces AS p").
		Select("m.stat_name AS name, COUNT(p.drive_id) AS count").
		Joins("JOIN stat_types m ON m.stat_type_id = p.main_stat_id").
		Group("m.stat_name").
		Order("count DESC, m.stat_name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("按主词条统计失败: %w", err)
	}
	return rows, nil
}

// ByPositionMainStat 按部位和主词条统计
func (r *StatsRepository) ByPositionMainStat(ctx context.Context) ([]PositionNameCount, error) {
	var rows []PositionNameCount
	err := r.db.WithContext(ctx).
		Table("drive_pieces AS p").
		Select("p.position, m.stat_name AS name, COUNT(p.drive_id) AS count").
		Joins("JOIN stat_types m ON m.stat_type_id = p.main_stat_id").
		Group("p.position, m.stat_name").
		Order("p.position ASC, count DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("按部位统计主词条失败: %w", err)
	}
	return rows, nil
}

// SubstatFrequency 副词条出现次数
func (r *StatsRepository) SubstatFrequency(ctx context.Context) ([]NameCount, error) {
	var rows []NameCount
	err := r.db.WithContext(ctx).
		Table("drive_piece_substats AS ds").
		Select("st.stat_name AS name, COUNT(ds.id) AS count").
		Joins("JOIN stat_types st ON st.stat_type_id = ds.stat_id").
		Group("st.stat_name").
		Order("count DESC, st.stat_name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("统计副词条频率失败: %w", err)
	}
	return rows, nil
}

// ByUpgradeLevel 按总强化次数统计
func (r *StatsRepository) ByUpgradeLevel(ctx context.Context) ([]IntCount, error) {
	var rows []IntCount
	err := r.db.WithContext(ctx).
		Model(&schema.DrivePiece{}).
		Select("total_upgrades AS bucket, COUNT(*) AS count").
		Group("total_upgrades").
		Order("total_upgrades ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("按强化次数统计失败: %w", err)
	}
	return rows, nil
}

// BySubstatCount 按每件驱动盘的副词条数量统计
// 没有副词条的驱动盘不计入
func (r *StatsRepository) BySubstatCount(ctx context.Context) ([]IntCount, error) {
	db := r.db.WithContext(ctx)
	perPiece := db.Model(&schema.DrivePieceSubstat{}).
		Select("drive_id, COUNT(*) AS n").
		Group("drive_id")

	var rows []IntCount
	err := db.Table("(?) AS c", perPiece).
		Select("c.n AS bucket, COUNT(*) AS count").
		Group("c.n").
		Order("c.n ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("按副词条数量统计失败: %w", err)
	}
	return rows, nil
}

// PiecesWithStat 含指定副词条的驱动盘数量
func (r *StatsRepository) PiecesWithStat(ctx context.Context, statID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&schema.DrivePieceSubstat{}).
		Where("stat_id = ?", statID).
		Distinct("drive_id").
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("统计词条出现次数失败: %w", err)
	}
	return n, nil
}

// matchingQuery 同时拥有全部 statIDs 的驱动盘 ID 子查询
func (r *StatsRepository) matchingQuery(ctx context.Context, statIDs []int64) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&schema.DrivePieceSubstat{}).
		Select("drive_id").
		Where("stat_id IN ?", statIDs).
		Group("drive_id").
		Having("COUNT(DISTINCT stat_id) = ?", len(statIDs))
}

// PiecesWithAll 同时拥有全部 statIDs 的驱动盘数量
func (r *StatsRepository) PiecesWithAll(ctx context.Context, statIDs []int64) (int64, error) {
	if len(statIDs) == 0 {
		return 0, nil
	}
	var n int64
	err := r.db.WithContext(ctx).
		Table("(?) AS m", r.matchingQuery(ctx, statIDs)).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("统计配对驱动盘失败: %w", err)
	}
	return n, nil
}

// MatchingExamples 同时拥有全部 statIDs 的驱动盘摘要，按 ID 升序，最多 limit 条
func (r *StatsRepository) MatchingExamples(ctx context.Context, statIDs []int64, limit int) ([]MatchExample, error) {
	if len(statIDs) == 0 || limit <= 0 {
		return nil, nil
	}
	var rows []MatchExample
	err := r.db.WithContext(ctx).
		Table("drive_pieces AS p").
		Select("p.drive_id, COALESCE(s.set_name, '未知') AS set_name, p.position, COALESCE(m.stat_name, '未知') AS main_stat").
		Joins("LEFT JOIN set_types s ON s.set_id = p.set_id").
		Joins("LEFT JOIN stat_types m ON m.stat_type_id = p.main_stat_id").
		Where("p.drive_id IN (?)", r.matchingQuery(ctx, statIDs)).
		Order("p.drive_id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询配对示例失败: %w", err)
	}
	return rows, nil
}
