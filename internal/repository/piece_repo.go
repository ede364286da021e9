package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yuqie6/drivestats/internal/schema"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PieceRepository 驱动盘、副词条与强化记录仓储
// 所有关联数据都通过显式查询加载，不依赖 gorm 关联预加载
type PieceRepository struct {
	db *gorm.DB
}

// NewPieceRepository 创建仓储
func NewPieceRepository(db *gorm.DB) *PieceRepository {
	return &PieceRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *PieceRepository) WithTx(tx *gorm.DB) *PieceRepository {
	return &PieceRepository{db: tx}
}

// Transaction 在事务中执行操作
func (r *PieceRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// PieceView 驱动盘及其套装名、主词条名
type PieceView struct {
	ID            int64
	SetID         int64
	SetName       string
	Position      int
	MainStatID    int64
	MainStatName  string
	MainStatLevel int
	TotalUpgrades int
	Substats      datatypes.JSONSlice[string]
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AffixView 副词条及其强化状态；没有强化记录时 RecordID 为 nil
type AffixView struct {
	SubstatID    int64
	DriveID      int64
	StatID       int64
	StatName     string
	RecordID     *int64
	UpgradeCount *int
	IsOriginal   *bool
}

const pieceViewSelect = "p.drive_id AS id, p.set_id, s.set_name, p.position, p.main_stat_id, " +
	"m.stat_name AS main_stat_name, p.main_stat_level, p.total_upgrades, p.substats, p.created_at, p.updated_at"

func (r *PieceRepository) viewQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("drive_pieces AS p").
		Select(pieceViewSelect).
		Joins("LEFT JOIN set_types s ON s.set_id = p.set_id").
		Joins("LEFT JOIN stat_types m ON m.stat_type_id = p.main_stat_id")
}

// Create 创建驱动盘
func (r *PieceRepository) Create(ctx context.Context, piece *schema.DrivePiece) error {
	if err := r.db.WithContext(ctx).Create(piece).Error; err != nil {
		return fmt.Errorf("创建驱动盘失败: %w", err)
	}
	return nil
}

// GetByID 获取驱动盘，不存在返回 nil
func (r *PieceRepository) GetByID(ctx context.Context, id int64) (*schema.DrivePiece, error) {
	var piece schema.DrivePiece
	err := r.db.WithContext(ctx).Where("drive_id = ?", id).First(&piece).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询驱动盘失败: %w", err)
	}
	return &piece, nil
}

// GetView 获取驱动盘视图，不存在返回 nil
func (r *PieceRepository) GetView(ctx context.Context, id int64) (*PieceView, error) {
	var views []PieceView
	if err := r.viewQuery(ctx).Where("p.drive_id = ?", id).Limit(1).Scan(&views).Error; err != nil {
		return nil, fmt.Errorf("查询驱动盘失败: %w", err)
	}
	if len(views) == 0 {
		return nil, nil
	}
	return &views[0], nil
}

// ListViews 分页获取驱动盘视图（按创建时间倒序）
func (r *PieceRepository) ListViews(ctx context.Context, offset, limit int) ([]PieceView, error) {
	var views []PieceView
	err := r.viewQuery(ctx).
		Order("p.created_at DESC, p.drive_id DESC").
		Offset(offset).
		Limit(limit).
		Scan(&views).Error
	if err != nil {
		return nil, fmt.Errorf("查询驱动盘列表失败: %w", err)
	}
	return views, nil
}

// Count 统计驱动盘数量
func (r *PieceRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&schema.DrivePiece{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("统计驱动盘失败: %w", err)
	}
	return count, nil
}

// AffixesFor 一次查询加载多个驱动盘的副词条及强化状态，按副词条 ID 升序
func (r *PieceRepository) AffixesFor(ctx context.Context, pieceIDs []int64) (map[int64][]AffixView, error) {
	out := make(map[int64][]AffixView, len(pieceIDs))
	if len(pieceIDs) == 0 {
		return out, nil
	}

	var rows []AffixView
	err := r.db.WithContext(ctx).
		Table("drive_piece_substats AS ds").
		Select("ds.id AS substat_id, ds.drive_id, ds.stat_id, st.stat_name, " +
			"u.upgrade_id AS record_id, u.upgrade_count, u.is_original").
		Joins("JOIN stat_types st ON st.stat_type_id = ds.stat_id").
		Joins("LEFT JOIN upgrade_records u ON u.substat_id = ds.id").
		Where("ds.drive_id IN ?", pieceIDs).
		Order("ds.drive_id ASC, ds.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询副词条失败: %w", err)
	}

	for _, row := range rows {
		out[row.DriveID] = append(out[row.DriveID], row)
	}
	return out, nil
}

// ListSubstats 获取驱动盘的副词条
func (r *PieceRepository) ListSubstats(ctx context.Context, pieceID int64) ([]schema.DrivePieceSubstat, error) {
	var subs []schema.DrivePieceSubstat
	if err := r.db.WithContext(ctx).Where("drive_id = ?", pieceID).Order("id ASC").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("查询副词条失败: %w", err)
	}
	return subs, nil
}

// GetSubstat 获取副词条，不存在返回 nil
func (r *PieceRepository) GetSubstat(ctx context.Context, id int64) (*schema.DrivePieceSubstat, error) {
	var sub schema.DrivePieceSubstat
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询副词条失败: %w", err)
	}
	return &sub, nil
}

// CreateSubstat 创建副词条
func (r *PieceRepository) CreateSubstat(ctx context.Context, sub *schema.DrivePieceSubstat) error {
	if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
		return fmt.Errorf("创建副词条失败: %w", err)
	}
	return nil
}

// UpgradeRecordFor 获取副词条的强化记录，不存在返回 nil
func (r *PieceRepository) UpgradeRecordFor(ctx context.Context, substatID int64) (*schema.UpgradeRecord, error) {
	var rec schema.UpgradeRecord
	err := r.db.WithContext(ctx).Where("substat_id = ?", substatID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询强化记录失败: %w", err)
	}
	return &rec, nil
}

// CreateUpgradeRecord 创建强化记录
func (r *PieceRepository) CreateUpgradeRecord(ctx context.Context, rec *schema.UpgradeRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("创建强化记录失败: %w", err)
	}
	return nil
}

// AddAffix 创建副词条及其强化记录
func (r *PieceRepository) AddAffix(ctx context.Context, pieceID, statID int64, isOriginal bool, upgradeCount int) (*schema.DrivePieceSubstat, *schema.UpgradeRecord, error) {
	sub := &schema.DrivePieceSubstat{DriveID: pieceID, StatID: statID}
	if err := r.CreateSubstat(ctx, sub); err != nil {
		return nil, nil, err
	}
	rec := &schema.UpgradeRecord{
		DriveID:      pieceID,
		SubstatID:    sub.ID,
		IsOriginal:   isOriginal,
		UpgradeCount: upgradeCount,
	}
	if err := r.CreateUpgradeRecord(ctx, rec); err != nil {
		return nil, nil, err
	}
	return sub, rec, nil
}

// IncrementUpgradeCount 强化记录 +1
func (r *PieceRepository) IncrementUpgradeCount(ctx context.Context, recordID int64) error {
	res := r.db.WithContext(ctx).
		Model(&schema.UpgradeRecord{}).
		Where("upgrade_id = ?", recordID).
		Updates(map[string]any{
			"upgrade_count": gorm.Expr("upgrade_count + 1"),
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("更新强化记录失败: %w", res.Error)
	}
	return nil
}

// DecrementUpgradeCount 强化记录 -1，已为 0 时不修改并返回 false
func (r *PieceRepository) DecrementUpgradeCount(ctx context.Context, recordID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&schema.UpgradeRecord{}).
		Where("upgrade_id = ? AND upgrade_count > 0", recordID).
		Updates(map[string]any{
			"upgrade_count": gorm.Expr("upgrade_count - 1"),
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("更新强化记录失败: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// IncrementTotalUpgrades 总强化次数 +1，已达上限时不修改并返回 false
func (r *PieceRepository) IncrementTotalUpgrades(ctx context.Context, pieceID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&schema.DrivePiece{}).
		Where("drive_id = ? AND total_upgrades < ?", pieceID, schema.MaxTotalUpgrades).
		Updates(map[string]any{
			"total_upgrades": gorm.Expr("total_upgrades + 1"),
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("更新强化次数失败: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DecrementTotalUpgrades 总强化次数 -1，已为 0 时不修改并返回 false
func (r *PieceRepository) DecrementTotalUpgrades(ctx context.Context, pieceID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&schema.DrivePiece{}).
		Where("drive_id = ? AND total_upgrades > 0", pieceID).
		Updates(map[string]any{
			"total_upgrades": gorm.Expr("total_upgrades - 1"),
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("更新强化次数失败: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// UpdateMainStat 更新主词条
func (r *PieceRepository) UpdateMainStat(ctx context.Context, pieceID, statID int64) error {
	err := r.db.WithContext(ctx).
		Model(&schema.DrivePiece{}).
		Where("drive_id = ?", pieceID).
		Updates(map[string]any{"main_stat_id": statID, "updated_at": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("更新主词条失败: %w", err)
	}
	return nil
}

// UpdateSubstatCache 覆盖副词条名称缓存
func (r *PieceRepository) UpdateSubstatCache(ctx context.Context, pieceID int64, names []string) error {
	err := r.db.WithContext(ctx).
		Model(&schema.DrivePiece{}).
		Where("drive_id = ?", pieceID).
		Update("substats", datatypes.NewJSONSlice(names)).Error
	if err != nil {
		return fmt.Errorf("更新副词条缓存失败: %w", err)
	}
	return nil
}

// ClearAffixes 删除驱动盘的全部副词条与强化记录，并将总强化次数归零
func (r *PieceRepository) ClearAffixes(ctx context.Context, pieceID int64) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("drive_id = ?", pieceID).Delete(&schema.UpgradeRecord{}).Error; err != nil {
		return fmt.Errorf("删除强化记录失败: %w", err)
	}
	if err := db.Where("drive_id = ?", pieceID).Delete(&schema.DrivePieceSubstat{}).Error; err != nil {
		return fmt.Errorf("删除副词条失败: %w", err)
	}
	err := db.Model(&schema.DrivePiece{}).
		Where("drive_id = ?", pieceID).
		Updates(map[string]any{"total_upgrades": 0, "updated_at": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("重置强化次数失败: %w", err)
	}
	return nil
}

// Delete 删除驱动盘及其副词条、强化记录，不存在时返回 false
func (r *PieceRepository) Delete(ctx context.Context, pieceID int64) (bool, error) {
	db := r.db.WithContext(ctx)
	if err := db.Where("drive_id = ?", pieceID).Delete(&schema.UpgradeRecord{}).Error; err != nil {
		return false, fmt.Errorf("删除强化记录失败: %w", err)
	}
	if err := db.Where("drive_id = ?", pieceID).Delete(&schema.DrivePieceSubstat{}).Error; err != nil {
		return false, fmt.Errorf("删除副词条失败: %w", err)
	}
	res := db.Where("drive_id = ?", pieceID).Delete(&schema.DrivePiece{})
	if res.Error != nil {
		return false, fmt.Errorf("删除驱动盘失败: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// UpgradeSums 每个驱动盘的强化记录合计，用于一致性校验
func (r *PieceRepository) UpgradeSums(ctx context.Context) (map[int64]int, error) {
	type row struct {
		DriveID int64
		Total   int
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&schema.UpgradeRecord{}).
		Select("drive_id, SUM(upgrade_count) AS total").
		Group("drive_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("统计强化记录失败: %w", err)
	}
	out := make(map[int64]int, len(rows))
	for _, r := range rows {
		out[r.DriveID] = r.Total
	}
	return out, nil
}
