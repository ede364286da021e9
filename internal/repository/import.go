package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuqie6/drivestats/internal/schema"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	importBatchSize = 200
	importInChunk   = 500
)

// ImportResult 导入结果，计数均为实际写入的行数
type ImportResult struct {
	SetTypes        int
	StatTypes       int
	Pieces          int
	Substats        int
	UpgradeRecords  int
	RebuiltRecords  int // 源库缺失、按 0 次强化补建的记录
	SkippedPieces   int // 目标库已存在同 ID 驱动盘
	SkippedSubstats int // 指向不存在驱动盘、或随驱动盘一起跳过的副词条
}

type importSource struct {
	sets    []schema.SetType
	stats   []schema.StatType
	pieces  []schema.DrivePiece
	subs    []schema.DrivePieceSubstat
	records map[int64]schema.UpgradeRecord // substat_id -> 记录
}

// ImportFrom 从另一个库（表结构相同）复制数据到 dst
// replace=true 时先清空 dst；否则目标库已存在同 ID 的驱动盘连同其副词条、强化记录一起跳过
// 套装与词条按名称对应到目标库，副词条与强化记录在目标库重新分配主键
// 缺失的强化记录按 is_original=true、upgrade_count=0 补建，total_upgrades 按强化记录重新计算
func ImportFrom(ctx context.Context, src, dst *gorm.DB, source string, replace bool) (*ImportResult, error) {
	if src == nil || dst == nil {
		return nil, fmt.Errorf("数据库不能为空")
	}
	data, err := readImportSource(src.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	res := &ImportResult{}
	err = dst.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if replace {
			if err := clearAll(tx); err != nil {
				return err
			}
		}
		setIDs, err := importSetTypes(tx, data.sets, res)
		if err != nil {
			return err
		}
		statIDs, statNames, err := importStatTypes(tx, data.stats, res)
		if err != nil {
			return err
		}
		if err := importPieces(tx, data, setIDs, statIDs, statNames, res); err != nil {
			return err
		}

		now := time.Now()
		return tx.Model(&schema.SchemaMeta{}).
			Where("id = ?", 1).
			Updates(map[string]any{"imported_from": RedactDSN(source), "imported_at": &now}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("导入数据失败: %w", err)
	}

	slog.Info("数据导入完成",
		"source", RedactDSN(source),
		"set_types", res.SetTypes,
		"stat_types", res.StatTypes,
		"pieces", res.Pieces,
		"substats", res.Substats,
		"upgrade_records", res.UpgradeRecords,
		"rebuilt_records", res.RebuiltRecords,
		"skipped_pieces", res.SkippedPieces,
		"skipped_substats", res.SkippedSubstats,
	)
	return res, nil
}

func readImportSource(db *gorm.DB) (*importSource, error) {
	out := &importSource{}
	if err := db.Order("set_id ASC").Find(&out.sets).Error; err != nil {
		return nil, fmt.Errorf("读取源库套装失败: %w", err)
	}
	if err := db.Order("stat_type_id ASC").Find(&out.stats).Error; err != nil {
		return nil, fmt.Errorf("读取源库词条失败: %w", err)
	}
	if err := db.Order("drive_id ASC").Find(&out.pieces).Error; err != nil {
		return nil, fmt.Errorf("读取源库驱动盘失败: %w", err)
	}
	if err := db.Order("id ASC").Find(&out.subs).Error; err != nil {
		return nil, fmt.Errorf("读取源库副词条失败: %w", err)
	}

	var records []schema.UpgradeRecord
	if db.Migrator().HasTable(&schema.UpgradeRecord{}) {
		if err := db.Order("upgrade_id ASC").Find(&records).Error; err != nil {
			return nil, fmt.Errorf("读取源库强化记录失败: %w", err)
		}
	} else {
		slog.Warn("源库没有强化记录表，将全部按 0 次强化补建")
	}
	out.records = make(map[int64]schema.UpgradeRecord, len(records))
	for _, rec := range records {
		out.records[rec.SubstatID] = rec
	}
	return out, nil
}

// importSetTypes 返回 源库 set_id -> 目标库 set_id
func importSetTypes(tx *gorm.DB, sets []schema.SetType, res *ImportResult) (map[int64]int64, error) {
	var existing []schema.SetType
	if err := tx.Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("读取目标库套装失败: %w", err)
	}
	byName := make(map[string]int64, len(existing))
	for _, s := range existing {
		byName[s.Name] = s.ID
	}

	ids := make(map[int64]int64, len(sets))
	for _, s := range sets {
		if id, ok := byName[s.Name]; ok {
			ids[s.ID] = id
			continue
		}
		row := schema.SetType{Name: s.Name, TwoPieceEffect: s.TwoPieceEffect, FourPieceEffect: s.FourPieceEffect}
		if err := tx.Create(&row).Error; err != nil {
			return nil, fmt.Errorf("写入套装失败: %w", err)
		}
		byName[row.Name] = row.ID
		ids[s.ID] = row.ID
		res.SetTypes++
	}
	return ids, nil
}

// importStatTypes 返回 源库 stat_type_id -> 目标库 stat_type_id，以及 源库 ID -> 名称
func importStatTypes(tx *gorm.DB, stats []schema.StatType, res *ImportResult) (map[int64]int64, map[int64]string, error) {
	var existing []schema.StatType
	if err := tx.Find(&existing).Error; err != nil {
		return nil, nil, fmt.Errorf("读取目标库词条失败: %w", err)
	}
	byName := make(map[string]int64, len(existing))
	for _, s := range existing {
		byName[s.Name] = s.ID
	}

	ids := make(map[int64]int64, len(stats))
	names := make(map[int64]string, len(stats))
	for _, s := range stats {
		names[s.ID] = s.Name
		if id, ok := byName[s.Name]; ok {
			ids[s.ID] = id
			continue
		}
		row := schema.StatType{Name: s.Name, Category: schema.NormalizeStatCategory(s.Category)}
		if err := tx.Create(&row).Error; err != nil {
			return nil, nil, fmt.Errorf("写入词条失败: %w", err)
		}
		byName[row.Name] = row.ID
		ids[s.ID] = row.ID
		res.StatTypes++
	}
	return ids, names, nil
}

// existingPieceIDs 目标库中已存在的驱动盘 ID
func existingPieceIDs(tx *gorm.DB, pieces []schema.DrivePiece) (map[int64]bool, error) {
	out := make(map[int64]bool)
	for start := 0; start < len(pieces); start += importInChunk {
		end := min(start+importInChunk, len(pieces))
		ids := make([]int64, 0, end-start)
		for _, p := range pieces[start:end] {
			ids = append(ids, p.ID)
		}
		var found []int64
		if err := tx.Model(&schema.DrivePiece{}).Where("drive_id IN ?", ids).Pluck("drive_id", &found).Error; err != nil {
			return nil, fmt.Errorf("读取目标库驱动盘失败: %w", err)
		}
		for _, id := range found {
			out[id] = true
		}
	}
	return out, nil
}

func importPieces(tx *gorm.DB, data *importSource, setIDs, statIDs map[int64]int64, statNames map[int64]string, res *ImportResult) error {
	taken, err := existingPieceIDs(tx, data.pieces)
	if err != nil {
		return err
	}

	kept := make([]schema.DrivePiece, 0, len(data.pieces))
	keep := make(map[int64]bool, len(data.pieces))
	for _, p := range data.pieces {
		if taken[p.ID] {
			res.SkippedPieces++
			continue
		}
		setID, ok := setIDs[p.SetID]
		if !ok {
			return fmt.Errorf("驱动盘 %d 引用了不存在的套装 %d", p.ID, p.SetID)
		}
		mainID, ok := statIDs[p.MainStatID]
		if !ok {
			return fmt.Errorf("驱动盘 %d 引用了不存在的主词条 %d", p.ID, p.MainStatID)
		}
		p.SetID = setID
		p.MainStatID = mainID
		if p.MainStatLevel == 0 {
			p.MainStatLevel = schema.DefaultMainStatLevel
		}
		kept = append(kept, p)
		keep[p.ID] = true
	}

	// 只保留随驱动盘一起写入的副词条，同一驱动盘重复的词条只取第一条
	subs := make([]schema.DrivePieceSubstat, 0, len(data.subs))
	seen := make(map[[2]int64]bool, len(data.subs))
	perPiece := make(map[int64]int, len(kept))
	for _, s := range data.subs {
		if !keep[s.DriveID] {
			res.SkippedSubstats++
			continue
		}
		statID, ok := statIDs[s.StatID]
		if !ok {
			return fmt.Errorf("副词条 %d 引用了不存在的词条 %d", s.ID, s.StatID)
		}
		key := [2]int64{s.DriveID, statID}
		if seen[key] {
			res.SkippedSubstats++
			continue
		}
		seen[key] = true
		perPiece[s.DriveID]++
		if perPiece[s.DriveID] > schema.MaxSubstats {
			return fmt.Errorf("驱动盘 %d 副词条数量超过上限 %d", s.DriveID, schema.MaxSubstats)
		}
		subs = append(subs, s)
	}

	sums := make(map[int64]int, len(kept))
	names := make(map[int64][]string, len(kept))
	for _, s := range subs {
		if rec, ok := data.records[s.ID]; ok && rec.DriveID == s.DriveID && rec.UpgradeCount >= 0 {
			sums[s.DriveID] += rec.UpgradeCount
		}
		names[s.DriveID] = append(names[s.DriveID], statNames[s.StatID])
	}
	for i := range kept {
		total := sums[kept[i].ID]
		if total > schema.MaxTotalUpgrades {
			return fmt.Errorf("驱动盘 %d 强化记录合计 %d 超过上限 %d", kept[i].ID, total, schema.MaxTotalUpgrades)
		}
		kept[i].TotalUpgrades = total
		kept[i].Substats = datatypes.NewJSONSlice(names[kept[i].ID])
	}

	if len(kept) > 0 {
		r := tx.CreateInBatches(&kept, importBatchSize)
		if r.Error != nil {
			return fmt.Errorf("写入驱动盘失败: %w", r.Error)
		}
		res.Pieces = int(r.RowsAffected)
	}
	// 驱动盘保留原主键，PostgreSQL 序列需要对齐
	if tx.Dialector.Name() == DialectPostgres {
		if err := resetSequences(tx); err != nil {
			return err
		}
	}

	rows := make([]schema.DrivePieceSubstat, len(subs))
	for i, s := range subs {
		rows[i] = schema.DrivePieceSubstat{DriveID: s.DriveID, StatID: statIDs[s.StatID], CreatedAt: s.CreatedAt}
	}
	if len(rows) > 0 {
		r := tx.CreateInBatches(&rows, importBatchSize)
		if r.Error != nil {
			return fmt.Errorf("写入副词条失败: %w", r.Error)
		}
		res.Substats = int(r.RowsAffected)
	}

	var records, rebuilt []schema.UpgradeRecord
	for i, s := range subs {
		newID := rows[i].ID
		rec, ok := data.records[s.ID]
		if !ok || rec.DriveID != s.DriveID || rec.UpgradeCount < 0 {
			rebuilt = append(rebuilt, schema.UpgradeRecord{DriveID: s.DriveID, SubstatID: newID, IsOriginal: true})
			continue
		}
		records = append(records, schema.UpgradeRecord{
			DriveID:      s.DriveID,
			SubstatID:    newID,
			IsOriginal:   rec.IsOriginal,
			UpgradeCount: rec.UpgradeCount,
			CreatedAt:    rec.CreatedAt,
		})
	}
	if len(records) > 0 {
		r := tx.CreateInBatches(&records, importBatchSize)
		if r.Error != nil {
			return fmt.Errorf("写入强化记录失败: %w", r.Error)
		}
		res.UpgradeRecords = int(r.RowsAffected)
	}
	if len(rebuilt) > 0 {
		r := tx.CreateInBatches(&rebuilt, importBatchSize)
		if r.Error != nil {
			return fmt.Errorf("补建强化记录失败: %w", r.Error)
		}
		res.RebuiltRecords = int(r.RowsAffected)
	}
	return nil
}

// clearAll 按依赖倒序清空业务表
func clearAll(tx *gorm.DB) error {
	models := []any{
		&schema.UpgradeRecord{},
		&schema.DrivePieceSubstat{},
		&schema.DrivePiece{},
		&schema.StatType{},
		&schema.SetType{},
	}
	for _, m := range models {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
			return fmt.Errorf("清空数据失败: %w", err)
		}
	}
	return nil
}

// resetSequences 显式写入主键后，PostgreSQL 序列需要对齐到当前最大值
func resetSequences(tx *gorm.DB) error {
	seqs := []struct{ table, column string }{
		{"set_types", "set_id"},
		{"stat_types", "stat_type_id"},
		{"drive_pieces", "drive_id"},
		{"drive_piece_substats", "id"},
		{"upgrade_records", "upgrade_id"},
	}
	for _, s := range seqs {
		sql := fmt.Sprintf(
			"SELECT setval(pg_get_serial_sequence('%s', '%s'), COALESCE(MAX(%s), 0) + 1, false) FROM %s",
			s.table, s.column, s.column, s.table,
		)
		if err := tx.Exec(sql).Error; err != nil {
			return fmt.Errorf("重置序列 %s 失败: %w", s.table, err)
		}
	}
	return nil
}
