package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yuqie6/drivestats/internal/schema"
	"gorm.io/gorm"
)

// DefaultSetTypes 初始套装
func DefaultSetTypes() []schema.SetType {
	return []schema.SetType{
		{Name: "空洞驰行", TwoPieceEffect: "攻击力+10%", FourPieceEffect: "攻击力+20%"},
		{Name: "电镀音潮", TwoPieceEffect: "雷属性伤害+10%", FourPieceEffect: "雷属性伤害+20%"},
		{Name: "虚数织构", TwoPieceEffect: "生命值+10%"},
		{Name: "物理穿透", TwoPieceEffect: "物理伤害+10%"},
	}
}

// DefaultStatTypes 初始词条
func DefaultStatTypes() []schema.StatType {
	names := []string{
		"暴击率", "暴击伤害", "攻击力百分比", "攻击力",
		"生命值百分比", "生命值", "防御力百分比", "防御力",
		"效果命中", "效果抵抗", "能量恢复效率", "击破特攻",
		"火属性伤害", "冰属性伤害", "雷属性伤害", "风属性伤害",
		"物理伤害", "虚数伤害", "量子伤害",
	}
	out := make([]schema.StatType, 0, len(names))
	for _, n := range names {
		out = append(out, schema.StatType{Name: n, Category: schema.StatCategoryBoth})
	}
	return out
}

// SeedResult 初始化结果
type SeedResult struct {
	SetTypes  int
	StatTypes int
}

// SeedCatalogs 套装表/词条表为空时写入初始数据，已有数据则跳过
func SeedCatalogs(ctx context.Context, db *gorm.DB) (*SeedResult, error) {
	res := &SeedResult{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var setCount, statCount int64
		if err := tx.Model(&schema.SetType{}).Count(&setCount).Error; err != nil {
			return fmt.Errorf("统计套装失败: %w", err)
		}
		if err := tx.Model(&schema.StatType{}).Count(&statCount).Error; err != nil {
			return fmt.Errorf("统计词条失败: %w", err)
		}

		if setCount == 0 {
			sets := DefaultSetTypes()
			if err := tx.Create(&sets).Error; err != nil {
				return fmt.Errorf("写入初始套装失败: %w", err)
			}
			res.SetTypes = len(sets)
		}
		if statCount == 0 {
			stats := DefaultStatTypes()
			if err := tx.Create(&stats).Error; err != nil {
				return fmt.Errorf("写入初始词条失败: %w", err)
			}
			res.StatTypes = len(stats)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.SetTypes > 0 || res.StatTypes > 0 {
		slog.Info("初始套装和词条数据已写入", "set_types", res.SetTypes, "stat_types", res.StatTypes)
	} else {
		slog.Debug("套装和词条数据已存在，跳过初始化")
	}
	return res, nil
}
