package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/yuqie6/drivestats/internal/schema"
	"gorm.io/gorm"
)

// CatalogRepository 套装与词条仓储（只读参考数据）
type CatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository 创建仓储
func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *CatalogRepository) WithTx(tx *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: tx}
}

// ListSetTypes 获取所有套装
func (r *CatalogRepository) ListSetTypes(ctx context.Context) ([]schema.SetType, error) {
	var sets []schema.SetType
	if err := r.db.WithContext(ctx).Order("set_id ASC").Find(&sets).Error; err != nil {
		return nil, fmt.Errorf("查询套装失败: %w", err)
	}
	return sets, nil
}

// ListStatTypes 获取所有词条
func (r *CatalogRepository) ListStatTypes(ctx context.Context) ([]schema.StatType, error) {
	var stats []schema.StatType
	if err := r.db.WithContext(ctx).Order("stat_type_id ASC").Find(&stats).Error; err != nil {
		return nil, fmt.Errorf("查询词条失败: %w", err)
	}
	return stats, nil
}

// GetSetTypeByName 按名称查询套装，不存在返回 nil
func (r *CatalogRepository) GetSetTypeByName(ctx context.Context, name string) (*schema.SetType, error) {
	var set schema.SetType
	err := r.db.WithContext(ctx).Where("set_name = ?", name).First(&set).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询套装失败: %w", err)
	}
	return &set, nil
}

// GetStatTypeByName 按名称查询词条，不存在返回 nil
func (r *CatalogRepository) GetStatTypeByName(ctx context.Context, name string) (*schema.StatType, error) {
	var stat schema.StatType
	err := r.db.WithContext(ctx).Where("stat_name = ?", name).First(&stat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询词条失败: %w", err)
	}
	return &stat, nil
}

// GetStatTypeByID 按 ID 查询词条，不存在返回 nil
func (r *CatalogRepository) GetStatTypeByID(ctx context.Context, id int64) (*schema.StatType, error) {
	var stat schema.StatType
	err := r.db.WithContext(ctx).Where("stat_type_id = ?", id).First(&stat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询词条失败: %w", err)
	}
	return &stat, nil
}

// GetStatTypesByNames 批量按名称查询词条，返回 name -> StatType，缺失的名称不在结果中
func (r *CatalogRepository) GetStatTypesByNames(ctx context.Context, names []string) (map[string]schema.StatType, error) {
	out := make(map[string]schema.StatType, len(names))
	if len(names) == 0 {
		return out, nil
	}
	var stats []schema.StatType
	if err := r.db.WithContext(ctx).Where("stat_name IN ?", names).Find(&stats).Error; err != nil {
		return nil, fmt.Errorf("查询词条失败: %w", err)
	}
	for _, s := range stats {
		out[s.Name] = s
	}
	return out, nil
}

// ListStatTypesExcluding 获取不在 excludeIDs 中的词条，按 ID 升序
func (r *CatalogRepository) ListStatTypesExcluding(ctx context.Context, excludeIDs []int64) ([]schema.StatType, error) {
	var stats []schema.StatType
	q := r.db.WithContext(ctx).Order("stat_type_id ASC")
	if len(excludeIDs) > 0 {
		q = q.Where("stat_type_id NOT IN ?", excludeIDs)
	}
	if err := q.Find(&stats).Error; err != nil {
		return nil, fmt.Errorf("查询可用词条失败: %w", err)
	}
	return stats, nil
}
