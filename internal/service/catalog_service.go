package service

import (
	"context"

	"github.com/yuqie6/drivestats/internal/repository"
)

// CatalogService 套装与词条名称
type CatalogService struct {
	catalog *repository.CatalogRepository
}

func NewCatalogService(catalog *repository.CatalogRepository) *CatalogService {
	return &CatalogService{catalog: catalog}
}

// SetTypeNames 全部套装名称（按 ID）
func (s *CatalogService) SetTypeNames(ctx context.Context) ([]string, error) {
	sets, err := s.catalog.ListSetTypes(ctx)
	if err != nil {
		return nil, internalError("获取套装类型失败", err)
	}
	out := make([]string, 0, len(sets))
	for _, st := range sets {
		out = append(out, st.Name)
	}
	return out, nil
}

// StatTypeNames 全部词条名称（按 ID）
func (s *CatalogService) StatTypeNames(ctx context.Context) ([]string, error) {
	stats, err := s.catalog.ListStatTypes(ctx)
	if err != nil {
		return nil, internalError("获取词条类型失败", err)
	}
	out := make([]string, 0, len(stats))
	for _, st := range stats {
		out = append(out, st.Name)
	}
	return out, nil
}
