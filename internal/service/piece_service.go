package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/yuqie6/drivestats/internal/repository"
	"github.com/yuqie6/drivestats/internal/schema"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultPage    = 1
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// PieceService 驱动盘增删改查
type PieceService struct {
	catalog *repository.CatalogRepository
	pieces  *repository.PieceRepository
}

// NewPieceService 创建驱动盘服务
func NewPieceService(catalog *repository.CatalogRepository, pieces *repository.PieceRepository) *PieceService {
	return &PieceService{catalog: catalog, pieces: pieces}
}

// CreatePieceInput 新增驱动盘参数
type CreatePieceInput struct {
	SetName      string
	Position     int
	MainStatName string
	SubstatNames []string
}

// UpdatePieceInput 修改驱动盘参数；字段为 nil 表示不修改
type UpdatePieceInput struct {
	MainStatName *string
	SubstatNames []string
}

// AffixState 副词条及强化状态
type AffixState struct {
	SubstatID    int64
	StatID       int64
	Name         string
	UpgradeCount int
	IsOriginal   bool
}

// PieceDetail 驱动盘详情
type PieceDetail struct {
	ID            int64
	SetID         int64
	SetName       string
	Position      int
	MainStatID    int64
	MainStatName  string
	MainStatLevel int
	TotalUpgrades int
	Affixes       []AffixState
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SubstatNames 副词条名称（按创建顺序）
func (p *PieceDetail) SubstatNames() []string {
	out := make([]string, 0, len(p.Affixes))
	for _, a := range p.Affixes {
		out = append(out, a.Name)
	}
	return out
}

// Pagination 分页信息
type Pagination struct {
	CurrentPage int
	PerPage     int
	TotalItems  int64
	TotalPages  int
	HasNext     bool
	HasPrev     bool
}

// PieceList 分页列表
type PieceList struct {
	Items      []PieceDetail
	Pagination Pagination
}

// Create 新增驱动盘，驱动盘、副词条和初始强化记录在同一事务内写入
func (s *PieceService) Create(ctx context.Context, in CreatePieceInput) (*PieceDetail, error) {
	names := trimNames(in.SubstatNames)
	var id int64

	err := s.pieces.Transaction(ctx, func(tx *gorm.DB) error {
		catalog := s.catalog.WithTx(tx)
		pieces := s.pieces.WithTx(tx)

		setName := strings.TrimSpace(in.SetName)
		set, err := catalog.GetSetTypeByName(ctx, setName)
		if err != nil {
			return err
		}
		if set == nil {
			return newError(ErrUnknownReference, "未知的套装: %s", setName)
		}

		mainName := strings.TrimSpace(in.MainStatName)
		main, err := catalog.GetStatTypeByName(ctx, mainName)
		if err != nil {
			return err
		}
		if main == nil {
			return newError(ErrUnknownReference, "未知的主词条: %s", mainName)
		}

		if len(names) < schema.MinInitialSubstats || len(names) > schema.MaxSubstats {
			return newError(ErrInvalidCardinality, "副词条数量必须在%d-%d个之间", schema.MinInitialSubstats, schema.MaxSubstats)
		}
		stats, err := resolveAffixes(ctx, catalog, names, main.ID)
		if err != nil {
			return err
		}

		if !schema.ValidPosition(in.Position) {
			return newError(ErrOutOfRange, "位置必须在%d-%d之间", schema.MinPosition, schema.MaxPosition)
		}

		piece := &schema.DrivePiece{
			SetID:         set.ID,
			Position:      in.Position,
			MainStatID:    main.ID,
			MainStatLevel: schema.DefaultMainStatLevel,
			Substats:      datatypes.NewJSONSlice(names),
		}
		if err := pieces.Create(ctx, piece); err != nil {
			return err
		}
		for _, st := range stats {
			if _, _, err := pieces.AddAffix(ctx, piece.ID, st.ID, true, 0); err != nil {
				return err
			}
		}
		id = piece.ID
		return nil
	})
	if err != nil {
		return nil, wrapInternal("添加驱动盘失败", err)
	}

	slog.Info("驱动盘已添加", "drive_id", id, "set", in.SetName, "position", in.Position)
	return s.Get(ctx, id)
}

// Get 获取驱动盘详情
func (s *PieceService) Get(ctx context.Context, id int64) (*PieceDetail, error) {
	view, err := s.pieces.GetView(ctx, id)
	if err != nil {
		return nil, internalError("获取驱动盘详情失败", err)
	}
	if view == nil {
		return nil, newError(ErrNotFound, "驱动盘不存在")
	}
	affixes, err := s.pieces.AffixesFor(ctx, []int64{id})
	if err != nil {
		return nil, internalError("获取驱动盘详情失败", err)
	}
	detail := toPieceDetail(*view, affixes[id])
	return &detail, nil
}

// List 分页获取驱动盘，最新的在前
func (s *PieceService) List(ctx context.Context, page, perPage int) (*PieceList, error) {
	page, perPage = normalizePage(page, perPage)

	total, err := s.pieces.Count(ctx)
	if err != nil {
		return nil, internalError("获取驱动盘列表失败", err)
	}
	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	pagination := Pagination{
		CurrentPage: page,
		PerPage:     perPage,
		TotalItems:  total,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrev:     page > 1,
	}
	// 超出最后一页直接返回空列表，避免偏移量溢出
	if page > totalPages {
		return &PieceList{Items: []PieceDetail{}, Pagination: pagination}, nil
	}

	views, err := s.pieces.ListViews(ctx, (page-1)*perPage, perPage)
	if err != nil {
		return nil, internalError("获取驱动盘列表失败", err)
	}

	ids := make([]int64, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.ID)
	}
	affixes, err := s.pieces.AffixesFor(ctx, ids)
	if err != nil {
		return nil, internalError("获取驱动盘列表失败", err)
	}

	items := make([]PieceDetail, 0, len(views))
	for _, v := range views {
		items = append(items, toPieceDetail(v, affixes[v.ID]))
	}

	return &PieceList{Items: items, Pagination: pagination}, nil
}

// Update 修改主词条和/或整体替换副词条
// 替换副词条会清空全部强化记录并将总强化次数归零
func (s *PieceService) Update(ctx context.Context, id int64, in UpdatePieceInput) error {
	if in.MainStatName == nil && in.SubstatNames == nil {
		return newError(ErrInvalidInput, "请求数据不能为空")
	}

	err := s.pieces.Transaction(ctx, func(tx *gorm.DB) error {
		catalog := s.catalog.WithTx(tx)
		pieces := s.pieces.WithTx(tx)

		piece, err := pieces.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if piece == nil {
			return newError(ErrNotFound, "驱动盘不存在")
		}

		mainID := piece.MainStatID
		if in.MainStatName != nil {
			name := strings.TrimSpace(*in.MainStatName)
			main, err := catalog.GetStatTypeByName(ctx, name)
			if err != nil {
				return err
			}
			if main == nil {
				return newError(ErrUnknownReference, "未知的主词条: %s", name)
			}
			mainID = main.ID
		}

		if in.SubstatNames != nil {
			return replaceAffixes(ctx, catalog, pieces, piece.ID, mainID, in.SubstatNames)
		}

		// 只改主词条：不能与现有副词条相同
		if mainID != piece.MainStatID {
			subs, err := pieces.ListSubstats(ctx, piece.ID)
			if err != nil {
				return err
			}
			for _, sub := range subs {
				if sub.StatID == mainID {
					return newError(ErrDuplicateAffix, "主词条 %s 与现有副词条重复", strings.TrimSpace(*in.MainStatName))
				}
			}
			return pieces.UpdateMainStat(ctx, piece.ID, mainID)
		}
		return nil
	})
	if err != nil {
		return wrapInternal("更新驱动盘失败", err)
	}

	slog.Info("驱动盘已更新", "drive_id", id, "replace_substats", in.SubstatNames != nil)
	return nil
}

// ReplaceAffixes 整体替换副词条（1-4 个），强化进度清零
func (s *PieceService) ReplaceAffixes(ctx context.Context, id int64, names []string) error {
	if names == nil {
		names = []string{}
	}
	return s.Update(ctx, id, UpdatePieceInput{SubstatNames: names})
}

func replaceAffixes(ctx context.Context, catalog *repository.CatalogRepository, pieces *repository.PieceRepository, pieceID, mainID int64, rawNames []string) error {
	names := trimNames(rawNames)
	if len(names) < schema.MinReplaceSubstats || len(names) > schema.MaxSubstats {
		return newError(ErrInvalidCardinality, "副词条数量必须在%d-%d个之间", schema.MinReplaceSubstats, schema.MaxSubstats)
	}
	stats, err := resolveAffixes(ctx, catalog, names, mainID)
	if err != nil {
		return err
	}

	if err := pieces.ClearAffixes(ctx, pieceID); err != nil {
		return err
	}
	if err := pieces.UpdateMainStat(ctx, pieceID, mainID); err != nil {
		return err
	}
	for _, st := range stats {
		if _, _, err := pieces.AddAffix(ctx, pieceID, st.ID, true, 0); err != nil {
			return err
		}
	}
	refreshNameCache(ctx, pieces, pieceID, names)
	return nil
}

// Delete 删除驱动盘（强化记录、副词条、驱动盘依次删除）
func (s *PieceService) Delete(ctx context.Context, id int64) error {
	err := s.pieces.Transaction(ctx, func(tx *gorm.DB) error {
		ok, err := s.pieces.WithTx(tx).Delete(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return newError(ErrNotFound, "驱动盘不存在")
		}
		return nil
	})
	if err != nil {
		return wrapInternal("删除驱动盘失败", err)
	}
	slog.Info("驱动盘已删除", "drive_id", id)
	return nil
}

// resolveAffixes 校验副词条名称：必须存在、互不重复、不能与主词条相同；按输入顺序返回
func resolveAffixes(ctx context.Context, catalog *repository.CatalogRepository, names []string, mainID int64) ([]schema.StatType, error) {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return nil, newError(ErrDuplicateAffix, "副词条 %s 重复", n)
		}
		seen[n] = true
	}

	byName, err := catalog.GetStatTypesByNames(ctx, names)
	if err != nil {
		return nil, err
	}
	out := make([]schema.StatType, 0, len(names))
	for _, n := range names {
		st, ok := byName[n]
		if !ok {
			return nil, newError(ErrUnknownReference, "未知的副词条: %s", n)
		}
		if st.ID == mainID {
			return nil, newError(ErrDuplicateAffix, "副词条 %s 与主词条重复", n)
		}
		out = append(out, st)
	}
	return out, nil
}

func toPieceDetail(v repository.PieceView, affixes []repository.AffixView) PieceDetail {
	d := PieceDetail{
		ID:            v.ID,
		SetID:         v.SetID,
		SetName:       v.SetName,
		Position:      v.Position,
		MainStatID:    v.MainStatID,
		MainStatName:  v.MainStatName,
		MainStatLevel: v.MainStatLevel,
		TotalUpgrades: v.TotalUpgrades,
		CreatedAt:     v.CreatedAt,
		UpdatedAt:     v.UpdatedAt,
		Affixes:       make([]AffixState, 0, len(affixes)),
	}
	for _, a := range affixes {
		// 没有强化记录的副词条按原始词条、0 次强化展示
		st := AffixState{
			SubstatID:  a.SubstatID,
			StatID:     a.StatID,
			Name:       a.StatName,
			IsOriginal: true,
		}
		if a.UpgradeCount != nil {
			st.UpgradeCount = *a.UpgradeCount
		}
		if a.IsOriginal != nil {
			st.IsOriginal = *a.IsOriginal
		}
		d.Affixes = append(d.Affixes, st)
	}
	return d
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

func trimNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, strings.TrimSpace(n))
	}
	return out
}
