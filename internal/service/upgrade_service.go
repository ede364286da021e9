package service

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/yuqie6/drivestats/internal/repository"
	"github.com/yuqie6/drivestats/internal/schema"
	"gorm.io/gorm"
)

// RandSource 随机数来源，测试中可替换为固定序列
type RandSource interface {
	IntN(n int) int
}

type defaultRand struct{}

func (defaultRand) IntN(n int) int { return rand.IntN(n) }

// DefaultRand 基于 math/rand/v2 的全局随机源
func DefaultRand() RandSource { return defaultRand{} }

// UpgradeMode 强化类型
type UpgradeMode string

const (
	UpgradeExisting UpgradeMode = "existing"
	UpgradeNew      UpgradeMode = "new"
)

// UpgradeInput 强化参数
type UpgradeInput struct {
	Mode           UpgradeMode
	SubstatID      int64  // existing 模式必填
	NewSubstatName string // new 模式可选，为空时随机生成
}

// UpgradeResult 强化/降级结果
type UpgradeResult struct {
	Grew          bool // 是否生成了新副词条
	SubstatID     int64
	StatName      string
	UpgradeCount  int
	TotalUpgrades int
}

// UpgradeService 强化与降级
type UpgradeService struct {
	catalog *repository.CatalogRepository
	pieces  *repository.PieceRepository
	rand    RandSource
}

// NewUpgradeService 创建强化服务；rng 为 nil 时使用 DefaultRand
func NewUpgradeService(catalog *repository.CatalogRepository, pieces *repository.PieceRepository, rng RandSource) *UpgradeService {
	if rng == nil {
		rng = DefaultRand()
	}
	return &UpgradeService{catalog: catalog, pieces: pieces, rand: rng}
}

// Upgrade 强化已有副词条或生成新副词条
func (s *UpgradeService) Upgrade(ctx context.Context, pieceID int64, in UpgradeInput) (*UpgradeResult, error) {
	switch in.Mode {
	case UpgradeExisting, UpgradeNew:
	default:
		return nil, newError(ErrInvalidMode, "无效的强化类型")
	}

	var res *UpgradeResult
	err := s.pieces.Transaction(ctx, func(tx *gorm.DB) error {
		piece, err := s.pieces.WithTx(tx).GetByID(ctx, pieceID)
		if err != nil {
			return err
		}
		if piece == nil {
			return newError(ErrNotFound, "驱动盘不存在")
		}
		if piece.TotalUpgrades >= schema.MaxTotalUpgrades {
			return newError(ErrBudgetExhausted, "该驱动盘已强化满级")
		}

		if in.Mode == UpgradeNew {
			res, err = s.grow(ctx, tx, piece, strings.TrimSpace(in.NewSubstatName))
		} else {
			res, err = s.upgradeExisting(ctx, tx, piece, in.SubstatID)
		}
		return err
	})
	if err != nil {
		return nil, wrapInternal("强化失败", err)
	}

	slog.Info("驱动盘已强化",
		"drive_id", pieceID,
		"mode", string(in.Mode),
		"substat", res.StatName,
		"upgrade_count", res.UpgradeCount,
		"total_upgrades", res.TotalUpgrades,
	)
	return res, nil
}

func (s *UpgradeService) upgradeExisting(ctx context.Context, tx *gorm.DB, piece *schema.DrivePiece, substatID int64) (*UpgradeResult, error) {
	if substatID <= 0 {
		return nil, newError(ErrInvalidInput, "请选择要强化的副词条")
	}
	pieces := s.pieces.WithTx(tx)

	sub, err := ownedSubstat(ctx, pieces, piece.ID, substatID)
	if err != nil {
		return nil, err
	}

	rec, err := pieces.UpgradeRecordFor(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &schema.UpgradeRecord{DriveID: piece.ID, SubstatID: sub.ID, IsOriginal: true}
		if err := pieces.CreateUpgradeRecord(ctx, rec); err != nil {
			return nil, err
		}
	}
	if err := pieces.IncrementUpgradeCount(ctx, rec.ID); err != nil {
		return nil, err
	}
	if err := consumeBudget(ctx, pieces, piece.ID); err != nil {
		return nil, err
	}

	stat, err := s.catalog.WithTx(tx).GetStatTypeByID(ctx, sub.StatID)
	if err != nil {
		return nil, err
	}
	return &UpgradeResult{
		SubstatID:     sub.ID,
		StatName:      statNameOf(stat),
		UpgradeCount:  rec.UpgradeCount + 1,
		TotalUpgrades: piece.TotalUpgrades + 1,
	}, nil
}

// grow 生成新副词条
// 3 个副词条且从未强化过时，新词条从 0 级开始且不消耗强化次数；其余情况新词条为 1 级并消耗一次
func (s *UpgradeService) grow(ctx context.Context, tx *gorm.DB, piece *schema.DrivePiece, name string) (*UpgradeResult, error) {
	pieces := s.pieces.WithTx(tx)
	catalog := s.catalog.WithTx(tx)

	subs, err := pieces.ListSubstats(ctx, piece.ID)
	if err != nil {
		return nil, err
	}
	if len(subs) >= schema.MaxSubstats {
		return nil, newError(ErrAffixSlotsFull, "副词条已满，无法生成新词条")
	}

	present := make([]int64, 0, len(subs)+1)
	present = append(present, piece.MainStatID)
	for _, sub := range subs {
		present = append(present, sub.StatID)
	}

	var stat schema.StatType
	if name != "" {
		st, err := catalog.GetStatTypeByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if st == nil {
			return nil, newError(ErrUnknownReference, "无效的副词条: %s", name)
		}
		for _, id := range present {
			if id == st.ID {
				return nil, newError(ErrDuplicateAffix, "副词条 %s 已存在", name)
			}
		}
		stat = *st
	} else {
		candidates, err := catalog.ListStatTypesExcluding(ctx, present)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, newError(ErrNoCandidates, "没有可用的新副词条")
		}
		stat = candidates[s.rand.IntN(len(candidates))]
	}

	free := len(subs) == schema.MinInitialSubstats && piece.TotalUpgrades == 0
	count := 1
	if free {
		count = 0
	}

	sub, _, err := pieces.AddAffix(ctx, piece.ID, stat.ID, false, count)
	if err != nil {
		return nil, err
	}

	total := piece.TotalUpgrades
	if !free {
		if err := consumeBudget(ctx, pieces, piece.ID); err != nil {
			return nil, err
		}
		total++
	}

	names := make([]string, 0, len(subs)+1)
	for _, sb := range subs {
		st, err := catalog.GetStatTypeByID(ctx, sb.StatID)
		if err != nil {
			return nil, err
		}
		names = append(names, statNameOf(st))
	}
	names = append(names, stat.Name)
	refreshNameCache(ctx, pieces, piece.ID, names)

	return &UpgradeResult{
		Grew:          true,
		SubstatID:     sub.ID,
		StatName:      stat.Name,
		UpgradeCount:  count,
		TotalUpgrades: total,
	}, nil
}

// Downgrade 副词条强化次数 -1，副词条本身保留
func (s *UpgradeService) Downgrade(ctx context.Context, pieceID, substatID int64) (*UpgradeResult, error) {
	if substatID <= 0 {
		return nil, newError(ErrInvalidInput, "请指定要降级的副词条")
	}

	var res *UpgradeResult
	err := s.pieces.Transaction(ctx, func(tx *gorm.DB) error {
		pieces := s.pieces.WithTx(tx)

		piece, err := pieces.GetByID(ctx, pieceID)
		if err != nil {
			return err
		}
		if piece == nil {
			return newError(ErrNotFound, "驱动盘不存在")
		}

		sub, err := ownedSubstat(ctx, pieces, piece.ID, substatID)
		if err != nil {
			return err
		}
		rec, err := pieces.UpgradeRecordFor(ctx, sub.ID)
		if err != nil {
			return err
		}
		if rec == nil {
			return newError(ErrNoUpgradeHistory, "该副词条还没有进行过强化")
		}
		if rec.UpgradeCount <= 0 {
			return newError(ErrAlreadyMinimum, "该副词条已经是最低等级")
		}

		ok, err := pieces.DecrementUpgradeCount(ctx, rec.ID)
		if err != nil {
			return err
		}
		if !ok {
			return newError(ErrAlreadyMinimum, "该副词条已经是最低等级")
		}
		ok, err = pieces.DecrementTotalUpgrades(ctx, piece.ID)
		if err != nil {
			return err
		}
		if !ok {
			return internalError("降级失败", errLedgerDrift(piece.ID))
		}

		stat, err := s.catalog.WithTx(tx).GetStatTypeByID(ctx, sub.StatID)
		if err != nil {
			return err
		}
		res = &UpgradeResult{
			SubstatID:     sub.ID,
			StatName:      statNameOf(stat),
			UpgradeCount:  rec.UpgradeCount - 1,
			TotalUpgrades: piece.TotalUpgrades - 1,
		}
		return nil
	})
	if err != nil {
		return nil, wrapInternal("降级失败", err)
	}

	slog.Info("驱动盘已降级",
		"drive_id", pieceID,
		"substat", res.StatName,
		"upgrade_count", res.UpgradeCount,
		"total_upgrades", res.TotalUpgrades,
	)
	return res, nil
}

// ownedSubstat 副词条必须存在且属于该驱动盘
func ownedSubstat(ctx context.Context, pieces *repository.PieceRepository, pieceID, substatID int64) (*schema.DrivePieceSubstat, error) {
	sub, err := pieces.GetSubstat(ctx, substatID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, newError(ErrNotFound, "副词条不存在")
	}
	if sub.DriveID != pieceID {
		return nil, newError(ErrMismatch, "副词条不属于该驱动盘")
	}
	return sub, nil
}

// consumeBudget 总强化次数 +1；并发请求已用完额度时返回 ErrBudgetExhausted
func consumeBudget(ctx context.Context, pieces *repository.PieceRepository, pieceID int64) error {
	ok, err := pieces.IncrementTotalUpgrades(ctx, pieceID)
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrBudgetExhausted, "该驱动盘已强化满级")
	}
	return nil
}

// refreshNameCache 在保存点内刷新名称缓存，失败只记录日志
// pieces 须已绑定到外层事务，保存点回滚不影响外层写入
func refreshNameCache(ctx context.Context, pieces *repository.PieceRepository, pieceID int64, names []string) {
	err := pieces.Transaction(ctx, func(sp *gorm.DB) error {
		return pieces.WithTx(sp).UpdateSubstatCache(ctx, pieceID, names)
	})
	if err != nil {
		slog.Warn("更新副词条缓存失败", "drive_id", pieceID, "error", err)
	}
}

func statNameOf(st *schema.StatType) string {
	if st == nil {
		return "未知"
	}
	return st.Name
}
