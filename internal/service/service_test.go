package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yuqie6/drivestats/internal/repository"
	"github.com/yuqie6/drivestats/internal/testutil"
	"gorm.io/gorm"
)

// fixedRand 总是返回 min(pick, n-1)，并记录最近一次候选数量
type fixedRand struct {
	pick  int
	lastN int
}

func (r *fixedRand) IntN(n int) int {
	r.lastN = n
	if r.pick >= n {
		return n - 1
	}
	return r.pick
}

type testEnv struct {
	db       *gorm.DB
	catalog  *repository.CatalogRepository
	pieces   *repository.PieceRepository
	Pieces   *PieceService
	Upgrades *UpgradeService
	Stats    *StatsService
	rand     *fixedRand
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.OpenTestDB(t)
	_, err := repository.SeedCatalogs(context.Background(), db)
	require.NoError(t, err)
	return buildEnv(db)
}

func buildEnv(db *gorm.DB) *testEnv {
	catalog := repository.NewCatalogRepository(db)
	pieces := repository.NewPieceRepository(db)
	rng := &fixedRand{}
	return &testEnv{
		db:       db,
		catalog:  catalog,
		pieces:   pieces,
		Pieces:   NewPieceService(catalog, pieces),
		Upgrades: NewUpgradeService(catalog, pieces, rng),
		Stats:    NewStatsService(catalog, repository.NewStatsRepository(db)),
		rand:     rng,
	}
}

func (e *testEnv) create(t *testing.T, set string, position int, main string, subs ...string) *PieceDetail {
	t.Helper()
	p, err := e.Pieces.Create(context.Background(), CreatePieceInput{
		SetName:      set,
		Position:     position,
		MainStatName: main,
		SubstatNames: subs,
	})
	require.NoError(t, err)
	return p
}

// requireLedgerConsistent 每件驱动盘的强化记录合计等于 total_upgrades，且在 [0,5] 内
func (e *testEnv) requireLedgerConsistent(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	sums, err := e.pieces.UpgradeSums(ctx)
	require.NoError(t, err)
	views, err := e.pieces.ListViews(ctx, 0, 1000)
	require.NoError(t, err)
	for _, v := range views {
		require.Equal(t, v.TotalUpgrades, sums[v.ID], "drive %d", v.ID)
		require.GreaterOrEqual(t, v.TotalUpgrades, 0)
		require.LessOrEqual(t, v.TotalUpgrades, 5)
	}
}
