package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuqie6/drivestats/internal/schema"
	"gorm.io/gorm"
)

var errInjected = errors.New("injected failure")

// failUpdates 让 table 上包含 column 的更新返回错误
func failUpdates(t *testing.T, db *gorm.DB, table, column string) {
	t.Helper()
	err := db.Callback().Update().Before("gorm:update").Register("test:fail_update_"+table+"_"+column, func(tx *gorm.DB) {
		if tx.Statement.Table != table {
			return
		}
		if dest, ok := tx.Statement.Dest.(map[string]any); ok {
			if _, hit := dest[column]; hit {
				tx.AddError(errInjected)
			}
		}
	})
	require.NoError(t, err)
}

// failCreates 让 table 上的插入返回错误
func failCreates(t *testing.T, db *gorm.DB, table string) {
	t.Helper()
	err := db.Callback().Create().Before("gorm:create").Register("test:fail_create_"+table, func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			tx.AddError(errInjected)
		}
	})
	require.NoError(t, err)
}

func (e *testEnv) countRows(t *testing.T, model any, pieceID int64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Where("drive_id = ?", pieceID).Count(&n).Error)
	return n
}

func TestGrowRollsBackWhenBudgetWriteFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.create(t, "空洞驰行", 4, "暴击率", "暴击伤害", "攻击力百分比", "生命值")
	_, err := env.Upgrades.Upgrade(ctx, p.ID, UpgradeInput{Mode: UpgradeExisting, SubstatID: p.Affixes[0].SubstatID})
	require.NoError(t, err)

	failUpdates(t, env.db, "drive_pieces", "total_upgrades")

	_, err = env.Upgrades.Upgrade(ctx, p.ID, UpgradeInput{Mode: UpgradeNew, NewSubstatName: "防御力"})
	require.ErrorIs(t, err, ErrInternal)
	require.ErrorIs(t, err, errInjected)

	got, err := env.Pieces.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalUpgrades)
	require.Len(t, got.Affixes, 3)
	assert.Equal(t, 1, got.Affixes[0].UpgradeCount)
	assert.EqualValues(t, 3, env.countRows(t, &schema.DrivePieceSubstat{}, p.ID))
	assert.EqualValues(t, 3, env.countRows(t, &schema.UpgradeRecord{}, p.ID))
	env.requireLedgerConsistent(t)
}

func TestReplaceAffixesRollsBackAfterClear(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.create(t, "空洞驰行", 4, "暴击率", "暴击伤害", "攻击力百分比", "生命值")
	for range 2 {
		_, err := env.Upgrades.Upgrade(ctx, p.ID, UpgradeInput{Mode: UpgradeExisting, SubstatID: p.Affixes[1].SubstatID})
		require.NoError(t, err)
	}

	failCreates(t, env.db, "drive_piece_substats")

	newMain := "防御力"
	err := env.Pieces.Update(ctx, p.ID, UpdatePieceInput{MainStatName: &newMain, SubstatNames: []string{"暴击率", "生命值"}})
	require.ErrorIs(t, err, ErrInternal)

	got, err := env.Pieces.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "暴击率", got.MainStatName)
	assert.Equal(t, 2, got.TotalUpgrades)
	require.Len(t, got.Affixes, 3)
	for i, af := range got.Affixes {
		assert.Equal(t, p.Affixes[i].SubstatID, af.SubstatID)
	}
	assert.Equal(t, 2, got.Affixes[1].UpgradeCount)
	assert.EqualValues(t, 3, env.countRows(t, &schema.UpgradeRecord{}, p.ID))
	env.requireLedgerConsistent(t)
}

func TestNameCacheFailureDoesNotFailMutation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.create(t, "空洞驰行", 4, "暴击率", "暴击伤害", "攻击力百分比", "生命值")
	failUpdates(t, env.db, "drive_pieces", "substats")

	res, err := env.Upgrades.Upgrade(ctx, p.ID, UpgradeInput{Mode: UpgradeNew, NewSubstatName: "防御力"})
	require.NoError(t, err)
	assert.True(t, res.Grew)

	got, err := env.Pieces.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Affixes, 4)
	assert.Equal(t, "防御力", got.Affixes[3].Name)

	piece, err := env.pieces.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"暴击伤害", "攻击力百分比", "生命值"}, []string(piece.Substats))

	require.NoError(t, env.Pieces.ReplaceAffixes(ctx, p.ID, []string{"防御力", "生命值"}))

	got, err = env.Pieces.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Affixes, 2)
	assert.Equal(t, 0, got.TotalUpgrades)

	piece, err = env.pieces.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"暴击伤害", "攻击力百分比", "生命值"}, []string(piece.Substats))
	env.requireLedgerConsistent(t)
}
