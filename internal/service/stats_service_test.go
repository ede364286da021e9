package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateEmpty(t *testing.T) {
	env := newTestEnv(t)
	fixed := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	env.Stats.now = func() time.Time { return fixed }

	report, err := env.Stats.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.TotalPieces)
	assert.Zero(t, report.TotalSets)
	assert.Zero(t, report.AvgSubstats)
	assert.Empty(t, report.PositionDistribution)
	assert.Empty(t, report.SubstatFrequency)
	assert.Len(t, report.MainStats, 6)
	assert.Equal(t, fixed, report.LastUpdated)
}

func TestAggregate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.create(t, "空洞驰行", 4, "暴击率", "暴击伤害", "攻击力百分比", "生命值")
	env.create(t, "空洞驰行", 4, "暴击伤害", "暴击率", "攻击力百分比", "生命值", "防御力")
	env.create(t, "电镀音潮", 1, "生命值", "暴击率", "暴击伤害", "防御力")

	_, err := env.Upgrades.Upgrade(ctx, a.ID, UpgradeInput{Mode: UpgradeExisting, SubstatID: a.Affixes[0].SubstatID})
	require.NoError(t, err)

	report, err := env.Stats.Aggregate(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(3), report.TotalPieces)
	assert.Equal(t, 2, report.TotalSets)
	assert.Equal(t, 3.3, report.AvgSubstats)
	assert.Equal(t, map[string]int64{"1号位": 1, "4号位": 2}, report.PositionDistribution)
	assert.Equal(t, map[string]int64{"空洞驰行": 2, "电镀音潮": 1}, report.SetDistribution)
	assert.Equal(t, map[string]int64{"暴击率": 1, "暴击伤害": 1}, report.MainStats["4号位"])
	assert.Equal(t, map[string]int64{"生命值": 1}, report.MainStats["1号位"])
	assert.Empty(t, report.MainStats["6号位"])
	assert.Equal(t, int64(1), report.MainStatDistribution["生命值"])

	assert.Equal(t, SubstatFrequency{Count: 2, Percentage: 66.67}, report.SubstatFrequency["暴击率"])
	assert.Equal(t, SubstatFrequency{Count: 2, Percentage: 66.67}, report.SubstatFrequency["生命值"])

	assert.Equal(t, map[string]int64{"+0": 2, "+1": 1}, report.UpgradeDistribution)
	assert.Equal(t, map[int]int64{3: 2, 4: 1}, report.SubstatCountDistribution)
}

func TestPairingSingleStat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.create(t, "空洞驰行", 4, "暴击率", "暴击伤害", "攻击力百分比", "生命值")
	env.create(t, "空洞驰行", 2, "攻击力", "暴击率", "暴击伤害", "防御力")
	env.create(t, "电镀音潮", 1, "生命值", "暴击率", "攻击力百分比", "防御力")

	report, err := env.Stats.Pairing(ctx, []string{"暴击伤害"})
	require.NoError(t, err)

	// k/n = 2/3
	assert.InDelta(t, 66.6667, report.Theoretical, 1e-4)
	assert.InDelta(t, 66.6667, report.Actual, 1e-4)
	assert.InDelta(t, 0, report.Difference, 1e-4)
	assert.Equal(t, int64(2), report.MatchCount)
	assert.Equal(t, int64(3), report.TotalPieces)
	assert.Equal(t, int64(2), report.Expectation)
	assert.Equal(t, 66.67, report.IndividualProbabilities["暴击伤害"])
	assert.Len(t, report.MatchingExamples, 2)
}

func TestPairingFullAffixSetIncludesPiece(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.create(t, "空洞驰行", 4, "暴击率", "暴击伤害", "攻击力百分比", "生命值")
	env.create(t, "空洞驰行", 2, "攻击力", "暴击率", "暴击伤害", "防御力")
	env.create(t, "电镀音潮", 1, "生命值", "暴击率", "攻击力百分比", "防御力")
	env.create(t, "电镀音潮", 3, "防御力", "暴击伤害", "攻击力百分比", "效果命中")

	report, err := env.Stats.Pairing(ctx, p.SubstatNames())
	require.NoError(t, err)
	require.GreaterOrEqual(t, report.MatchCount, int64(1))

	found := false
	for _, ex := range report.MatchingExamples {
		if ex.DriveID == p.ID {
			found = true
			assert.Equal(t, "空洞驰行", ex.SetName)
			assert.Equal(t, 4, ex.Position)
			assert.Equal(t, "暴击率", ex.MainStat)
		}
	}
	assert.True(t, found)

	// 暴击伤害 3/4，攻击力百分比 3/4，生命值 1/4（作为主词条时不计）
	assert.InDelta(t, 14.0625, report.Theoretical, 1e-4)
	assert.InDelta(t, 25, report.Actual, 1e-4)
	assert.InDelta(t, 10.9375, report.Difference, 1e-4)
	assert.Equal(t, int64(4), report.Expectation)
	assert.Equal(t, []string{"暴击伤害", "攻击力百分比", "生命值"}, report.SelectedStats)
}

func TestPairingNoMatchOmitsExamples(t *testing.T) {
	env := newTestEnv(t)

	env.create(t, "空洞驰行", 4, "暴击率", "暴击伤害", "攻击力百分比", "生命值")

	report, err := env.Stats.Pairing(context.Background(), []string{"暴击伤害", "防御力"})
	require.NoError(t, err)
	assert.Zero(t, report.MatchCount)
	assert.Zero(t, report.Actual)
	assert.Zero(t, report.Expectation)
	assert.Nil(t, report.MatchingExamples)
	assert.Equal(t, 0.0, report.IndividualProbabilities["防御力"])
}

func TestPairingValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.Stats.Pairing(ctx, []string{"暴击率"})
	assert.ErrorIs(t, err, ErrNoData)

	env.create(t, "空洞驰行", 4, "暴击率", "暴击伤害", "攻击力百分比", "生命值")

	_, err = env.Stats.Pairing(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidCardinality)

	_, err = env.Stats.Pairing(ctx, []string{"暴击率", "暴击伤害", "攻击力百分比", "生命值", "防御力"})
	assert.ErrorIs(t, err, ErrInvalidCardinality)

	_, err = env.Stats.Pairing(ctx, []string{"暴击率", "暴击率"})
	assert.ErrorIs(t, err, ErrDuplicateAffix)

	_, err = env.Stats.Pairing(ctx, []string{"暴击率", "不存在"})
	assert.ErrorIs(t, err, ErrUnknownReference)
	assert.Contains(t, Message(err), "不存在")
}
