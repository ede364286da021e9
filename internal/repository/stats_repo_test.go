package repository

import (
	"context"
	"testing"
)

func TestStatsRepositoryAggregates(t *testing.T) {
	f := newPieceFixture(t)
	repo := NewStatsRepository(f.db)
	ctx := context.Background()

	f.createPiece(t, "空洞驰行", 1, "生命值", []string{"暴击率", "暴击伤害", "防御力"}, []int{1, 0, 0})
	f.createPiece(t, "空洞驰行", 4, "暴击率", []string{"暴击伤害", "攻击力百分比", "生命值", "防御力"}, []int{1, 1, 0, 0})
	f.createPiece(t, "电镀音潮", 4, "暴击伤害", []string{"暴击率", "攻击力百分比", "生命值"}, nil)

	n, err := repo.CountPieces(ctx)
	if err != nil || n != 3 {
		t.Fatalf("CountPieces = %d, %v", n, err)
	}
	subs, err := repo.CountSubstats(ctx)
	if err != nil || subs != 10 {
		t.Fatalf("CountSubstats = %d, %v", subs, err)
	}

	byPos, err := repo.ByPosition(ctx)
	if err != nil {
		t.Fatalf("ByPosition error: %v", err)
	}
	if len(byPos) != 2 || byPos[0].Bucket != 1 || byPos[0].Count != 1 || byPos[1].Bucket != 4 || byPos[1].Count != 2 {
		t.Fatalf("unexpected position counts: %+v", byPos)
	}

	bySet, err := repo.BySet(ctx)
	if err != nil {
		t.Fatalf("BySet error: %v", err)
	}
	if len(bySet) != 2 || bySet[0].Name != "空洞驰行" || bySet[0].Count != 2 {
		t.Fatalf("unexpected set counts: %+v", bySet)
	}

	perPos, err := repo.ByPositionMainStat(ctx)
	if err != nil {
		t.Fatalf("ByPositionMainStat error: %v", err)
	}
	if len(perPos) != 3 {
		t.Fatalf("expected 3 position/main rows, got %+v", perPos)
	}

	freq, err := repo.SubstatFrequency(ctx)
	if err != nil {
		t.Fatalf("SubstatFrequency error: %v", err)
	}
	got := map[string]int64{}
	for _, r := range freq {
		got[r.Name] = r.Count
	}
	if got["暴击率"] != 2 || got["暴击伤害"] != 2 || got["防御力"] != 2 || got["生命值"] != 2 || got["攻击力百分比"] != 2 {
		t.Fatalf("unexpected frequency: %+v", got)
	}

	levels, err := repo.ByUpgradeLevel(ctx)
	if err != nil {
		t.Fatalf("ByUpgradeLevel error: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("expected 3 upgrade levels, got %+v", levels)
	}

	counts, err := repo.BySubstatCount(ctx)
	if err != nil {
		t.Fatalf("BySubstatCount error: %v", err)
	}
	if len(counts) != 2 || counts[0].Bucket != 3 || counts[0].Count != 2 || counts[1].Bucket != 4 || counts[1].Count != 1 {
		t.Fatalf("unexpected substat count distribution: %+v", counts)
	}
}

func TestStatsRepositoryPairing(t *testing.T) {
	f := newPieceFixture(t)
	repo := NewStatsRepository(f.db)
	ctx := context.Background()

	a := f.createPiece(t, "空洞驰行", 1, "生命值", []string{"暴击率", "暴击伤害", "防御力"}, nil)
	b := f.createPiece(t, "电镀音潮", 2, "防御力", []string{"暴击率", "暴击伤害", "生命值"}, nil)
	f.createPiece(t, "空洞驰行", 3, "防御力", []string{"暴击率", "攻击力百分比", "生命值"}, nil)

	crit := f.stats["暴击率"]
	critDmg := f.stats["暴击伤害"]

	n, err := repo.PiecesWithStat(ctx, crit)
	if err != nil || n != 3 {
		t.Fatalf("PiecesWithStat = %d, %v", n, err)
	}

	both, err := repo.PiecesWithAll(ctx, []int64{crit, critDmg})
	if err != nil || both != 2 {
		t.Fatalf("PiecesWithAll = %d, %v", both, err)
	}

	examples, err := repo.MatchingExamples(ctx, []int64{crit, critDmg}, 10)
	if err != nil {
		t.Fatalf("MatchingExamples error: %v", err)
	}
	if len(examples) != 2 || examples[0].DriveID != a || examples[1].DriveID != b {
		t.Fatalf("unexpected examples: %+v", examples)
	}
	if examples[1].SetName != "电镀音潮" || examples[1].MainStat != "防御力" || examples[1].Position != 2 {
		t.Fatalf("unexpected example payload: %+v", examples[1])
	}

	limited, err := repo.MatchingExamples(ctx, []int64{crit}, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("MatchingExamples limit = %+v, %v", limited, err)
	}
}

func TestStatsRepositoryEmpty(t *testing.T) {
	f := newPieceFixture(t)
	repo := NewStatsRepository(f.db)
	ctx := context.Background()

	n, err := repo.CountPieces(ctx)
	if err != nil || n != 0 {
		t.Fatalf("CountPieces = %d, %v", n, err)
	}
	counts, err := repo.BySubstatCount(ctx)
	if err != nil || len(counts) != 0 {
		t.Fatalf("BySubstatCount = %+v, %v", counts, err)
	}
	all, err := repo.PiecesWithAll(ctx, nil)
	if err != nil || all != 0 {
		t.Fatalf("PiecesWithAll = %d, %v", all, err)
	}
}
