package repository

import (
	"context"
	"testing"

	"github.com/yuqie6/drivestats/internal/schema"
	"github.com/yuqie6/drivestats/internal/testutil"
)

func TestImportFromRebuildsLedger(t *testing.T) {
	src := newPieceFixture(t)
	ctx := context.Background()

	a := src.createPiece(t, "空洞驰行", 1, "生命值", []string{"暴击率", "暴击伤害", "防御力"}, []int{2, 1, 0})
	b := src.createPiece(t, "电镀音潮", 2, "防御力", []string{"暴击率", "暴击伤害", "生命值"}, nil)

	// 源库中一条强化记录缺失，另一件驱动盘的 total_upgrades 与记录不一致
	subs, _ := src.repo.ListSubstats(ctx, b)
	src.db.Where("substat_id = ?", subs[0].ID).Delete(&schema.UpgradeRecord{})
	src.db.Model(&schema.DrivePiece{}).Where("drive_id = ?", a).Update("total_upgrades", 5)

	dst := testutil.OpenTestDB(t)
	dst.Create(&schema.SchemaMeta{ID: 1, SchemaVersion: latestSchemaVersion})

	res, err := ImportFrom(ctx, src.db, dst, "./legacy.db", false)
	if err != nil {
		t.Fatalf("ImportFrom error: %v", err)
	}
	if res.Pieces != 2 || res.Substats != 6 || res.UpgradeRecords != 5 || res.RebuiltRecords != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	repo := NewPieceRepository(dst)
	piece, err := repo.GetByID(ctx, a)
	if err != nil || piece == nil {
		t.Fatalf("GetByID = %+v, %v", piece, err)
	}
	if piece.TotalUpgrades != 3 {
		t.Fatalf("expected recomputed total 3, got %d", piece.TotalUpgrades)
	}
	if len(piece.Substats) != 3 {
		t.Fatalf("expected rebuilt name cache, got %v", piece.Substats)
	}

	affixes, err := repo.AffixesFor(ctx, []int64{b})
	if err != nil {
		t.Fatalf("AffixesFor error: %v", err)
	}
	for _, af := range affixes[b] {
		if af.RecordID == nil {
			t.Fatalf("affix %d has no record after import", af.SubstatID)
		}
	}

	var meta schema.SchemaMeta
	dst.First(&meta, 1)
	if meta.ImportedFrom != "./legacy.db" || meta.ImportedAt == nil {
		t.Fatalf("unexpected schema meta: %+v", meta)
	}

	// 再次导入：主键已存在的行全部跳过
	again, err := ImportFrom(ctx, src.db, dst, "./legacy.db", false)
	if err != nil {
		t.Fatalf("second ImportFrom error: %v", err)
	}
	if again.Pieces != 0 || again.Substats != 0 {
		t.Fatalf("expected idempotent import, got %+v", again)
	}
}

func TestImportFromReplace(t *testing.T) {
	src := newPieceFixture(t)
	ctx := context.Background()
	src.createPiece(t, "空洞驰行", 1, "生命值", []string{"暴击率", "暴击伤害", "防御力"}, nil)

	dst := newPieceFixture(t)
	dst.createPiece(t, "空洞驰行", 2, "生命值", []string{"暴击率", "暴击伤害", "防御力"}, nil)
	dst.createPiece(t, "空洞驰行", 3, "生命值", []string{"暴击率", "暴击伤害", "防御力"}, nil)

	if _, err := ImportFrom(ctx, src.db, dst.db, "./legacy.db", true); err != nil {
		t.Fatalf("ImportFrom error: %v", err)
	}
	n, err := dst.repo.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Count = %d, %v", n, err)
	}
}

func TestImportFromSkipsExistingPieceWithItsAffixes(t *testing.T) {
	ctx := context.Background()

	src := newPieceFixture(t)
	a := src.createPiece(t, "空洞驰行", 1, "生命值", []string{"暴击率", "暴击伤害", "防御力", "攻击力百分比"}, []int{0, 0, 0, 2})
	b := src.createPiece(t, "电镀音潮", 2, "防御力", []string{"暴击率", "生命值", "攻击力百分比"}, []int{1, 0, 0})

	// 目标库已有同 ID 的另一件驱动盘
	dst := newPieceFixture(t)
	existing := dst.createPiece(t, "电镀音潮", 5, "暴击率", []string{"暴击伤害", "生命值", "防御力"}, nil)
	if existing != a {
		t.Fatalf("expected overlapping drive_id %d, got %d", a, existing)
	}

	res, err := ImportFrom(ctx, src.db, dst.db, "./legacy.db", false)
	if err != nil {
		t.Fatalf("ImportFrom error: %v", err)
	}
	if res.Pieces != 1 || res.SkippedPieces != 1 || res.Substats != 3 || res.SkippedSubstats != 4 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.UpgradeRecords != 3 || res.RebuiltRecords != 0 || res.SetTypes != 0 || res.StatTypes != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	piece, err := dst.repo.GetByID(ctx, existing)
	if err != nil || piece == nil {
		t.Fatalf("GetByID = %+v, %v", piece, err)
	}
	if piece.TotalUpgrades != 0 || piece.MainStatID != dst.stats["暴击率"] || piece.Position != 5 {
		t.Fatalf("existing piece changed: %+v", piece)
	}
	affixes, err := dst.repo.AffixesFor(ctx, []int64{existing, b})
	if err != nil {
		t.Fatalf("AffixesFor error: %v", err)
	}
	if len(affixes[existing]) != 3 {
		t.Fatalf("expected 3 affixes on existing piece, got %+v", affixes[existing])
	}
	if len(affixes[b]) != 3 {
		t.Fatalf("expected 3 affixes on imported piece, got %+v", affixes[b])
	}

	var pieces []schema.DrivePiece
	if err := dst.db.Find(&pieces).Error; err != nil {
		t.Fatalf("Find error: %v", err)
	}
	sums, err := dst.repo.UpgradeSums(ctx)
	if err != nil {
		t.Fatalf("UpgradeSums error: %v", err)
	}
	for _, p := range pieces {
		if sums[p.ID] != p.TotalUpgrades {
			t.Fatalf("piece %d: sum(upgrade_count)=%d total_upgrades=%d", p.ID, sums[p.ID], p.TotalUpgrades)
		}
	}
}

func TestImportFromMapsCatalogByName(t *testing.T) {
	ctx := context.Background()

	src := newPieceFixture(t)
	id := src.createPiece(t, "空洞驰行", 3, "暴击率", []string{"暴击伤害", "生命值", "防御力"}, []int{1, 1, 0})

	// 目标库词条 ID 顺序与源库不同
	dst := testutil.OpenTestDB(t)
	dstStats := testutil.SeedStatTypes(t, dst, "防御力", "生命值", "暴击伤害", "暴击率")

	res, err := ImportFrom(ctx, src.db, dst, "./legacy.db", false)
	if err != nil {
		t.Fatalf("ImportFrom error: %v", err)
	}
	if res.StatTypes != 1 || res.SetTypes != 2 {
		t.Fatalf("unexpected catalog counts: %+v", res)
	}

	repo := NewPieceRepository(dst)
	view, err := repo.GetView(ctx, id)
	if err != nil || view == nil {
		t.Fatalf("GetView = %+v, %v", view, err)
	}
	if view.MainStatName != "暴击率" || view.SetName != "空洞驰行" || view.TotalUpgrades != 2 {
		t.Fatalf("unexpected view: %+v", view)
	}
	affixes, err := repo.AffixesFor(ctx, []int64{id})
	if err != nil {
		t.Fatalf("AffixesFor error: %v", err)
	}
	for _, af := range affixes[id] {
		if af.StatName == "暴击伤害" && af.StatID != dstStats["暴击伤害"] {
			t.Fatalf("affix not mapped to destination stat id: %+v", af)
		}
	}
}
