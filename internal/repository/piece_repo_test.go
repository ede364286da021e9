package repository

import (
	"context"
	"testing"

	"github.com/yuqie6/drivestats/internal/schema"
	"github.com/yuqie6/drivestats/internal/testutil"
	"gorm.io/gorm"
)

type pieceFixture struct {
	db    *gorm.DB
	repo  *PieceRepository
	sets  map[string]int64
	stats map[string]int64
}

func newPieceFixture(t *testing.T) *pieceFixture {
	t.Helper()
	db := testutil.OpenTestDB(t)
	return &pieceFixture{
		db:    db,
		repo:  NewPieceRepository(db),
		sets:  testutil.SeedSetTypes(t, db, "空洞驰行", "电镀音潮"),
		stats: testutil.SeedStatTypes(t, db, "暴击率", "暴击伤害", "攻击力百分比", "生命值", "防御力"),
	}
}

func (f *pieceFixture) createPiece(t *testing.T, set string, position int, main string, subs []string, counts []int) int64 {
	t.Helper()
	ctx := context.Background()

	total := 0
	for _, c := range counts {
		total += c
	}
	piece := &schema.DrivePiece{
		SetID:         f.sets[set],
		Position:      position,
		MainStatID:    f.stats[main],
		MainStatLevel: schema.DefaultMainStatLevel,
		TotalUpgrades: total,
	}
	if err := f.repo.Create(ctx, piece); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	for i, name := range subs {
		cnt := 0
		if i < len(counts) {
			cnt = counts[i]
		}
		if _, _, err := f.repo.AddAffix(ctx, piece.ID, f.stats[name], true, cnt); err != nil {
			t.Fatalf("AddAffix error: %v", err)
		}
	}
	return piece.ID
}

func TestPieceRepositoryGetViewAndAffixes(t *testing.T) {
	f := newPieceFixture(t)
	ctx := context.Background()

	id := f.createPiece(t, "空洞驰行", 4, "暴击率", []string{"暴击伤害", "攻击力百分比", "生命值"}, []int{1, 0, 2})

	view, err := f.repo.GetView(ctx, id)
	if err != nil {
		t.Fatalf("GetView error: %v", err)
	}
	if view == nil {
		t.Fatalf("expected view")
	}
	if view.SetName != "空洞驰行" || view.MainStatName != "暴击率" || view.Position != 4 {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.TotalUpgrades != 3 || view.MainStatLevel != schema.DefaultMainStatLevel {
		t.Fatalf("unexpected totals: %+v", view)
	}

	affixes, err := f.repo.AffixesFor(ctx, []int64{id})
	if err != nil {
		t.Fatalf("AffixesFor error: %v", err)
	}
	got := affixes[id]
	if len(got) != 3 {
		t.Fatalf("expected 3 affixes, got %d", len(got))
	}
	if got[0].StatName != "暴击伤害" || got[0].UpgradeCount == nil || *got[0].UpgradeCount != 1 {
		t.Fatalf("unexpected first affix: %+v", got[0])
	}
	if got[2].IsOriginal == nil || !*got[2].IsOriginal {
		t.Fatalf("expected original affix: %+v", got[2])
	}
}

func TestPieceRepositoryGetViewMissing(t *testing.T) {
	f := newPieceFixture(t)

	view, err := f.repo.GetView(context.Background(), 999)
	if err != nil {
		t.Fatalf("GetView error: %v", err)
	}
	if view != nil {
		t.Fatalf("expected nil, got %+v", view)
	}
	piece, err := f.repo.GetByID(context.Background(), 999)
	if err != nil || piece != nil {
		t.Fatalf("GetByID = %+v, %v", piece, err)
	}
}

func TestPieceRepositoryAffixWithoutRecord(t *testing.T) {
	f := newPieceFixture(t)
	ctx := context.Background()

	id := f.createPiece(t, "空洞驰行", 1, "生命值", nil, nil)
	sub := &schema.DrivePieceSubstat{DriveID: id, StatID: f.stats["暴击率"]}
	if err := f.repo.CreateSubstat(ctx, sub); err != nil {
		t.Fatalf("CreateSubstat error: %v", err)
	}

	affixes, err := f.repo.AffixesFor(ctx, []int64{id})
	if err != nil {
		t.Fatalf("AffixesFor error: %v", err)
	}
	if len(affixes[id]) != 1 {
		t.Fatalf("expected 1 affix, got %d", len(affixes[id]))
	}
	if affixes[id][0].RecordID != nil || affixes[id][0].UpgradeCount != nil {
		t.Fatalf("expected no record: %+v", affixes[id][0])
	}

	rec, err := f.repo.UpgradeRecordFor(ctx, sub.ID)
	if err != nil || rec != nil {
		t.Fatalf("UpgradeRecordFor = %+v, %v", rec, err)
	}
}

func TestPieceRepositoryListViewsNewestFirst(t *testing.T) {
	f := newPieceFixture(t)
	ctx := context.Background()

	first := f.createPiece(t, "空洞驰行", 1, "生命值", []string{"暴击率", "暴击伤害", "防御力"}, nil)
	second := f.createPiece(t, "电镀音潮", 2, "攻击力百分比", []string{"暴击率", "暴击伤害", "防御力"}, nil)

	views, err := f.repo.ListViews(ctx, 0, 10)
	if err != nil {
		t.Fatalf("ListViews error: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}
	if views[0].ID != second || views[1].ID != first {
		t.Fatalf("unexpected order: %d, %d", views[0].ID, views[1].ID)
	}

	page, err := f.repo.ListViews(ctx, 1, 10)
	if err != nil {
		t.Fatalf("ListViews error: %v", err)
	}
	if len(page) != 1 || page[0].ID != first {
		t.Fatalf("unexpected second page: %+v", page)
	}

	n, err := f.repo.Count(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Count = %d, %v", n, err)
	}
}

func TestPieceRepositoryGuardedTotals(t *testing.T) {
	f := newPieceFixture(t)
	ctx := context.Background()

	id := f.createPiece(t, "空洞驰行", 1, "生命值", []string{"暴击率", "暴击伤害", "防御力"}, []int{4, 0, 0})

	ok, err := f.repo.IncrementTotalUpgrades(ctx, id)
	if err != nil || !ok {
		t.Fatalf("IncrementTotalUpgrades = %v, %v", ok, err)
	}
	ok, err = f.repo.IncrementTotalUpgrades(ctx, id)
	if err != nil {
		t.Fatalf("IncrementTotalUpgrades error: %v", err)
	}
	if ok {
		t.Fatalf("expected budget guard to reject sixth upgrade")
	}

	piece, _ := f.repo.GetByID(ctx, id)
	if piece.TotalUpgrades != schema.MaxTotalUpgrades {
		t.Fatalf("expected total %d, got %d", schema.MaxTotalUpgrades, piece.TotalUpgrades)
	}
}

func TestPieceRepositoryDecrementUpgradeCountStopsAtZero(t *testing.T) {
	f := newPieceFixture(t)
	ctx := context.Background()

	id := f.createPiece(t, "空洞驰行", 1, "生命值", []string{"暴击率", "暴击伤害", "防御力"}, []int{1, 0, 0})
	subs, err := f.repo.ListSubstats(ctx, id)
	if err != nil {
		t.Fatalf("ListSubstats error: %v", err)
	}
	rec, err := f.repo.UpgradeRecordFor(ctx, subs[0].ID)
	if err != nil || rec == nil {
		t.Fatalf("UpgradeRecordFor = %+v, %v", rec, err)
	}

	ok, err := f.repo.DecrementUpgradeCount(ctx, rec.ID)
	if err != nil || !ok {
		t.Fatalf("first decrement = %v, %v", ok, err)
	}
	ok, err = f.repo.DecrementUpgradeCount(ctx, rec.ID)
	if err != nil {
		t.Fatalf("second decrement error: %v", err)
	}
	if ok {
		t.Fatalf("expected decrement at zero to be rejected")
	}
}

func TestPieceRepositoryUniqueAffixPerPiece(t *testing.T) {
	f := newPieceFixture(t)
	ctx := context.Background()

	id := f.createPiece(t, "空洞驰行", 1, "生命值", []string{"暴击率"}, nil)
	err := f.repo.CreateSubstat(ctx, &schema.DrivePieceSubstat{DriveID: id, StatID: f.stats["暴击率"]})
	if err == nil {
		t.Fatalf("expected unique constraint violation")
	}
}

func TestPieceRepositoryClearAffixesAndDelete(t *testing.T) {
	f := newPieceFixture(t)
	ctx := context.Background()

	id := f.createPiece(t, "空洞驰行", 1, "生命值", []string{"暴击率", "暴击伤害", "防御力"}, []int{1, 1, 0})
	other := f.createPiece(t, "电镀音潮", 3, "防御力", []string{"暴击率", "暴击伤害", "生命值"}, nil)

	if err := f.repo.ClearAffixes(ctx, id); err != nil {
		t.Fatalf("ClearAffixes error: %v", err)
	}
	piece, _ := f.repo.GetByID(ctx, id)
	if piece.TotalUpgrades != 0 {
		t.Fatalf("expected total reset, got %d", piece.TotalUpgrades)
	}
	subs, _ := f.repo.ListSubstats(ctx, id)
	if len(subs) != 0 {
		t.Fatalf("expected no affixes, got %d", len(subs))
	}

	ok, err := f.repo.Delete(ctx, other)
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	var recs int64
	f.db.Model(&schema.UpgradeRecord{}).Where("drive_id = ?", other).Count(&recs)
	if recs != 0 {
		t.Fatalf("expected cascade of records, got %d", recs)
	}

	ok, err = f.repo.Delete(ctx, other)
	if err != nil || ok {
		t.Fatalf("second Delete = %v, %v", ok, err)
	}
}

func TestPieceRepositoryUpgradeSums(t *testing.T) {
	f := newPieceFixture(t)
	ctx := context.Background()

	a := f.createPiece(t, "空洞驰行", 1, "生命值", []string{"暴击率", "暴击伤害", "防御力"}, []int{2, 1, 0})
	b := f.createPiece(t, "空洞驰行", 2, "生命值", []string{"暴击率", "暴击伤害", "防御力"}, nil)

	sums, err := f.repo.UpgradeSums(ctx)
	if err != nil {
		t.Fatalf("UpgradeSums error: %v", err)
	}
	if sums[a] != 3 || sums[b] != 0 {
		t.Fatalf("unexpected sums: %+v", sums)
	}
}

func TestPieceRepositorySubstatCache(t *testing.T) {
	f := newPieceFixture(t)
	ctx := context.Background()

	id := f.createPiece(t, "空洞驰行", 1, "生命值", []string{"暴击率"}, nil)
	if err := f.repo.UpdateSubstatCache(ctx, id, []string{"暴击率"}); err != nil {
		t.Fatalf("UpdateSubstatCache error: %v", err)
	}
	view, _ := f.repo.GetView(ctx, id)
	if len(view.Substats) != 1 || view.Substats[0] != "暴击率" {
		t.Fatalf("unexpected cache: %v", view.Substats)
	}
}
