package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/yuqie6/drivestats/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenTestDB 打开内存 SQLite 并自动迁移所有表
// 内存库每个连接都是独立的数据库，因此连接池限制为 1
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&schema.SchemaMeta{},
		&schema.SetType{},
		&schema.StatType{},
		&schema.DrivePiece{},
		&schema.DrivePieceSubstat{},
		&schema.UpgradeRecord{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	return db
}

// SeedStatTypes 写入指定名称的词条，返回 name -> id
func SeedStatTypes(t *testing.T, db *gorm.DB, names ...string) map[string]int64 {
	t.Helper()

	out := make(map[string]int64, len(names))
	for _, n := range names {
		st := schema.StatType{Name: n, Category: schema.StatCategoryBoth}
		if err := db.Create(&st).Error; err != nil {
			t.Fatalf("seed stat type %s: %v", n, err)
		}
		out[n] = st.ID
	}
	return out
}

// SeedSetTypes 写入指定名称的套装，返回 name -> id
func SeedSetTypes(t *testing.T, db *gorm.DB, names ...string) map[string]int64 {
	t.Helper()

	out := make(map[string]int64, len(names))
	for _, n := range names {
		st := schema.SetType{Name: n}
		if err := db.Create(&st).Error; err != nil {
			t.Fatalf("seed set type %s: %v", n, err)
		}
		out[n] = st.ID
	}
	return out
}
