package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite" // 纯 Go SQLite 驱动
	"github.com/yuqie6/drivestats/internal/schema"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Database 数据库管理器
type Database struct {
	DB             *gorm.DB
	Dialect        string
	SafeMode       bool
	SchemaVersion  int
	MigrationError string
}

// NewDatabase 创建数据库连接并执行迁移
// dsn 以 postgres:// 开头时使用 PostgreSQL，否则视为 SQLite 文件路径
func NewDatabase(dsn string) (*Database, error) {
	db, dialect, err := Open(dsn)
	if err != nil {
		return nil, err
	}

	d := &Database{DB: db, Dialect: dialect}
	if err := migrateWithVersion(db, d); err != nil {
		// 迁移失败进入安全模式：服务仍可启动，check-db 可导出诊断信息
		d.SafeMode = true
		d.MigrationError = err.Error()
		slog.Error("数据库迁移失败，进入安全模式", "error", err)
	}

	slog.Info("数据库初始化成功", "dialect", dialect, "dsn", RedactDSN(dsn))
	return d, nil
}

// Open 按 DSN 打开数据库（不执行迁移）
func Open(dsn string) (*gorm.DB, string, error) {
	dsn = strings.TrimSpace(dsn)
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	if isPostgresDSN(dsn) {
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, "", fmt.Errorf("连接 PostgreSQL 失败: %w", err)
		}
		return db, DialectPostgres, nil
	}

	path := strings.TrimPrefix(dsn, "sqlite://")
	if path == "" {
		return nil, "", fmt.Errorf("数据库路径不能为空")
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, "", fmt.Errorf("创建数据目录失败: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, "", fmt.Errorf("连接数据库失败: %w", err)
	}
	if err := configureSQLite(db); err != nil {
		return nil, "", fmt.Errorf("配置数据库失败: %w", err)
	}
	return db, DialectSQLite, nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// RedactDSN 去掉 DSN 中的口令，便于写日志
func RedactDSN(dsn string) string {
	if !isPostgresDSN(dsn) {
		return dsn
	}
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	userinfo := dsn[scheme+3 : at]
	if i := strings.Index(userinfo, ":"); i >= 0 {
		userinfo = userinfo[:i] + ":***"
	}
	return dsn[:scheme+3] + userinfo + dsn[at:]
}

// configureSQLite 配置 SQLite 参数
func configureSQLite(db *gorm.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",   // 读写并发
		"PRAGMA synchronous=NORMAL", // 平衡性能与安全
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000", // 写锁等待，避免并发强化直接报 SQLITE_BUSY
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return fmt.Errorf("执行 %s 失败: %w", pragma, err)
		}
	}
	return nil
}

// Models 所有需要迁移的表
func Models() []any {
	return []any{
		&schema.SchemaMeta{},
		&schema.SetType{},
		&schema.StatType{},
		&schema.DrivePiece{},
		&schema.DrivePieceSubstat{},
		&schema.UpgradeRecord{},
	}
}

// ExpectedTables 期望存在的表名，顺序与迁移一致
func ExpectedTables() []string {
	return []string{"schema_meta", "set_types", "stat_types", "drive_pieces", "drive_piece_substats", "upgrade_records"}
}

// AutoMigrate 自动迁移表结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

const latestSchemaVersion = 1

func migrateWithVersion(db *gorm.DB, out *Database) error {
	if db == nil {
		return fmt.Errorf("db 不能为空")
	}
	if out == nil {
		return fmt.Errorf("out 不能为空")
	}

	// 先确保 schema_meta 存在（即使后续迁移失败，也能记录状态）
	if err := db.AutoMigrate(&schema.SchemaMeta{}); err != nil {
		return fmt.Errorf("创建 schema_meta 失败: %w", err)
	}

	var meta schema.SchemaMeta
	err := db.First(&meta, 1).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			meta = schema.SchemaMeta{ID: 1, SchemaVersion: 0}
			if err := db.Create(&meta).Error; err != nil {
				return fmt.Errorf("初始化 schema_meta 失败: %w", err)
			}
		} else {
			return fmt.Errorf("读取 schema_meta 失败: %w", err)
		}
	}

	cur := meta.SchemaVersion
	out.SchemaVersion = cur

	if cur > latestSchemaVersion {
		return fmt.Errorf("数据库 schema_version=%d 高于当前程序支持的版本=%d", cur, latestSchemaVersion)
	}
	if cur == latestSchemaVersion {
		return nil
	}

	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("迁移数据库失败: %w", err)
	}

	meta.SchemaVersion = latestSchemaVersion
	if err := db.Save(&meta).Error; err != nil {
		return fmt.Errorf("写入 schema_meta 失败: %w", err)
	}
	out.SchemaVersion = latestSchemaVersion
	return nil
}

// TableStatus 单张表的检查结果
type TableStatus struct {
	Name   string `json:"name"`
	Exists bool   `json:"exists"`
}

// CheckTables 检查期望的表是否存在
func (d *Database) CheckTables(ctx context.Context) []TableStatus {
	migrator := d.DB.WithContext(ctx).Migrator()
	out := make([]TableStatus, 0, len(ExpectedTables()))
	for _, name := range ExpectedTables() {
		out = append(out, TableStatus{Name: name, Exists: migrator.HasTable(name)})
	}
	return out
}

// Close 关闭数据库连接
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
