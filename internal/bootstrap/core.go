package bootstrap

import (
	"context"
	"io"

	"github.com/yuqie6/drivestats/internal/eventbus"
	"github.com/yuqie6/drivestats/internal/pkg/config"
	"github.com/yuqie6/drivestats/internal/repository"
	"github.com/yuqie6/drivestats/internal/service"
)

// Core 持有跨命令共享的核心依赖
type Core struct {
	Cfg       *config.Config
	DB        *repository.Database
	LogCloser io.Closer
	Hub       *eventbus.Hub

	Repos struct {
		Catalog *repository.CatalogRepository
		Pieces  *repository.PieceRepository
		Stats   *repository.StatsRepository
	}

	Services struct {
		Catalog  *service.CatalogService
		Pieces   *service.PieceService
		Upgrades *service.UpgradeService
		Stats    *service.StatsService
	}
}

// NewCore 加载配置、初始化日志并打开数据库
func NewCore(cfgPath string) (*Core, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logCloser := config.SetupLogger(config.LoggerOptionsFrom(cfg))

	core, err := NewCoreWithConfig(cfg)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}
	core.LogCloser = logCloser
	return core, nil
}

// NewCoreWithConfig 按已加载的配置打开数据库并组装依赖（不改动日志设置）
func NewCoreWithConfig(cfg *config.Config) (*Core, error) {
	db, err := repository.NewDatabase(cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}

	c := NewCoreWithDB(cfg, db, service.DefaultRand())

	if cfg.Catalog.SeedOnStart && !db.SafeMode {
		if _, err := repository.SeedCatalogs(context.Background(), db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return c, nil
}

// NewCoreWithDB 基于已打开的数据库组装仓储与服务
func NewCoreWithDB(cfg *config.Config, db *repository.Database, rng service.RandSource) *Core {
	c := &Core{Cfg: cfg, DB: db, Hub: eventbus.NewHub()}

	// Repos
	c.Repos.Catalog = repository.NewCatalogRepository(db.DB)
	c.Repos.Pieces = repository.NewPieceRepository(db.DB)
	c.Repos.Stats = repository.NewStatsRepository(db.DB)

	// Services
	c.Services.Catalog = service.NewCatalogService(c.Repos.Catalog)
	c.Services.Pieces = service.NewPieceService(c.Repos.Catalog, c.Repos.Pieces)
	c.Services.Upgrades = service.NewUpgradeService(c.Repos.Catalog, c.Repos.Pieces, rng)
	c.Services.Stats = service.NewStatsService(c.Repos.Catalog, c.Repos.Stats)
	return c
}

// Close 关闭核心依赖资源
func (c *Core) Close() error {
	if c == nil {
		return nil
	}
	var dbErr error
	if c.DB != nil {
		dbErr = c.DB.Close()
	}
	if c.LogCloser != nil {
		_ = c.LogCloser.Close()
	}
	return dbErr
}
