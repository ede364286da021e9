package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Catalog CatalogConfig `mapstructure:"catalog"`

	// path 实际读取的配置文件，未找到时为空
	path string
}

// AppConfig 应用配置
type AppConfig struct {
	Name      string `mapstructure:"name"`
	Version   string `mapstructure:"version"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // text | json
	LogPath   string `mapstructure:"log_path"`   // 为空时输出到 stderr
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	ListenAddr        string   `mapstructure:"listen_addr"`
	CORSOrigins       []string `mapstructure:"cors_origins"`
	RequestTimeoutSec int      `mapstructure:"request_timeout_sec"`
}

// StorageConfig 存储配置
// DSN 优先；为空时使用 DBPath 指向的 SQLite 文件
type StorageConfig struct {
	DSN    string `mapstructure:"dsn"`
	DBPath string `mapstructure:"db_path"`
}

// CatalogConfig 套装/词条初始数据
type CatalogConfig struct {
	SeedOnStart bool `mapstructure:"seed_on_start"`
}

// Path 实际读取的配置文件路径
func (c *Config) Path() string {
	return c.path
}

// DatabaseDSN 返回用于打开数据库的 DSN
func (c *Config) DatabaseDSN() string {
	if dsn := strings.TrimSpace(c.Storage.DSN); dsn != "" {
		return dsn
	}
	return c.Storage.DBPath
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// 默认查找路径
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// 支持环境变量，例如 DRIVE_STORAGE_DSN
	v.SetEnvPrefix("DRIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if notFound || (configPath != "" && os.IsNotExist(err)) {
			slog.Warn("配置文件未找到，使用默认配置")
		} else {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	} else {
		slog.Info("加载配置文件", "path", v.ConfigFileUsed())
	}

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.path = v.ConfigFileUsed()

	// 处理环境变量占位符
	cfg.Storage.DSN = expandEnv(cfg.Storage.DSN)

	// 处理相对路径
	cfg.Storage.DBPath = resolvePath(cfg.Storage.DBPath)
	if cfg.App.LogPath != "" {
		cfg.App.LogPath = resolvePath(cfg.App.LogPath)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		return fmt.Errorf("server.listen_addr 不能为空")
	}
	if c.Server.RequestTimeoutSec <= 0 {
		return fmt.Errorf("server.request_timeout_sec 必须大于 0")
	}
	if strings.TrimSpace(c.DatabaseDSN()) == "" {
		return fmt.Errorf("storage.dsn 和 storage.db_path 不能同时为空")
	}
	switch strings.ToLower(c.App.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("app.log_format 只支持 text 或 json: %s", c.App.LogFormat)
	}
	return nil
}

// Default 返回默认配置（不读取文件和环境变量）
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "drive-stats")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "text")
	v.SetDefault("app.log_path", "")

	// Server
	v.SetDefault("server.listen_addr", ":5000")
	v.SetDefault("server.cors_origins", []string{"http://localhost", "http://localhost:5173"})
	v.SetDefault("server.request_timeout_sec", 10)

	// Storage
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.db_path", "./data/drive_stats.db")

	// Catalog
	v.SetDefault("catalog.seed_on_start", true)
}

// expandEnv 展开环境变量占位符 ${VAR}
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		envVar := s[2 : len(s)-1]
		return os.Getenv(envVar)
	}
	return s
}

// resolvePath 解析相对路径为绝对路径（相对可执行文件目录）
// SQLite 的 :memory: 与 file: URI 原样返回
func resolvePath(path string) string {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") || filepath.IsAbs(path) {
		return path
	}

	// 获取可执行文件目录
	exe, err := os.Executable()
	if err != nil {
		return path
	}

	exeDir := filepath.Dir(exe)
	return filepath.Join(exeDir, path)
}
