package config

import (
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// logLevel 全局日志级别，配置热更新时直接修改
var logLevel = new(slog.LevelVar)

// LoggerOptions 日志配置
type LoggerOptions struct {
	Level      string
	Format     string // text | json
	Path       string // 为空时输出到 stderr
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// LoggerOptionsFrom 从应用配置生成日志配置
func LoggerOptionsFrom(cfg *Config) LoggerOptions {
	return LoggerOptions{
		Level:      cfg.App.LogLevel,
		Format:     cfg.App.LogFormat,
		Path:       cfg.App.LogPath,
		MaxSizeMB:  20,
		MaxBackups: 5,
		MaxAgeDays: 14,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// SetupLogger 设置默认 slog 与标准库 log 的输出
// 返回的 Closer 用于关闭日志文件
func SetupLogger(opts LoggerOptions) io.Closer {
	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if path := strings.TrimSpace(opts.Path); path != "" {
		_ = os.MkdirAll(filepath.Dir(path), 0o755)
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		w = lj
		closer = lj
	}

	SetLogLevel(opts.Level)
	handlerOpts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(w, handlerOpts)
		log.SetFlags(0)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}
	slog.SetDefault(slog.New(handler))
	log.SetOutput(w)
	return closer
}

// SetLogLevel 修改日志级别，未知值按 info 处理
func SetLogLevel(level string) {
	logLevel.Set(ParseLevel(level))
}

// LogLevel 当前日志级别
func LogLevel() slog.Level {
	return logLevel.Level()
}

// ParseLevel 解析日志级别
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
