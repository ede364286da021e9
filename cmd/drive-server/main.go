package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/yuqie6/drivestats/internal/bootstrap"
	"github.com/yuqie6/drivestats/internal/httpapi"
	"github.com/yuqie6/drivestats/internal/pkg/buildinfo"
	"github.com/yuqie6/drivestats/internal/pkg/config"
)

var (
	cfgFile   string
	cfg       *config.Config
	logCloser io.Closer
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "drive-server",
		Short: "驱动盘记录与统计服务",
		Long:  `记录驱动盘的套装、主副词条与强化过程，并提供词条分布统计和配对概率计算。`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// 加载配置
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				slog.Error("加载配置失败", "error", err)
				os.Exit(1)
			}
			logCloser = config.SetupLogger(config.LoggerOptionsFrom(cfg))
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				_ = logCloser.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")

	// 添加子命令
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(initDBCmd())
	rootCmd.AddCommand(checkDBCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(initConfigCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openCore 按当前配置打开数据库并组装服务，失败时直接退出
func openCore() *bootstrap.Core {
	core, err := bootstrap.NewCoreWithConfig(cfg)
	if err != nil {
		slog.Error("初始化数据库失败", "error", err)
		os.Exit(1)
	}
	return core
}

// serveCmd 启动 HTTP 服务
func serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP API 服务",
		Run: func(cmd *cobra.Command, args []string) {
			if listen != "" {
				cfg.Server.ListenAddr = listen
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			core := openCore()
			defer core.Close()

			slog.Info("服务启动中...", "name", cfg.App.Name, "version", cfg.App.Version, "build", buildinfo.String())
			if core.DB.SafeMode {
				slog.Warn("数据库处于安全模式，业务接口不可用", "reason", core.DB.MigrationError)
			}

			srv, err := httpapi.Start(ctx, core, httpapi.OptionsFrom(core))
			if err != nil {
				slog.Error("启动 HTTP 服务失败", "error", err)
				os.Exit(1)
			}

			// 配置文件热更新（目前只影响日志级别）
			if path := cfg.Path(); path != "" {
				w, err := config.NewWatcher(path, config.ApplyRuntime)
				if err != nil {
					slog.Warn("配置文件监控启动失败", "error", err)
				} else {
					w.Start(ctx)
					defer w.Stop()
				}
			}

			<-ctx.Done()
			slog.Info("收到退出信号，正在关闭...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("HTTP 服务关闭超时", "error", err)
			}
			slog.Info("服务已退出")
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "监听地址，覆盖 server.listen_addr")
	return cmd
}

// versionCmd 版本信息
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", cfg.App.Name, buildinfo.String())
		},
	}
}
