package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yuqie6/drivestats/internal/pkg/config"
	"github.com/yuqie6/drivestats/internal/repository"
)

// initDBCmd 建表并写入初始套装与词条
func initDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "初始化数据库（建表并写入默认套装和词条）",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			db, err := repository.NewDatabase(cfg.DatabaseDSN())
			if err != nil {
				fmt.Printf("❌ 打开数据库失败: %v\n", err)
				os.Exit(1)
			}
			defer db.Close()

			if db.SafeMode {
				fmt.Printf("❌ 数据库迁移失败: %s\n", db.MigrationError)
				os.Exit(1)
			}

			res, err := repository.SeedCatalogs(ctx, db.DB)
			if err != nil {
				fmt.Printf("❌ 写入初始数据失败: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("✅ 数据库已就绪: %s\n", repository.RedactDSN(cfg.DatabaseDSN()))
			if res.SetTypes == 0 && res.StatTypes == 0 {
				fmt.Println("   套装和词条已存在，未写入新数据")
				return
			}
			fmt.Printf("   新增套装 %d 个，词条 %d 个\n", res.SetTypes, res.StatTypes)
		},
	}
}

// checkDBCmd 检查表是否齐全
func checkDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-db",
		Short: "检查数据库表",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			db, err := repository.NewDatabase(cfg.DatabaseDSN())
			if err != nil {
				fmt.Printf("❌ 打开数据库失败: %v\n", err)
				os.Exit(1)
			}
			defer db.Close()

			fmt.Printf("🗄  %s (%s)\n", repository.RedactDSN(cfg.DatabaseDSN()), db.Dialect)
			fmt.Printf("   schema 版本: %d\n", db.SchemaVersion)
			if db.SafeMode {
				fmt.Printf("   ⚠️  安全模式: %s\n", db.MigrationError)
			}

			missing := 0
			for _, t := range db.CheckTables(ctx) {
				mark := "✅"
				if !t.Exists {
					mark = "❌"
					missing++
				}
				fmt.Printf("   %s %s\n", mark, t.Name)
			}
			if missing > 0 || db.SafeMode {
				os.Exit(1)
			}
		},
	}
}

// importCmd 从另一个数据库导入全部数据
func importCmd() *cobra.Command {
	var from string
	var replace bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "从其他数据库（PostgreSQL 或 SQLite）导入数据",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			from = strings.TrimSpace(from)
			if from == "" {
				fmt.Println("❌ 请通过 --from 指定源数据库")
				os.Exit(1)
			}
			if err := checkSourceExists(from); err != nil {
				fmt.Printf("❌ %v\n", err)
				os.Exit(1)
			}

			src, _, err := repository.Open(from)
			if err != nil {
				fmt.Printf("❌ 打开源数据库失败: %v\n", err)
				os.Exit(1)
			}
			if sqlDB, err := src.DB(); err == nil {
				defer sqlDB.Close()
			}

			dst, err := repository.NewDatabase(cfg.DatabaseDSN())
			if err != nil {
				fmt.Printf("❌ 打开目标数据库失败: %v\n", err)
				os.Exit(1)
			}
			defer dst.Close()
			if dst.SafeMode {
				fmt.Printf("❌ 目标数据库处于安全模式: %s\n", dst.MigrationError)
				os.Exit(1)
			}

			source := repository.RedactDSN(from)
			slog.Info("开始导入", "from", source, "replace", replace)
			res, err := repository.ImportFrom(ctx, src, dst.DB, source, replace)
			if err != nil {
				fmt.Printf("❌ 导入失败: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("✅ 导入完成: %s\n", source)
			fmt.Printf("   套装 %d，词条 %d，驱动盘 %d，副词条 %d，强化记录 %d\n",
				res.SetTypes, res.StatTypes, res.Pieces, res.Substats, res.UpgradeRecords)
			if res.RebuiltRecords > 0 {
				fmt.Printf("   补建强化记录 %d 条\n", res.RebuiltRecords)
			}
			if res.SkippedPieces > 0 {
				fmt.Printf("   ⚠️  目标库已存在、跳过驱动盘 %d 个\n", res.SkippedPieces)
			}
			if res.SkippedSubstats > 0 {
				fmt.Printf("   ⚠️  跳过副词条 %d 条\n", res.SkippedSubstats)
			}
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "源数据库 DSN（postgres://... 或 SQLite 文件路径）")
	cmd.Flags().BoolVar(&replace, "replace", false, "导入前清空目标库")
	return cmd
}

// checkSourceExists SQLite 源文件必须已存在，避免误建空库
func checkSourceExists(dsn string) error {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}
	path := strings.TrimPrefix(dsn, "sqlite://")
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("源数据库文件不存在: %s", path)
	}
	return nil
}

// statsCmd 输出统计报告
func statsCmd() *cobra.Command {
	var pair []string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "以 JSON 输出统计报告",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			core := openCore()
			defer core.Close()

			var out any
			var err error
			if len(pair) > 0 {
				out, err = core.Services.Stats.Pairing(ctx, pair)
			} else {
				out, err = core.Services.Stats.Aggregate(ctx)
			}
			if err != nil {
				fmt.Printf("❌ 统计失败: %v\n", err)
				os.Exit(1)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			_ = enc.Encode(out)
		},
	}

	cmd.Flags().StringSliceVar(&pair, "pair", nil, "计算配对概率的词条，逗号分隔（最多 4 个）")
	return cmd
}

// initConfigCmd 生成默认配置文件
func initConfigCmd() *cobra.Command {
	var path string
	var force bool

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "生成默认配置文件",
		Run: func(cmd *cobra.Command, args []string) {
			if path == "" {
				p, err := config.DefaultConfigPath()
				if err != nil {
					fmt.Printf("❌ %v\n", err)
					os.Exit(1)
				}
				path = p
			}

			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("⚠️  配置文件已存在: %s（使用 --force 覆盖）\n", path)
				return
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				fmt.Printf("❌ 检查配置文件失败: %v\n", err)
				os.Exit(1)
			}

			if err := config.WriteFile(path, config.Default()); err != nil {
				fmt.Printf("❌ %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("✅ 已生成配置文件: %s\n", path)
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "输出路径，默认为可执行文件目录下的 config/config.yaml")
	cmd.Flags().BoolVar(&force, "force", false, "覆盖已存在的配置文件")
	return cmd
}
