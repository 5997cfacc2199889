// Package main 提供开发环境下的数据填充工具：建表、写入示例标签体系与主题。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/internal/repository"
	"viba-annotation-go/pkg/database"
	"viba-annotation-go/pkg/log"
)

func main() {
	// --- 0. 解析命令行参数 ---
	var configFile, tagsFile string
	var numThemes int
	var seed int64
	flag.StringVar(&configFile, "config", "./configs/config.yaml", "配置文件路径")
	flag.StringVar(&tagsFile, "tags", "", "标签定义 JSON 文件, 为空时写入内置示例标签体系")
	flag.IntVar(&numThemes, "themes", 5, "要生成的主题数量")
	flag.Int64Var(&seed, "seed", 0, "随机种子, 0 表示每次不同")
	flag.Parse()

	if numThemes < 0 {
		fmt.Println("错误: 主题数量不能为负")
		os.Exit(1)
	}

	// --- 1. 加载配置与日志 ---
	config.Init(configFile)
	cfg := config.Conf
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()

	// --- 2. 连接数据库并建表 ---
	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal("Seeder: 连接数据库失败", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("Seeder: 建表失败", err)
	}

	tagRepo := repository.NewTagRepository(db, cfg.Tags.MaxAncestorDepth)
	themeRepo := repository.NewThemeRepository(db)

	// --- 3. 执行数据填充 ---
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	start := time.Now()

	rows := DemoTaxonomy()
	if tagsFile != "" {
		if rows, err = LoadTaxonomyFile(tagsFile); err != nil {
			log.Fatal("Seeder: 读取标签文件失败", err)
		}
	}
	if err := tagRepo.CreateBatch(ctx, rows); err != nil {
		log.Fatal("Seeder: 写入标签失败", err)
	}
	log.Infof("Seeder: 已写入 %d 条标签定义 (已存在的 ID 跳过)", len(rows))

	themes, err := SeedThemes(ctx, themeRepo, numThemes, seed)
	if err != nil {
		log.Fatal("Seeder: 写入主题失败", err)
	}
	log.Infof("Seeder: 已写入 %d 个主题", len(themes))

	fmt.Printf("数据填充完成！耗时: %v\n", time.Since(start))
}
