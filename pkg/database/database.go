// Package database 负责关系库与 Redis 连接的初始化。
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"
	_ "modernc.org/sqlite"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/internal/model"
	"viba-annotation-go/pkg/log"
)

var DB *gorm.DB

// Init 初始化全局数据库连接，失败时直接退出进程。
func Init(cfg config.DatabaseConfig) {
	db, err := Open(cfg)
	if err != nil {
		log.Fatal("failed to connect database", err)
	}
	if cfg.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			log.Fatal("failed to migrate database", err)
		}
	}
	DB = db
	log.Infof("Database connected successfully, driver: %s", cfg.Driver)
}

// Open 按驱动名创建连接，配置了只读副本时启用读写分离。
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	if len(cfg.Replicas) > 0 {
		replicas := make([]gorm.Dialector, 0, len(cfg.Replicas))
		for i, dsn := range cfg.Replicas {
			if dsn == "" {
				log.Warnf("发现空的从库 DSN 配置，已跳过, index: %d", i)
				continue
			}
			r, err := dialectorFor(cfg.Driver, dsn)
			if err != nil {
				return nil, err
			}
			replicas = append(replicas, r)
		}
		if len(replicas) > 0 {
			err = db.Use(dbresolver.Register(dbresolver.Config{
				Replicas: replicas,
				Policy:   dbresolver.RandomPolicy{},
			}))
			if err != nil {
				return nil, fmt.Errorf("register read replicas: %w", err)
			}
			log.Infof("已启用读写分离, 从库数量: %d", len(replicas))
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// sqlite 只允许单个写连接
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// AutoMigrate 创建或更新全部表结构。PostgreSQL 下先启用 pgvector 扩展。
func AutoMigrate(db *gorm.DB) error {
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("enable pgvector: %w", err)
		}
	}
	return db.AutoMigrate(
		&model.TagDefinition{},
		&model.Theme{},
		&model.ReferenceImage{},
		&model.ReferenceImageTheme{},
	)
}
