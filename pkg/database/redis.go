package database

import (
	"context"

	"github.com/go-redis/redis/v8"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/pkg/log"
)

// RDB 为全局 Redis 客户端，未配置地址时为 nil。
var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接
func InitRedis(cfg config.RedisConfig) {
	if cfg.Addr == "" {
		log.Warnf("未配置 Redis 地址, 上传去重与消息重试计数将被禁用")
		return
	}
	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx := context.Background()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Info("Redis client connected successfully")
}
