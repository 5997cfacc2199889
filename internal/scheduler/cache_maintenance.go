// Package scheduler 存放基于 cron 的后台维护任务。
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/internal/service"
	"viba-annotation-go/pkg/cache"
	"viba-annotation-go/pkg/log"
)

// CacheMaintenanceTask 定期清理过期缓存条目，并可选地预热标签目录与主题列表。
type CacheMaintenanceTask struct {
	cache        *cache.TTLCache
	tagService   service.TagService
	themeService service.ThemeService
	cron         *cron.Cron
}

// NewCacheMaintenanceTask 根据配置注册作业，cron 表达式非法时返回错误。WarmSpec 为空时不预热。
func NewCacheMaintenanceTask(cfg config.CacheConfig, c *cache.TTLCache, tagService service.TagService, themeService service.ThemeService) (*CacheMaintenanceTask, error) {
	t := &CacheMaintenanceTask{
		cache:        c,
		tagService:   tagService,
		themeService: themeService,
		cron:         cron.New(),
	}
	if _, err := t.cron.AddFunc(cfg.PurgeSpec, t.Purge); err != nil {
		return nil, fmt.Errorf("add purge job %q: %w", cfg.PurgeSpec, err)
	}
	if cfg.WarmSpec != "" {
		_, err := t.cron.AddFunc(cfg.WarmSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			t.Warm(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("add warm job %q: %w", cfg.WarmSpec, err)
		}
	}
	log.Infof("[CacheMaintenance] 定时任务已注册, purge: %s, warm: %q", cfg.PurgeSpec, cfg.WarmSpec)
	return t, nil
}

// Start 在后台 goroutine 中运行调度器
func (t *CacheMaintenanceTask) Start() {
	t.cron.Start()
}

// Stop 停止调度，返回的 context 在正在执行的作业结束后关闭。
func (t *CacheMaintenanceTask) Stop() context.Context {
	log.Info("[CacheMaintenance] 正在停止缓存维护定时任务")
	return t.cron.Stop()
}

// Purge 清理过期条目
func (t *CacheMaintenanceTask) Purge() {
	before := t.cache.Len()
	t.cache.PurgeExpired()
	if after := t.cache.Len(); after < before {
		log.Infof("[CacheMaintenance] 已清理过期缓存条目, 清理前: %d, 剩余: %d", before, after)
	}
}

// Warm 丢弃旧的标签缓存并重新构建标签目录与主题列表。
func (t *CacheMaintenanceTask) Warm(ctx context.Context) {
	start := time.Now()
	t.tagService.Invalidate()
	if _, err := t.tagService.Catalog(ctx); err != nil {
		log.Warnf("[CacheMaintenance] 预热标签目录失败: %v", err)
	}
	if _, err := t.themeService.ListThemes(ctx); err != nil {
		log.Warnf("[CacheMaintenance] 预热主题列表失败: %v", err)
	}
	log.Infof("[CacheMaintenance] 缓存预热完成, 耗时: %s", time.Since(start))
}
