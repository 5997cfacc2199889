package service

import (
	"context"
	"time"

	"viba-annotation-go/internal/model"
	"viba-annotation-go/internal/repository"
	"viba-annotation-go/pkg/cache"
	"viba-annotation-go/pkg/errs"
	"viba-annotation-go/pkg/log"
)

const themesCacheKey = "themes:all"

// ThemeService 接口定义了主题相关的业务操作。
type ThemeService interface {
	ListThemes(ctx context.Context) ([]model.Theme, error)
}

type themeService struct {
	themeRepo repository.ThemeRepository
	cache     *cache.TTLCache
	ttl       time.Duration
}

// NewThemeService 创建一个新的 ThemeService 实例。
func NewThemeService(themeRepo repository.ThemeRepository, c *cache.TTLCache, ttl time.Duration) ThemeService {
	return &themeService{themeRepo: themeRepo, cache: c, ttl: ttl}
}

// ListThemes 返回全部主题，最新的在前。
func (s *themeService) ListThemes(ctx context.Context) ([]model.Theme, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(themesCacheKey); ok {
			return v.([]model.Theme), nil
		}
	}
	themes, err := s.themeRepo.FindAll(ctx)
	if err != nil {
		log.Errorf("[ThemeService] 查询主题失败: %v", err)
		return nil, errs.Upstream("load themes", err)
	}
	if s.cache != nil {
		s.cache.Set(themesCacheKey, themes, s.ttl)
	}
	return themes, nil
}
