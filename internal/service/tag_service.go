// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"time"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/internal/repository"
	"viba-annotation-go/internal/taxonomy"
	"viba-annotation-go/pkg/cache"
	"viba-annotation-go/pkg/errs"
	"viba-annotation-go/pkg/log"
)

const catalogCacheKey = "tags:all"

// TypeTags 是单个标签类型的构建结果
type TypeTags struct {
	TagType string             `json:"tag_type"`
	Kind    string             `json:"type"`
	Data    taxonomy.Structure `json:"data"`
	Count   int                `json:"count"`
}

// TagConfigExport 是导出给前端的标签体系配置
type TagConfigExport struct {
	TagTypes          taxonomy.TagTypes             `json:"tag_types"`
	FieldMapping      map[string]string             `json:"field_mapping"`
	Aliases           map[string]string             `json:"aliases"`
	ModelAttributes   []string                      `json:"model_attributes"`
	CompositionFields []string                      `json:"composition_fields"`
	SpecialTypes      map[string]config.SpecialType `json:"special_types"`
}

// TagService 接口定义了标签目录相关的业务操作。
type TagService interface {
	Catalog(ctx context.Context) (*taxonomy.Catalog, error)
	TagsByType(ctx context.Context, tagType string) (*TypeTags, error)
	ConfigExport() TagConfigExport
	Invalidate()
}

type tagService struct {
	tagRepo repository.TagRepository
	tags    config.TagSystemConfig
	cache   *cache.TTLCache
	ttl     time.Duration
}

// NewTagService 创建一个新的 TagService 实例。cache 为 nil 时每次都查询数据库。
func NewTagService(tagRepo repository.TagRepository, tags config.TagSystemConfig, c *cache.TTLCache, ttl time.Duration) TagService {
	return &tagService{tagRepo: tagRepo, tags: tags, cache: c, ttl: ttl}
}

// Catalog 返回全部活跃标签的目录，结果会被缓存。
func (s *tagService) Catalog(ctx context.Context) (*taxonomy.Catalog, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(catalogCacheKey); ok {
			return v.(*taxonomy.Catalog), nil
		}
	}

	rows, err := s.tagRepo.FindActive(ctx)
	if err != nil {
		log.Errorf("[TagService] 查询活跃标签失败: %v", err)
		return nil, errs.Upstream("load tags", err)
	}
	catalog := taxonomy.BuildCatalog(s.tags, rows)
	log.Infof("[TagService] 标签目录构建完成, 总数: %d, 类型数: %d", catalog.Stats.TotalCount, len(catalog.Stats.ByType))

	if s.cache != nil {
		s.cache.Set(catalogCacheKey, catalog, s.ttl)
	}
	return catalog, nil
}

// TagsByType 构建单个类型的标签结构，未声明的类型返回 ValidationError。
func (s *tagService) TagsByType(ctx context.Context, tagType string) (*TypeTags, error) {
	kind := s.tags.Kind(tagType)
	if kind == "" {
		return nil, errs.Validation("Unknown tag type: %s", tagType)
	}

	key := fmt.Sprintf("tags:type:%s", tagType)
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v.(*TypeTags), nil
		}
	}

	rows, err := s.tagRepo.FindActiveByType(ctx, tagType)
	if err != nil {
		log.Errorf("[TagService] 查询标签失败, tag_type: %s, error: %v", tagType, err)
		return nil, errs.Upstream("load tags", err)
	}
	structure, err := taxonomy.Build(kind, rows)
	if err != nil {
		return nil, err
	}
	result := &TypeTags{TagType: tagType, Kind: kind, Data: structure, Count: len(rows)}

	if s.cache != nil {
		s.cache.Set(key, result, s.ttl)
	}
	return result, nil
}

// ConfigExport 导出标签体系配置
func (s *tagService) ConfigExport() TagConfigExport {
	fanIn := func(types []string) []string {
		out := make([]string, 0, len(types))
		for _, t := range types {
			out = append(out, t+"_tag_ids")
		}
		return out
	}
	return TagConfigExport{
		TagTypes:          taxonomy.TagTypes{MultiLevel: s.tags.MultiLevel, SingleLevel: s.tags.SingleLevel},
		FieldMapping:      s.tags.FieldMapping,
		Aliases:           s.tags.Aliases,
		ModelAttributes:   fanIn(s.tags.ModelAttributeTypes),
		CompositionFields: fanIn(s.tags.CompositionTypes),
		SpecialTypes:      s.tags.SpecialTypes,
	}
}

// Invalidate 清除标签相关缓存，下次请求重新构建。
func (s *tagService) Invalidate() {
	if s.cache == nil {
		return
	}
	s.cache.Delete(catalogCacheKey)
	for _, t := range s.tags.AllTypes() {
		s.cache.Delete("tags:type:" + t)
	}
}
