package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/internal/model"
	"viba-annotation-go/internal/repository"
	"viba-annotation-go/pkg/embedding"
	"viba-annotation-go/pkg/errs"
	"viba-annotation-go/pkg/es"
	"viba-annotation-go/pkg/log"
)

const (
	defaultSemanticTopK = 10
	maxSemanticTopK     = 100
)

// ReferenceImageDetail 是参考图详情，附带关联主题。
type ReferenceImageDetail struct {
	*model.ReferenceImage
	ThemeIDs    []string `json:"theme_ids"`
	ThemeTitles []string `json:"theme_titles"`
}

// SearchItem 是列表搜索的单条结果
type SearchItem struct {
	UniqueID          string    `json:"unique_id"`
	ReferenceImageURL string    `json:"reference_image_url"`
	ReferenceType     int       `json:"reference_type"`
	GenContentPrompt  string    `json:"gen_content_prompt"`
	CreatedAt         time.Time `json:"created_at"`
	ThemeTitles       []string  `json:"theme_titles"`
}

// SearchRequest 是列表搜索请求
type SearchRequest struct {
	ReferenceType int      `json:"reference_type" validate:"omitempty,oneof=1 2"`
	ThemeIDs      []string `json:"theme_ids" validate:"dive,uuid"`
	SearchText    string   `json:"search_text"`
	Limit         int      `json:"limit"`
	Offset        int      `json:"offset"`
}

// SearchResult 是列表搜索的返回值
type SearchResult struct {
	Items  []SearchItem `json:"items"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// SemanticSearchRequest 是语义搜索请求
type SemanticSearchRequest struct {
	Query         string   `json:"query" validate:"required"`
	TopK          int      `json:"top_k"`
	ReferenceType int      `json:"reference_type" validate:"omitempty,oneof=1 2"`
	TagIDs        []int64  `json:"tag_ids" validate:"dive,gt=0"`
	ThemeIDs      []string `json:"theme_ids" validate:"dive,uuid"`
}

// SearchService 接口定义了参考图查询相关的业务操作。
type SearchService interface {
	GetReferenceImage(ctx context.Context, uniqueID string) (*ReferenceImageDetail, error)
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
	SemanticSearch(ctx context.Context, req SemanticSearchRequest) ([]model.SemanticHit, error)
}

type searchService struct {
	imageRepo repository.ReferenceImageRepository
	embedder  *embedding.Generator
	esClient  *elasticsearch.Client
	esCfg     config.ElasticsearchConfig
	dims      int
}

// NewSearchService 创建一个新的 SearchService 实例。esClient 为 nil 时语义搜索不可用。
func NewSearchService(imageRepo repository.ReferenceImageRepository, embedder *embedding.Generator, esClient *elasticsearch.Client, esCfg config.ElasticsearchConfig, dims int) SearchService {
	return &searchService{
		imageRepo: imageRepo,
		embedder:  embedder,
		esClient:  esClient,
		esCfg:     esCfg,
		dims:      dims,
	}
}

// GetReferenceImage 返回参考图详情，不存在时返回 NotFoundError。
func (s *searchService) GetReferenceImage(ctx context.Context, uniqueID string) (*ReferenceImageDetail, error) {
	img, err := s.imageRepo.FindByUniqueID(ctx, uniqueID)
	if err != nil {
		var nf *errs.NotFoundError
		if errors.As(err, &nf) {
			return nil, err
		}
		return nil, errs.Upstream("load reference image", err)
	}
	themes, err := s.imageRepo.ThemesFor(ctx, []string{uniqueID})
	if err != nil {
		return nil, errs.Upstream("load themes", err)
	}

	detail := &ReferenceImageDetail{ReferenceImage: img, ThemeIDs: []string{}, ThemeTitles: []string{}}
	for _, t := range themes[uniqueID] {
		detail.ThemeIDs = append(detail.ThemeIDs, t.UniqueID)
		detail.ThemeTitles = append(detail.ThemeTitles, t.Title)
	}
	return detail, nil
}

// Search 按类型、主题与关键字过滤参考图。
func (s *searchService) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	req.ThemeIDs = normalizeUUIDs(req.ThemeIDs, true)
	req.SearchText = strings.TrimSpace(req.SearchText)
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	q := repository.ReferenceImageQuery{
		ReferenceType: req.ReferenceType,
		ThemeIDs:      req.ThemeIDs,
		SearchText:    req.SearchText,
		Limit:         req.Limit,
		Offset:        req.Offset,
	}
	q.Normalize()
	log.Infof("[SearchService] 列表搜索, reference_type: %d, themes: %d, text: '%s', limit: %d, offset: %d",
		q.ReferenceType, len(q.ThemeIDs), q.SearchText, q.Limit, q.Offset)

	images, err := s.imageRepo.Search(ctx, q)
	if err != nil {
		return nil, errs.Upstream("search reference images", err)
	}
	ids := make([]string, 0, len(images))
	for _, img := range images {
		ids = append(ids, img.UniqueID)
	}
	themes, err := s.imageRepo.ThemesFor(ctx, ids)
	if err != nil {
		return nil, errs.Upstream("load themes", err)
	}

	items := make([]SearchItem, 0, len(images))
	for _, img := range images {
		titles := []string{}
		for _, t := range themes[img.UniqueID] {
			titles = append(titles, t.Title)
		}
		items = append(items, SearchItem{
			UniqueID:          img.UniqueID,
			ReferenceImageURL: img.ReferenceImageURL,
			ReferenceType:     img.ReferenceType,
			GenContentPrompt:  img.GenContentPrompt,
			CreatedAt:         img.CreatedAt,
			ThemeTitles:       titles,
		})
	}
	return &SearchResult{Items: items, Limit: q.Limit, Offset: q.Offset}, nil
}

// SemanticSearch 将查询文本向量化后在索引中执行 kNN 搜索。
func (s *searchService) SemanticSearch(ctx context.Context, req SemanticSearchRequest) ([]model.SemanticHit, error) {
	req.Query = strings.TrimSpace(req.Query)
	req.ThemeIDs = normalizeUUIDs(req.ThemeIDs, true)
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if s.esClient == nil || !s.embedder.Enabled() {
		return nil, errs.Upstream("semantic search", errors.New("semantic search is not enabled"))
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultSemanticTopK
	}
	if topK > maxSemanticTopK {
		topK = maxSemanticTopK
	}

	log.Infof("[SearchService] 步骤1: 向量化查询, query: '%s', topK: %d", req.Query, topK)
	vector := s.embedder.Generate(ctx, req.Query, s.dims)
	if vector == nil {
		return nil, errs.Upstream("embed query", errors.New("embedding generator returned no vector"))
	}

	log.Info("[SearchService] 步骤2: 向 Elasticsearch 发送 kNN 查询")
	hits, err := es.KNNSearch(ctx, s.esClient, s.esCfg.IndexName, vector, topK, es.KNNFilter{
		ReferenceType: req.ReferenceType,
		TagIDs:        req.TagIDs,
		ThemeIDs:      req.ThemeIDs,
	})
	if err != nil {
		log.Errorf("[SearchService] 语义搜索失败: %v", err)
		return nil, errs.Upstream("semantic search", err)
	}
	log.Infof("[SearchService] 语义搜索命中 %d 条", len(hits))
	return hits, nil
}
