// Package pipeline 定义了参考图写入后的异步索引流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/elastic/go-elasticsearch/v8"

	"viba-annotation-go/internal/model"
	"viba-annotation-go/internal/repository"
	"viba-annotation-go/pkg/errs"
	"viba-annotation-go/pkg/es"
	"viba-annotation-go/pkg/log"
	"viba-annotation-go/pkg/tasks"
)

// Indexer 负责把文档写入搜索引擎。
type Indexer interface {
	Index(ctx context.Context, doc model.ReferenceImageDocument) error
}

// ESIndexer 将文档写入 Elasticsearch 的参考图索引。
type ESIndexer struct {
	Client    *elasticsearch.Client
	IndexName string
}

func (i ESIndexer) Index(ctx context.Context, doc model.ReferenceImageDocument) error {
	return es.IndexReferenceImage(ctx, i.Client, i.IndexName, doc)
}

// Processor 封装了索引任务的依赖和逻辑。
type Processor struct {
	imageRepo    repository.ReferenceImageRepository
	indexer      Indexer
	modelVersion string
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(imageRepo repository.ReferenceImageRepository, indexer Indexer, modelVersion string) *Processor {
	return &Processor{
		imageRepo:    imageRepo,
		indexer:      indexer,
		modelVersion: modelVersion,
	}
}

// Process 读取参考图及其主题，组装索引文档并写入搜索引擎。
// 参考图不存在时直接返回 nil，避免消息被反复重试。
func (p *Processor) Process(ctx context.Context, task tasks.ReferenceImageIndexTask) error {
	log.Infof("[Processor] 开始处理索引任务, unique_id: %s", task.UniqueID)

	img, err := p.imageRepo.FindByUniqueID(ctx, task.UniqueID)
	if err != nil {
		var nf *errs.NotFoundError
		if errors.As(err, &nf) {
			log.Warnf("[Processor] 参考图不存在, 跳过索引, unique_id: %s", task.UniqueID)
			return nil
		}
		return fmt.Errorf("加载参考图失败: %w", err)
	}

	themes, err := p.imageRepo.ThemesFor(ctx, []string{task.UniqueID})
	if err != nil {
		return fmt.Errorf("加载主题关联失败: %w", err)
	}

	doc := BuildDocument(img, themes[task.UniqueID], p.modelVersion)
	if err := p.indexer.Index(ctx, doc); err != nil {
		log.Errorf("[Processor] 写入索引失败, unique_id: %s, error: %v", task.UniqueID, err)
		return fmt.Errorf("写入索引失败: %w", err)
	}
	log.Infof("[Processor] 索引完成, unique_id: %s, 标签数: %d, 主题数: %d", doc.UniqueID, len(doc.TagIDs), len(doc.ThemeIDs))
	return nil
}

// BuildDocument 由参考图记录组装索引文档，TagIDs 为全部标签列的有序并集。
func BuildDocument(img *model.ReferenceImage, themes []model.Theme, modelVersion string) model.ReferenceImageDocument {
	set := make(map[int64]struct{})
	for _, ids := range img.TagColumnValues() {
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}
	tagIDs := make([]int64, 0, len(set))
	for id := range set {
		tagIDs = append(tagIDs, id)
	}
	sort.Slice(tagIDs, func(i, j int) bool { return tagIDs[i] < tagIDs[j] })

	themeIDs := make([]string, 0, len(themes))
	for _, t := range themes {
		themeIDs = append(themeIDs, t.UniqueID)
	}

	var vector []float32
	if img.GenContentEmbedding != nil {
		vector = img.GenContentEmbedding.Slice()
	}

	return model.ReferenceImageDocument{
		UniqueID:          img.UniqueID,
		ReferenceImageURL: img.ReferenceImageURL,
		ReferenceType:     img.ReferenceType,
		SearchText:        img.SearchText,
		TagIDs:            tagIDs,
		ThemeIDs:          themeIDs,
		Vector:            vector,
		ModelVersion:      modelVersion,
		CreatedAt:         img.CreatedAt,
	}
}
