package service

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/internal/model"
	"viba-annotation-go/internal/repository"
	"viba-annotation-go/internal/taxonomy"
	"viba-annotation-go/pkg/embedding"
	"viba-annotation-go/pkg/errs"
	"viba-annotation-go/pkg/log"
	"viba-annotation-go/pkg/tasks"
)

// writeState 是一次标注写入所处的阶段
type writeState string

const (
	stateValidating     writeState = "validating"
	stateEmbedding      writeState = "embedding"
	stateCollectingTags writeState = "collecting_tags"
	stateValidatingTags writeState = "validating_tags"
	stateEnrichingTags  writeState = "enriching_tags"
	statePersisting     writeState = "persisting"
	stateLinkingThemes  writeState = "linking_themes"
	stateDone           writeState = "done"
	stateFailed         writeState = "failed"
)

// IndexPublisher 在参考图写入后发布索引任务。
type IndexPublisher interface {
	PublishIndexTask(ctx context.Context, task tasks.ReferenceImageIndexTask) error
}

// IndexPublisherFunc 将普通函数适配为 IndexPublisher
type IndexPublisherFunc func(ctx context.Context, task tasks.ReferenceImageIndexTask) error

func (f IndexPublisherFunc) PublishIndexTask(ctx context.Context, task tasks.ReferenceImageIndexTask) error {
	return f(ctx, task)
}

// AnnotationService 接口定义了参考图标注写入操作。
type AnnotationService interface {
	CreateReferenceImage(ctx context.Context, req *CreateReferenceImageRequest) (*CreateReferenceImageResult, error)
}

type annotationService struct {
	tagRepo   repository.TagRepository
	themeRepo repository.ThemeRepository
	imageRepo repository.ReferenceImageRepository
	mapper    *taxonomy.FieldMapper
	enricher  *taxonomy.Enricher
	embedder  *embedding.Generator
	embedCfg  config.EmbeddingConfig
	publisher IndexPublisher
}

// NewAnnotationService 创建一个新的 AnnotationService 实例。embedder 与 publisher 可以为 nil。
func NewAnnotationService(
	tagRepo repository.TagRepository,
	themeRepo repository.ThemeRepository,
	imageRepo repository.ReferenceImageRepository,
	tags config.TagSystemConfig,
	embedder *embedding.Generator,
	embedCfg config.EmbeddingConfig,
	publisher IndexPublisher,
) AnnotationService {
	return &annotationService{
		tagRepo:   tagRepo,
		themeRepo: themeRepo,
		imageRepo: imageRepo,
		mapper:    taxonomy.NewFieldMapper(tags),
		enricher:  taxonomy.NewEnricher(tagRepo),
		embedder:  embedder,
		embedCfg:  embedCfg,
		publisher: publisher,
	}
}

// annotationRun 保存一次写入过程中的中间结果
type annotationRun struct {
	req           *CreateReferenceImageRequest
	image         *model.ReferenceImage
	themeIDs      []string
	outfits       []outfitTags
	fields        map[string][]int64
	// outfitColumns 来自 outfit_details，已按存储列归类，不经过字段映射
	outfitColumns map[string][]int64
	allIDs        []int64
	state         writeState
}

func (r *annotationRun) enter(next writeState) {
	log.Infof("[AnnotationService] unique_id: %s, 状态: %s -> %s", r.image.UniqueID, r.state, next)
	r.state = next
}

// CreateReferenceImage 校验请求、生成向量、校验并补全标签，最后在一个事务中写入参考图与主题关联。
func (s *annotationService) CreateReferenceImage(ctx context.Context, req *CreateReferenceImageRequest) (*CreateReferenceImageResult, error) {
	run := &annotationRun{
		req:   req,
		image: &model.ReferenceImage{UniqueID: uuid.NewString()},
		state: "new",
	}

	steps := []struct {
		state writeState
		fn    func(context.Context, *annotationRun) error
	}{
		{stateValidating, s.validate},
		{stateEmbedding, s.embed},
		{stateCollectingTags, s.collectTags},
		{stateValidatingTags, s.validateTags},
		{stateEnrichingTags, s.enrichTags},
		{statePersisting, s.persist},
	}
	for _, step := range steps {
		run.enter(step.state)
		if err := step.fn(ctx, run); err != nil {
			run.enter(stateFailed)
			log.Warnf("[AnnotationService] 写入失败, unique_id: %s, error: %v", run.image.UniqueID, err)
			return nil, err
		}
	}
	run.enter(stateDone)

	s.publish(ctx, run.image)
	return &CreateReferenceImageResult{ID: run.image.ID, UniqueID: run.image.UniqueID}, nil
}

// validate 先规整请求再做结构体校验，随后确认主题存在并解析 outfit_details。
func (s *annotationService) validate(ctx context.Context, run *annotationRun) error {
	req := run.req
	req.normalize()
	if err := validateRequest(req); err != nil {
		return err
	}

	themeIDs, err := s.validateThemes(ctx, req.ThemeIDs)
	if err != nil {
		return err
	}

	outfits, err := parseOutfits(req.OutfitDetails)
	if err != nil {
		return errs.Validation("%s", err.Error())
	}

	img := run.image
	img.ReferenceImageURL = req.ReferenceImageURL
	img.ReferenceType = *req.ReferenceType
	img.GenPoseImages = req.GenPoseImages
	img.GenPoseDescription = req.GenPoseDescription
	img.GenProductImages = req.GenProductImages
	img.GenProductDescription = req.GenProductDescription
	img.GenOccasionImages = req.GenOccasionImages
	img.GenOccasionDescription = req.GenOccasionDescription
	img.GenCompositionImages = req.GenCompositionImages
	img.GenCompositionDescription = req.GenCompositionDescription
	img.GenStyleImages = req.GenStyleImages
	img.GenStyleDescription = req.GenStyleDescription
	img.GenContentPrompt = req.GenContentPrompt
	img.GenMLModelSource = req.GenMLModelSource
	img.ProductItemIDs = req.ProductItemIDs
	img.CanBeUsedForFaceSwitching = req.CanBeUsedForFaceSwitching
	img.PoseDescription = req.PoseDescription
	img.SceneDescription = req.SceneDescription
	img.OutfitDetails = outfitBlob(req.OutfitDetails)
	img.SearchText = buildSearchText(img)

	run.themeIDs = themeIDs
	run.outfits = outfits
	return nil
}

// validateThemes 去重已校验格式的主题 ID 并确认主题存在。
func (s *annotationService) validateThemes(ctx context.Context, raw []string) ([]string, error) {
	seen := make(map[string]bool, len(raw))
	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return ids, nil
	}

	existing, err := s.themeRepo.FindExistingIDs(ctx, ids)
	if err != nil {
		return nil, errs.Upstream("check themes", err)
	}
	found := make(map[string]bool, len(existing))
	for _, id := range existing {
		found[id] = true
	}
	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, errs.Validation("Unknown theme IDs: %s", strings.Join(missing, ", "))
	}
	return ids, nil
}

// embed 为当前类型的描述字段生成向量，失败的字段写入 NULL，不影响写入。
func (s *annotationService) embed(ctx context.Context, run *annotationRun) error {
	if !s.embedder.Enabled() {
		log.Debugf("[AnnotationService] 向量生成未启用, unique_id: %s", run.image.UniqueID)
		return nil
	}

	img := run.image
	type target struct {
		text string
		dim  int
		dst  **model.Embedding
	}
	var targets []target
	if img.ReferenceType == model.ReferenceTypeGenerated {
		targets = []target{
			{img.GenContentPrompt, s.embedCfg.ContentDimensions, &img.GenContentEmbedding},
			{img.GenPoseDescription, s.embedCfg.FieldDimensions, &img.GenPoseEmbedding},
			{img.GenProductDescription, s.embedCfg.FieldDimensions, &img.GenProductEmbedding},
			{img.GenOccasionDescription, s.embedCfg.FieldDimensions, &img.GenOccasionEmbedding},
			{img.GenCompositionDescription, s.embedCfg.FieldDimensions, &img.GenCompositionEmbedding},
		}
	} else {
		targets = []target{
			{img.PoseDescription, s.embedCfg.FieldDimensions, &img.PoseEmbedding},
			{img.SceneDescription, s.embedCfg.FieldDimensions, &img.SceneEmbedding},
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.embedCfg.Concurrency > 0 {
		g.SetLimit(s.embedCfg.Concurrency)
	}
	for _, t := range targets {
		t := t
		if strings.TrimSpace(t.text) == "" {
			continue
		}
		g.Go(func() error {
			*t.dst = model.NewEmbedding(s.embedder.Generate(gctx, t.text, t.dim))
			return nil
		})
	}
	return g.Wait()
}

// collectTags 汇总请求中的全部标签 ID，包括 outfit_details 内的引用。
func (s *annotationService) collectTags(ctx context.Context, run *annotationRun) error {
	fields := make(map[string][]int64, len(run.req.TagFields)+3)
	for field, ids := range run.req.TagFields {
		fields[field] = append([]int64(nil), ids...)
	}

	set := make(map[int64]struct{})
	for _, ids := range fields {
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}
	outfitColumns := make(map[string][]int64, 3)
	for _, o := range run.outfits {
		outfitColumns[model.ColumnProductTypeTagIDs] = append(outfitColumns[model.ColumnProductTypeTagIDs], o.ProductTypeTagIDs...)
		outfitColumns[model.ColumnFabricTagIDs] = append(outfitColumns[model.ColumnFabricTagIDs], o.FabricTagID...)
		outfitColumns[model.ColumnSilhouetteTagIDs] = append(outfitColumns[model.ColumnSilhouetteTagIDs], o.SilhouetteTagID...)
		for _, group := range [][]int64{o.ProductTypeTagIDs, o.FabricTagID, o.SilhouetteTagID, o.ColorTagID} {
			for _, id := range group {
				set[id] = struct{}{}
			}
		}
	}

	all := make([]int64, 0, len(set))
	for id := range set {
		all = append(all, id)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	run.fields = fields
	run.outfitColumns = outfitColumns
	run.allIDs = all
	log.Infof("[AnnotationService] unique_id: %s, 收集到 %d 个标签 ID, 字段数: %d", run.image.UniqueID, len(all), len(fields))
	return nil
}

// validateTags 一次查询校验全部标签存在且活跃。
func (s *annotationService) validateTags(ctx context.Context, run *annotationRun) error {
	if len(run.allIDs) == 0 {
		return nil
	}
	active, err := s.tagRepo.FindActiveIDs(ctx, run.allIDs)
	if err != nil {
		return errs.Upstream("validate tags", err)
	}
	valid := make(map[int64]bool, len(active))
	for _, id := range active {
		valid[id] = true
	}
	var invalid []int64
	for _, id := range run.allIDs {
		if !valid[id] {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return &errs.InvalidTagError{IDs: invalid}
	}
	return nil
}

// enrichTags 按存储列归并标签并补全祖先链。
func (s *annotationService) enrichTags(ctx context.Context, run *annotationRun) error {
	grouped, unmapped := s.mapper.Group(run.fields)
	if len(unmapped) > 0 {
		log.Warnf("[AnnotationService] unique_id: %s, 以下标签字段没有对应的存储列, 已忽略: %v", run.image.UniqueID, unmapped)
	}
	for column, ids := range run.outfitColumns {
		if len(ids) > 0 {
			grouped[column] = append(grouped[column], ids...)
		}
	}
	for column, ids := range s.enricher.Enrich(ctx, grouped) {
		run.image.SetTagColumn(column, ids)
	}
	return nil
}

// persist 在同一个事务中写入参考图并关联主题。
func (s *annotationService) persist(ctx context.Context, run *annotationRun) error {
	err := s.imageRepo.Transaction(ctx, func(tx repository.ReferenceImageRepository) error {
		if err := tx.Create(ctx, run.image); err != nil {
			return err
		}
		run.enter(stateLinkingThemes)
		return tx.LinkThemes(ctx, run.image.UniqueID, run.themeIDs)
	})
	if err != nil {
		return errs.Upstream("persist reference image", err)
	}
	log.Infof("[AnnotationService] 参考图写入成功, id: %d, unique_id: %s, 主题数: %d", run.image.ID, run.image.UniqueID, len(run.themeIDs))
	return nil
}

// publish 发布索引任务，失败只记录日志。
func (s *annotationService) publish(ctx context.Context, img *model.ReferenceImage) {
	if s.publisher == nil {
		return
	}
	task := tasks.ReferenceImageIndexTask{UniqueID: img.UniqueID, ReferenceType: img.ReferenceType}
	if err := s.publisher.PublishIndexTask(ctx, task); err != nil {
		log.Errorf("[AnnotationService] 发布索引任务失败, unique_id: %s, error: %v", img.UniqueID, err)
	}
}

func outfitBlob(raw []byte) datatypes.JSON {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(trimmed)
}

// buildSearchText 拼接描述类字段并转小写
func buildSearchText(img *model.ReferenceImage) string {
	parts := []string{
		img.GenContentPrompt,
		img.GenPoseDescription,
		img.GenProductDescription,
		img.GenOccasionDescription,
		img.GenCompositionDescription,
		img.GenStyleDescription,
		img.PoseDescription,
		img.SceneDescription,
	}
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.ToLower(strings.Join(kept, " "))
}
