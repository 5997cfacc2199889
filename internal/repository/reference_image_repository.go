package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"viba-annotation-go/internal/model"
	"viba-annotation-go/pkg/errs"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// embeddingColumns 在列表查询中不需要返回
var embeddingColumns = []string{
	"gen_content_embedding", "gen_pose_embedding", "gen_product_embedding", "gen_occasion_embedding",
	"gen_composition_embedding", "pose_embedding", "scene_embedding",
}

// ReferenceImageQuery 是参考图列表查询条件
type ReferenceImageQuery struct {
	ReferenceType int
	ThemeIDs      []string
	SearchText    string
	Limit         int
	Offset        int
}

// Normalize 修正分页参数
func (q *ReferenceImageQuery) Normalize() {
	if q.Limit <= 0 {
		q.Limit = DefaultSearchLimit
	}
	if q.Limit > MaxSearchLimit {
		q.Limit = MaxSearchLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

// ReferenceImageRepository 接口定义了参考图及其主题关联的数据操作方法。
type ReferenceImageRepository interface {
	// Transaction 在同一个事务中执行 fn，fn 返回错误时整体回滚。
	Transaction(ctx context.Context, fn func(tx ReferenceImageRepository) error) error
	Create(ctx context.Context, image *model.ReferenceImage) error
	LinkThemes(ctx context.Context, refImageID string, themeIDs []string) error
	FindByUniqueID(ctx context.Context, uniqueID string) (*model.ReferenceImage, error)
	ThemesFor(ctx context.Context, uniqueIDs []string) (map[string][]model.Theme, error)
	Search(ctx context.Context, q ReferenceImageQuery) ([]model.ReferenceImage, error)
}

type referenceImageRepository struct {
	db *gorm.DB
}

// NewReferenceImageRepository 创建一个新的 ReferenceImageRepository 实例。
func NewReferenceImageRepository(db *gorm.DB) ReferenceImageRepository {
	return &referenceImageRepository{db: db}
}

func (r *referenceImageRepository) Transaction(ctx context.Context, fn func(tx ReferenceImageRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&referenceImageRepository{db: tx})
	})
}

// Create 写入一条参考图记录，ID 与 unique_id 回填到 image。
func (r *referenceImageRepository) Create(ctx context.Context, image *model.ReferenceImage) error {
	return r.db.WithContext(ctx).Create(image).Error
}

// LinkThemes 写入参考图与主题的关联，重复的关联会被忽略。
func (r *referenceImageRepository) LinkThemes(ctx context.Context, refImageID string, themeIDs []string) error {
	if len(themeIDs) == 0 {
		return nil
	}
	links := make([]model.ReferenceImageTheme, 0, len(themeIDs))
	for _, id := range themeIDs {
		links = append(links, model.ReferenceImageTheme{RefImageID: refImageID, ThemeID: id})
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error
}

// FindByUniqueID 按 unique_id 查询参考图，不存在时返回 errs.NotFoundError。
func (r *referenceImageRepository) FindByUniqueID(ctx context.Context, uniqueID string) (*model.ReferenceImage, error) {
	var image model.ReferenceImage
	err := r.db.WithContext(ctx).Where("unique_id = ?", uniqueID).First(&image).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("reference image", uniqueID)
	}
	if err != nil {
		return nil, err
	}
	return &image, nil
}

type themeLink struct {
	RefImageID string
	model.Theme
}

// ThemesFor 返回每张参考图关联的主题，按主题创建时间倒序。
func (r *referenceImageRepository) ThemesFor(ctx context.Context, uniqueIDs []string) (map[string][]model.Theme, error) {
	out := make(map[string][]model.Theme, len(uniqueIDs))
	if len(uniqueIDs) == 0 {
		return out, nil
	}
	var rows []themeLink
	err := r.db.WithContext(ctx).
		Table("ref_images_to_themes AS rt").
		Select("rt.ref_image_id, t.unique_id, t.title, t.description, t.cultural_insights, t.created_at").
		Joins("JOIN themes t ON t.unique_id = rt.theme_id").
		Where("rt.ref_image_id IN ?", uniqueIDs).
		Order("t.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.RefImageID] = append(out[row.RefImageID], row.Theme)
	}
	return out, nil
}

// likeEscaper 转义 LIKE 通配符。转义字符使用 '!'，在 MySQL 中反斜杠本身也需要转义。
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// Search 按类型、主题与关键字过滤参考图，最新的在前。不返回向量列。
func (r *referenceImageRepository) Search(ctx context.Context, q ReferenceImageQuery) ([]model.ReferenceImage, error) {
	q.Normalize()
	db := r.db.WithContext(ctx).Model(&model.ReferenceImage{}).Omit(embeddingColumns...)
	if q.ReferenceType != 0 {
		db = db.Where("reference_type = ?", q.ReferenceType)
	}
	if len(q.ThemeIDs) > 0 {
		db = db.Where("EXISTS (SELECT 1 FROM ref_images_to_themes rt WHERE rt.ref_image_id = reference_images.unique_id AND rt.theme_id IN ?)", q.ThemeIDs)
	}
	if text := strings.TrimSpace(q.SearchText); text != "" {
		db = db.Where("LOWER(search_text) LIKE ? ESCAPE '!'", "%"+likeEscaper.Replace(strings.ToLower(text))+"%")
	}

	var images []model.ReferenceImage
	err := db.Order("created_at DESC").Order("id DESC").Limit(q.Limit).Offset(q.Offset).Find(&images).Error
	return images, err
}
