// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"viba-annotation-go/internal/model"
)

// tagOrder 保证同一类型内按层级与编码排序，树构建依赖这一顺序。
const tagOrder = "tag_type, level, COALESCE(level1_code, '00'), COALESCE(level2_code, '00'), " +
	"COALESCE(level3_code, '00'), COALESCE(level4_code, '00000000'), id"

// ancestorsSQL 沿 parent_tag_id 向上递归，只经过活跃标签，深度上限防止环状数据无限递归。
const ancestorsSQL = `
WITH RECURSIVE ancestors (id, parent_tag_id, depth) AS (
	SELECT id, parent_tag_id, 1
	FROM tag_definitions
	WHERE id = ? AND is_active = ?
	UNION ALL
	SELECT t.id, t.parent_tag_id, a.depth + 1
	FROM tag_definitions t
	JOIN ancestors a ON t.id = a.parent_tag_id
	WHERE t.is_active = ? AND a.depth < ?
)
SELECT DISTINCT id FROM ancestors`

// TagRepository 接口定义了标签定义的数据操作方法。
type TagRepository interface {
	CreateBatch(ctx context.Context, tags []*model.TagDefinition) error
	FindActive(ctx context.Context) ([]model.TagDefinition, error)
	FindActiveByType(ctx context.Context, tagType string) ([]model.TagDefinition, error)
	FindActiveIDs(ctx context.Context, ids []int64) ([]int64, error)
	ResolveAncestors(ctx context.Context, tagID int64) ([]int64, error)
}

type tagRepository struct {
	db       *gorm.DB
	maxDepth int
}

// NewTagRepository 创建一个新的 TagRepository 实例。maxDepth < 1 时按 4 处理。
func NewTagRepository(db *gorm.DB, maxDepth int) TagRepository {
	if maxDepth < 1 {
		maxDepth = 4
	}
	return &tagRepository{db: db, maxDepth: maxDepth}
}

// CreateBatch 批量写入标签定义，已存在的 ID 会被跳过。
func (r *tagRepository) CreateBatch(ctx context.Context, tags []*model.TagDefinition) error {
	if len(tags) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&tags).Error
}

// FindActive 返回全部活跃标签，按类型、层级与编码排序。
func (r *tagRepository) FindActive(ctx context.Context) ([]model.TagDefinition, error) {
	var tags []model.TagDefinition
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order(tagOrder).Find(&tags).Error
	return tags, err
}

// FindActiveByType 返回指定类型的活跃标签
func (r *tagRepository) FindActiveByType(ctx context.Context, tagType string) ([]model.TagDefinition, error) {
	var tags []model.TagDefinition
	err := r.db.WithContext(ctx).
		Where("tag_type = ? AND is_active = ?", tagType, true).
		Order(tagOrder).
		Find(&tags).Error
	return tags, err
}

// FindActiveIDs 返回给定 ID 中存在且活跃的部分。
func (r *tagRepository) FindActiveIDs(ctx context.Context, ids []int64) ([]int64, error) {
	found := []int64{}
	if len(ids) == 0 {
		return found, nil
	}
	err := r.db.WithContext(ctx).Model(&model.TagDefinition{}).
		Where("id IN ? AND is_active = ?", ids, true).
		Pluck("id", &found).Error
	return found, err
}

// ResolveAncestors 返回标签自身及其全部活跃祖先。标签不存在或未激活时返回空列表。
func (r *tagRepository) ResolveAncestors(ctx context.Context, tagID int64) ([]int64, error) {
	ids := []int64{}
	err := r.db.WithContext(ctx).Raw(ancestorsSQL, tagID, true, true, r.maxDepth).Scan(&ids).Error
	return ids, err
}
