package repository

import (
	"context"

	"gorm.io/gorm"

	"viba-annotation-go/internal/model"
)

// ThemeRepository 接口定义了主题的数据操作方法。
type ThemeRepository interface {
	Create(ctx context.Context, theme *model.Theme) error
	FindAll(ctx context.Context) ([]model.Theme, error)
	FindExistingIDs(ctx context.Context, ids []string) ([]string, error)
}

type themeRepository struct {
	db *gorm.DB
}

// NewThemeRepository 创建一个新的 ThemeRepository 实例。
func NewThemeRepository(db *gorm.DB) ThemeRepository {
	return &themeRepository{db: db}
}

func (r *themeRepository) Create(ctx context.Context, theme *model.Theme) error {
	return r.db.WithContext(ctx).Create(theme).Error
}

// FindAll 返回全部主题，最新的在前。
func (r *themeRepository) FindAll(ctx context.Context) ([]model.Theme, error) {
	themes := []model.Theme{}
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&themes).Error
	return themes, err
}

// FindExistingIDs 返回给定主题 ID 中实际存在的部分
func (r *themeRepository) FindExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	found := []string{}
	if len(ids) == 0 {
		return found, nil
	}
	err := r.db.WithContext(ctx).Model(&model.Theme{}).Where("unique_id IN ?", ids).Pluck("unique_id", &found).Error
	return found, err
}
