package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/internal/model"
	"viba-annotation-go/internal/repository"
	"viba-annotation-go/pkg/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "service.db"),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func ptr[T any](v T) *T { return &v }

func tagRow(id int64, tagType string, parent *int64, level *int, active bool) *model.TagDefinition {
	return &model.TagDefinition{
		ID:          id,
		TagType:     tagType,
		TagName:     fmt.Sprintf("%s-%d", tagType, id),
		ParentTagID: parent,
		Level:       level,
		Level1Code:  ptr(fmt.Sprintf("%02d", id%100)),
		FullCode:    fmt.Sprintf("%02d", id),
		IsActive:    active,
		Attributes:  datatypes.JSON(`{}`),
	}
}

// seedTaxonomy 写入测试用的标签体系：
// occasion 1 > 2 > 3, style 10 > 11, product_type 20 > 21, silhouette 60 > 61,
// 单级 fabric 30, color 40, model_age 50, model_race 51, pose 70, 停用的 style 99。
func seedTaxonomy(t *testing.T, repo repository.TagRepository) {
	t.Helper()
	rows := []*model.TagDefinition{
		tagRow(1, "occasion", nil, ptr(1), true),
		tagRow(2, "occasion", ptr(int64(1)), ptr(2), true),
		tagRow(3, "occasion", ptr(int64(2)), ptr(3), true),
		tagRow(10, "style", nil, ptr(1), true),
		tagRow(11, "style", ptr(int64(10)), ptr(2), true),
		tagRow(20, "product_type", nil, ptr(1), true),
		tagRow(21, "product_type", ptr(int64(20)), ptr(2), true),
		tagRow(60, "silhouette", nil, ptr(1), true),
		tagRow(61, "silhouette", ptr(int64(60)), ptr(2), true),
		tagRow(30, "fabric", nil, nil, true),
		tagRow(40, "color", nil, nil, true),
		tagRow(50, "model_age", nil, nil, true),
		tagRow(51, "model_race", nil, nil, true),
		tagRow(70, "pose", nil, nil, true),
		tagRow(99, "style", nil, ptr(1), false),
	}
	require.NoError(t, repo.CreateBatch(context.Background(), rows))
}

type fixture struct {
	db        *gorm.DB
	tagRepo   repository.TagRepository
	themeRepo repository.ThemeRepository
	imageRepo repository.ReferenceImageRepository
	theme     *model.Theme
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{
		db:        db,
		tagRepo:   repository.NewTagRepository(db, 4),
		themeRepo: repository.NewThemeRepository(db),
		imageRepo: repository.NewReferenceImageRepository(db),
		theme:     &model.Theme{Title: "Summer Street", Description: "street looks"},
	}
	seedTaxonomy(t, f.tagRepo)
	require.NoError(t, f.themeRepo.Create(context.Background(), f.theme))
	return f
}

func (f *fixture) countImages(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&model.ReferenceImage{}).Count(&n).Error)
	return n
}
