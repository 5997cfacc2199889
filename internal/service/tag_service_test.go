package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/internal/model"
	"viba-annotation-go/internal/taxonomy"
	"viba-annotation-go/pkg/cache"
	"viba-annotation-go/pkg/errs"
)

func TestCatalogIsCachedUntilInvalidated(t *testing.T) {
	f := newFixture(t)
	svc := NewTagService(f.tagRepo, config.DefaultTagSystem(), cache.New(16), time.Minute)
	ctx := context.Background()

	first, err := svc.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 14, first.Stats.TotalCount)
	require.Contains(t, first.MultiLevel, "occasion")
	assert.Equal(t, []int64{3}, first.MultiLevel["occasion"].ParentMap[2])
	assert.Contains(t, first.SingleLevel, "fabric")
	assert.NotContains(t, first.SingleLevel, "season")

	require.NoError(t, f.tagRepo.CreateBatch(ctx, []*model.TagDefinition{tagRow(80, "season", nil, nil, true)}))

	second, err := svc.Catalog(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)

	svc.Invalidate()
	third, err := svc.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15, third.Stats.TotalCount)
	assert.Contains(t, third.SingleLevel, "season")
}

func TestCatalogWithoutCache(t *testing.T) {
	f := newFixture(t)
	svc := NewTagService(f.tagRepo, config.DefaultTagSystem(), nil, time.Minute)

	c, err := svc.Catalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, c.Stats.ByType["style"])
	svc.Invalidate()
}

func TestTagsByType(t *testing.T) {
	f := newFixture(t)
	svc := NewTagService(f.tagRepo, config.DefaultTagSystem(), cache.New(16), time.Minute)
	ctx := context.Background()

	occasion, err := svc.TagsByType(ctx, "occasion")
	require.NoError(t, err)
	assert.Equal(t, config.KindMultiLevel, occasion.Kind)
	assert.Equal(t, 3, occasion.Count)
	tree, ok := occasion.Data.(*taxonomy.TreeResult)
	require.True(t, ok)
	require.Len(t, tree.Tree, 1)
	assert.Equal(t, int64(1), tree.Tree[0].ID)

	fabric, err := svc.TagsByType(ctx, "fabric")
	require.NoError(t, err)
	assert.Equal(t, config.KindSingleLevel, fabric.Kind)
	flat, ok := fabric.Data.(*taxonomy.FlatResult)
	require.True(t, ok)
	assert.Len(t, flat.List, 1)

	_, err = svc.TagsByType(ctx, "hairstyle")
	var ve *errs.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestConfigExport(t *testing.T) {
	svc := NewTagService(nil, config.DefaultTagSystem(), nil, 0)
	export := svc.ConfigExport()

	assert.Contains(t, export.TagTypes.MultiLevel, "silhouette")
	assert.Contains(t, export.ModelAttributes, "model_age_tag_ids")
	assert.Contains(t, export.CompositionFields, "composition_shot_tag_ids")
	assert.Equal(t, "occasion_tag_ids", export.Aliases["scene_tag_ids"])
	assert.Equal(t, 2, export.SpecialTypes["silhouette"].ExpectedLevel1Count)
	assert.Equal(t, "style_tag_ids", export.FieldMapping["style_tag_ids"])
}

func TestListThemesIsCached(t *testing.T) {
	f := newFixture(t)
	svc := NewThemeService(f.themeRepo, cache.New(4), time.Minute)
	ctx := context.Background()

	themes, err := svc.ListThemes(ctx)
	require.NoError(t, err)
	require.Len(t, themes, 1)
	assert.Equal(t, "Summer Street", themes[0].Title)

	require.NoError(t, f.themeRepo.Create(ctx, &model.Theme{Title: "Winter"}))
	themes, err = svc.ListThemes(ctx)
	require.NoError(t, err)
	assert.Len(t, themes, 1)

	fresh, err := NewThemeService(f.themeRepo, nil, 0).ListThemes(ctx)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}
