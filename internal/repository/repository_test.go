package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"viba-annotation-go/internal/model"
	"viba-annotation-go/pkg/errs"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        filepath.Join(t.TempDir(), "repo.db"),
	}, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.TagDefinition{}, &model.Theme{}, &model.ReferenceImage{}, &model.ReferenceImageTheme{},
	))
	return db
}

func ptr[T any](v T) *T { return &v }

func tag(id int64, tagType string, parent *int64, level int, active bool) *model.TagDefinition {
	return &model.TagDefinition{
		ID:          id,
		TagType:     tagType,
		TagName:     fmt.Sprintf("%s-%d", tagType, id),
		ParentTagID: parent,
		Level:       ptr(level),
		Level1Code:  ptr(fmt.Sprintf("%02d", id)),
		FullCode:    fmt.Sprintf("%02d", id),
		IsActive:    active,
		Attributes:  datatypes.JSON(`{}`),
	}
}

func seedChain(t *testing.T, repo TagRepository) {
	t.Helper()
	require.NoError(t, repo.CreateBatch(context.Background(), []*model.TagDefinition{
		tag(1, "occasion", nil, 1, true),
		tag(2, "occasion", ptr(int64(1)), 2, true),
		tag(3, "occasion", ptr(int64(2)), 3, true),
		tag(4, "occasion", ptr(int64(1)), 2, false),
		tag(5, "occasion", ptr(int64(4)), 3, true),
		tag(10, "season", nil, 1, true),
	}))
}

func TestResolveAncestors(t *testing.T) {
	db := newTestDB(t)
	repo := NewTagRepository(db, 4)
	seedChain(t, repo)
	ctx := context.Background()

	tests := []struct {
		name string
		id   int64
		want []int64
	}{
		{name: "leaf of three levels", id: 3, want: []int64{1, 2, 3}},
		{name: "middle", id: 2, want: []int64{1, 2}},
		{name: "root", id: 1, want: []int64{1}},
		{name: "inactive tag", id: 4, want: []int64{}},
		{name: "chain stops at inactive parent", id: 5, want: []int64{5}},
		{name: "unknown", id: 999, want: []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ResolveAncestors(ctx, tt.id)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestResolveAncestorsTerminatesOnCycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewTagRepository(db, 3)
	ctx := context.Background()
	require.NoError(t, repo.CreateBatch(ctx, []*model.TagDefinition{
		tag(1, "style", ptr(int64(2)), 1, true),
		tag(2, "style", ptr(int64(1)), 2, true),
	}))

	got, err := repo.ResolveAncestors(ctx, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, got)
}

func TestFindActive(t *testing.T) {
	db := newTestDB(t)
	repo := NewTagRepository(db, 0)
	seedChain(t, repo)
	ctx := context.Background()

	all, err := repo.FindActive(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, "occasion", all[0].TagType)
	assert.Equal(t, "season", all[len(all)-1].TagType)

	byType, err := repo.FindActiveByType(ctx, "occasion")
	require.NoError(t, err)
	require.Len(t, byType, 4)
	assert.Equal(t, int64(1), byType[0].ID)

	ids, err := repo.FindActiveIDs(ctx, []int64{1, 4, 10, 77})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 10}, ids)

	none, err := repo.FindActiveIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReferenceImageCreateAndSearch(t *testing.T) {
	db := newTestDB(t)
	themes := NewThemeRepository(db)
	images := NewReferenceImageRepository(db)
	ctx := context.Background()

	summer := &model.Theme{Title: "Summer", CreatedAt: time.Now().Add(-time.Hour)}
	winter := &model.Theme{Title: "Winter"}
	require.NoError(t, themes.Create(ctx, summer))
	require.NoError(t, themes.Create(ctx, winter))

	all, err := themes.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Winter", all[0].Title)

	existing, err := themes.FindExistingIDs(ctx, []string{summer.UniqueID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, []string{summer.UniqueID}, existing)

	first := &model.ReferenceImage{
		ReferenceImageURL:   "https://cdn/a.jpg",
		ReferenceType:       model.ReferenceTypeGenerated,
		GenContentPrompt:    "Red dress on beach",
		StyleTagIDs:         model.Int64Array{1, 2},
		SearchText:          "red dress on beach",
		GenContentEmbedding: model.NewEmbedding([]float32{0.1, 0.2}),
	}
	require.NoError(t, images.Create(ctx, first))
	assert.NotEmpty(t, first.UniqueID)
	require.NoError(t, images.LinkThemes(ctx, first.UniqueID, []string{summer.UniqueID, winter.UniqueID}))
	require.NoError(t, images.LinkThemes(ctx, first.UniqueID, []string{summer.UniqueID}))

	second := &model.ReferenceImage{
		ReferenceImageURL: "https://cdn/b.jpg",
		ReferenceType:     model.ReferenceTypeMatched,
		SearchText:        "studio portrait",
	}
	require.NoError(t, images.Create(ctx, second))
	require.NoError(t, images.LinkThemes(ctx, second.UniqueID, nil))

	got, err := images.FindByUniqueID(ctx, first.UniqueID)
	require.NoError(t, err)
	assert.Equal(t, model.Int64Array{1, 2}, got.StyleTagIDs)
	assert.Equal(t, model.Int64Array{}, got.PoseTagIDs)
	require.NotNil(t, got.GenContentEmbedding)
	assert.Equal(t, []float32{0.1, 0.2}, got.GenContentEmbedding.Slice())

	_, err = images.FindByUniqueID(ctx, "nope")
	assert.Equal(t, 404, errs.HTTPStatus(err))

	linked, err := images.ThemesFor(ctx, []string{first.UniqueID, second.UniqueID})
	require.NoError(t, err)
	require.Len(t, linked[first.UniqueID], 2)
	assert.Equal(t, "Winter", linked[first.UniqueID][0].Title)
	assert.Empty(t, linked[second.UniqueID])

	byText, err := images.Search(ctx, ReferenceImageQuery{SearchText: "DRESS"})
	require.NoError(t, err)
	require.Len(t, byText, 1)
	assert.Equal(t, first.UniqueID, byText[0].UniqueID)
	assert.Nil(t, byText[0].GenContentEmbedding)

	byTheme, err := images.Search(ctx, ReferenceImageQuery{ThemeIDs: []string{winter.UniqueID}})
	require.NoError(t, err)
	assert.Len(t, byTheme, 1)

	byType, err := images.Search(ctx, ReferenceImageQuery{ReferenceType: model.ReferenceTypeMatched})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, second.UniqueID, byType[0].UniqueID)

	paged, err := images.Search(ctx, ReferenceImageQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}

func TestSearchTextEscapesWildcards(t *testing.T) {
	db := newTestDB(t)
	images := NewReferenceImageRepository(db)
	ctx := context.Background()

	for _, text := range []string{"500 looks", "50% off", "snake_case", "snakecase", "wow! red"} {
		require.NoError(t, images.Create(ctx, &model.ReferenceImage{
			ReferenceImageURL: "https://cdn/" + text,
			ReferenceType:     model.ReferenceTypeMatched,
			SearchText:        text,
		}))
	}

	tests := []struct {
		query string
		want  string
	}{
		{query: "50%", want: "50% off"},
		{query: "ke_", want: "snake_case"},
		{query: "w! r", want: "wow! red"},
	}
	for _, tt := range tests {
		found, err := images.Search(ctx, ReferenceImageQuery{SearchText: tt.query})
		require.NoError(t, err, tt.query)
		require.Len(t, found, 1, tt.query)
		assert.Equal(t, tt.want, found[0].SearchText, tt.query)
	}
}

func TestTransactionRollsBackOnLinkFailure(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_links", func(tx *gorm.DB) {
		if tx.Statement.Table == "ref_images_to_themes" {
			_ = tx.AddError(errors.New("link insert failed"))
		}
	}))
	images := NewReferenceImageRepository(db)
	ctx := context.Background()

	image := &model.ReferenceImage{ReferenceImageURL: "u", ReferenceType: model.ReferenceTypeGenerated}
	err := images.Transaction(ctx, func(tx ReferenceImageRepository) error {
		if err := tx.Create(ctx, image); err != nil {
			return err
		}
		return tx.LinkThemes(ctx, image.UniqueID, []string{"t1"})
	})
	require.Error(t, err)

	var rows int64
	require.NoError(t, db.Model(&model.ReferenceImage{}).Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestQueryNormalize(t *testing.T) {
	q := ReferenceImageQuery{Limit: 500, Offset: -3}
	q.Normalize()
	assert.Equal(t, MaxSearchLimit, q.Limit)
	assert.Equal(t, 0, q.Offset)

	q = ReferenceImageQuery{}
	q.Normalize()
	assert.Equal(t, DefaultSearchLimit, q.Limit)
}

func TestUploadRepositoryWithoutRedis(t *testing.T) {
	repo := NewUploadRepository(nil, 0)
	ctx := context.Background()

	require.NoError(t, repo.SaveURL(ctx, "reference_image", "abc", "https://x"))
	url, ok, err := repo.FindURL(ctx, "reference_image", "abc")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, url)
	assert.NoError(t, repo.ForgetURL(ctx, "https://x"))
}
