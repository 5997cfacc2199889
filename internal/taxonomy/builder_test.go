package taxonomy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/internal/model"
)

func intPtr(v int) *int    { return &v }
func idPtr(v int64) *int64 { return &v }

func tagRow(id int64, parent *int64, level int, name string) model.TagDefinition {
	return model.TagDefinition{
		ID:          id,
		TagType:     "occasion",
		TagName:     name,
		TagNameCN:   name + "_cn",
		ParentTagID: parent,
		Level:       intPtr(level),
		FullCode:    name,
		IsActive:    true,
	}
}

func TestBuildTree_ThreeLevels(t *testing.T) {
	rows := []model.TagDefinition{
		tagRow(1, nil, 1, "root"),
		tagRow(2, idPtr(1), 2, "mid"),
		tagRow(3, idPtr(2), 3, "leaf"),
	}

	res := BuildTree(rows)

	require.Len(t, res.Tree, 1)
	root := res.Tree[0]
	assert.Equal(t, int64(1), root.ID)
	require.Len(t, root.Children, 1)
	assert.Equal(t, int64(2), root.Children[0].ID)
	require.Len(t, root.Children[0].Children, 1)
	assert.Equal(t, int64(3), root.Children[0].Children[0].ID)

	assert.Equal(t, []CascadeOption{{Value: 2, Label: "mid_cn", Name: "mid"}}, res.Cascade.Level2ByParent[1])
	assert.Equal(t, []CascadeOption{{Value: 3, Label: "leaf_cn", Name: "leaf"}}, res.Cascade.Level3ByParent[2])
	assert.Equal(t, []CascadeOption{{Value: 1, Label: "root_cn", Name: "root"}}, res.Cascade.Level1)
	assert.Empty(t, res.Cascade.Level4ByParent)

	assert.Len(t, res.Flat, 3)
	assert.Len(t, res.Levels[1], 1)
	assert.Len(t, res.Levels[2], 1)
	assert.Len(t, res.Levels[3], 1)
	assert.Empty(t, res.Levels[4])
	assert.Equal(t, map[int64][]int64{1: {2}, 2: {3}}, res.ParentMap)
}

func TestBuildTree_OrphanBecomesRoot(t *testing.T) {
	rows := []model.TagDefinition{
		tagRow(1, nil, 1, "root"),
		tagRow(5, idPtr(99), 2, "orphan"),
	}

	res := BuildTree(rows)

	require.Len(t, res.Tree, 2)
	assert.Equal(t, int64(1), res.Tree[0].ID)
	assert.Equal(t, int64(5), res.Tree[1].ID)
	assert.Contains(t, res.Flat, int64(5))
	assert.Len(t, res.Levels[2], 1)
}

func TestBuildTree_LevelOutOfRange(t *testing.T) {
	rows := []model.TagDefinition{
		tagRow(1, nil, 1, "root"),
		tagRow(2, idPtr(1), 5, "deep"),
	}

	res := BuildTree(rows)

	assert.Contains(t, res.Flat, int64(2))
	for lvl := 1; lvl <= 4; lvl++ {
		for _, n := range res.Levels[lvl] {
			assert.NotEqual(t, int64(2), n.ID)
		}
	}
	// 仍挂在父节点下
	require.Len(t, res.Tree, 1)
	assert.Len(t, res.Tree[0].Children, 1)
}

func TestBuildTree_CycleDoesNotLoop(t *testing.T) {
	rows := []model.TagDefinition{
		tagRow(1, idPtr(2), 1, "a"),
		tagRow(2, idPtr(1), 2, "b"),
	}

	res := BuildTree(rows)

	assert.Len(t, res.Tree, 2)
	_, err := json.Marshal(res)
	assert.NoError(t, err)
}

func TestBuildTree_ChildOrderFollowsInput(t *testing.T) {
	rows := []model.TagDefinition{
		tagRow(1, nil, 1, "root"),
		tagRow(12, idPtr(1), 2, "b"),
		tagRow(11, idPtr(1), 2, "a"),
	}

	res := BuildTree(rows)

	got := []int64{}
	for _, opt := range res.Cascade.Level2ByParent[1] {
		got = append(got, opt.Value)
	}
	assert.Equal(t, []int64{12, 11}, got)
}

func TestBuildFlat(t *testing.T) {
	rows := []model.TagDefinition{
		{ID: 7, TagType: "season", TagName: "summer", TagNameCN: "夏", FullCode: "S01", ParentTagID: idPtr(3), Level: intPtr(2),
			Attributes: datatypes.JSON(`{"hex":"#fff"}`)},
		{ID: 8, TagType: "season", TagName: "winter", TagNameCN: "冬", FullCode: "S02"},
	}

	res := BuildFlat(rows)

	require.Len(t, res.List, 2)
	assert.Equal(t, "summer", res.List[0].Name)
	assert.JSONEq(t, `{"hex":"#fff"}`, string(res.List[0].Attributes))
	assert.JSONEq(t, `{}`, string(res.List[1].Attributes))
	assert.Same(t, res.List[1], res.Flat[8])
}

func TestBuild_Dispatch(t *testing.T) {
	rows := []model.TagDefinition{tagRow(1, nil, 1, "root")}

	s, err := Build(config.KindMultiLevel, rows)
	require.NoError(t, err)
	assert.IsType(t, &TreeResult{}, s)

	s, err = Build(config.KindSingleLevel, rows)
	require.NoError(t, err)
	assert.IsType(t, &FlatResult{}, s)

	_, err = Build("", rows)
	assert.Error(t, err)
}

func TestBuildCatalog(t *testing.T) {
	tags := config.DefaultTagSystem()
	rows := []model.TagDefinition{
		tagRow(1, nil, 1, "root"),
		{ID: 2, TagType: "season", TagName: "summer"},
		{ID: 3, TagType: "unknown_type", TagName: "x"},
	}

	c := BuildCatalog(tags, rows)

	assert.Contains(t, c.MultiLevel, "occasion")
	assert.NotContains(t, c.MultiLevel, "style")
	assert.Contains(t, c.SingleLevel, "season")
	assert.Equal(t, 3, c.Stats.TotalCount)
	assert.Equal(t, 1, c.Stats.ByType["unknown_type"])
	assert.Equal(t, tags.MultiLevel, c.TagTypes.MultiLevel)
	assert.Contains(t, c.SpecialTypes, "silhouette")
}
