package taxonomy

import (
	"viba-annotation-go/internal/config"
	"viba-annotation-go/internal/model"
)

// TagTypes 列出两类标签类型
type TagTypes struct {
	MultiLevel  []string `json:"multi_level"`
	SingleLevel []string `json:"single_level"`
}

// CatalogStats 是目录统计信息
type CatalogStats struct {
	TotalCount int            `json:"total_count"`
	ByType     map[string]int `json:"by_type"`
}

// Catalog 是全部活跃标签的目录，多级类型构建为树，单级类型构建为列表。
type Catalog struct {
	MultiLevel   map[string]*TreeResult        `json:"multi_level"`
	SingleLevel  map[string]*FlatResult        `json:"single_level"`
	TagTypes     TagTypes                      `json:"tag_types"`
	SpecialTypes map[string]config.SpecialType `json:"special_types"`
	Stats        CatalogStats                  `json:"stats"`
}

// BuildCatalog 将已排序的标签行按类型分组并构建目录。
// 只有存在活跃标签的类型出现在结果中；未声明类型的标签只计入统计。
func BuildCatalog(tags config.TagSystemConfig, rows []model.TagDefinition) *Catalog {
	byType := GroupByType(rows)

	c := &Catalog{
		MultiLevel:   make(map[string]*TreeResult),
		SingleLevel:  make(map[string]*FlatResult),
		TagTypes:     TagTypes{MultiLevel: tags.MultiLevel, SingleLevel: tags.SingleLevel},
		SpecialTypes: tags.SpecialTypes,
		Stats: CatalogStats{
			TotalCount: len(rows),
			ByType:     make(map[string]int, len(byType)),
		},
	}
	for tagType, group := range byType {
		c.Stats.ByType[tagType] = len(group)
	}
	for _, tagType := range tags.MultiLevel {
		if group, ok := byType[tagType]; ok {
			c.MultiLevel[tagType] = BuildTree(group)
		}
	}
	for _, tagType := range tags.SingleLevel {
		if group, ok := byType[tagType]; ok {
			c.SingleLevel[tagType] = BuildFlat(group)
		}
	}
	return c
}

// GroupByType 按 tag_type 分组，组内保持输入顺序。
func GroupByType(rows []model.TagDefinition) map[string][]model.TagDefinition {
	out := make(map[string][]model.TagDefinition)
	for _, row := range rows {
		out[row.TagType] = append(out[row.TagType], row)
	}
	return out
}
