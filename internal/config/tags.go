package config

import (
	"fmt"
	"sort"

	"viba-annotation-go/internal/model"
)

const (
	// KindMultiLevel 多级标签，按树结构组织
	KindMultiLevel = "multi_level"
	// KindSingleLevel 单级标签，按列表组织
	KindSingleLevel = "single_level"

	defaultMaxAncestorDepth = 4
)

// SpecialType 描述需要前端特殊处理的标签类型。
type SpecialType struct {
	ExpectedLevel1Count int    `mapstructure:"expected_level1_count" json:"expected_level1_count"`
	AutoSelect          bool   `mapstructure:"auto_select" json:"auto_select"`
	Description         string `mapstructure:"description" json:"description"`
}

// TagSystemConfig 是标签体系的静态定义。
type TagSystemConfig struct {
	MultiLevel  []string `mapstructure:"multi_level"`
	SingleLevel []string `mapstructure:"single_level"`
	// FieldMapping 请求字段 -> reference_images 存储列
	FieldMapping map[string]string `mapstructure:"field_mapping"`
	// Aliases 旧版请求字段 -> 当前请求字段
	Aliases map[string]string `mapstructure:"aliases"`
	// ModelAttributeTypes 中每个类型的 <type>_tag_ids 字段合并写入 model_attribute_tag_ids
	ModelAttributeTypes []string `mapstructure:"model_attribute_types"`
	// CompositionTypes 中每个类型的 <type>_tag_ids 字段合并写入 composition_tag_ids
	CompositionTypes []string               `mapstructure:"composition_types"`
	SpecialTypes     map[string]SpecialType `mapstructure:"special_types"`
	MaxAncestorDepth int                    `mapstructure:"max_ancestor_depth"`
}

// DefaultTagSystem 返回内置的标签体系定义。
func DefaultTagSystem() TagSystemConfig {
	mapping := make(map[string]string, len(model.TagColumns))
	for _, col := range model.TagColumns {
		mapping[col] = col
	}
	return TagSystemConfig{
		MultiLevel: []string{"occasion", "style", "product_type", "silhouette"},
		SingleLevel: []string{
			"season", "pose",
			"model_race", "model_age", "model_gender", "model_fit", "model_attribute",
			"gender", "fabric", "color",
			"composition_angle", "composition_shot", "composition_position", "composition_bodyratio",
		},
		FieldMapping: mapping,
		Aliases: map[string]string{
			"scene_tag_ids":      "occasion_tag_ids",
			"model_size_tag_ids": "model_fit_tag_ids",
		},
		ModelAttributeTypes: []string{"model_age", "model_gender", "model_race", "model_fit"},
		CompositionTypes:    []string{"composition_shot", "composition_angle", "composition_bodyratio", "composition_position"},
		SpecialTypes: map[string]SpecialType{
			"silhouette": {
				ExpectedLevel1Count: 2,
				AutoSelect:          true,
				Description:         "廓形：一级分类固定为上装/下装，选择产品类型后自动带出",
			},
		},
		MaxAncestorDepth: defaultMaxAncestorDepth,
	}
}

func (t *TagSystemConfig) applyDefaults() {
	def := DefaultTagSystem()
	if len(t.MultiLevel) == 0 && len(t.SingleLevel) == 0 {
		t.MultiLevel = def.MultiLevel
		t.SingleLevel = def.SingleLevel
	}
	if len(t.FieldMapping) == 0 {
		t.FieldMapping = def.FieldMapping
	}
	if t.Aliases == nil {
		t.Aliases = def.Aliases
	}
	if t.ModelAttributeTypes == nil {
		t.ModelAttributeTypes = def.ModelAttributeTypes
	}
	if t.CompositionTypes == nil {
		t.CompositionTypes = def.CompositionTypes
	}
	if t.SpecialTypes == nil {
		t.SpecialTypes = def.SpecialTypes
	}
	if t.MaxAncestorDepth < 1 {
		t.MaxAncestorDepth = defaultMaxAncestorDepth
	}
}

// Kind 返回标签类型的分类，未声明的类型返回空字符串。
func (t TagSystemConfig) Kind(tagType string) string {
	for _, tt := range t.MultiLevel {
		if tt == tagType {
			return KindMultiLevel
		}
	}
	for _, tt := range t.SingleLevel {
		if tt == tagType {
			return KindSingleLevel
		}
	}
	return ""
}

// AllTypes 返回全部已声明的标签类型，多级在前。
func (t TagSystemConfig) AllTypes() []string {
	out := make([]string, 0, len(t.MultiLevel)+len(t.SingleLevel))
	out = append(out, t.MultiLevel...)
	return append(out, t.SingleLevel...)
}

// FanInFields 返回需要合并写入的子字段 -> 目标存储列。
func (t TagSystemConfig) FanInFields() map[string]string {
	out := make(map[string]string, len(t.ModelAttributeTypes)+len(t.CompositionTypes))
	for _, tt := range t.ModelAttributeTypes {
		out[tt+"_tag_ids"] = model.ColumnModelAttributeTagIDs
	}
	for _, tt := range t.CompositionTypes {
		out[tt+"_tag_ids"] = model.ColumnCompositionTagIDs
	}
	return out
}

// Validate 检查标签体系定义的一致性：
// 类型不能重复声明；映射目标必须是真实存储列且一一对应；别名必须指向已知字段。
func (t TagSystemConfig) Validate() error {
	seen := make(map[string]string)
	check := func(kind string, types []string) error {
		for _, tt := range types {
			if tt == "" {
				return fmt.Errorf("empty tag type in %s", kind)
			}
			if prev, ok := seen[tt]; ok {
				return fmt.Errorf("tag type %q declared more than once (%s, %s)", tt, prev, kind)
			}
			seen[tt] = kind
		}
		return nil
	}
	if err := check(KindMultiLevel, t.MultiLevel); err != nil {
		return err
	}
	if err := check(KindSingleLevel, t.SingleLevel); err != nil {
		return err
	}

	columns := make(map[string]bool, len(model.TagColumns))
	for _, col := range model.TagColumns {
		columns[col] = true
	}
	targets := make(map[string]string, len(t.FieldMapping))
	for _, field := range sortedKeys(t.FieldMapping) {
		col := t.FieldMapping[field]
		if !columns[col] {
			return fmt.Errorf("field mapping %q -> %q: target is not a tag column", field, col)
		}
		if other, ok := targets[col]; ok {
			return fmt.Errorf("field mapping is not one-to-one: %q and %q both map to %q", other, field, col)
		}
		targets[col] = field
	}

	for _, tt := range append(append([]string{}, t.ModelAttributeTypes...), t.CompositionTypes...) {
		if _, ok := seen[tt]; !ok {
			return fmt.Errorf("fan-in type %q is not a declared tag type", tt)
		}
	}
	for name := range t.SpecialTypes {
		if _, ok := seen[name]; !ok {
			return fmt.Errorf("special type %q is not a declared tag type", name)
		}
	}

	fanIn := t.FanInFields()
	for _, alias := range sortedKeys(t.Aliases) {
		target := t.Aliases[alias]
		if _, ok := t.FieldMapping[alias]; ok {
			return fmt.Errorf("alias %q shadows a mapped field", alias)
		}
		_, mapped := t.FieldMapping[target]
		_, fanned := fanIn[target]
		if !mapped && !fanned {
			return fmt.Errorf("alias %q -> %q: target is not a known tag field", alias, target)
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
