package taxonomy

import (
	"sort"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/internal/model"
)

// FieldMapper 在请求字段名与 reference_images 存储列名之间转换。
// 映射表是一一对应的，未登记的名称原样返回。
type FieldMapper struct {
	toStorage   map[string]string
	fromStorage map[string]string
	aliases     map[string]string
	fanIn       map[string]string
}

// NewFieldMapper 根据标签体系配置创建 FieldMapper，配置需已通过 Validate。
func NewFieldMapper(tags config.TagSystemConfig) *FieldMapper {
	m := &FieldMapper{
		toStorage:   make(map[string]string, len(tags.FieldMapping)),
		fromStorage: make(map[string]string, len(tags.FieldMapping)),
		aliases:     make(map[string]string, len(tags.Aliases)),
		fanIn:       tags.FanInFields(),
	}
	for field, col := range tags.FieldMapping {
		m.toStorage[field] = col
		m.fromStorage[col] = field
	}
	for alias, target := range tags.Aliases {
		m.aliases[alias] = target
	}
	return m
}

// ToStorage 返回请求字段对应的存储列名
func (m *FieldMapper) ToStorage(field string) string {
	if col, ok := m.toStorage[field]; ok {
		return col
	}
	return field
}

// FromStorage 返回存储列对应的请求字段名
func (m *FieldMapper) FromStorage(column string) string {
	if field, ok := m.fromStorage[column]; ok {
		return field
	}
	return column
}

// Canonical 将旧版字段名转换为当前字段名。
func (m *FieldMapper) Canonical(field string) string {
	if target, ok := m.aliases[field]; ok {
		return target
	}
	return field
}

// StorageColumn 返回字段最终写入的标签列。合并子字段（如 model_age_tag_ids）返回其合并目标列。
func (m *FieldMapper) StorageColumn(field string) (string, bool) {
	field = m.Canonical(field)
	if col, ok := m.toStorage[field]; ok {
		return col, true
	}
	if col, ok := m.fanIn[field]; ok {
		return col, true
	}
	return "", false
}

// Group 将请求中的标签字段归并到存储列。
// 旧版字段仅在对应的当前字段缺失或为空时生效；合并子字段追加到目标列。
// 返回值包含全部标签列（无数据时为空列表）以及无法映射的字段名。
func (m *FieldMapper) Group(fields map[string][]int64) (map[string][]int64, []string) {
	out := make(map[string][]int64, len(model.TagColumns))
	for _, col := range model.TagColumns {
		out[col] = []int64{}
	}

	resolved := make(map[string][]int64, len(fields))
	for field, ids := range fields {
		if _, isAlias := m.aliases[field]; isAlias {
			continue
		}
		resolved[field] = ids
	}
	for alias, target := range m.aliases {
		if ids, ok := fields[alias]; ok {
			if len(resolved[target]) == 0 {
				resolved[target] = ids
			}
		}
	}

	var unmapped []string
	names := make([]string, 0, len(resolved))
	for field := range resolved {
		names = append(names, field)
	}
	sort.Strings(names)
	for _, field := range names {
		col, ok := m.StorageColumn(field)
		if !ok {
			unmapped = append(unmapped, field)
			continue
		}
		out[col] = append(out[col], resolved[field]...)
	}
	return out, unmapped
}
