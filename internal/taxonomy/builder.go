// Package taxonomy 实现标签体系的核心逻辑：祖先补全、树/扁平结构构建以及请求字段到存储列的映射。
package taxonomy

import (
	"fmt"

	"gorm.io/datatypes"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/internal/model"
)

const maxLevel = 4

// TagNode 是多级标签树中的一个节点。
type TagNode struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	NameCN   string     `json:"name_cn"`
	ParentID *int64     `json:"parent_id"`
	Level    *int       `json:"level"`
	FullCode string     `json:"full_code"`
	IsLeaf   bool       `json:"is_leaf"`
	Children []*TagNode `json:"children"`
}

// CascadeOption 是级联选择器中的一个选项。
type CascadeOption struct {
	Value int64  `json:"value"`
	Label string `json:"label"`
	Name  string `json:"name"`
}

// Cascade 供前端逐级填充级联下拉框。
// LevelNByParent 以父标签 ID 为键，值为其第 N 级子标签。
type Cascade struct {
	Level1         []CascadeOption           `json:"level1"`
	Level2         []CascadeOption           `json:"level2"`
	Level3         []CascadeOption           `json:"level3"`
	Level4         []CascadeOption           `json:"level4"`
	Level2ByParent map[int64][]CascadeOption `json:"level2_by_parent"`
	Level3ByParent map[int64][]CascadeOption `json:"level3_by_parent"`
	Level4ByParent map[int64][]CascadeOption `json:"level4_by_parent"`
}

// TreeResult 是多级标签的构建结果。
type TreeResult struct {
	Tree      []*TagNode         `json:"tree"`
	Flat      map[int64]*TagNode `json:"flat"`
	Levels    map[int][]*TagNode `json:"levels"`
	Cascade   Cascade            `json:"cascade"`
	ParentMap map[int64][]int64  `json:"parent_map"`
}

// FlatItem 是单级标签列表中的一项。
type FlatItem struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	NameCN     string         `json:"name_cn"`
	FullCode   string         `json:"full_code"`
	Attributes datatypes.JSON `json:"attributes"`
}

// FlatResult 是单级标签的构建结果。
type FlatResult struct {
	List []*FlatItem          `json:"list"`
	Flat map[int64]*FlatItem `json:"flat"`
}

// Structure 是 TreeResult 或 FlatResult。
type Structure interface {
	structure()
}

func (*TreeResult) structure() {}
func (*FlatResult) structure() {}

// Build 按标签类型的分类选择树或扁平结构。
func Build(kind string, rows []model.TagDefinition) (Structure, error) {
	switch kind {
	case config.KindMultiLevel:
		return BuildTree(rows), nil
	case config.KindSingleLevel:
		return BuildFlat(rows), nil
	default:
		return nil, fmt.Errorf("unknown tag structure %q", kind)
	}
}

// BuildTree 构建多级标签树。
// 第一遍按 ID 建索引并按层级分桶；第二遍按输入顺序把节点挂到父节点下，
// 父节点不在输入集合中的节点作为根节点保留。层级不在 1..4 的节点只进入 Flat 索引。
func BuildTree(rows []model.TagDefinition) *TreeResult {
	res := &TreeResult{
		Tree:      []*TagNode{},
		Flat:      make(map[int64]*TagNode, len(rows)),
		Levels:    make(map[int][]*TagNode, maxLevel),
		ParentMap: make(map[int64][]int64),
		Cascade: Cascade{
			Level1:         []CascadeOption{},
			Level2:         []CascadeOption{},
			Level3:         []CascadeOption{},
			Level4:         []CascadeOption{},
			Level2ByParent: make(map[int64][]CascadeOption),
			Level3ByParent: make(map[int64][]CascadeOption),
			Level4ByParent: make(map[int64][]CascadeOption),
		},
	}
	for lvl := 1; lvl <= maxLevel; lvl++ {
		res.Levels[lvl] = []*TagNode{}
	}

	nodes := make([]*TagNode, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		node := &TagNode{
			ID:       row.ID,
			Name:     row.TagName,
			NameCN:   row.TagNameCN,
			ParentID: row.ParentTagID,
			Level:    row.Level,
			FullCode: row.FullCode,
			IsLeaf:   row.IsLeaf,
			Children: []*TagNode{},
		}
		nodes = append(nodes, node)
		res.Flat[node.ID] = node
		if lvl, ok := bucketLevel(node.Level); ok {
			res.Levels[lvl] = append(res.Levels[lvl], node)
			opt := node.option()
			switch lvl {
			case 1:
				res.Cascade.Level1 = append(res.Cascade.Level1, opt)
			case 2:
				res.Cascade.Level2 = append(res.Cascade.Level2, opt)
			case 3:
				res.Cascade.Level3 = append(res.Cascade.Level3, opt)
			case 4:
				res.Cascade.Level4 = append(res.Cascade.Level4, opt)
			}
		}
	}

	for _, node := range nodes {
		if node.ParentID == nil {
			res.Tree = append(res.Tree, node)
			continue
		}
		parent, ok := res.Flat[*node.ParentID]
		if !ok || reaches(res.Flat, parent, node) {
			// 父节点缺失（已停用或不在本次结果中），或父链成环
			res.Tree = append(res.Tree, node)
			continue
		}
		parent.Children = append(parent.Children, node)
		res.ParentMap[parent.ID] = append(res.ParentMap[parent.ID], node.ID)

		if lvl, ok := bucketLevel(parent.Level); ok {
			opt := node.option()
			switch lvl {
			case 1:
				res.Cascade.Level2ByParent[parent.ID] = append(res.Cascade.Level2ByParent[parent.ID], opt)
			case 2:
				res.Cascade.Level3ByParent[parent.ID] = append(res.Cascade.Level3ByParent[parent.ID], opt)
			case 3:
				res.Cascade.Level4ByParent[parent.ID] = append(res.Cascade.Level4ByParent[parent.ID], opt)
			}
		}
	}
	return res
}

// BuildFlat 构建单级标签列表，忽略 level 与 parent_tag_id。
func BuildFlat(rows []model.TagDefinition) *FlatResult {
	res := &FlatResult{
		List: make([]*FlatItem, 0, len(rows)),
		Flat: make(map[int64]*FlatItem, len(rows)),
	}
	for i := range rows {
		row := &rows[i]
		item := &FlatItem{
			ID:         row.ID,
			Name:       row.TagName,
			NameCN:     row.TagNameCN,
			FullCode:   row.FullCode,
			Attributes: row.Attributes,
		}
		if len(item.Attributes) == 0 {
			item.Attributes = datatypes.JSON("{}")
		}
		res.List = append(res.List, item)
		res.Flat[item.ID] = item
	}
	return res
}

func (n *TagNode) option() CascadeOption {
	return CascadeOption{Value: n.ID, Label: n.NameCN, Name: n.Name}
}

// reaches 判断沿 from 的父链向上能否到达 target。
func reaches(index map[int64]*TagNode, from, target *TagNode) bool {
	for steps := 0; from != nil && steps <= len(index); steps++ {
		if from == target {
			return true
		}
		if from.ParentID == nil {
			return false
		}
		from = index[*from.ParentID]
	}
	return false
}

func bucketLevel(level *int) (int, bool) {
	if level == nil || *level < 1 || *level > maxLevel {
		return 0, false
	}
	return *level, true
}
