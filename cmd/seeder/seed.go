package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/datatypes"

	"viba-annotation-go/internal/model"
	"viba-annotation-go/internal/repository"
)

type seedNode struct {
	Name     string
	NameCN   string
	Children []seedNode
}

func tag(name, nameCN string, children ...seedNode) seedNode {
	return seedNode{Name: name, NameCN: nameCN, Children: children}
}

// 多级示例标签，顺序决定编码
var demoTrees = []struct {
	TagType string
	Roots   []seedNode
}{
	{"occasion", []seedNode{
		tag("outdoor", "户外",
			tag("beach", "海滩", tag("sunset beach", "日落海滩")),
			tag("street", "街头"),
		),
		tag("indoor", "室内",
			tag("studio", "影棚"),
			tag("cafe", "咖啡馆"),
		),
	}},
	{"style", []seedNode{
		tag("casual", "休闲", tag("minimal", "极简"), tag("sporty", "运动")),
		tag("formal", "正式", tag("business", "商务")),
	}},
	{"product_type", []seedNode{
		tag("top", "上装", tag("t-shirt", "T恤"), tag("shirt", "衬衫")),
		tag("bottom", "下装", tag("jeans", "牛仔裤"), tag("skirt", "半身裙")),
	}},
	{"silhouette", []seedNode{
		tag("top", "上装", tag("oversized", "宽松"), tag("fitted", "修身")),
		tag("bottom", "下装", tag("a-line", "A字"), tag("straight", "直筒")),
	}},
}

// 单级示例标签
var demoLists = []struct {
	TagType string
	Items   []seedNode
}{
	{"season", []seedNode{tag("spring", "春"), tag("summer", "夏"), tag("autumn", "秋"), tag("winter", "冬")}},
	{"pose", []seedNode{tag("standing", "站姿"), tag("sitting", "坐姿"), tag("walking", "行走")}},
	{"model_race", []seedNode{tag("asian", "亚洲"), tag("caucasian", "白人"), tag("african", "非洲")}},
	{"model_age", []seedNode{tag("young adult", "青年"), tag("middle aged", "中年")}},
	{"model_gender", []seedNode{tag("female", "女"), tag("male", "男")}},
	{"model_fit", []seedNode{tag("slim", "纤瘦"), tag("plus size", "大码")}},
	{"fabric", []seedNode{tag("cotton", "棉"), tag("linen", "亚麻"), tag("denim", "牛仔")}},
	{"color", []seedNode{tag("black", "黑"), tag("white", "白"), tag("red", "红")}},
	{"composition_shot", []seedNode{tag("full body", "全身"), tag("half body", "半身")}},
	{"composition_angle", []seedNode{tag("front", "正面"), tag("side", "侧面")}},
}

// DemoTaxonomy 生成内置示例标签体系，ID 从 1 开始连续分配，重复执行结果一致。
func DemoTaxonomy() []*model.TagDefinition {
	var rows []*model.TagDefinition
	nextID := int64(1)

	var walk func(tagType string, nodes []seedNode, parent *model.TagDefinition, codes []string)
	walk = func(tagType string, nodes []seedNode, parent *model.TagDefinition, codes []string) {
		for i, node := range nodes {
			level := len(codes) + 1
			nodeCodes := append(append([]string(nil), codes...), codeFor(level, i+1))
			row := &model.TagDefinition{
				ID:         nextID,
				TagType:    tagType,
				TagName:    node.Name,
				TagNameCN:  node.NameCN,
				Level:      &level,
				FullCode:   strings.Join(nodeCodes, "-"),
				IsLeaf:     len(node.Children) == 0,
				IsActive:   true,
				Attributes: datatypes.JSON(`{}`),
			}
			if parent != nil {
				row.ParentTagID = &parent.ID
			}
			setLevelCodes(row, nodeCodes)
			nextID++
			rows = append(rows, row)
			walk(tagType, node.Children, row, nodeCodes)
		}
	}
	for _, tree := range demoTrees {
		walk(tree.TagType, tree.Roots, nil, nil)
	}

	for _, list := range demoLists {
		for i, item := range list.Items {
			rows = append(rows, &model.TagDefinition{
				ID:         nextID,
				TagType:    list.TagType,
				TagName:    item.Name,
				TagNameCN:  item.NameCN,
				FullCode:   fmt.Sprintf("%02d", i+1),
				IsLeaf:     true,
				IsActive:   true,
				Attributes: datatypes.JSON(`{}`),
			})
			nextID++
		}
	}
	return rows
}

func codeFor(level, index int) string {
	if level == 4 {
		return fmt.Sprintf("%04d", index)
	}
	return fmt.Sprintf("%02d", index)
}

func setLevelCodes(row *model.TagDefinition, codes []string) {
	targets := []**string{&row.Level1Code, &row.Level2Code, &row.Level3Code, &row.Level4Code}
	for i, c := range codes {
		if i >= len(targets) {
			break
		}
		c := c
		*targets[i] = &c
	}
}

// LoadTaxonomyFile 读取 JSON 数组格式的标签定义，字段与 tag_definitions 表一致。
func LoadTaxonomyFile(path string) ([]*model.TagDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []*model.TagDefinition
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, row := range rows {
		if row.ID <= 0 || row.TagType == "" || row.TagName == "" {
			return nil, fmt.Errorf("row %d: id, tag_type and tag_name are required", i)
		}
		if len(row.Attributes) == 0 {
			row.Attributes = datatypes.JSON(`{}`)
		}
	}
	return rows, nil
}

// SeedThemes 用 gofakeit 生成 count 个示例主题并写入数据库。
func SeedThemes(ctx context.Context, repo repository.ThemeRepository, count int, seed int64) ([]model.Theme, error) {
	faker := gofakeit.New(seed)
	themes := make([]model.Theme, 0, count)
	for i := 0; i < count; i++ {
		theme := model.Theme{
			Title:            faker.Adjective() + " " + faker.Noun(),
			Description:      faker.Paragraph(1, 3, 12, " "),
			CulturalInsights: faker.Sentence(10),
		}
		if err := repo.Create(ctx, &theme); err != nil {
			return themes, fmt.Errorf("create theme %d: %w", i, err)
		}
		themes = append(themes, theme)
	}
	return themes, nil
}
