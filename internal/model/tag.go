// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "gorm.io/datatypes"

// reference_images 上的标签列
const (
	ColumnStyleTagIDs          = "style_tag_ids"
	ColumnPoseTagIDs           = "pose_tag_ids"
	ColumnOccasionTagIDs       = "occasion_tag_ids"
	ColumnCompositionTagIDs    = "composition_tag_ids"
	ColumnProductTypeTagIDs    = "product_type_tag_ids"
	ColumnModelAttributeTagIDs = "model_attribute_tag_ids"
	ColumnFabricTagIDs         = "fabric_tag_ids"
	ColumnSilhouetteTagIDs     = "silhouette_tag_ids"
)

// TagColumns 是 reference_images 上全部标签 ID 数组列。
var TagColumns = []string{
	ColumnStyleTagIDs,
	ColumnPoseTagIDs,
	ColumnOccasionTagIDs,
	ColumnCompositionTagIDs,
	ColumnProductTypeTagIDs,
	ColumnModelAttributeTagIDs,
	ColumnFabricTagIDs,
	ColumnSilhouetteTagIDs,
}

// TagDefinition 对应于数据库中的 'tag_definitions' 表，是标签体系的唯一数据来源。
// 多级标签通过 ParentTagID 组成森林，活跃子标签的父标签必须同样活跃且层级恰好小 1。
type TagDefinition struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TagType     string `gorm:"type:varchar(50);not null;index" json:"tag_type"`
	TagName     string `gorm:"type:varchar(100);not null" json:"tag_name"`
	TagNameCN   string `gorm:"column:tag_name_cn;type:varchar(100)" json:"tag_name_cn"`
	ParentTagID *int64 `gorm:"index" json:"parent_tag_id"`
	// Level 取值 1..4，单级标签为空
	Level      *int           `json:"level"`
	Level1Code *string        `gorm:"column:level1_code;type:varchar(8)" json:"level1_code"`
	Level2Code *string        `gorm:"column:level2_code;type:varchar(8)" json:"level2_code"`
	Level3Code *string        `gorm:"column:level3_code;type:varchar(8)" json:"level3_code"`
	Level4Code *string        `gorm:"column:level4_code;type:varchar(16)" json:"level4_code"`
	FullCode   string         `gorm:"type:varchar(64)" json:"full_code"`
	IsLeaf     bool           `gorm:"not null" json:"is_leaf"`
	IsActive   bool           `gorm:"not null;index" json:"is_active"`
	Attributes datatypes.JSON `json:"attributes"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (TagDefinition) TableName() string {
	return "tag_definitions"
}
