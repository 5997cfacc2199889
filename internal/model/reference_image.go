package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 参考图类型
const (
	ReferenceTypeGenerated = 1 // 生成类：附带生成提示词与模型来源
	ReferenceTypeMatched   = 2 // 匹配类：附带商品 ID 与换脸标记
)

// ReferenceImage 对应 'reference_images' 表，一条记录即一张带标注的参考图。
type ReferenceImage struct {
	ID                int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UniqueID          string `gorm:"type:varchar(36);uniqueIndex;not null" json:"unique_id"`
	ReferenceImageURL string `gorm:"type:text;not null" json:"reference_image_url"`
	ReferenceType     int    `gorm:"not null;index" json:"reference_type"`

	// 生成类字段
	GenPoseImages             StringArray `json:"gen_pose_images"`
	GenPoseDescription        string      `gorm:"type:text" json:"gen_pose_description"`
	GenProductImages          StringArray `json:"gen_product_images"`
	GenProductDescription     string      `gorm:"type:text" json:"gen_product_description"`
	GenOccasionImages         StringArray `json:"gen_occasion_images"`
	GenOccasionDescription    string      `gorm:"type:text" json:"gen_occasion_description"`
	GenCompositionImages      StringArray `json:"gen_composition_images"`
	GenCompositionDescription string      `gorm:"type:text" json:"gen_composition_description"`
	GenStyleImages            StringArray `json:"gen_style_images"`
	GenStyleDescription       string      `gorm:"type:text" json:"gen_style_description"`
	GenContentPrompt          string      `gorm:"type:text" json:"gen_content_prompt"`
	GenMLModelSource          string      `gorm:"column:gen_ml_model_source;type:varchar(255)" json:"gen_ml_model_source"`

	// 匹配类字段
	ProductItemIDs            StringArray `json:"product_item_ids"`
	CanBeUsedForFaceSwitching *bool       `json:"can_be_used_for_face_switching"`
	PoseDescription           string      `gorm:"type:text" json:"pose_description"`
	SceneDescription          string      `gorm:"type:text" json:"scene_description"`

	// 标签列，写入前已补全祖先
	StyleTagIDs          Int64Array `gorm:"column:style_tag_ids" json:"style_tag_ids"`
	PoseTagIDs           Int64Array `gorm:"column:pose_tag_ids" json:"pose_tag_ids"`
	OccasionTagIDs       Int64Array `gorm:"column:occasion_tag_ids" json:"occasion_tag_ids"`
	CompositionTagIDs    Int64Array `gorm:"column:composition_tag_ids" json:"composition_tag_ids"`
	ProductTypeTagIDs    Int64Array `gorm:"column:product_type_tag_ids" json:"product_type_tag_ids"`
	ModelAttributeTagIDs Int64Array `gorm:"column:model_attribute_tag_ids" json:"model_attribute_tag_ids"`
	FabricTagIDs         Int64Array `gorm:"column:fabric_tag_ids" json:"fabric_tag_ids"`
	SilhouetteTagIDs     Int64Array `gorm:"column:silhouette_tag_ids" json:"silhouette_tag_ids"`

	OutfitDetails datatypes.JSON `json:"outfit_details"`

	GenContentEmbedding     *Embedding `gorm:"column:gen_content_embedding;dim:768" json:"-"`
	GenPoseEmbedding        *Embedding `gorm:"column:gen_pose_embedding;dim:384" json:"-"`
	GenProductEmbedding     *Embedding `gorm:"column:gen_product_embedding;dim:384" json:"-"`
	GenOccasionEmbedding    *Embedding `gorm:"column:gen_occasion_embedding;dim:384" json:"-"`
	GenCompositionEmbedding *Embedding `gorm:"column:gen_composition_embedding;dim:384" json:"-"`
	PoseEmbedding           *Embedding `gorm:"column:pose_embedding;dim:384" json:"-"`
	SceneEmbedding          *Embedding `gorm:"column:scene_embedding;dim:384" json:"-"`

	// SearchText 由描述类字段拼接并转小写，用于关键字搜索
	SearchText string    `gorm:"type:text" json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ReferenceImage) TableName() string {
	return "reference_images"
}

// BeforeCreate 为新记录生成 unique_id。
func (r *ReferenceImage) BeforeCreate(tx *gorm.DB) error {
	if r.UniqueID == "" {
		r.UniqueID = uuid.NewString()
	}
	return nil
}

// TagColumnValues 按存储列名返回全部标签列，顺序与 TagColumns 一致。
func (r *ReferenceImage) TagColumnValues() map[string]Int64Array {
	return map[string]Int64Array{
		ColumnStyleTagIDs:          r.StyleTagIDs,
		ColumnPoseTagIDs:           r.PoseTagIDs,
		ColumnOccasionTagIDs:       r.OccasionTagIDs,
		ColumnCompositionTagIDs:    r.CompositionTagIDs,
		ColumnProductTypeTagIDs:    r.ProductTypeTagIDs,
		ColumnModelAttributeTagIDs: r.ModelAttributeTagIDs,
		ColumnFabricTagIDs:         r.FabricTagIDs,
		ColumnSilhouetteTagIDs:     r.SilhouetteTagIDs,
	}
}

// SetTagColumn 按存储列名写入标签列，未知列名返回 false。
func (r *ReferenceImage) SetTagColumn(column string, ids []int64) bool {
	v := Int64Array(ids)
	switch column {
	case ColumnStyleTagIDs:
		r.StyleTagIDs = v
	case ColumnPoseTagIDs:
		r.PoseTagIDs = v
	case ColumnOccasionTagIDs:
		r.OccasionTagIDs = v
	case ColumnCompositionTagIDs:
		r.CompositionTagIDs = v
	case ColumnProductTypeTagIDs:
		r.ProductTypeTagIDs = v
	case ColumnModelAttributeTagIDs:
		r.ModelAttributeTagIDs = v
	case ColumnFabricTagIDs:
		r.FabricTagIDs = v
	case ColumnSilhouetteTagIDs:
		r.SilhouetteTagIDs = v
	default:
		return false
	}
	return true
}

// Theme 对应 'themes' 表。
type Theme struct {
	UniqueID         string    `gorm:"type:varchar(36);primaryKey" json:"unique_id"`
	Title            string    `gorm:"type:varchar(255);not null" json:"title"`
	Description      string    `gorm:"type:text" json:"description"`
	CulturalInsights string    `gorm:"type:text" json:"cultural_insights"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Theme) TableName() string {
	return "themes"
}

func (t *Theme) BeforeCreate(tx *gorm.DB) error {
	if t.UniqueID == "" {
		t.UniqueID = uuid.NewString()
	}
	return nil
}

// ReferenceImageTheme 对应 'ref_images_to_themes' 关联表，(ref_image_id, theme_id) 唯一。
type ReferenceImageTheme struct {
	RefImageID string `gorm:"type:varchar(36);primaryKey" json:"ref_image_id"`
	ThemeID    string `gorm:"type:varchar(36);primaryKey" json:"theme_id"`
}

func (ReferenceImageTheme) TableName() string {
	return "ref_images_to_themes"
}
