package model

import "time"

// ReferenceImageDocument 定义了存储在 Elasticsearch 中的参考图文档结构。
type ReferenceImageDocument struct {
	UniqueID          string    `json:"unique_id"` // 同时作为 ES 文档 ID
	ReferenceImageURL string    `json:"reference_image_url"`
	ReferenceType     int       `json:"reference_type"`
	SearchText        string    `json:"search_text"`
	TagIDs            []int64   `json:"tag_ids"` // 全部标签列的并集
	ThemeIDs          []string  `json:"theme_ids"`
	Vector            []float32 `json:"vector,omitempty"` // gen_content_prompt 的向量
	ModelVersion      string    `json:"model_version"`
	CreatedAt         time.Time `json:"created_at"`
}

// SemanticHit 是语义搜索返回给前端的单条结果。
type SemanticHit struct {
	UniqueID          string  `json:"unique_id"`
	ReferenceImageURL string  `json:"reference_image_url"`
	ReferenceType     int     `json:"reference_type"`
	Score             float64 `json:"score"`
}
