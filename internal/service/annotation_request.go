package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TagIDList 接受单个 ID、ID 数组或 null，数字字符串同样被接受。
type TagIDList []int64

func (l *TagIDList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		out := make([]int64, 0, len(raw))
		for _, item := range raw {
			id, ok, err := parseTagID(item)
			if err != nil {
				return err
			}
			if ok {
				out = append(out, id)
			}
		}
		*l = out
		return nil
	}
	id, ok, err := parseTagID(data)
	if err != nil {
		return err
	}
	if ok {
		*l = TagIDList{id}
	} else {
		*l = nil
	}
	return nil
}

func parseTagID(data json.RawMessage) (int64, bool, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, false, nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, false, err
		}
		if s = strings.TrimSpace(s); s == "" {
			return 0, false, nil
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("invalid tag id %q", s)
		}
		return id, true, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return 0, false, fmt.Errorf("invalid tag id %s", string(data))
	}
	id, err := n.Int64()
	if err != nil {
		return 0, false, fmt.Errorf("invalid tag id %s", n.String())
	}
	return id, true, nil
}

// CreateReferenceImageRequest 是创建参考图标注的请求体。
// 所有以 _tag_ids 结尾的顶层字段收集到 TagFields，由字段映射决定写入哪一列。
type CreateReferenceImageRequest struct {
	ReferenceImageURL string `json:"reference_image_url" validate:"required"`
	ReferenceType     *int   `json:"reference_type" validate:"required,oneof=1 2"`

	GenPoseImages             []string `json:"gen_pose_images"`
	GenPoseDescription        string   `json:"gen_pose_description"`
	GenProductImages          []string `json:"gen_product_images"`
	GenProductDescription     string   `json:"gen_product_description"`
	GenOccasionImages         []string `json:"gen_occasion_images"`
	GenOccasionDescription    string   `json:"gen_occasion_description"`
	GenCompositionImages      []string `json:"gen_composition_images"`
	GenCompositionDescription string   `json:"gen_composition_description"`
	GenStyleImages            []string `json:"gen_style_images"`
	GenStyleDescription       string   `json:"gen_style_description"`
	GenContentPrompt          string   `json:"gen_content_prompt" validate:"required_if=ReferenceType 1"`
	GenMLModelSource          string   `json:"gen_ml_model_source" validate:"required_if=ReferenceType 1"`

	// 旧版字段
	GenOutfitImages      []string `json:"gen_outfit_images"`
	GenOutfitDescription string   `json:"gen_outfit_description"`
	GenSceneImages       []string `json:"gen_scene_images"`
	GenSceneDescription  string   `json:"gen_scene_description"`

	ProductItemIDs            []string `json:"product_item_ids" validate:"dive,uuid"`
	CanBeUsedForFaceSwitching *bool    `json:"can_be_used_for_face_switching" validate:"required_if=ReferenceType 2"`
	PoseDescription           string   `json:"pose_description"`
	SceneDescription          string   `json:"scene_description"`

	ThemeIDs      []string        `json:"theme_ids" validate:"dive,uuid"`
	OutfitDetails json.RawMessage `json:"outfit_details"`

	TagFields map[string][]int64 `json:"-"`
}

// UnmarshalJSON 解析固定字段，并收集全部 *_tag_ids 字段。
func (r *CreateReferenceImageRequest) UnmarshalJSON(data []byte) error {
	type plain CreateReferenceImageRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.TagFields = make(map[string][]int64)
	for key, value := range raw {
		if !strings.HasSuffix(key, "_tag_ids") {
			continue
		}
		var ids TagIDList
		if err := json.Unmarshal(value, &ids); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		p.TagFields[key] = ids
	}
	*r = CreateReferenceImageRequest(p)
	return nil
}

// normalize 去除空白、统一 UUID 大小写并套用旧版字段，在结构体校验之前执行。
func (r *CreateReferenceImageRequest) normalize() {
	r.ReferenceImageURL = strings.TrimSpace(r.ReferenceImageURL)
	r.GenContentPrompt = strings.TrimSpace(r.GenContentPrompt)
	r.GenMLModelSource = strings.TrimSpace(r.GenMLModelSource)
	r.ProductItemIDs = normalizeUUIDs(r.ProductItemIDs, true)
	r.ThemeIDs = normalizeUUIDs(r.ThemeIDs, false)
	r.applyLegacyAliases()
}

// applyLegacyAliases 旧字段在新字段缺失或为空时生效
func (r *CreateReferenceImageRequest) applyLegacyAliases() {
	if len(r.GenProductImages) == 0 {
		r.GenProductImages = r.GenOutfitImages
	}
	if r.GenProductDescription == "" {
		r.GenProductDescription = r.GenOutfitDescription
	}
	if len(r.GenOccasionImages) == 0 {
		r.GenOccasionImages = r.GenSceneImages
	}
	if r.GenOccasionDescription == "" {
		r.GenOccasionDescription = r.GenSceneDescription
	}
}

// outfitTags 是 outfit_details 单个条目中的标签引用，其余字段原样保存。
type outfitTags struct {
	ProductTypeTagIDs TagIDList `json:"product_type_tag_ids"`
	FabricTagID       TagIDList `json:"fabric_tag_id"`
	SilhouetteTagID   TagIDList `json:"silhouette_tag_id"`
	ColorTagID        TagIDList `json:"color_tag_id"`
}

// parseOutfits 解析 outfit_details，非对象条目被忽略。
func parseOutfits(raw json.RawMessage) ([]outfitTags, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("outfit_details must be a list")
	}
	out := make([]outfitTags, 0, len(items))
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		var o outfitTags
		if err := json.Unmarshal(item, &o); err != nil {
			return nil, fmt.Errorf("outfit_details[%d]: %w", i, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// CreateReferenceImageResult 是创建成功后的返回值
type CreateReferenceImageResult struct {
	ID       int64  `json:"id"`
	UniqueID string `json:"unique_id"`
}
