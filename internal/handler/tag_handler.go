package handler

import (
	"github.com/gin-gonic/gin"

	"viba-annotation-go/internal/service"
	"viba-annotation-go/pkg/log"
)

// TagHandler 提供标签目录与标签体系配置接口。
type TagHandler struct {
	tagService service.TagService
}

// NewTagHandler 创建一个新的 TagHandler 实例。
func NewTagHandler(tagService service.TagService) *TagHandler {
	return &TagHandler{tagService: tagService}
}

// All 返回全部活跃标签，多级类型为树结构，单级类型为列表。
func (h *TagHandler) All(c *gin.Context) {
	catalog, err := h.tagService.Catalog(c.Request.Context())
	if err != nil {
		respondError(c, "TagHandler", err)
		return
	}
	log.Infof("[TagHandler] 返回标签目录, 总数: %d", catalog.Stats.TotalCount)
	respondOK(c, catalog)
}

// ByType 返回单个类型的标签结构
func (h *TagHandler) ByType(c *gin.Context) {
	tags, err := h.tagService.TagsByType(c.Request.Context(), c.Param("tag_type"))
	if err != nil {
		respondError(c, "TagHandler", err)
		return
	}
	respondOK(c, tags)
}

// Config 导出标签体系配置，供前端渲染表单。
func (h *TagHandler) Config(c *gin.Context) {
	respondOK(c, h.tagService.ConfigExport())
}
