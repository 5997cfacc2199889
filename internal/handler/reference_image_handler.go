package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"viba-annotation-go/internal/service"
	"viba-annotation-go/pkg/errs"
	"viba-annotation-go/pkg/log"
)

// ReferenceImageHandler 提供参考图标注写入与查询接口。
type ReferenceImageHandler struct {
	annotationService service.AnnotationService
	searchService     service.SearchService
}

// NewReferenceImageHandler 创建一个新的 ReferenceImageHandler 实例。
func NewReferenceImageHandler(annotationService service.AnnotationService, searchService service.SearchService) *ReferenceImageHandler {
	return &ReferenceImageHandler{
		annotationService: annotationService,
		searchService:     searchService,
	}
}

// Create 写入一张参考图及其标注
func (h *ReferenceImageHandler) Create(c *gin.Context) {
	var req service.CreateReferenceImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[ReferenceImageHandler] 请求体解析失败: %v", err)
		if errors.Is(err, io.EOF) {
			respondBadRequest(c, "No data provided")
			return
		}
		respondError(c, "ReferenceImageHandler", errs.Validation("Invalid request body: %v", err))
		return
	}

	result, err := h.annotationService.CreateReferenceImage(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "ReferenceImageHandler", err)
		return
	}
	respondCreated(c, result)
}

// Get 按 unique_id 返回参考图详情
func (h *ReferenceImageHandler) Get(c *gin.Context) {
	detail, err := h.searchService.GetReferenceImage(c.Request.Context(), c.Param("unique_id"))
	if err != nil {
		respondError(c, "ReferenceImageHandler", err)
		return
	}
	respondOK(c, detail)
}

// Search 按类型、主题与关键字过滤，空请求体返回最新的参考图。
func (h *ReferenceImageHandler) Search(c *gin.Context) {
	var req service.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(c, "Invalid search parameters")
		return
	}
	result, err := h.searchService.Search(c.Request.Context(), req)
	if err != nil {
		respondError(c, "ReferenceImageHandler", err)
		return
	}
	respondOK(c, result)
}

// SemanticSearch 以自然语言查询做向量检索
func (h *ReferenceImageHandler) SemanticSearch(c *gin.Context) {
	var req service.SemanticSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid search parameters")
		return
	}
	hits, err := h.searchService.SemanticSearch(c.Request.Context(), req)
	if err != nil {
		respondError(c, "ReferenceImageHandler", err)
		return
	}
	respondOK(c, gin.H{"items": hits, "count": len(hits)})
}
