package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"viba-annotation-go/internal/service"
)

// HealthHandler 提供服务状态与健康检查接口。
type HealthHandler struct {
	healthService service.HealthService
}

// NewHealthHandler 创建一个新的 HealthHandler 实例。
func NewHealthHandler(healthService service.HealthService) *HealthHandler {
	return &HealthHandler{healthService: healthService}
}

// Status 返回服务的基本信息
func (h *HealthHandler) Status(c *gin.Context) {
	respondOK(c, h.healthService.Status())
}

// Health 检查依赖状态，数据库不可用时返回 503。
func (h *HealthHandler) Health(c *gin.Context) {
	report := h.healthService.Health(c.Request.Context())
	if report.Status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Service unhealthy", "data": report})
		return
	}
	respondOK(c, report)
}
