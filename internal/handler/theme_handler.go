package handler

import (
	"github.com/gin-gonic/gin"

	"viba-annotation-go/internal/service"
)

// ThemeHandler 提供主题列表接口。
type ThemeHandler struct {
	themeService service.ThemeService
}

// NewThemeHandler 创建一个新的 ThemeHandler 实例。
func NewThemeHandler(themeService service.ThemeService) *ThemeHandler {
	return &ThemeHandler{themeService: themeService}
}

func (h *ThemeHandler) List(c *gin.Context) {
	themes, err := h.themeService.ListThemes(c.Request.Context())
	if err != nil {
		respondError(c, "ThemeHandler", err)
		return
	}
	respondOK(c, themes)
}
