package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers 汇总全部路由处理器
type Handlers struct {
	Health         *HealthHandler
	Tag            *TagHandler
	Theme          *ThemeHandler
	Upload         *UploadHandler
	ReferenceImage *ReferenceImageHandler
}

// RegisterRoutes 注册 /api 下的全部路由以及未知路由的处理。
func RegisterRoutes(r *gin.Engine, h Handlers) {
	r.HandleMethodNotAllowed = true
	r.NoRoute(NotFound)
	r.NoMethod(MethodNotAllowed)

	api := r.Group("/api")
	{
		api.GET("/status", h.Health.Status)
		api.GET("/health", h.Health.Health)

		api.GET("/themes", h.Theme.List)

		api.GET("/config/tags", h.Tag.Config)
		tags := api.Group("/tags")
		{
			tags.GET("/all", h.Tag.All)
			tags.GET("/:tag_type", h.Tag.ByType)
		}

		api.POST("/upload-image", h.Upload.UploadImage)
		api.POST("/upload-batch", h.Upload.UploadBatch)
		api.GET("/images/presign", h.Upload.Presign)
		api.DELETE("/images", h.Upload.Delete)

		images := api.Group("/reference-images")
		{
			images.POST("", h.ReferenceImage.Create)
			images.POST("/search", h.ReferenceImage.Search)
			images.POST("/semantic-search", h.ReferenceImage.SemanticSearch)
			images.GET("/:unique_id", h.ReferenceImage.Get)
		}
	}
}
