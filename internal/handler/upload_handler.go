package handler

import (
	"io"
	"mime/multipart"

	"github.com/gin-gonic/gin"

	"viba-annotation-go/internal/service"
	"viba-annotation-go/pkg/log"
)

const defaultImageType = "reference_image"

// UploadHandler 负责处理所有与图片上传相关的 API 请求。
type UploadHandler struct {
	uploadService service.UploadService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(uploadService service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// UploadImage 处理单张图片上传，表单字段 file 与 image_type。
func (h *UploadHandler) UploadImage(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondBadRequest(c, "No file provided")
		return
	}
	if fileHeader.Filename == "" {
		respondBadRequest(c, "No file selected")
		return
	}
	imageType := c.DefaultPostForm("image_type", defaultImageType)

	data, err := readFormFile(fileHeader)
	if err != nil {
		respondBadRequest(c, "Failed to read uploaded file")
		return
	}
	log.Infof("[UploadHandler] 收到上传请求, filename: %s, image_type: %s, size: %d", fileHeader.Filename, imageType, len(data))

	result, err := h.uploadService.UploadImage(c.Request.Context(), data, imageType)
	if err != nil {
		respondError(c, "UploadHandler", err)
		return
	}
	respondOK(c, result)
}

// UploadBatch 处理批量上传，表单字段 files 与可选的 image_types（与 files 一一对应）。
func (h *UploadHandler) UploadBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondBadRequest(c, "No files provided")
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		respondBadRequest(c, "No files provided")
		return
	}
	types := form.Value["image_types"]
	if len(types) > 0 && len(types) != len(headers) {
		respondBadRequest(c, "image_types must match the number of files")
		return
	}

	files := make([]service.UploadFile, 0, len(headers))
	var unreadable []service.BatchUploadItem
	for i, fh := range headers {
		imageType := defaultImageType
		if len(types) > 0 && types[i] != "" {
			imageType = types[i]
		}
		data, err := readFormFile(fh)
		if err != nil {
			unreadable = append(unreadable, service.BatchUploadItem{Filename: fh.Filename, Error: "Failed to read uploaded file"})
			continue
		}
		files = append(files, service.UploadFile{Filename: fh.Filename, ImageType: imageType, Data: data})
	}

	results := append(h.uploadService.UploadBatch(c.Request.Context(), files), unreadable...)
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	log.Infof("[UploadHandler] 批量上传完成, 成功: %d, 总数: %d", succeeded, len(results))
	respondOK(c, gin.H{
		"results":   results,
		"total":     len(results),
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
	})
}

// Presign 为图片 URL 或对象 key 生成临时访问地址
func (h *UploadHandler) Presign(c *gin.Context) {
	url, err := h.uploadService.Presign(c.Request.Context(), c.Query("url"))
	if err != nil {
		respondError(c, "UploadHandler", err)
		return
	}
	respondOK(c, gin.H{"url": url})
}

// Delete 删除一张已上传的图片
func (h *UploadHandler) Delete(c *gin.Context) {
	url := c.Query("url")
	if err := h.uploadService.Delete(c.Request.Context(), url); err != nil {
		respondError(c, "UploadHandler", err)
		return
	}
	respondOK(c, gin.H{"url": url, "deleted": true})
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
