package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"

	"viba-annotation-go/internal/repository"
	"viba-annotation-go/pkg/errs"
	"viba-annotation-go/pkg/imageproc"
	"viba-annotation-go/pkg/log"
	"viba-annotation-go/pkg/storage"
)

// ObjectUploader 是上传服务依赖的对象存储能力，由 storage.Uploader 实现。
type ObjectUploader interface {
	Configured() bool
	SupportsImageType(imageType string) bool
	Upload(ctx context.Context, data []byte, imageType, contentType string) (string, error)
	KeyFromURL(raw string) (string, bool)
	PresignURL(ctx context.Context, key string) (string, error)
	DeleteByURL(ctx context.Context, raw string) error
}

// ImageInfo 是上传图片的尺寸信息
type ImageInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// UploadResult 是单张图片上传结果
type UploadResult struct {
	URL       string    `json:"url"`
	Cached    bool      `json:"cached"`
	ImageInfo ImageInfo `json:"image_info"`
}

// UploadFile 是批量上传中的一个文件
type UploadFile struct {
	Filename  string
	ImageType string
	Data      []byte
}

// BatchUploadItem 是批量上传中单个文件的结果
type BatchUploadItem struct {
	Filename string `json:"filename"`
	Success  bool   `json:"success"`
	URL      string `json:"url,omitempty"`
	Type     string `json:"type,omitempty"`
	Error    string `json:"error,omitempty"`
}

// UploadService 接口定义了图片上传相关的业务操作。
type UploadService interface {
	UploadImage(ctx context.Context, data []byte, imageType string) (*UploadResult, error)
	UploadBatch(ctx context.Context, files []UploadFile) []BatchUploadItem
	Presign(ctx context.Context, urlOrKey string) (string, error)
	Delete(ctx context.Context, url string) error
}

type uploadService struct {
	uploadRepo repository.UploadRepository
	uploader   ObjectUploader
	validator  *imageproc.Validator
}

// NewUploadService 创建一个新的 UploadService 实例。
func NewUploadService(uploadRepo repository.UploadRepository, uploader ObjectUploader, validator *imageproc.Validator) UploadService {
	return &uploadService{
		uploadRepo: uploadRepo,
		uploader:   uploader,
		validator:  validator,
	}
}

// UploadImage 校验、按需压缩并上传一张图片。相同内容重复上传时直接返回已有 URL。
func (s *uploadService) UploadImage(ctx context.Context, data []byte, imageType string) (*UploadResult, error) {
	if imageType == "" {
		imageType = "reference_image"
	}
	if !s.uploader.SupportsImageType(imageType) {
		return nil, errs.Validation("Unsupported image type: %s", imageType)
	}
	if !s.uploader.Configured() {
		return nil, errs.Upstream("upload image", storage.ErrNotConfigured)
	}

	res := s.validator.Validate(data)
	if !res.Valid && res.Oversized && s.validator.ResizeOversized() {
		before := len(data)
		data = s.validator.ResizeIfNeeded(data)
		res = s.validator.Validate(data)
		log.Infof("[UploadService] 图片分辨率超出上限, 已缩放: %d -> %d 字节, %dx%d", before, len(data), res.Width, res.Height)
	}
	if !res.Valid {
		log.Infof("[UploadService] 图片校验未通过, image_type: %s, reason: %s", imageType, res.Error)
		return nil, errs.Validation("%s", res.Error)
	}
	info := ImageInfo{Width: res.Width, Height: res.Height}

	contentType := res.ContentType()
	if s.validator.NeedsCompression(data) {
		before := len(data)
		data = s.validator.Compress(data)
		contentType = "image/jpeg"
		log.Infof("[UploadService] 图片已压缩, %d -> %d 字节", before, len(data))
	}

	sum := md5.Sum(data)
	fileHash := hex.EncodeToString(sum[:])
	if url, ok, err := s.uploadRepo.FindURL(ctx, imageType, fileHash); err != nil {
		log.Warnf("[UploadService] 查询上传记录失败, 继续上传: %v", err)
	} else if ok {
		log.Infof("[UploadService] 命中重复上传, md5: %s", fileHash)
		return &UploadResult{URL: url, Cached: true, ImageInfo: info}, nil
	}

	url, err := s.uploader.Upload(ctx, data, imageType, contentType)
	if err != nil {
		return nil, errs.Upstream("upload image", err)
	}
	if err := s.uploadRepo.SaveURL(ctx, imageType, fileHash, url); err != nil {
		log.Warnf("[UploadService] 记录上传结果失败: %v", err)
	}
	log.Infof("[UploadService] 图片上传成功, image_type: %s, url: %s", imageType, url)
	return &UploadResult{URL: url, ImageInfo: info}, nil
}

// UploadBatch 逐个上传，单个文件失败不影响其他文件。
func (s *uploadService) UploadBatch(ctx context.Context, files []UploadFile) []BatchUploadItem {
	results := make([]BatchUploadItem, 0, len(files))
	for _, f := range files {
		res, err := s.UploadImage(ctx, f.Data, f.ImageType)
		if err != nil {
			results = append(results, BatchUploadItem{Filename: f.Filename, Error: errs.PublicMessage(err)})
			continue
		}
		results = append(results, BatchUploadItem{Filename: f.Filename, Success: true, URL: res.URL, Type: f.ImageType})
	}
	return results
}

// Presign 为已上传的图片生成临时访问地址，参数可以是访问 URL 或对象 key。
func (s *uploadService) Presign(ctx context.Context, urlOrKey string) (string, error) {
	urlOrKey = strings.TrimSpace(urlOrKey)
	if urlOrKey == "" {
		return "", errs.Validation("Missing required parameter: url")
	}
	key := urlOrKey
	if strings.Contains(urlOrKey, "://") {
		k, ok := s.uploader.KeyFromURL(urlOrKey)
		if !ok {
			return "", errs.Validation("URL does not belong to the configured bucket")
		}
		key = k
	}
	presigned, err := s.uploader.PresignURL(ctx, key)
	if err != nil {
		return "", errs.Upstream("presign url", err)
	}
	return presigned, nil
}

// Delete 删除已上传的对象并清理去重记录，url 必须属于当前存储桶。
func (s *uploadService) Delete(ctx context.Context, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return errs.Validation("Missing required parameter: url")
	}
	if !s.uploader.Configured() {
		return errs.Upstream("delete image", storage.ErrNotConfigured)
	}
	if _, ok := s.uploader.KeyFromURL(url); !ok {
		return errs.Validation("URL does not belong to the configured bucket")
	}
	if err := s.uploader.DeleteByURL(ctx, url); err != nil {
		return errs.Upstream("delete image", err)
	}
	if err := s.uploadRepo.ForgetURL(ctx, url); err != nil {
		log.Warnf("[UploadService] 清理上传记录失败: %v", err)
	}
	log.Infof("[UploadService] 图片已删除, url: %s", url)
	return nil
}
