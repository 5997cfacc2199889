package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/pkg/log"
)

// ErrNotConfigured 表示对象存储未启用。
var ErrNotConfigured = errors.New("object storage is not configured")

// Uploader 负责生成对象 key、上传图片并推导对外访问 URL。
type Uploader struct {
	client *minio.Client
	cfg    config.StorageConfig
	now    func() time.Time
}

// NewUploader 创建 Uploader。client 为 nil 时只能用于 key/URL 推导。
func NewUploader(client *minio.Client, cfg config.StorageConfig) *Uploader {
	if len(cfg.Folders) == 0 {
		cfg.Folders = config.DefaultFolders()
	}
	return &Uploader{client: client, cfg: cfg, now: time.Now}
}

// Configured 返回是否可以执行上传。
func (u *Uploader) Configured() bool {
	return u != nil && u.client != nil
}

// ImageTypes 返回支持的图片类型
func (u *Uploader) ImageTypes() []string {
	types := make([]string, 0, len(u.cfg.Folders))
	for t := range u.cfg.Folders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// SupportsImageType 判断图片类型是否有对应的存储目录
func (u *Uploader) SupportsImageType(imageType string) bool {
	_, ok := u.cfg.Folders[imageType]
	return ok
}

// ObjectKey 生成对象 key：{prefix}{folder}/{date}/{uuid}.{ext}
func (u *Uploader) ObjectKey(imageType, contentType string) (string, error) {
	folder, ok := u.cfg.Folders[imageType]
	if !ok {
		return "", fmt.Errorf("unsupported image type %q", imageType)
	}
	name := strings.ReplaceAll(uuid.NewString(), "-", "") + extensionFor(contentType)

	parts := []string{strings.Trim(folder, "/")}
	if u.cfg.UseDateFolders {
		parts = append(parts, u.datePath())
	}
	parts = append(parts, name)
	return u.cfg.Prefix + strings.Join(parts, "/"), nil
}

func (u *Uploader) datePath() string {
	now := u.now()
	switch u.cfg.DateFormat {
	case "year/month":
		return now.Format("2006/01")
	case "year-month-day":
		return now.Format("2006-01-02")
	case "year-month":
		return now.Format("2006-01")
	default:
		return now.Format("2006/01/02")
	}
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	default:
		return ".jpg"
	}
}

// Upload 上传图片并返回对外访问 URL。
func (u *Uploader) Upload(ctx context.Context, data []byte, imageType, contentType string) (string, error) {
	if !u.Configured() {
		return "", ErrNotConfigured
	}
	key, err := u.ObjectKey(imageType, contentType)
	if err != nil {
		return "", err
	}
	log.Infof("[Uploader] 开始上传对象, Bucket: %s, Key: %s, Size: %d", u.cfg.BucketName, key, len(data))
	_, err = u.client.PutObject(ctx, u.cfg.BucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "max-age=31536000",
	})
	if err != nil {
		log.Errorf("[Uploader] 上传对象失败, Key: %s, Error: %v", key, err)
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return u.PublicURL(key), nil
}

// PublicURL 推导对象的访问 URL。
// 优先使用 CDN 域名；连接 AWS 时使用虚拟主机风格；其他 S3 兼容服务使用路径风格。
func (u *Uploader) PublicURL(key string) string {
	if u.cfg.CDNDomain != "" {
		return fmt.Sprintf("https://%s/%s", strings.TrimSuffix(u.cfg.CDNDomain, "/"), key)
	}
	if u.isAWS() {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.BucketName, u.region(), key)
	}
	scheme := "http"
	if u.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, u.cfg.Endpoint, u.cfg.BucketName, key)
}

// KeyFromURL 从 PublicURL 生成的地址中还原对象 key。
func (u *Uploader) KeyFromURL(raw string) (string, bool) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "", false
	}
	path := strings.TrimPrefix(parsed.Path, "/")
	switch {
	case u.cfg.CDNDomain != "" && parsed.Host == strings.TrimSuffix(u.cfg.CDNDomain, "/"):
		return path, path != ""
	case parsed.Host == fmt.Sprintf("%s.s3.%s.amazonaws.com", u.cfg.BucketName, u.region()),
		parsed.Host == u.cfg.BucketName+".s3.amazonaws.com":
		return path, path != ""
	case !u.isAWS() && parsed.Host == u.cfg.Endpoint && strings.HasPrefix(path, u.cfg.BucketName+"/"):
		key := strings.TrimPrefix(path, u.cfg.BucketName+"/")
		return key, key != ""
	}
	return "", false
}

// PresignURL 为对象生成带签名的临时访问地址。
func (u *Uploader) PresignURL(ctx context.Context, key string) (string, error) {
	if !u.Configured() {
		return "", ErrNotConfigured
	}
	expiry := time.Duration(u.cfg.PresignMinutes) * time.Minute
	presigned, err := u.client.PresignedGetObject(ctx, u.cfg.BucketName, key, expiry, nil)
	if err != nil {
		log.Errorf("[Uploader] 生成预签名 URL 失败, Key: %s, Error: %v", key, err)
		return "", err
	}
	return presigned.String(), nil
}

// DeleteByURL 根据访问 URL 删除对象
func (u *Uploader) DeleteByURL(ctx context.Context, raw string) error {
	if !u.Configured() {
		return ErrNotConfigured
	}
	key, ok := u.KeyFromURL(raw)
	if !ok {
		return fmt.Errorf("url does not belong to bucket %s: %s", u.cfg.BucketName, raw)
	}
	return u.client.RemoveObject(ctx, u.cfg.BucketName, key, minio.RemoveObjectOptions{})
}

// FolderKeys 返回需要预先创建的目录占位对象 key。
func (u *Uploader) FolderKeys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, t := range u.ImageTypes() {
		folder := strings.Trim(u.cfg.Folders[t], "/")
		segs := strings.Split(folder, "/")
		for i := range segs {
			dir := u.cfg.Prefix + strings.Join(segs[:i+1], "/") + "/"
			if !seen[dir] {
				seen[dir] = true
				keys = append(keys, dir+".keep")
			}
		}
	}
	return keys
}

// EnsureFolders 写入 .keep 占位对象，使控制台中能看到目录结构。
func (u *Uploader) EnsureFolders(ctx context.Context) error {
	if !u.Configured() {
		return ErrNotConfigured
	}
	var errs []error
	for _, key := range u.FolderKeys() {
		_, err := u.client.PutObject(ctx, u.cfg.BucketName, key, bytes.NewReader(nil), 0, minio.PutObjectOptions{ContentType: "text/plain"})
		if err != nil {
			log.Errorf("[Uploader] 创建目录占位失败, Key: %s, Error: %v", key, err)
			errs = append(errs, err)
			continue
		}
		log.Infof("[Uploader] 目录已就绪: %s", key)
	}
	return errors.Join(errs...)
}

func (u *Uploader) isAWS() bool {
	return u.cfg.Endpoint == "" || strings.HasSuffix(u.cfg.Endpoint, "amazonaws.com")
}

func (u *Uploader) region() string {
	if u.cfg.Region == "" {
		return "us-east-1"
	}
	return u.cfg.Region
}
