package repository

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// UploadRepository 记录已上传图片的内容哈希与访问 URL，用于重复上传去重。
type UploadRepository interface {
	FindURL(ctx context.Context, imageType, md5 string) (string, bool, error)
	SaveURL(ctx context.Context, imageType, md5, url string) error
	// ForgetURL 删除指向 url 的去重记录
	ForgetURL(ctx context.Context, url string) error
}

// uploadRepository 是 UploadRepository 的 Redis 实现，redisClient 为 nil 时所有操作为空操作。
type uploadRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewUploadRepository 创建一个新的 UploadRepository 实例。
func NewUploadRepository(redisClient *redis.Client, ttl time.Duration) UploadRepository {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &uploadRepository{redisClient: redisClient, ttl: ttl}
}

// getRedisUploadKey generates the redis key for an uploaded file hash.
func (r *uploadRepository) getRedisUploadKey(imageType, md5 string) string {
	return "upload:" + imageType + ":" + md5
}

func (r *uploadRepository) getRedisURLKey(url string) string {
	return "upload:url:" + url
}

// FindURL 返回相同内容此前上传得到的 URL
func (r *uploadRepository) FindURL(ctx context.Context, imageType, md5 string) (string, bool, error) {
	if r.redisClient == nil {
		return "", false, nil
	}
	url, err := r.redisClient.Get(ctx, r.getRedisUploadKey(imageType, md5)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return url, true, nil
}

// SaveURL 记录内容哈希对应的 URL
func (r *uploadRepository) SaveURL(ctx context.Context, imageType, md5, url string) error {
	if r.redisClient == nil {
		return nil
	}
	key := r.getRedisUploadKey(imageType, md5)
	pipe := r.redisClient.TxPipeline()
	pipe.Set(ctx, key, url, r.ttl)
	pipe.Set(ctx, r.getRedisURLKey(url), key, r.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// ForgetURL 通过 URL 反查去重 key 并一并删除
func (r *uploadRepository) ForgetURL(ctx context.Context, url string) error {
	if r.redisClient == nil {
		return nil
	}
	urlKey := r.getRedisURLKey(url)
	key, err := r.redisClient.Get(ctx, urlKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.redisClient.Del(ctx, key, urlKey).Err()
}
