// Package storage 提供了与 S3 兼容对象存储（AWS S3 / MinIO）交互的功能。
package storage

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/pkg/log"
)

// MinioClient 是一个全局的对象存储客户端实例，未启用存储时为 nil。
var MinioClient *minio.Client

// InitMinIO 初始化对象存储客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.StorageConfig) {
	if !cfg.Enabled {
		log.Warnf("对象存储未启用, 图片上传接口将返回错误")
		return
	}

	client, err := NewClient(cfg)
	if err != nil {
		log.Fatal("初始化对象存储客户端失败", err)
	}
	MinioClient = client
	log.Info("对象存储客户端初始化成功")

	if err := EnsureBucket(context.Background(), client, cfg.BucketName, cfg.Region); err != nil {
		log.Fatal("检查对象存储桶失败", err)
	}
}

// NewClient 根据配置创建 minio 客户端。Endpoint 为空时连接 AWS S3。
func NewClient(cfg config.StorageConfig) (*minio.Client, error) {
	endpoint := cfg.Endpoint
	secure := cfg.UseSSL
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
		if cfg.Region != "" {
			endpoint = fmt.Sprintf("s3.%s.amazonaws.com", cfg.Region)
		}
		secure = true
	}
	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
}

// EnsureBucket 检查存储桶是否存在，不存在则创建。
func EnsureBucket(ctx context.Context, client *minio.Client, bucketName, region string) error {
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return err
	}
	if exists {
		log.Infof("存储桶 '%s' 已存在", bucketName)
		return nil
	}
	log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
	if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: region}); err != nil {
		return err
	}
	log.Infof("存储桶 '%s' 创建成功", bucketName)
	return nil
}
