// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Image         ImageConfig         `mapstructure:"image"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Tags          TagSystemConfig     `mapstructure:"tags"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port        string   `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	// MaxUploadMB 限制 multipart 请求体大小
	MaxUploadMB int `mapstructure:"max_upload_mb"`
}

// DatabaseConfig 存储关系库与 Redis 的配置。
type DatabaseConfig struct {
	// Driver 可选 postgres / mysql / sqlite
	Driver       string      `mapstructure:"driver"`
	DSN          string      `mapstructure:"dsn"`
	Replicas     []string    `mapstructure:"replicas"`
	AutoMigrate  bool        `mapstructure:"auto_migrate"`
	MaxIdleConns int         `mapstructure:"max_idle_conns"`
	MaxOpenConns int         `mapstructure:"max_open_conns"`
	Redis        RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时不启用 Redis。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// StorageConfig 存储 S3 兼容对象存储的配置。
type StorageConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	// CDNDomain 不为空时，对外 URL 使用 CDN 域名
	CDNDomain string `mapstructure:"cdn_domain"`
	// Prefix 为所有对象 key 增加的前缀，例如 "staging/"
	Prefix           string            `mapstructure:"prefix"`
	UseDateFolders   bool              `mapstructure:"use_date_folders"`
	DateFormat       string            `mapstructure:"date_format"`
	Folders          map[string]string `mapstructure:"folders"`
	BootstrapFolders bool              `mapstructure:"bootstrap_folders"`
	PresignMinutes   int               `mapstructure:"presign_minutes"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	APIKey            string `mapstructure:"api_key"`
	BaseURL           string `mapstructure:"base_url"`
	Model             string `mapstructure:"model"`
	ContentDimensions int    `mapstructure:"content_dimensions"`
	FieldDimensions   int    `mapstructure:"field_dimensions"`
	Concurrency       int    `mapstructure:"concurrency"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
}

// ImageConfig 定义参考图的校验与压缩参数。
type ImageConfig struct {
	MaxFileSizeMB       int  `mapstructure:"max_file_size_mb"`
	MinWidth            int  `mapstructure:"min_width"`
	MinHeight           int  `mapstructure:"min_height"`
	MaxWidth            int  `mapstructure:"max_width"`
	MaxHeight           int  `mapstructure:"max_height"`
	RequirePortrait     bool `mapstructure:"require_portrait"`
	CompressThresholdMB int  `mapstructure:"compress_threshold_mb"`
	CompressQuality     int  `mapstructure:"compress_quality"`
	// ResizeOversized 为 true 时超出最大分辨率的图片按比例缩小后再上传，而不是直接拒绝
	ResizeOversized     bool `mapstructure:"resize_oversized"`
}

// CacheConfig 进程内缓存配置
type CacheConfig struct {
	MaxSize         int    `mapstructure:"max_size"`
	ThemesTTLSecond int    `mapstructure:"themes_ttl_seconds"`
	TagsTTLSecond   int    `mapstructure:"tags_ttl_seconds"`
	PurgeSpec       string `mapstructure:"purge_spec"`
	WarmSpec        string `mapstructure:"warm_spec"`
}

// Init 加载 .env（如果存在）与 YAML 配置文件，解析到 Conf 并执行校验。
// 环境变量优先于配置文件，例如 DATABASE_DSN 覆盖 database.dsn。
func Init(configPath string) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		panic(fmt.Errorf("配置校验失败: %w", err))
	}
	Conf = c
}

// ApplyDefaults 为未配置的项填充默认值。
func (c *Config) ApplyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "5001"
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = 200
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 50
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "reference-image-index"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "viba-annotation-indexer"
	}
	if c.Elasticsearch.IndexName == "" {
		c.Elasticsearch.IndexName = "reference_images"
	}
	if c.Storage.DateFormat == "" {
		c.Storage.DateFormat = "year/month/day"
	}
	if c.Storage.PresignMinutes <= 0 {
		c.Storage.PresignMinutes = 60
	}
	if len(c.Storage.Folders) == 0 {
		c.Storage.Folders = DefaultFolders()
	}
	if c.Embedding.ContentDimensions <= 0 {
		c.Embedding.ContentDimensions = 768
	}
	if c.Embedding.FieldDimensions <= 0 {
		c.Embedding.FieldDimensions = 384
	}
	if c.Embedding.Concurrency <= 0 {
		c.Embedding.Concurrency = 4
	}
	if c.Embedding.TimeoutSeconds <= 0 {
		c.Embedding.TimeoutSeconds = 30
	}
	c.Image.applyDefaults()
	if c.Cache.MaxSize <= 0 {
		c.Cache.MaxSize = 512
	}
	if c.Cache.ThemesTTLSecond <= 0 {
		c.Cache.ThemesTTLSecond = 600
	}
	if c.Cache.TagsTTLSecond <= 0 {
		c.Cache.TagsTTLSecond = 600
	}
	if c.Cache.PurgeSpec == "" {
		c.Cache.PurgeSpec = "@every 1m"
	}
	c.Tags.applyDefaults()
}

func (i *ImageConfig) applyDefaults() {
	// 全部为零值视为未配置，按竖版参考图的默认要求填充
	if *i == (ImageConfig{}) {
		*i = ImageConfig{
			MaxFileSizeMB:       50,
			MinWidth:            1080,
			MinHeight:           1920,
			MaxWidth:            2160,
			MaxHeight:           3840,
			RequirePortrait:     true,
			CompressThresholdMB: 10,
			CompressQuality:     85,
		}
		return
	}
	if i.MaxFileSizeMB <= 0 {
		i.MaxFileSizeMB = 50
	}
	if i.CompressThresholdMB <= 0 {
		i.CompressThresholdMB = 10
	}
	if i.CompressQuality <= 0 || i.CompressQuality > 100 {
		i.CompressQuality = 85
	}
}

// DefaultFolders 返回各图片类型对应的存储目录。
func DefaultFolders() map[string]string {
	return map[string]string{
		"reference_image":    "reference_images",
		"prompt_pose":        "prompt_references/pose",
		"prompt_outfit":      "prompt_references/outfit",
		"prompt_scene":       "prompt_references/scene",
		"prompt_composition": "prompt_references/composition",
		"prompt_style":       "prompt_references/style",
	}
}

// Validate 校验整体配置，任何错误都应阻止服务启动。
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Image.MinWidth > c.Image.MaxWidth || c.Image.MinHeight > c.Image.MaxHeight {
		return fmt.Errorf("image bounds are inconsistent: min %dx%d, max %dx%d",
			c.Image.MinWidth, c.Image.MinHeight, c.Image.MaxWidth, c.Image.MaxHeight)
	}
	return c.Tags.Validate()
}
