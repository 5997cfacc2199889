// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/internal/handler"
	"viba-annotation-go/internal/middleware"
	"viba-annotation-go/internal/pipeline"
	"viba-annotation-go/internal/repository"
	"viba-annotation-go/internal/scheduler"
	"viba-annotation-go/internal/service"
	"viba-annotation-go/pkg/cache"
	"viba-annotation-go/pkg/database"
	"viba-annotation-go/pkg/embedding"
	"viba-annotation-go/pkg/es"
	"viba-annotation-go/pkg/imageproc"
	"viba-annotation-go/pkg/kafka"
	"viba-annotation-go/pkg/log"
	"viba-annotation-go/pkg/storage"
)

const version = "1.0.0"

// uploadDedupTTL 为上传去重记录在 Redis 中的保留时间
const uploadDedupTTL = 30 * 24 * time.Hour

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 和对象存储
	database.Init(cfg.Database)
	database.InitRedis(cfg.Database.Redis)
	storage.InitMinIO(cfg.Storage)
	uploader := storage.NewUploader(storage.MinioClient, cfg.Storage)
	if cfg.Storage.BootstrapFolders && uploader.Configured() {
		if err := uploader.EnsureFolders(context.Background()); err != nil {
			log.Warnf("存储目录初始化未全部成功: %v", err)
		}
	}

	// 4. 初始化 Embedding 与 Elasticsearch
	embedder := embedding.NewGenerator(embedding.NewClient(cfg.Embedding), cfg.Embedding.Enabled && cfg.Embedding.BaseURL != "")
	if cfg.Elasticsearch.Enabled {
		if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.ContentDimensions); err != nil {
			log.Errorf("es 初始化失败, 语义检索与索引将不可用: %v", err)
			es.ESClient = nil
		}
	}

	// 5. 初始化 Repository
	tagRepo := repository.NewTagRepository(database.DB, cfg.Tags.MaxAncestorDepth)
	themeRepo := repository.NewThemeRepository(database.DB)
	imageRepo := repository.NewReferenceImageRepository(database.DB)
	uploadRepo := repository.NewUploadRepository(database.RDB, uploadDedupTTL)

	// 6. 初始化索引管道与任务发布方式
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()

	var publisher service.IndexPublisher
	if es.ESClient != nil {
		processor := pipeline.NewProcessor(imageRepo, pipeline.ESIndexer{Client: es.ESClient, IndexName: cfg.Elasticsearch.IndexName}, cfg.Embedding.Model)
		if cfg.Kafka.Enabled {
			kafka.InitProducer(cfg.Kafka)
			publisher = service.IndexPublisherFunc(kafka.ProduceIndexTask)
			// 启动后台 Kafka 消费者
			go kafka.StartConsumer(consumerCtx, cfg.Kafka, processor, kafka.NewAttemptCounter(database.RDB))
		} else {
			publisher = service.IndexPublisherFunc(processor.Process)
			log.Info("Kafka 未启用, 参考图将在写入后同步索引")
		}
	} else {
		log.Warnf("Elasticsearch 不可用, 参考图写入后不会建立索引")
	}

	// 7. 初始化 Service (依赖注入)
	ttlCache := cache.New(cfg.Cache.MaxSize)
	tagService := service.NewTagService(tagRepo, cfg.Tags, ttlCache, time.Duration(cfg.Cache.TagsTTLSecond)*time.Second)
	themeService := service.NewThemeService(themeRepo, ttlCache, time.Duration(cfg.Cache.ThemesTTLSecond)*time.Second)
	annotationService := service.NewAnnotationService(tagRepo, themeRepo, imageRepo, cfg.Tags, embedder, cfg.Embedding, publisher)
	searchService := service.NewSearchService(imageRepo, embedder, es.ESClient, cfg.Elasticsearch, cfg.Embedding.ContentDimensions)
	uploadService := service.NewUploadService(uploadRepo, uploader, imageproc.NewValidator(cfg.Image))
	healthService := service.NewHealthService(database.DB, database.RDB, uploader.Configured, version)

	// 8. 启动缓存维护定时任务
	maintenance, err := scheduler.NewCacheMaintenanceTask(cfg.Cache, ttlCache, tagService, themeService)
	if err != nil {
		log.Fatal("缓存维护任务初始化失败", err)
	}
	maintenance.Start()

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(
		middleware.RequestLogger(),
		gin.Recovery(),
		otelgin.Middleware("viba-annotation"),
		middleware.BodyLimit(int64(cfg.Server.MaxUploadMB)<<20),
	)

	// 10. 注册路由
	handler.RegisterRoutes(r, handler.Handlers{
		Health:         handler.NewHealthHandler(healthService),
		Tag:            handler.NewTagHandler(tagService),
		Theme:          handler.NewThemeHandler(themeService),
		Upload:         handler.NewUploadHandler(uploadService),
		ReferenceImage: handler.NewReferenceImageHandler(annotationService, searchService),
	})

	// 跨域处理放在 gin 外层，预检请求不会进入路由
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(r)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: corsHandler,
	}

	go func() {
		log.Infof("服务启动于 %s, 版本: %s", srv.Addr, version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	select {
	case <-maintenance.Stop().Done():
	case <-ctx.Done():
		log.Warnf("缓存维护任务未在超时前结束")
	}
	stopConsumer()
	kafka.CloseProducer()

	log.Info("服务已优雅关闭")
}
