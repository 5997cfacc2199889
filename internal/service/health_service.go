package service

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"viba-annotation-go/pkg/log"
)

// ComponentStatus 是单个依赖的状态
type ComponentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthReport 是 /api/health 的返回内容
type HealthReport struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentStatus `json:"components"`
}

// ServiceStatus 是 /api/status 的返回内容
type ServiceStatus struct {
	Service       string `json:"service"`
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// HealthService 汇报服务与依赖的状态
type HealthService interface {
	Status() ServiceStatus
	Health(ctx context.Context) HealthReport
}

type healthService struct {
	db        *gorm.DB
	rdb       *redis.Client
	storageOK func() bool
	version   string
	startedAt time.Time
}

// NewHealthService 创建 HealthService。rdb 为 nil 时 Redis 记为 disabled。
func NewHealthService(db *gorm.DB, rdb *redis.Client, storageOK func() bool, version string) HealthService {
	return &healthService{
		db:        db,
		rdb:       rdb,
		storageOK: storageOK,
		version:   version,
		startedAt: time.Now(),
	}
}

func (s *healthService) Status() ServiceStatus {
	return ServiceStatus{
		Service:       "viba-annotation",
		Status:        "running",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
}

// Health 检查数据库、Redis 与对象存储。数据库不可用时整体为 unhealthy，其余依赖只影响对应组件。
func (s *healthService) Health(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	report := HealthReport{
		Status:     "healthy",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]ComponentStatus),
	}

	report.Components["database"] = s.checkDatabase(ctx)
	if report.Components["database"].Status != "ok" {
		report.Status = "unhealthy"
	}

	switch {
	case s.rdb == nil:
		report.Components["redis"] = ComponentStatus{Status: "disabled"}
	default:
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			log.Warnf("[HealthService] Redis 不可用: %v", err)
			report.Components["redis"] = ComponentStatus{Status: "error", Error: err.Error()}
		} else {
			report.Components["redis"] = ComponentStatus{Status: "ok"}
		}
	}

	if s.storageOK != nil && s.storageOK() {
		report.Components["storage"] = ComponentStatus{Status: "ok"}
	} else {
		report.Components["storage"] = ComponentStatus{Status: "disabled"}
	}
	return report
}

func (s *healthService) checkDatabase(ctx context.Context) ComponentStatus {
	if s.db == nil {
		return ComponentStatus{Status: "error", Error: "not connected"}
	}
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		log.Errorf("[HealthService] 数据库不可用: %v", err)
		return ComponentStatus{Status: "error", Error: err.Error()}
	}
	return ComponentStatus{Status: "ok"}
}
