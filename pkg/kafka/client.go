// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/pkg/log"
	"viba-annotation-go/pkg/tasks"
)

// maxAttempts 是单条任务失败后放弃前的最大处理次数
const maxAttempts = 3

// TaskProcessor 处理一条索引任务，供消费者调用。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.ReferenceImageIndexTask) error
}

var producer *kafka.Writer

func brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:                   kafka.TCP(brokers(cfg)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProducerReady 返回生产者是否已初始化
func ProducerReady() bool {
	return producer != nil
}

// ProduceIndexTask 发送一个参考图索引任务，以 unique_id 作为消息 key。
func ProduceIndexTask(ctx context.Context, task tasks.ReferenceImageIndexTask) error {
	if producer == nil {
		return errors.New("kafka producer is not initialized")
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.UniqueID),
		Value: taskBytes,
	})
}

// CloseProducer 关闭生产者并刷新缓冲的消息
func CloseProducer() {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		log.Errorf("关闭 Kafka 生产者失败: %v", err)
	}
}

// AttemptCounter 记录任务失败次数。未配置 Redis 时退化为进程内计数。
type AttemptCounter struct {
	rdb *redis.Client
	ttl time.Duration

	mu    sync.Mutex
	local map[string]int64
}

func NewAttemptCounter(rdb *redis.Client) *AttemptCounter {
	return &AttemptCounter{rdb: rdb, ttl: 24 * time.Hour, local: make(map[string]int64)}
}

func attemptsKey(uniqueID string) string {
	return fmt.Sprintf("kafka:attempts:%s", uniqueID)
}

// Incr 增加失败计数并返回当前次数
func (c *AttemptCounter) Incr(ctx context.Context, uniqueID string) (int64, error) {
	if c.rdb == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.local[uniqueID]++
		return c.local[uniqueID], nil
	}
	key := attemptsKey(uniqueID)
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = c.rdb.Expire(ctx, key, c.ttl).Err()
	return n, nil
}

// Reset 清理失败计数
func (c *AttemptCounter) Reset(ctx context.Context, uniqueID string) {
	if c.rdb == nil {
		c.mu.Lock()
		delete(c.local, uniqueID)
		c.mu.Unlock()
		return
	}
	_ = c.rdb.Del(ctx, attemptsKey(uniqueID)).Err()
}

// newRetryBackOff 返回单条任务进程内重试的退避策略
var newRetryBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return b
}

// processWithRetry 在进程内重试同一条任务，总共最多 maxAttempts 次。
// 失败次数同时写入 AttemptCounter，消费者重启后重投的消息会继续累计。
func processWithRetry(ctx context.Context, processor TaskProcessor, task tasks.ReferenceImageIndexTask, counter *AttemptCounter) error {
	op := func() error {
		err := processor.Process(ctx, task)
		if err == nil {
			counter.Reset(ctx, task.UniqueID)
			return nil
		}
		attempts, counterErr := counter.Incr(ctx, task.UniqueID)
		if counterErr != nil {
			log.Warnf("记录索引任务失败次数出错: UniqueID=%s, Error: %v", task.UniqueID, counterErr)
		}
		log.Errorf("处理索引任务失败: UniqueID=%s, 第 %d 次, Error: %v", task.UniqueID, attempts, err)
		if attempts >= maxAttempts {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(newRetryBackOff(), maxAttempts-1), ctx)
	return backoff.Retry(op, b)
}

// StartConsumer 启动消费者，直到 ctx 取消或读取失败。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, counter *AttemptCounter) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}

		var task tasks.ReferenceImageIndexTask
		if err := json.Unmarshal(m.Value, &task); err != nil || task.UniqueID == "" {
			log.Errorf("无法解析 Kafka 消息, 直接提交: offset %d, value: %s", m.Offset, string(m.Value))
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		if err := processWithRetry(ctx, processor, task, counter); err != nil {
			if ctx.Err() != nil {
				// 停机中断，不提交 offset，重启后重投
				break
			}
			log.Errorf("索引任务多次失败(>=%d)，提交 offset 终止重试: UniqueID=%s, Error: %v", maxAttempts, task.UniqueID, err)
			counter.Reset(ctx, task.UniqueID)
		} else {
			log.Infof("索引任务处理成功: UniqueID=%s", task.UniqueID)
		}

		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}
