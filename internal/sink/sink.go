package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"investflow/internal/model"
)

// Publisher 把快照交给外部的展示层
type Publisher interface {
	Publish(ctx context.Context, snap model.Snapshot) error
	Close() error
}

// Compile-time check
var (
	_ Publisher = (*RedisPublisher)(nil)
	_ Publisher = (*KafkaPublisher)(nil)
)

// RedisPublisher 最新快照写入 key，同时发布到 channel
type RedisPublisher struct {
	client  *redis.Client
	key     string
	channel string
}

func NewRedisPublisher(client *redis.Client, key, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, key: key, channel: channel}
}

func (r *RedisPublisher) Publish(ctx context.Context, snap model.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// 只保留最新快照，不设过期
	if err := r.client.Set(ctx, r.key, payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

func (r *RedisPublisher) Close() error {
	return r.client.Close()
}

// KafkaWriter 便于测试替换 *kafka.Writer
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 每个快照一条消息，key 为会话 ID
type KafkaPublisher struct {
	writer KafkaWriter
}

func NewKafkaPublisher(writer KafkaWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// NewKafkaWriter 生产环境使用的 writer。
// Async 模式下 WriteMessages 不返回投递错误，由 Completion 记录
func NewKafkaWriter(brokers []string, topic string, logger *zap.Logger) *kafka.Writer {
	logger = logger.With(zap.String("component", "kafka_publisher"), zap.String("topic", topic))
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{}, // 同一会话落在同一分区，保证顺序
		Async:    true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Warn("Failed to deliver snapshots", zap.Int("messages", len(msgs)), zap.Error(err))
			}
		},
	}
}

func (k *KafkaPublisher) Publish(ctx context.Context, snap model.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(snap.SessionID),
		Value: payload,
	})
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
