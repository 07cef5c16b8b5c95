package cache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"CareFollow/storage/redis"
)

const (
	messagePrefix = "msg"
	processedTTL  = 24 * time.Hour
)

// MessageDedup 按 message_id 去重 MQ 投递
type MessageDedup struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewMessageDedup(client goredis.UniversalClient, prefix string, ttl time.Duration) *MessageDedup {
	if ttl <= 0 {
		ttl = processedTTL
	}
	return &MessageDedup{client: client, prefix: prefix, ttl: ttl}
}

func (d *MessageDedup) key(messageID string) string {
	return redis.Key(d.prefix, messagePrefix, messageID)
}

// TryMarkProcessing 返回 true 表示首次处理；false 表示重复消息或另一个消费者正在处理
func (d *MessageDedup) TryMarkProcessing(ctx context.Context, messageID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(messageID), "processing", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark message as processing: %w", err)
	}
	return ok, nil
}

// Unmark 处理失败时删除标记，允许重投后再次处理
func (d *MessageDedup) Unmark(ctx context.Context, messageID string) error {
	return d.client.Del(ctx, d.key(messageID)).Err()
}

func (d *MessageDedup) MarkProcessed(ctx context.Context, messageID string) error {
	return d.client.Set(ctx, d.key(messageID), "completed", d.ttl).Err()
}
