package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"CareFollow/pkg/logger"
	"CareFollow/storage/database"
	"CareFollow/storage/mq"
	"CareFollow/storage/redis"
)

const closeTimeout = 15 * time.Second

type component struct {
	name  string
	close func(ctx context.Context) error
}

// closeOrder 先停 MQ 不再接收出院/回复事件，再断开锁与去重用的 Redis，
// 数据库最后关闭，留给收尾中的状态写入
var closeOrder = []component{
	{name: "rabbitmq", close: mq.Close},
	{name: "redis", close: redis.Close},
	{name: "database", close: database.Close},
}

// Close 关闭已初始化的存储连接，未初始化的组件直接跳过；单个组件失败不影响其余组件
func Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	log := logger.Named("storage")
	failed := 0
	for _, c := range closeOrder {
		if err := c.close(ctx); err != nil {
			failed++
			log.Error("Failed to close storage component", zap.String("dependency", c.name), zap.Error(err))
			continue
		}
		log.Debug("Storage component closed", zap.String("dependency", c.name))
	}

	log.Info("Storage connections closed", zap.Int("failed", failed))
}
