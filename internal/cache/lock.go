package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"CareFollow/storage/redis"
)

// 分布式锁：SETNX 写入随机 token，释放时比对 token，避免删掉别人续上的锁
const lockPrefix = "lock"

var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 实现 schedule.Locker
type RedisLocker struct {
	client goredis.UniversalClient
	prefix string
	owner  string
}

func NewRedisLocker(client goredis.UniversalClient, prefix string) *RedisLocker {
	return &RedisLocker{
		client: client,
		prefix: prefix,
		owner:  uuid.NewString(),
	}
}

func (l *RedisLocker) key(name string) string {
	return redis.Key(l.prefix, lockPrefix, name)
}

func (l *RedisLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.key(name), l.owner, ttl).Result()
}

func (l *RedisLocker) Unlock(ctx context.Context, name string) error {
	return unlockScript.Run(ctx, l.client, []string{l.key(name)}, l.owner).Err()
}
