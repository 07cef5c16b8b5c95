package storage

import (
	"CareFollow/config"
	"CareFollow/storage/database"
	"CareFollow/storage/mq"
	"CareFollow/storage/redis"
)

// Options 各进程按需初始化，scheduler 不消费 MQ，server 不需要分布式锁
type Options struct {
	Database bool
	Redis    bool
	MQ       bool
}

func Init(cfg *config.Config, opts Options) error {
	if opts.Database {
		if err := database.Init(cfg); err != nil {
			return err
		}
	}

	if opts.Redis {
		if err := redis.Init(cfg); err != nil {
			return err
		}
	}

	if opts.MQ {
		if err := mq.Init(cfg); err != nil {
			return err
		}
	}

	return nil
}
