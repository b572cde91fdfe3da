package lock

import (
	"fmt"
	"time"

	"stockmesh/config"

	"github.com/redis/go-redis/v9"
)

// NewDistributedLock 根据配置创建分布式锁
//
// 未启用时返回 NopLock，单实例模式零开销。
func NewDistributedLock(cfg *config.Config) (DistributedLock, error) {
	lc := cfg.DistributedLock
	if !lc.Enabled {
		return NewNopLock(), nil
	}

	switch lc.Type {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     lc.Redis.Addr,
			Password: lc.Redis.Password,
			DB:       lc.Redis.DB,
			PoolSize: lc.Redis.PoolSize,
		})
		return NewRedisLock(client, lc.Prefix), nil
	default:
		return nil, fmt.Errorf("不支持的锁类型: %s", lc.Type)
	}
}

// DefaultTTL 按配置返回锁的默认过期时间
func DefaultTTL(cfg *config.Config) time.Duration {
	if cfg.DistributedLock.TTLSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(cfg.DistributedLock.TTLSeconds) * time.Second
}
