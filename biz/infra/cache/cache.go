package cache

import (
	"github.com/redis/go-redis/v9"
	"github.com/xh-polaris/mindy-core-api/biz/infra/config"
)

type Cmdable = redis.Cmdable

// Nil 缓存未命中
const Nil = redis.Nil

// NewRedis 创建redis客户端, 未配置地址时返回nil表示不使用缓存
func NewRedis(c *config.Config) Cmdable {
	if c.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
}
