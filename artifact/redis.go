package artifact

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisLoader 从 Redis 字符串键读取制品。
// 适合由训练流水线直接发布小体积制品（如编码器）的场景。
type RedisLoader struct {
	client redis.UniversalClient
}

// NewRedisLoader 使用已有客户端创建加载器
func NewRedisLoader(client redis.UniversalClient) *RedisLoader {
	return &RedisLoader{client: client}
}

// Load 读取 key 对应的值
func (l *RedisLoader) Load(ctx context.Context, key string) ([]byte, error) {
	source := "redis:" + key
	if l.client == nil {
		return nil, wrapLoadError(source, fmt.Errorf("redis 客户端未设置"))
	}
	data, err := l.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, wrapLoadError(source, fmt.Errorf("key not found"))
	}
	if err != nil {
		return nil, wrapLoadError(source, err)
	}
	return data, nil
}
