package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rushteam/imputekit/core"
)

// RedisStore 是 Redis 实现的 Store。
// 多实例部署时用于共享预测缓存，支持持久化、集群、哨兵等。
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisOptions Redis 连接配置
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string // 所有 key 的前缀，如 "imputekit:"
}

// NewRedisStore 连接 Redis 并 Ping 确认可用
func NewRedisStore(addr string, db int) (*RedisStore, error) {
	return NewRedisStoreWithOptions(context.Background(), RedisOptions{Addr: addr, DB: db})
}

// NewRedisStoreWithOptions 按配置连接 Redis
func NewRedisStoreWithOptions(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisStore{client: client, prefix: opts.KeyPrefix}, nil
}

// NewRedisStoreWithClient 使用已有客户端（如集群/哨兵客户端）
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, prefix: keyPrefix}
}

func (r *RedisStore) Name() string { return "redis" }

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrStoreNotFound
	}
	return val, err
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	var expiration time.Duration
	if len(ttl) > 0 && ttl[0] > 0 {
		expiration = time.Duration(ttl[0]) * time.Second
	}
	return r.client.Set(ctx, r.prefix+key, value, expiration).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// 确保 RedisStore 实现了 core.Store 接口
var _ core.Store = (*RedisStore)(nil)
