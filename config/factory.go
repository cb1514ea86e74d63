package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/rushteam/imputekit/artifact"
	"github.com/rushteam/imputekit/core"
	"github.com/rushteam/imputekit/feature"
	"github.com/rushteam/imputekit/pipeline"
	"github.com/rushteam/imputekit/store"
)

// Runtime 是按配置组装好的运行时组件
type Runtime struct {
	Runner  pipeline.Runner
	Monitor *feature.MemoryMonitor
	Store   core.Store // 未启用缓存时为 nil
}

// Close 释放缓存连接与远程模型服务连接
func (r *Runtime) Close() error {
	var errs []error
	if r.Store != nil {
		errs = append(errs, r.Store.Close())
	}
	if pc := r.Runner.Context(); pc != nil {
		if closer, ok := pc.Regressor.(interface{ Close(context.Context) error }); ok {
			errs = append(errs, closer.Close(context.Background()))
		}
	}
	return errors.Join(errs...)
}

// NewResolver 根据配置创建制品 Resolver；配置了 S3 endpoint 时启用 s3://
func NewResolver(c *Config) (*artifact.Resolver, error) {
	opts := []artifact.ResolverOption{
		artifact.WithHTTPClient(&http.Client{Timeout: c.Artifacts.HTTPTimeout}),
	}
	if c.Artifacts.S3.Endpoint != "" {
		client, err := artifact.NewMinIOClient(c.Artifacts.S3)
		if err != nil {
			return nil, fmt.Errorf("s3 artifact client: %w", err)
		}
		opts = append(opts, artifact.WithS3Client(client))
	}
	return artifact.NewResolver(opts...), nil
}

// NewStore 根据缓存配置创建 Store
func NewStore(ctx context.Context, c *Config) (core.Store, error) {
	switch c.Cache.Backend {
	case "redis":
		return store.NewRedisStoreWithOptions(ctx, store.RedisOptions{
			Addr:      c.Cache.Redis.Addr,
			Password:  c.Cache.Redis.Password,
			DB:        c.Cache.Redis.DB,
			KeyPrefix: c.Cache.Redis.KeyPrefix,
		})
	case "memory", "":
		return store.NewMemoryStore(c.Cache.MaxEntries), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}
}

// Build 加载制品并组装 Pipeline（以及可选的缓存）。
// 任一制品加载失败都返回错误，调用方不应继续启动服务。
func Build(ctx context.Context, c *Config) (*Runtime, error) {
	resolver, err := NewResolver(c)
	if err != nil {
		return nil, err
	}

	monitor := feature.NewMemoryMonitor()
	p, err := c.PipelineConfig().Build(ctx, resolver, pipeline.WithMonitor(monitor))
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Runner: p, Monitor: monitor}
	if c.Cache.Enabled {
		st, err := NewStore(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("prediction cache: %w", err)
		}
		rt.Store = st
		rt.Runner = pipeline.NewCachedPipeline(p, st, pipeline.WithCacheTTL(c.Cache.TTL))
		log.Info().Str("backend", st.Name()).Int("ttl", c.Cache.TTL).Msg("prediction cache enabled")
	}
	return rt, nil
}
