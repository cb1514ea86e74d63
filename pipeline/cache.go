package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rushteam/imputekit/core"
	"github.com/rushteam/imputekit/pkg/metrics"
)

// CachedPipeline 在 Pipeline 之外加一层预测缓存。
//
// 相同制品版本下，相同描述符的预测是确定的，因此可以复用：
//   - key = 前缀 + 制品标识（Context.Identity）| 描述符
//   - 只缓存成功结果，失败结果每次重新计算
//   - 相同 key 的并发请求通过 singleflight 合并为一次推理，
//     共享推理不会因某个调用方取消而失败
type CachedPipeline struct {
	*Pipeline
	store  core.Store
	ttl    int
	prefix string
	group  singleflight.Group
}

// CacheOption 配置 CachedPipeline
type CacheOption func(*CachedPipeline)

// WithCacheTTL 设置缓存过期时间（秒），0 表示不过期
func WithCacheTTL(seconds int) CacheOption {
	return func(c *CachedPipeline) {
		c.ttl = seconds
	}
}

// WithCachePrefix 设置 key 前缀
func WithCachePrefix(prefix string) CacheOption {
	return func(c *CachedPipeline) {
		c.prefix = prefix
	}
}

// NewCachedPipeline 创建带缓存的 Pipeline
func NewCachedPipeline(p *Pipeline, store core.Store, opts ...CacheOption) *CachedPipeline {
	c := &CachedPipeline{
		Pipeline: p,
		store:    store,
		prefix:   "imputekit:prediction:",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// cachedResult 是缓存中的序列化形式
type cachedResult struct {
	Prediction *core.PredictionResult `json:"prediction"`
	Flags      []core.Flag            `json:"flags,omitempty"`
}

// RunMap 解析原始 JSON 对象后执行（带缓存的）推理
func (c *CachedPipeline) RunMap(ctx context.Context, payload map[string]any) core.Result {
	desc, err := decodePayload(ctx, payload)
	if err != nil {
		return c.Pipeline.finish(ctx, core.Fail(core.StageReceived, err), time.Now())
	}
	return c.Run(ctx, desc)
}

// Run 先查缓存，未命中时执行推理并回写成功结果
func (c *CachedPipeline) Run(ctx context.Context, desc core.ProcessDescriptor) core.Result {
	pc := c.Context()
	if pc == nil {
		return c.Pipeline.Run(ctx, desc)
	}
	key := c.key(pc, desc)
	logger := zerolog.Ctx(ctx)

	if res, ok := c.lookup(ctx, key); ok {
		metrics.Count(metrics.CacheHit, 1, []string{metrics.Tag("store", c.store.Name())})
		return res
	}
	metrics.Count(metrics.CacheMiss, 1, []string{metrics.Tag("store", c.store.Name())})

	// 已取消的调用方不加入共享推理
	if ctx.Err() != nil {
		return c.Pipeline.run(ctx, pc, desc)
	}
	v, _, shared := c.group.Do(key, func() (interface{}, error) {
		// 共享推理忽略发起者的取消，只保留日志等上下文值
		sharedCtx := context.WithoutCancel(ctx)
		res := c.Pipeline.run(sharedCtx, pc, desc)
		if res.OK() {
			c.save(sharedCtx, key, res)
		}
		return res, nil
	})
	if shared {
		logger.Debug().Str("key", key).Msg("prediction shared with concurrent request")
	}
	return v.(core.Result)
}

func (c *CachedPipeline) key(pc *Context, desc core.ProcessDescriptor) string {
	return c.prefix + pc.Identity + "|" + desc.Key()
}

func (c *CachedPipeline) lookup(ctx context.Context, key string) (core.Result, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !core.IsStoreNotFound(err) {
			zerolog.Ctx(ctx).Warn().Err(err).Str("store", c.store.Name()).Msg("prediction cache read failed")
		}
		return core.Result{}, false
	}
	var cached cachedResult
	if err := json.Unmarshal(data, &cached); err != nil || cached.Prediction == nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("discarding corrupt cache entry")
		return core.Result{}, false
	}
	return core.Succeed(cached.Prediction, cached.Flags), true
}

func (c *CachedPipeline) save(ctx context.Context, key string, res core.Result) {
	data, err := json.Marshal(cachedResult{Prediction: res.Prediction, Flags: res.Flags})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("encode prediction for cache failed")
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("store", c.store.Name()).Msg("prediction cache write failed")
	}
}

var _ Runner = (*CachedPipeline)(nil)
