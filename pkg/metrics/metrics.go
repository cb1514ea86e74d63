// Package metrics 通过 StatsD 上报推理链路指标。
// 未初始化或关闭时使用 NoOpClient，调用方无需判空。
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog/log"
)

// 指标名称
const (
	RequestCount    = "request.count"
	RequestLatency  = "request.latency"
	StageLatency    = "stage.latency"
	FeatureFilled   = "reconcile.filled"
	FeatureDropped  = "reconcile.dropped"
	FlagCount       = "rule.flagged"
	CacheHit        = "cache.hit"
	CacheMiss       = "cache.miss"
	ArtifactLoadDur = "artifact.load.latency"
	SchemaSize      = "schema.size"
)

// Config StatsD 配置
type Config struct {
	Enabled      bool    `mapstructure:"enabled"`
	Address      string  `mapstructure:"address"`
	Namespace    string  `mapstructure:"namespace"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
	Env          string  `mapstructure:"env"`
}

var (
	mu           sync.RWMutex
	client       statsd.ClientInterface = &statsd.NoOpClient{}
	samplingRate                        = 1.0
)

// Init 初始化 StatsD 客户端；Enabled 为 false 时保持 NoOp
func Init(cfg Config) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Address == "" {
		return fmt.Errorf("metrics address is required")
	}
	opts := []statsd.Option{
		statsd.WithTags(globalTags(cfg)),
	}
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	c, err := statsd.New(cfg.Address, opts...)
	if err != nil {
		return fmt.Errorf("init statsd client: %w", err)
	}

	mu.Lock()
	client = c
	if cfg.SamplingRate > 0 && cfg.SamplingRate <= 1 {
		samplingRate = cfg.SamplingRate
	}
	mu.Unlock()

	log.Info().Str("address", cfg.Address).Float64("sampling_rate", samplingRate).Msg("metrics client initialized")
	return nil
}

func globalTags(cfg Config) []string {
	tags := []string{"service:imputekit"}
	if cfg.Env != "" {
		tags = append(tags, "env:"+cfg.Env)
	}
	return tags
}

func current() (statsd.ClientInterface, float64) {
	mu.RLock()
	defer mu.RUnlock()
	return client, samplingRate
}

// Tag 生成 key:value 形式的标签
func Tag(key, value string) string {
	return key + ":" + value
}

func Timing(name string, value time.Duration, tags []string) {
	c, rate := current()
	if err := c.Timing(name, value, tags, rate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd timing failed")
	}
}

func Count(name string, value int64, tags []string) {
	c, rate := current()
	if err := c.Count(name, value, tags, rate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd count failed")
	}
}

func Gauge(name string, value float64, tags []string) {
	c, rate := current()
	if err := c.Gauge(name, value, tags, rate); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("statsd gauge failed")
	}
}

// Close 刷新并关闭客户端
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	err := client.Close()
	client = &statsd.NoOpClient{}
	return err
}
