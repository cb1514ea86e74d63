package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rushteam/imputekit/artifact"
	"github.com/rushteam/imputekit/core"
	"github.com/rushteam/imputekit/feature"
	"github.com/rushteam/imputekit/pipeline"
	"github.com/rushteam/imputekit/pkg/dsl"
	"github.com/rushteam/imputekit/pkg/logger"
	"github.com/rushteam/imputekit/pkg/metrics"
)

// EnvPrefix 环境变量前缀，如 IMPUTEKIT_SERVER_ADDR、IMPUTEKIT_ARTIFACTS_MODEL
const EnvPrefix = "IMPUTEKIT"

// Config 是服务的完整配置，来源优先级：环境变量 > 配置文件 > 默认值。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Encoder   EncoderConfig   `mapstructure:"encoder"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Metrics   metrics.Config  `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"` // gin 模式：release / debug / test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	MaxBatchSize    int           `mapstructure:"max_batch_size"`
}

// ArtifactsConfig 制品位置
type ArtifactsConfig struct {
	Encoder     string            `mapstructure:"encoder"`
	Model       string            `mapstructure:"model"`
	HTTPTimeout time.Duration     `mapstructure:"http_timeout"`
	S3          artifact.S3Config `mapstructure:"s3"`
}

// EncoderConfig 编码器配置
type EncoderConfig struct {
	// HandleUnknown 覆盖制品的 handle_unknown；为空时使用制品声明的策略
	HandleUnknown string `mapstructure:"handle_unknown"`
}

// RulesConfig 输出合理性规则
type RulesConfig struct {
	DisableDefaults bool       `mapstructure:"disable_defaults"`
	Custom          []dsl.Rule `mapstructure:"custom"`
}

// CacheConfig 预测缓存配置，默认关闭
type CacheConfig struct {
	Enabled    bool        `mapstructure:"enabled"`
	Backend    string      `mapstructure:"backend"` // memory / redis
	TTL        int         `mapstructure:"ttl"`     // 秒
	MaxEntries int         `mapstructure:"max_entries"`
	Redis      RedisConfig `mapstructure:"redis"`
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// setDefaults 注册所有配置项的默认值；AutomaticEnv 只会覆盖已注册的 key
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_batch_size", 256)

	v.SetDefault("artifacts.encoder", "categorical_encoder.json")
	v.SetDefault("artifacts.model", "multioutput_xgboost_model.json")
	v.SetDefault("artifacts.http_timeout", 30*time.Second)
	v.SetDefault("artifacts.s3.endpoint", "")
	v.SetDefault("artifacts.s3.access_key", "")
	v.SetDefault("artifacts.s3.secret_key", "")
	v.SetDefault("artifacts.s3.region", "")
	v.SetDefault("artifacts.s3.use_ssl", true)

	v.SetDefault("encoder.handle_unknown", "")

	v.SetDefault("rules.disable_defaults", false)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 3600)
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key_prefix", "imputekit:")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", "localhost:8125")
	v.SetDefault("metrics.namespace", "imputekit.")
	v.SetDefault("metrics.sampling_rate", 1.0)
	v.SetDefault("metrics.env", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logger.FormatJSON)
}

// New 创建带默认值与环境变量绑定的 viper 实例
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load 读取配置。path 为空时在当前目录与 /etc/imputekit 查找 imputekit.yaml，找不到则只用默认值与环境变量。
func Load(path string) (*Config, error) {
	return LoadWith(New(), path)
}

// LoadWith 使用给定 viper 实例读取配置（命令行 flag 可预先绑定到 v）
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("imputekit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/imputekit")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Artifacts.Encoder == "" {
		return fmt.Errorf("artifacts.encoder is required")
	}
	if c.Artifacts.Model == "" {
		return fmt.Errorf("artifacts.model is required")
	}
	if p := feature.UnknownPolicy(c.Encoder.HandleUnknown); p != "" && !p.Valid() {
		return fmt.Errorf("encoder.handle_unknown must be one of error, ignore, use_encoded_value; got %q", p)
	}
	if c.Server.MaxBatchSize <= 0 {
		return fmt.Errorf("server.max_batch_size must be positive")
	}
	if c.Cache.Enabled {
		switch c.Cache.Backend {
		case "memory", "redis":
		default:
			return fmt.Errorf("cache.backend must be memory or redis; got %q", c.Cache.Backend)
		}
		if c.Cache.TTL < 0 {
			return fmt.Errorf("cache.ttl must not be negative")
		}
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// PipelineConfig 转换为 pipeline.Config；HTTP 契约要求输出字段固定为九个铝工艺输入
func (c *Config) PipelineConfig() *pipeline.Config {
	return &pipeline.Config{
		Encoder:             c.Artifacts.Encoder,
		Model:               c.Artifacts.Model,
		HandleUnknown:       c.Encoder.HandleUnknown,
		ExpectedOutputs:     core.AluminiumOutputs,
		Rules:               c.Rules.Custom,
		DisableDefaultRules: c.Rules.DisableDefaults,
	}
}
