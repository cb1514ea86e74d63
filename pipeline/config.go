package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/imputekit/artifact"
	"github.com/rushteam/imputekit/core"
	"github.com/rushteam/imputekit/feature"
	"github.com/rushteam/imputekit/model"
	"github.com/rushteam/imputekit/pkg/dsl"
	"github.com/rushteam/imputekit/pkg/metrics"
)

// Config 是 Pipeline 的配置结构（支持 YAML/JSON）。
type Config struct {
	// Encoder 编码器制品 URI（路径、file://、http(s)://、s3://、redis://）
	Encoder string `yaml:"encoder" json:"encoder" mapstructure:"encoder"`
	// Model 模型制品 URI
	Model string `yaml:"model" json:"model" mapstructure:"model"`
	// HandleUnknown 覆盖编码器制品声明的未见类别策略（可选）
	HandleUnknown string `yaml:"handle_unknown" json:"handle_unknown" mapstructure:"handle_unknown"`
	// ExpectedOutputs 要求模型输出字段与之完全一致（可选）
	ExpectedOutputs []string `yaml:"expected_outputs" json:"expected_outputs" mapstructure:"expected_outputs"`
	// Rules 额外的输出合理性规则
	Rules []dsl.Rule `yaml:"rules" json:"rules" mapstructure:"rules"`
	// DisableDefaultRules 不启用 negative_output 等默认规则
	DisableDefaultRules bool `yaml:"disable_default_rules" json:"disable_default_rules" mapstructure:"disable_default_rules"`
}

// LoadFromYAML 从 YAML 文件加载 Pipeline 配置。
func LoadFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	return &cfg, nil
}

// LoadFromJSON 从 JSON 文件加载 Pipeline 配置。
func LoadFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	return &cfg, nil
}

// CompileRules 编译默认规则与自定义规则
func (c *Config) CompileRules() ([]*dsl.Eval, error) {
	var rules []dsl.Rule
	if !c.DisableDefaultRules {
		rules = append(rules, dsl.DefaultRules()...)
	}
	rules = append(rules, c.Rules...)
	return dsl.CompileAll(rules)
}

// Load 在接收请求之前并发加载编码器与模型制品，并组装 Context。
// 任一制品缺失或格式错误都返回 SchemaError，服务不应在此情况下启动。
func Load(ctx context.Context, cfg *Config, resolver *artifact.Resolver) (*Context, error) {
	if cfg == nil {
		return nil, core.NewSchemaError(core.ModulePipeline, "pipeline config is required")
	}
	if cfg.Encoder == "" || cfg.Model == "" {
		return nil, core.NewSchemaError(core.ModulePipeline, "both encoder and model artifact locations are required")
	}
	override := feature.UnknownPolicy(cfg.HandleUnknown)
	if override != "" && !override.Valid() {
		return nil, core.NewSchemaError(core.ModulePipeline, "unknown handle_unknown policy %q", override)
	}
	if resolver == nil {
		resolver = artifact.NewResolver()
	}

	var (
		encoder   core.CategoricalEncoder
		policy    feature.UnknownPolicy
		regressor model.Regressor
		encoderFP string
		modelFP   string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		data, err := resolver.Open(gctx, cfg.Encoder)
		if err != nil {
			return err
		}
		encoderFP = Fingerprint(data)
		encoder, policy, err = feature.LoadEncoder(data, cfg.Encoder, override)
		metrics.Timing(metrics.ArtifactLoadDur, time.Since(start), []string{metrics.Tag("artifact", "encoder")})
		return err
	})
	g.Go(func() error {
		start := time.Now()
		data, err := resolver.Open(gctx, cfg.Model)
		if err != nil {
			return err
		}
		modelFP = Fingerprint(data)
		regressor, err = model.LoadRegressor(data, cfg.Model)
		metrics.Timing(metrics.ArtifactLoadDur, time.Since(start), []string{metrics.Tag("artifact", "model")})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	opts := []ContextOption{WithPolicy(policy), WithFingerprints(encoderFP, modelFP)}
	if len(cfg.ExpectedOutputs) > 0 {
		opts = append(opts, WithExpectedOutputs(cfg.ExpectedOutputs))
	}
	c, err := NewContext(encoder, regressor, opts...)
	if err != nil {
		return nil, err
	}

	event := log.Info().
		Str("encoder", cfg.Encoder).
		Str("encoder_version", encoder.Version()).
		Str("model", cfg.Model).
		Str("model_format", regressor.Name()).
		Str("model_version", regressor.Version()).
		Str("handle_unknown", string(c.Policy)).
		Int("features", c.FeatureSchema.Len()).
		Int("outputs", c.OutputSchema.Len())
	event.Str("identity", c.Identity).Msg("artifacts loaded")
	metrics.Gauge(metrics.SchemaSize, float64(c.FeatureSchema.Len()), []string{metrics.Tag("schema", "feature")})
	metrics.Gauge(metrics.SchemaSize, float64(c.OutputSchema.Len()), []string{metrics.Tag("schema", "output")})
	if len(c.MissingFeatures) > 0 {
		log.Warn().Strs("features", c.MissingFeatures).Msg("model features the encoder never produces; they will always be 0")
	}
	if len(c.UnusedFeatures) > 0 {
		log.Warn().Strs("features", c.UnusedFeatures).Msg("encoder features the model does not use; they will be dropped")
	}
	return c, nil
}

// Build 加载制品、编译规则并创建 Pipeline
func (c *Config) Build(ctx context.Context, resolver *artifact.Resolver, opts ...Option) (*Pipeline, error) {
	rules, err := c.CompileRules()
	if err != nil {
		return nil, core.NewSchemaError(core.ModulePipeline, "compile rules: %v", err)
	}
	pc, err := Load(ctx, c, resolver)
	if err != nil {
		return nil, err
	}
	return New(pc, append([]Option{WithRules(rules)}, opts...)...), nil
}
