package pipeline

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/rushteam/imputekit/core"
	"github.com/rushteam/imputekit/feature"
	"github.com/rushteam/imputekit/model"
)

// Context 是加载一次、请求期间只读的推理上下文：
// 编码器、回归模型，以及从模型制品得到的 FeatureSchema / OutputSchema。
//
// 构建后不可修改，可被任意多个请求并发使用；替换制品需要构建新的 Context。
type Context struct {
	Encoder   core.CategoricalEncoder
	Regressor model.Regressor

	FeatureSchema core.FeatureSchema
	OutputSchema  core.OutputSchema

	// Policy 本部署使用的未见类别策略
	Policy feature.UnknownPolicy

	// MissingFeatures 模型需要但编码器永远不会产出的特征（请求时会被填 0）
	MissingFeatures []string
	// UnusedFeatures 编码器产出但模型不使用的特征（请求时会被丢弃）
	UnusedFeatures []string

	// Identity 标识这一对制品，预测缓存以它区分不同的编码器与模型
	Identity string
}

// ContextOption 配置 Context
type ContextOption func(*contextOptions)

type contextOptions struct {
	policy             feature.UnknownPolicy
	expectedOutputs    []string
	encoderFingerprint string
	modelFingerprint   string
}

// WithPolicy 显式声明未见类别策略（编码器未暴露策略时使用）
func WithPolicy(policy feature.UnknownPolicy) ContextOption {
	return func(o *contextOptions) {
		o.policy = policy
	}
}

// WithExpectedOutputs 要求模型输出字段与 names 完全一致（含顺序）
func WithExpectedOutputs(names []string) ContextOption {
	return func(o *contextOptions) {
		o.expectedOutputs = names
	}
}

// WithFingerprints 设置制品内容指纹（见 Fingerprint），优先于制品声明的版本号参与 Identity
func WithFingerprints(encoder, model string) ContextOption {
	return func(o *contextOptions) {
		o.encoderFingerprint = encoder
		o.modelFingerprint = model
	}
}

// Fingerprint 返回制品内容的 sha256 摘要
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// artifactIdentity 依次使用内容指纹、版本号；两者都为空时生成随机 ID，
// 保证未声明版本的不同制品不会共用缓存
func artifactIdentity(fingerprint, version string) string {
	if fingerprint != "" {
		return fingerprint
	}
	if version != "" {
		return version
	}
	return "anon:" + uuid.NewString()
}

// policyReporter 由 feature.OneHotEncoder / feature.OrdinalEncoder 实现
type policyReporter interface {
	Policy() feature.UnknownPolicy
}

// NewContext 校验并组装推理上下文。
//
// FeatureSchema 只来自 Regressor.FeatureNames()，不在代码中写死。
// 以下情况返回 SchemaError：
//   - 编码器或模型为空
//   - 特征名为空、重复，或数量与 NumFeatures 不一致
//   - 输出名数量与 NumOutputs 不一致，或与 WithExpectedOutputs 不一致
func NewContext(encoder core.CategoricalEncoder, regressor model.Regressor, opts ...ContextOption) (*Context, error) {
	var o contextOptions
	for _, opt := range opts {
		opt(&o)
	}

	if encoder == nil {
		return nil, core.NewSchemaError(core.ModulePipeline, "encoder artifact is not loaded")
	}
	if regressor == nil {
		return nil, core.NewSchemaError(core.ModulePipeline, "model artifact is not loaded")
	}

	featureNames := regressor.FeatureNames()
	if len(featureNames) != regressor.NumFeatures() {
		return nil, core.NewSchemaError(core.ModulePipeline, "model names %d features but expects %d", len(featureNames), regressor.NumFeatures())
	}
	featureSchema, err := core.NewSchema(featureNames)
	if err != nil {
		return nil, err
	}

	outputNames := regressor.OutputNames()
	if len(outputNames) != regressor.NumOutputs() {
		return nil, core.NewSchemaError(core.ModulePipeline, "model names %d outputs but produces %d", len(outputNames), regressor.NumOutputs())
	}
	outputSchema, err := core.NewSchema(outputNames)
	if err != nil {
		return nil, err
	}
	if o.expectedOutputs != nil && !outputSchema.Equal(core.MustSchema(o.expectedOutputs)) {
		return nil, core.NewSchemaError(core.ModulePipeline, "model outputs %v do not match expected %v", outputNames, o.expectedOutputs)
	}

	policy := o.policy
	if pr, ok := encoder.(policyReporter); ok && policy == "" {
		policy = pr.Policy()
	}

	namesOut := encoder.FeatureNamesOut()
	identity := artifactIdentity(o.encoderFingerprint, encoder.Version()) + "|" +
		artifactIdentity(o.modelFingerprint, regressor.Version())
	return &Context{
		Encoder:         encoder,
		Regressor:       regressor,
		FeatureSchema:   featureSchema,
		OutputSchema:    outputSchema,
		Policy:          policy,
		MissingFeatures: feature.MissingFeatures(namesOut, featureSchema),
		UnusedFeatures:  feature.UnusedFeatures(namesOut, featureSchema),
		Identity:        identity,
	}, nil
}

// ModelInfo 是 Context 的可序列化摘要（GET /v1/model、inspect 命令）
type ModelInfo struct {
	Model           string   `json:"model"`
	ModelVersion    string   `json:"model_version"`
	EncoderVersion  string   `json:"encoder_version"`
	HandleUnknown   string   `json:"handle_unknown"`
	DescriptorKeys  []string `json:"descriptor_fields"`
	Features        []string `json:"features"`
	Outputs         []string `json:"outputs"`
	MissingFeatures []string `json:"missing_features,omitempty"`
	UnusedFeatures  []string `json:"unused_features,omitempty"`
}

// Info 返回上下文摘要
func (c *Context) Info() ModelInfo {
	return ModelInfo{
		Model:           c.Regressor.Name(),
		ModelVersion:    c.Regressor.Version(),
		EncoderVersion:  c.Encoder.Version(),
		HandleUnknown:   string(c.Policy),
		DescriptorKeys:  c.Encoder.Fields(),
		Features:        c.FeatureSchema.Names(),
		Outputs:         c.OutputSchema.Names(),
		MissingFeatures: c.MissingFeatures,
		UnusedFeatures:  c.UnusedFeatures,
	}
}
