package feature

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/imputekit/core"
)

// 编码器类型
const (
	EncoderTypeOneHot  = "one_hot"
	EncoderTypeOrdinal = "ordinal"
)

// EncoderArtifact 是已拟合编码器的序列化形式，对应 categorical_encoder.json / .yaml。
//
// 字段与 sklearn 编码器的拟合属性一一对应：
//
//	{
//	  "type": "one_hot",
//	  "version": "2024-06-01",
//	  "fields": ["metal", "route", "stage", "region"],          // feature_names_in_
//	  "categories": [["primary_aluminium", ...], ...],           // categories_
//	  "feature_names_out": ["metal_primary_aluminium", ...],     // get_feature_names_out()
//	  "handle_unknown": "ignore"
//	}
type EncoderArtifact struct {
	// Type 编码器类型：one_hot / ordinal
	Type string `json:"type" yaml:"type"`
	// Version 制品版本
	Version string `json:"version" yaml:"version"`
	// Fields 输入字段（按训练时顺序）
	Fields []string `json:"fields" yaml:"fields"`
	// Categories 每个字段的已拟合类别
	Categories [][]string `json:"categories" yaml:"categories"`
	// FeatureNamesOut 输出特征名（可选）
	FeatureNamesOut []string `json:"feature_names_out" yaml:"feature_names_out"`
	// HandleUnknown 未见类别策略：error / ignore / use_encoded_value
	HandleUnknown string `json:"handle_unknown" yaml:"handle_unknown"`
	// UnknownValue Ordinal 编码在 use_encoded_value 策略下使用的值
	UnknownValue *float64 `json:"unknown_value,omitempty" yaml:"unknown_value,omitempty"`
}

// ParseEncoderArtifact 解析编码器制品。
// source 用于判断格式：以 .yaml/.yml 结尾按 YAML 解析，否则按 JSON 解析。
func ParseEncoderArtifact(data []byte, source string) (*EncoderArtifact, error) {
	var art EncoderArtifact
	if isYAML(source) {
		if err := yaml.Unmarshal(data, &art); err != nil {
			return nil, core.NewSchemaError(core.ModuleFeature, "parse encoder artifact %s: %v", source, err)
		}
	} else {
		if err := json.Unmarshal(data, &art); err != nil {
			return nil, core.NewSchemaError(core.ModuleFeature, "parse encoder artifact %s: %v", source, err)
		}
	}
	return &art, nil
}

// Build 根据制品构建编码器。
// override 非空时覆盖制品声明的 handle_unknown（整个部署只会使用覆盖后的策略）。
func (a *EncoderArtifact) Build(override UnknownPolicy) (core.CategoricalEncoder, UnknownPolicy, error) {
	policy := UnknownPolicy(a.HandleUnknown)
	if override != "" {
		policy = override
	}
	if policy != "" && !policy.Valid() {
		return nil, "", core.NewSchemaError(core.ModuleFeature, "unknown handle_unknown policy %q", policy)
	}

	switch strings.ToLower(a.Type) {
	case EncoderTypeOneHot, "onehot", "":
		enc, err := NewOneHotEncoder(a.Fields, a.Categories, a.FeatureNamesOut, policy)
		if err != nil {
			return nil, "", err
		}
		return enc.WithVersion(a.Version), enc.Policy(), nil
	case EncoderTypeOrdinal:
		unknown := 0.0
		if policy == UnknownUseEncodedValue {
			if a.UnknownValue == nil {
				return nil, "", core.NewSchemaError(core.ModuleFeature, "ordinal encoder with use_encoded_value requires unknown_value")
			}
			unknown = *a.UnknownValue
		}
		enc, err := NewOrdinalEncoder(a.Fields, a.Categories, a.FeatureNamesOut, policy, unknown)
		if err != nil {
			return nil, "", err
		}
		return enc.WithVersion(a.Version), enc.Policy(), nil
	default:
		return nil, "", core.NewSchemaError(core.ModuleFeature, "unsupported encoder type %q", a.Type)
	}
}

// LoadEncoder 解析并构建编码器
func LoadEncoder(data []byte, source string, override UnknownPolicy) (core.CategoricalEncoder, UnknownPolicy, error) {
	art, err := ParseEncoderArtifact(data, source)
	if err != nil {
		return nil, "", err
	}
	enc, policy, err := art.Build(override)
	if err != nil {
		return nil, "", fmt.Errorf("build encoder from %s: %w", source, err)
	}
	return enc, policy, nil
}

func isYAML(source string) bool {
	ext := strings.ToLower(path.Ext(source))
	return ext == ".yaml" || ext == ".yml"
}
