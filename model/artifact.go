package model

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/imputekit/core"
	"github.com/rushteam/imputekit/service"
)

// 模型制品格式
const (
	FormatXGBoostMulti = "xgboost_multi"
	FormatXGBoost      = "xgboost"
	FormatLinear       = "linear"
	FormatKServe       = "kserve"
)

// Artifact 是模型制品的信封，对应 multioutput_xgboost_model.json。
//
//	{
//	  "format": "xgboost_multi",
//	  "version": "2024-06-01",
//	  "feature_names": [...],   // 可选，默认取 estimators[0] 的 feature_names
//	  "output_names": [...],    // 可选，默认九个铝工艺输入
//	  "estimators": [ <XGBoost save_model JSON>, ... ]
//	}
//
// 不带信封、直接由 save_model 产出的单个 Booster JSON 也可以加载（format 视为 xgboost）。
type Artifact struct {
	Format       string   `json:"format"`
	Version      string   `json:"version"`
	FeatureNames []string `json:"feature_names,omitempty"`
	OutputNames  []string `json:"output_names,omitempty"`

	// xgboost_multi
	Estimators []json.RawMessage `json:"estimators,omitempty"`

	// linear
	Intercepts   []float64   `json:"intercepts,omitempty"`
	Coefficients [][]float64 `json:"coefficients,omitempty"`

	// kserve
	Service *service.ServiceConfig `json:"service,omitempty"`
}

// Builder 根据制品构建 Regressor
type Builder func(art *Artifact) (Regressor, error)

var (
	builders   = make(map[string]Builder)
	buildersMu sync.RWMutex
)

func init() {
	Register(FormatXGBoostMulti, buildXGBoost)
	Register(FormatXGBoost, buildXGBoost)
	Register(FormatLinear, buildLinear)
	Register(FormatKServe, buildKServe)
}

// Register 注册一种模型格式的构建逻辑。
// 自定义格式可在 init 中调用，例如：func init() { model.Register("onnx", BuildONNX) }
func Register(format string, builder Builder) {
	if format == "" || builder == nil {
		return
	}
	buildersMu.Lock()
	defer buildersMu.Unlock()
	builders[format] = builder
}

// SupportedFormats 返回当前已注册的模型格式列表（排序），用于错误提示与校验。
func SupportedFormats() []string {
	buildersMu.RLock()
	defer buildersMu.RUnlock()
	formats := make([]string, 0, len(builders))
	for f := range builders {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}

// Build 按制品格式构建 Regressor
func (a *Artifact) Build() (Regressor, error) {
	buildersMu.RLock()
	builder, ok := builders[a.Format]
	buildersMu.RUnlock()
	if !ok {
		return nil, core.NewSchemaError(core.ModuleModel, "unsupported model format %q (supported: %v)", a.Format, SupportedFormats())
	}
	return builder(a)
}

// ParseArtifact 解析模型制品。
// source 以 .yaml/.yml 结尾时按 YAML 解析，否则按 JSON 解析。
func ParseArtifact(data []byte, source string) (*Artifact, error) {
	if isYAML(source) {
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, core.NewSchemaError(core.ModuleModel, "parse model artifact %s: %v", source, err)
		}
		normalized, err := json.Marshal(doc)
		if err != nil {
			return nil, core.NewSchemaError(core.ModuleModel, "parse model artifact %s: %v", source, err)
		}
		data = normalized
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, core.NewSchemaError(core.ModuleModel, "parse model artifact %s: %v", source, err)
	}
	if _, hasFormat := probe["format"]; !hasFormat {
		if _, isBooster := probe["learner"]; isBooster {
			return &Artifact{Format: FormatXGBoost, Estimators: []json.RawMessage{data}}, nil
		}
		return nil, core.NewSchemaError(core.ModuleModel, "model artifact %s has no format", source)
	}

	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, core.NewSchemaError(core.ModuleModel, "parse model artifact %s: %v", source, err)
	}
	return &art, nil
}

// LoadRegressor 解析并构建 Regressor
func LoadRegressor(data []byte, source string) (Regressor, error) {
	art, err := ParseArtifact(data, source)
	if err != nil {
		return nil, err
	}
	r, err := art.Build()
	if err != nil {
		return nil, fmt.Errorf("build model from %s: %w", source, err)
	}
	return r, nil
}

func buildXGBoost(a *Artifact) (Regressor, error) {
	return NewXGBoostRegressor(a.Estimators, a.FeatureNames, a.OutputNames, a.Version)
}

func buildLinear(a *Artifact) (Regressor, error) {
	return NewLinearRegressor(a.FeatureNames, a.OutputNames, a.Intercepts, a.Coefficients, a.Version)
}

func buildKServe(a *Artifact) (Regressor, error) {
	if a.Service == nil {
		return nil, core.NewSchemaError(core.ModuleModel, "kserve artifact has no service section")
	}
	svc, err := service.NewMLService(a.Service)
	if err != nil {
		return nil, core.NewSchemaError(core.ModuleModel, "kserve artifact: %v", err)
	}
	version := a.Version
	if version == "" {
		version = a.Service.ModelVersion
	}
	return NewRPCRegressor(a.Service.ModelName, svc, a.FeatureNames, a.OutputNames, version)
}

func isYAML(source string) bool {
	ext := strings.ToLower(path.Ext(source))
	return ext == ".yaml" || ext == ".yml"
}
