package feature

import (
	"fmt"

	"github.com/rushteam/imputekit/core"
)

// UnknownPolicy 是编码器遇到未见类别时的策略。
// 每个部署只使用一种策略：制品声明的策略，或配置显式覆盖后的策略。
type UnknownPolicy string

const (
	// UnknownError 未见类别返回 EncodingError
	UnknownError UnknownPolicy = "error"
	// UnknownIgnore 未见类别对应的 One-Hot 分块全为 0
	UnknownIgnore UnknownPolicy = "ignore"
	// UnknownUseEncodedValue 未见类别编码为 UnknownValue（Ordinal 编码使用）
	UnknownUseEncodedValue UnknownPolicy = "use_encoded_value"
)

// Valid 检查策略是否合法
func (p UnknownPolicy) Valid() bool {
	switch p {
	case UnknownError, UnknownIgnore, UnknownUseEncodedValue:
		return true
	}
	return false
}

// fieldBlock 是单个输入字段的拟合结果：类别列表及其输出特征名
type fieldBlock struct {
	field      string
	categories []string
	lookup     map[string]int
	names      []string
}

func newFieldBlock(field string, categories, names []string) (*fieldBlock, error) {
	if len(categories) == 0 {
		return nil, core.NewSchemaError(core.ModuleFeature, "field %q has no fitted categories", field)
	}
	lookup := make(map[string]int, len(categories))
	for i, c := range categories {
		if _, dup := lookup[c]; dup {
			return nil, core.NewSchemaError(core.ModuleFeature, "field %q has duplicate category %q", field, c)
		}
		lookup[c] = i
	}
	return &fieldBlock{field: field, categories: categories, lookup: lookup, names: names}, nil
}

// OneHotEncoder One-Hot 编码（独热编码）
// 将类别特征转换为二进制向量，每个训练时见过的类别对应一个维度。
// 输出特征名取自制品的 feature_names_out，而不是在这里拼接的常量。
type OneHotEncoder struct {
	blocks  []*fieldBlock
	policy  UnknownPolicy
	names   []string
	version string
}

// NewOneHotEncoder 创建 One-Hot 编码器
//
// fields 与 categories 一一对应；namesOut 为空时按 "<field>_<category>" 生成，
// 与 sklearn OneHotEncoder.get_feature_names_out 的默认命名一致。
func NewOneHotEncoder(fields []string, categories [][]string, namesOut []string, policy UnknownPolicy) (*OneHotEncoder, error) {
	if len(fields) == 0 {
		return nil, core.NewSchemaError(core.ModuleFeature, "one-hot encoder has no fields")
	}
	if len(fields) != len(categories) {
		return nil, core.NewSchemaError(core.ModuleFeature, "one-hot encoder has %d fields but %d category lists", len(fields), len(categories))
	}
	if policy == "" {
		policy = UnknownError
	}
	if policy != UnknownError && policy != UnknownIgnore {
		return nil, core.NewSchemaError(core.ModuleFeature, "one-hot encoder does not support handle_unknown=%q", policy)
	}

	total := 0
	for _, cats := range categories {
		total += len(cats)
	}
	if len(namesOut) == 0 {
		namesOut = make([]string, 0, total)
		for i, f := range fields {
			for _, c := range categories[i] {
				namesOut = append(namesOut, fmt.Sprintf("%s_%s", f, c))
			}
		}
	}
	if len(namesOut) != total {
		return nil, core.NewSchemaError(core.ModuleFeature, "one-hot encoder declares %d output names for %d categories", len(namesOut), total)
	}
	namesOut = append([]string(nil), namesOut...)

	enc := &OneHotEncoder{policy: policy}
	offset := 0
	for i, f := range fields {
		if err := checkField(f); err != nil {
			return nil, err
		}
		n := len(categories[i])
		block, err := newFieldBlock(f, categories[i], namesOut[offset:offset+n])
		if err != nil {
			return nil, err
		}
		enc.blocks = append(enc.blocks, block)
		offset += n
	}
	if _, err := core.NewSchema(namesOut); err != nil {
		return nil, core.NewSchemaError(core.ModuleFeature, "one-hot output names: %s", err.Error())
	}
	enc.names = namesOut
	return enc, nil
}

// WithVersion 设置制品版本
func (e *OneHotEncoder) WithVersion(version string) *OneHotEncoder {
	e.version = version
	return e
}

// Policy 返回生效的未见类别策略
func (e *OneHotEncoder) Policy() UnknownPolicy { return e.policy }

// EncodeWithKey 编码单个字段（指定字段名），返回该字段分块内所有输出特征
func (e *OneHotEncoder) EncodeWithKey(key string, value string) (map[string]float64, error) {
	encoded := make(map[string]float64)
	for _, b := range e.blocks {
		if b.field != key {
			continue
		}
		idx, ok := b.lookup[value]
		if !ok && e.policy == UnknownError {
			return nil, core.NewEncodingError(key, value)
		}
		for i, name := range b.names {
			if ok && i == idx {
				encoded[name] = 1.0
			} else {
				encoded[name] = 0.0
			}
		}
	}
	return encoded, nil
}

// Encode 编码整个描述符
func (e *OneHotEncoder) Encode(desc core.ProcessDescriptor) (map[string]float64, error) {
	return encodeFields(desc, e.Fields(), e.EncodeWithKey)
}

// FeatureNamesOut 返回输出特征名副本
func (e *OneHotEncoder) FeatureNamesOut() []string {
	return append([]string(nil), e.names...)
}

// Fields 返回输入字段
func (e *OneHotEncoder) Fields() []string {
	out := make([]string, len(e.blocks))
	for i, b := range e.blocks {
		out[i] = b.field
	}
	return out
}

// Version 返回制品版本
func (e *OneHotEncoder) Version() string { return e.version }

// OrdinalEncoder 有序编码（Ordinal Encoding）
// 将类别映射为训练时类别列表中的下标，每个字段产出一个特征。
type OrdinalEncoder struct {
	blocks       []*fieldBlock
	policy       UnknownPolicy
	unknownValue float64
	names        []string
	version      string
}

// NewOrdinalEncoder 创建有序编码器
// namesOut 为空时输出特征名即字段名。
func NewOrdinalEncoder(fields []string, categories [][]string, namesOut []string, policy UnknownPolicy, unknownValue float64) (*OrdinalEncoder, error) {
	if len(fields) == 0 {
		return nil, core.NewSchemaError(core.ModuleFeature, "ordinal encoder has no fields")
	}
	if len(fields) != len(categories) {
		return nil, core.NewSchemaError(core.ModuleFeature, "ordinal encoder has %d fields but %d category lists", len(fields), len(categories))
	}
	if policy == "" {
		policy = UnknownError
	}
	if policy != UnknownError && policy != UnknownUseEncodedValue {
		return nil, core.NewSchemaError(core.ModuleFeature, "ordinal encoder does not support handle_unknown=%q", policy)
	}
	if len(namesOut) == 0 {
		namesOut = fields
	}
	if len(namesOut) != len(fields) {
		return nil, core.NewSchemaError(core.ModuleFeature, "ordinal encoder declares %d output names for %d fields", len(namesOut), len(fields))
	}
	namesOut = append([]string(nil), namesOut...)

	enc := &OrdinalEncoder{policy: policy, unknownValue: unknownValue}
	for i, f := range fields {
		if err := checkField(f); err != nil {
			return nil, err
		}
		block, err := newFieldBlock(f, categories[i], namesOut[i:i+1])
		if err != nil {
			return nil, err
		}
		enc.blocks = append(enc.blocks, block)
	}
	enc.names = namesOut
	return enc, nil
}

// WithVersion 设置制品版本
func (e *OrdinalEncoder) WithVersion(version string) *OrdinalEncoder {
	e.version = version
	return e
}

// Policy 返回生效的未见类别策略
func (e *OrdinalEncoder) Policy() UnknownPolicy { return e.policy }

// EncodeWithKey 编码单个字段（指定字段名）
func (e *OrdinalEncoder) EncodeWithKey(key string, value string) (map[string]float64, error) {
	encoded := make(map[string]float64)
	for _, b := range e.blocks {
		if b.field != key {
			continue
		}
		if idx, ok := b.lookup[value]; ok {
			encoded[b.names[0]] = float64(idx)
			continue
		}
		if e.policy == UnknownError {
			return nil, core.NewEncodingError(key, value)
		}
		encoded[b.names[0]] = e.unknownValue
	}
	return encoded, nil
}

// Encode 编码整个描述符
func (e *OrdinalEncoder) Encode(desc core.ProcessDescriptor) (map[string]float64, error) {
	return encodeFields(desc, e.Fields(), e.EncodeWithKey)
}

// FeatureNamesOut 返回输出特征名副本
func (e *OrdinalEncoder) FeatureNamesOut() []string {
	return append([]string(nil), e.names...)
}

// Fields 返回输入字段
func (e *OrdinalEncoder) Fields() []string {
	out := make([]string, len(e.blocks))
	for i, b := range e.blocks {
		out[i] = b.field
	}
	return out
}

// Version 返回制品版本
func (e *OrdinalEncoder) Version() string { return e.version }

func encodeFields(desc core.ProcessDescriptor, fields []string, encode func(string, string) (map[string]float64, error)) (map[string]float64, error) {
	encoded := make(map[string]float64)
	for _, f := range fields {
		value, _ := desc.Get(f)
		part, err := encode(f, value)
		if err != nil {
			return nil, err
		}
		for k, v := range part {
			encoded[k] = v
		}
	}
	return encoded, nil
}

func checkField(field string) error {
	if _, ok := (core.ProcessDescriptor{}).Get(field); !ok {
		return core.NewSchemaError(core.ModuleFeature, "encoder field %q is not a descriptor field %v", field, core.DescriptorFields())
	}
	return nil
}

var (
	_ core.CategoricalEncoder = (*OneHotEncoder)(nil)
	_ core.CategoricalEncoder = (*OrdinalEncoder)(nil)
)
