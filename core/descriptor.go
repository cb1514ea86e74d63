package core

import (
	"fmt"
	"sort"

	"github.com/rushteam/imputekit/pkg/conv"
)

// 描述符字段名，与训练时 DataFrame 的列名一致。
const (
	FieldMetal  = "metal"
	FieldRoute  = "route"
	FieldStage  = "stage"
	FieldRegion = "region"
)

// MissingCategory 是 null 字段的哨兵类别。
// 编码器按未见类别处理它（除非训练时确实拟合过该取值）。
const MissingCategory = "__missing__"

// DescriptorFields 返回描述符字段，按编码器期望的列顺序。
func DescriptorFields() []string {
	return []string{FieldMetal, FieldRoute, FieldStage, FieldRegion}
}

// ProcessDescriptor 是调用方提供的工艺描述：金属、生产路线、工艺阶段、地区。
// 各字段均为任意字符串，不做跨字段校验。
type ProcessDescriptor struct {
	Metal  string `json:"metal" yaml:"metal"`
	Route  string `json:"route" yaml:"route"`
	Stage  string `json:"stage" yaml:"stage"`
	Region string `json:"region" yaml:"region"`
}

// Get 按字段名取值
func (d ProcessDescriptor) Get(field string) (string, bool) {
	switch field {
	case FieldMetal:
		return d.Metal, true
	case FieldRoute:
		return d.Route, true
	case FieldStage:
		return d.Stage, true
	case FieldRegion:
		return d.Region, true
	default:
		return "", false
	}
}

// AsMap 返回 field -> value 形式，用于日志与规则表达式
func (d ProcessDescriptor) AsMap() map[string]string {
	return map[string]string{
		FieldMetal:  d.Metal,
		FieldRoute:  d.Route,
		FieldStage:  d.Stage,
		FieldRegion: d.Region,
	}
}

// Key 返回稳定且无歧义的字符串表示，用作缓存 key 的一部分。
// 每个字段都带引号转义，取值中包含分隔符也不会与其他描述符冲突。
func (d ProcessDescriptor) Key() string {
	return fmt.Sprintf("%q|%q|%q|%q", d.Metal, d.Route, d.Stage, d.Region)
}

// DescriptorFromMap 从原始 JSON 对象构建描述符。
//
// 规则：
//   - 缺少任一字段：SchemaError
//   - 字段为 null：使用 MissingCategory
//   - 非字符串标量（数字、布尔）：按 %v 转为字符串，与 DataFrame 的行为一致
//   - 嵌套对象/数组：SchemaError
//
// 未知的额外字段被忽略。
func DescriptorFromMap(payload map[string]any) (ProcessDescriptor, error) {
	if payload == nil {
		return ProcessDescriptor{}, NewSchemaError(ModulePipeline, "payload is empty")
	}

	values := make(map[string]string, 4)
	var missing []string
	for _, field := range DescriptorFields() {
		raw, ok := payload[field]
		if !ok {
			missing = append(missing, field)
			continue
		}
		if raw == nil {
			values[field] = MissingCategory
			continue
		}
		v, ok := conv.ScalarString(raw)
		if !ok {
			return ProcessDescriptor{}, NewSchemaError(ModulePipeline, "field %q must be a string, got %T", field, raw)
		}
		values[field] = v
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return ProcessDescriptor{}, NewSchemaError(ModulePipeline, "payload is missing required fields %v", missing)
	}

	return ProcessDescriptor{
		Metal:  values[FieldMetal],
		Route:  values[FieldRoute],
		Stage:  values[FieldStage],
		Region: values[FieldRegion],
	}, nil
}
