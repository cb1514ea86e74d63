// Package conv 提供 JSON 解码后 any 值的类型转换，供远程响应解析与请求描述符解析共用。
package conv

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ToFloat64 将 any 转为 float64。
// 支持 float64、float32、int、int64、int32 与 json.Number；bool 与字符串不视为数值。
func ToFloat64(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ToFloat64Slice 将 []any 转为 []float64，任一元素不是数值时返回出错位置
func ToFloat64Slice(v []any) ([]float64, error) {
	out := make([]float64, 0, len(v))
	for i, e := range v {
		f, ok := ToFloat64(e)
		if !ok {
			return nil, fmt.Errorf("element %d is not numeric (%T)", i, e)
		}
		out = append(out, f)
	}
	return out, nil
}

// ScalarString 将 JSON 标量转为字符串。
// 字符串原样返回，数字与布尔按 %v 格式化；nil、对象与数组返回 ("", false)。
func ScalarString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), true
	case float32, int, int64, int32, bool:
		return fmt.Sprintf("%v", val), true
	default:
		return "", false
	}
}
