package pipeline

import (
	"math"

	"github.com/rushteam/imputekit/core"
)

// Shape 将模型原始输出按 OutputSchema 命名。
//
// 长度不一致返回 ShapeError（不截断、不补齐）；
// 任一值为 NaN/±Inf 返回 PredictionError 并指出字段。
func Shape(raw []float64, schema core.OutputSchema) (*core.PredictionResult, error) {
	if len(raw) != schema.Len() {
		return nil, core.NewShapeError(core.ModulePipeline, "prediction output", schema.Len(), len(raw))
	}

	result := &core.PredictionResult{
		Names:  schema.Names(),
		Values: make(map[string]float64, len(raw)),
	}
	for i, v := range raw {
		name := schema.At(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			e := core.NewPredictionError("model produced non-finite value %v for %q", v, name)
			e.Field = name
			return nil, e
		}
		result.Values[name] = v
	}
	return result, nil
}
