package model

import (
	"context"

	"github.com/rushteam/imputekit/core"
)

// Regressor 是多输出回归模型的最小抽象：输入按 FeatureSchema 排列的特征向量，
// 输出按 OutputSchema 排列的定长预测向量。
// 具体实现可以是本地模型（XGBoost、线性）或远程推理服务（KServe）。
//
// 实现必须是只读的：加载完成后可被任意多个请求并发调用。
type Regressor interface {
	Name() string
	Version() string

	// FeatureNames 返回训练时的特征顺序，FeatureSchema 的唯一来源
	FeatureNames() []string
	// OutputNames 返回输出字段顺序
	OutputNames() []string

	NumFeatures() int
	NumOutputs() int

	// PredictBatch 批量预测；每行长度必须等于 NumFeatures，否则返回 ShapeError
	PredictBatch(ctx context.Context, vectors [][]float64) ([][]float64, error)
}

// Predict 对单个特征向量预测（内部调用批量接口）
func Predict(ctx context.Context, r Regressor, vector []float64) ([]float64, error) {
	out, err := r.PredictBatch(ctx, [][]float64{vector})
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, core.NewShapeError(core.ModuleModel, "prediction rows", 1, len(out))
	}
	return out[0], nil
}

// CheckInputs 校验每行特征宽度，不做任何截断或补齐
func CheckInputs(vectors [][]float64, numFeatures int) error {
	for _, v := range vectors {
		if len(v) != numFeatures {
			return core.NewShapeError(core.ModuleModel, "feature vector", numFeatures, len(v))
		}
	}
	return nil
}

// CheckOutputs 校验预测行数与每行输出宽度
func CheckOutputs(outputs [][]float64, rows, numOutputs int) error {
	if len(outputs) != rows {
		return core.NewShapeError(core.ModuleModel, "prediction rows", rows, len(outputs))
	}
	for _, o := range outputs {
		if len(o) != numOutputs {
			return core.NewShapeError(core.ModuleModel, "prediction output", numOutputs, len(o))
		}
	}
	return nil
}
