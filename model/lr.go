package model

import (
	"context"

	"github.com/rushteam/imputekit/core"
)

// LinearRegressor 实现了多输出线性回归模型。
// 常用作 XGBoost 模型的基线，或在树模型不可用时作为轻量替代。
//
// 预测原理（每个输出 j 一组系数）：
//
//	y_j = Intercepts[j] + sum(Coefficients[j][i] * x_i)
//
// 对应 sklearn LinearRegression 的 intercept_ 与 coef_（形状为 [输出数, 特征数]）。
type LinearRegressor struct {
	version      string
	featureNames []string
	outputNames  []string
	Intercepts   []float64   // 截距 (Intercept)，每个输出一个
	Coefficients [][]float64 // 系数矩阵 (Coefficients)
}

// NewLinearRegressor 创建线性回归模型，校验系数矩阵形状
func NewLinearRegressor(featureNames, outputNames []string, intercepts []float64, coef [][]float64, version string) (*LinearRegressor, error) {
	if len(featureNames) == 0 {
		return nil, core.NewSchemaError(core.ModuleModel, "linear artifact does not expose feature names")
	}
	if len(outputNames) == 0 && len(coef) == len(core.AluminiumOutputs) {
		outputNames = core.AluminiumOutputs
	}
	if len(coef) == 0 || len(coef) != len(outputNames) {
		return nil, core.NewSchemaError(core.ModuleModel, "linear artifact has %d coefficient rows for %d outputs", len(coef), len(outputNames))
	}
	if intercepts == nil {
		intercepts = make([]float64, len(coef))
	}
	if len(intercepts) != len(coef) {
		return nil, core.NewSchemaError(core.ModuleModel, "linear artifact has %d intercepts for %d outputs", len(intercepts), len(coef))
	}
	rows := make([][]float64, len(coef))
	for j, row := range coef {
		if len(row) != len(featureNames) {
			return nil, core.NewSchemaError(core.ModuleModel, "coefficient row %d has %d values for %d features", j, len(row), len(featureNames))
		}
		rows[j] = append([]float64(nil), row...)
	}
	return &LinearRegressor{
		version:      version,
		featureNames: append([]string(nil), featureNames...),
		outputNames:  append([]string(nil), outputNames...),
		Intercepts:   append([]float64(nil), intercepts...),
		Coefficients: rows,
	}, nil
}

func (m *LinearRegressor) Name() string    { return "linear" }
func (m *LinearRegressor) Version() string { return m.version }

func (m *LinearRegressor) FeatureNames() []string { return append([]string(nil), m.featureNames...) }
func (m *LinearRegressor) OutputNames() []string  { return append([]string(nil), m.outputNames...) }
func (m *LinearRegressor) NumFeatures() int       { return len(m.featureNames) }
func (m *LinearRegressor) NumOutputs() int        { return len(m.outputNames) }

func (m *LinearRegressor) PredictBatch(_ context.Context, vectors [][]float64) ([][]float64, error) {
	if err := CheckInputs(vectors, m.NumFeatures()); err != nil {
		return nil, err
	}
	out := make([][]float64, len(vectors))
	for r, x := range vectors {
		y := make([]float64, len(m.Coefficients))
		for j, w := range m.Coefficients {
			score := m.Intercepts[j]
			for i, v := range x {
				score += w[i] * v
			}
			y[j] = score
		}
		out[r] = y
	}
	return out, nil
}

var _ Regressor = (*LinearRegressor)(nil)
