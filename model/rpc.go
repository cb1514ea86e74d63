package model

import (
	"context"
	"fmt"

	"github.com/rushteam/imputekit/core"
	"github.com/rushteam/imputekit/service"
)

// RPCRegressor 是通过远程推理服务（core.MLService，如 KServe）预测的 Regressor 实现。
//
// 远程服务只接收按位置排列的向量，因此特征与输出顺序仍由本地制品声明，
// 远程服务返回的每一行都会按 NumOutputs 校验。
type RPCRegressor struct {
	name         string
	version      string
	featureNames []string
	outputNames  []string
	Service      core.MLService
}

// NewRPCRegressor 创建远程回归模型
func NewRPCRegressor(name string, svc core.MLService, featureNames, outputNames []string, version string) (*RPCRegressor, error) {
	if svc == nil {
		return nil, core.NewSchemaError(core.ModuleModel, "rpc regressor %s has no service", name)
	}
	if len(featureNames) == 0 {
		return nil, core.NewSchemaError(core.ModuleModel, "rpc regressor %s: artifact does not declare feature_names", name)
	}
	if len(outputNames) == 0 {
		outputNames = core.AluminiumOutputs
	}
	return &RPCRegressor{
		name:         name,
		version:      version,
		featureNames: append([]string(nil), featureNames...),
		outputNames:  append([]string(nil), outputNames...),
		Service:      svc,
	}, nil
}

func (m *RPCRegressor) Name() string    { return m.name }
func (m *RPCRegressor) Version() string { return m.version }

func (m *RPCRegressor) FeatureNames() []string { return append([]string(nil), m.featureNames...) }
func (m *RPCRegressor) OutputNames() []string  { return append([]string(nil), m.outputNames...) }
func (m *RPCRegressor) NumFeatures() int       { return len(m.featureNames) }
func (m *RPCRegressor) NumOutputs() int        { return len(m.outputNames) }

// PredictBatch 调用远程服务进行批量预测
func (m *RPCRegressor) PredictBatch(ctx context.Context, vectors [][]float64) ([][]float64, error) {
	if err := CheckInputs(vectors, m.NumFeatures()); err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return [][]float64{}, nil
	}

	resp, err := m.Service.Predict(ctx, &core.MLPredictRequest{
		Instances:    vectors,
		ModelName:    m.name,
		ModelVersion: m.version,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, core.WrapPredictionError(core.ModuleModel, fmt.Errorf("rpc call: %w", err))
	}
	if err := CheckOutputs(resp.Predictions, len(vectors), m.NumOutputs()); err != nil {
		return nil, err
	}
	return resp.Predictions, nil
}

// Health 检查远程服务是否就绪
func (m *RPCRegressor) Health(ctx context.Context) error {
	return service.TestConnection(ctx, m.Service)
}

// Close 关闭远程服务连接
func (m *RPCRegressor) Close(ctx context.Context) error {
	return m.Service.Close(ctx)
}

var _ Regressor = (*RPCRegressor)(nil)
