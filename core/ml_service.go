package core

import "context"

// MLService 是远程机器学习服务的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（service）实现
//   - 一次请求携带多行特征向量，每行返回一组多输出预测
//
// 实现：
//   - service.KServeClient 实现此接口
type MLService interface {
	// Predict 批量预测
	Predict(ctx context.Context, req *MLPredictRequest) (*MLPredictResponse, error)

	// Health 健康检查
	Health(ctx context.Context) error

	// Close 关闭连接
	Close(ctx context.Context) error
}

// MLPredictRequest 预测请求
type MLPredictRequest struct {
	// Instances 特征实例列表（每个实例是一个按 FeatureSchema 排列的特征向量）
	// 格式：[[f1, f2, f3, ...], [f1, f2, f3, ...], ...]
	Instances [][]float64

	// ModelName 模型名称（可选，如果服务支持多模型）
	ModelName string

	// ModelVersion 模型版本（可选）
	ModelVersion string
}

// MLPredictResponse 预测响应
type MLPredictResponse struct {
	// Predictions 预测结果（与请求实例一一对应，每行是一个多输出向量）
	Predictions [][]float64

	// ModelVersion 模型版本（如果服务返回）
	ModelVersion string
}
