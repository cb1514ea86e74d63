// Package imputekit 预测铝工艺的九项资源输入（能源与原料）。
//
// 设计要点：
// - Schema 来自制品：特征顺序只读取模型制品的 feature_names，不在代码中写死
// - 对齐唯一：编码结果只在 feature.Reconciler 中按 FeatureSchema 补齐/丢弃
// - 显式结果：每次推理返回 core.Result，要么是完整的九项预测，要么是带分类的错误
//
// 链路：ProcessDescriptor → Encoder → Reconciler → Regressor → Shape → PredictionResult
package imputekit

import (
	"github.com/rushteam/imputekit/core"
	"github.com/rushteam/imputekit/pipeline"
)

// 轻量 facade：便于用户直接 import "imputekit" 使用核心抽象。
type (
	Pipeline          = pipeline.Pipeline
	Context           = pipeline.Context
	ProcessDescriptor = core.ProcessDescriptor
	PredictionResult  = core.PredictionResult
	Result            = core.Result
)

var (
	// NewContext 校验并组装推理上下文
	NewContext = pipeline.NewContext
	// New 创建 Pipeline
	New = pipeline.New
	// Load 并发加载编码器与模型制品
	Load = pipeline.Load
)
