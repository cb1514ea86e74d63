package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/imputekit/core"
	"github.com/rushteam/imputekit/feature"
	"github.com/rushteam/imputekit/pkg/dsl"
	"github.com/rushteam/imputekit/pkg/metrics"
)

// Runner 是 Pipeline 与 CachedPipeline 的公共接口，供 HTTP/CLI 使用
type Runner interface {
	Run(ctx context.Context, desc core.ProcessDescriptor) core.Result
	RunBatch(ctx context.Context, descs []core.ProcessDescriptor) []core.Result
	RunMap(ctx context.Context, payload map[string]any) core.Result
	Context() *Context
}

// Pipeline 是一次推理的编排：
//
//	Received -> Encoding -> Reconciling -> Predicting -> Shaping -> Succeeded
//
// 任一阶段出错即进入 Failed，不重试、不部分返回。
// ctx 只在进入 Predicting 之前检查一次，之后的计算总是完成。
type Pipeline struct {
	current    atomic.Pointer[Context]
	reconciler *feature.Reconciler
	rules      []*dsl.Eval
}

// Option 配置 Pipeline
type Option func(*Pipeline)

// WithRules 设置输出合理性规则
func WithRules(rules []*dsl.Eval) Option {
	return func(p *Pipeline) {
		p.rules = rules
	}
}

// WithMonitor 设置特征对齐监控
func WithMonitor(m feature.Monitor) Option {
	return func(p *Pipeline) {
		p.reconciler.WithMonitor(m)
	}
}

// New 创建 Pipeline；c 为 nil 时所有请求返回 UnavailableError，直到 Swap
func New(c *Context, opts ...Option) *Pipeline {
	p := &Pipeline{reconciler: feature.NewReconciler()}
	for _, opt := range opts {
		opt(p)
	}
	if c != nil {
		p.current.Store(c)
	}
	return p
}

// Context 返回当前推理上下文（可能为 nil）
func (p *Pipeline) Context() *Context {
	return p.current.Load()
}

// Swap 原子替换推理上下文；进行中的请求继续使用旧上下文
func (p *Pipeline) Swap(c *Context) *Context {
	return p.current.Swap(c)
}

// RunMap 解析原始 JSON 对象后执行推理
func (p *Pipeline) RunMap(ctx context.Context, payload map[string]any) core.Result {
	desc, err := decodePayload(ctx, payload)
	if err != nil {
		return p.finish(ctx, core.Fail(core.StageReceived, err), time.Now())
	}
	return p.Run(ctx, desc)
}

// decodePayload 记录原始请求并解析为描述符
func decodePayload(ctx context.Context, payload map[string]any) (core.ProcessDescriptor, error) {
	zerolog.Ctx(ctx).Debug().Interface("payload", payload).Msg("inference request received")
	return core.DescriptorFromMap(payload)
}

// Run 对单个描述符执行推理
func (p *Pipeline) Run(ctx context.Context, desc core.ProcessDescriptor) core.Result {
	return p.run(ctx, p.Context(), desc)
}

// run 使用指定的上下文推理，整个请求期间不会读到 Swap 之后的新上下文
func (p *Pipeline) run(ctx context.Context, c *Context, desc core.ProcessDescriptor) core.Result {
	start := time.Now()
	if c == nil {
		return p.finish(ctx, core.Fail(core.StageReceived, core.ErrUnavailable), start)
	}

	vector, res, ok := p.prepare(ctx, c, desc)
	if !ok {
		return p.finish(ctx, res, start)
	}

	if ctx.Err() != nil {
		return p.finish(ctx, core.Fail(core.StagePredicting, core.ErrCanceled), start)
	}
	stageStart := time.Now()
	out, err := c.Regressor.PredictBatch(ctx, [][]float64{vector})
	observeStage(core.StagePredicting, stageStart)
	if err != nil {
		return p.finish(ctx, core.Fail(core.StagePredicting, predictError(ctx, err)), start)
	}
	if len(out) != 1 {
		return p.finish(ctx, core.Fail(core.StagePredicting, core.NewShapeError(core.ModulePipeline, "prediction rows", 1, len(out))), start)
	}

	return p.finish(ctx, p.shape(ctx, c, desc, out[0]), start)
}

// RunBatch 对多个描述符执行推理。
// 编码与对齐逐行进行，存活的行合并为一次 PredictBatch 调用；
// 某一行失败不影响其他行，返回的结果与输入一一对应。
func (p *Pipeline) RunBatch(ctx context.Context, descs []core.ProcessDescriptor) []core.Result {
	start := time.Now()
	results := make([]core.Result, len(descs))
	c := p.Context()
	if c == nil {
		for i := range results {
			results[i] = p.finish(ctx, core.Fail(core.StageReceived, core.ErrUnavailable), start)
		}
		return results
	}

	rows := make([]int, 0, len(descs))
	vectors := make([][]float64, 0, len(descs))
	for i, desc := range descs {
		vector, res, ok := p.prepare(ctx, c, desc)
		if !ok {
			results[i] = p.finish(ctx, res, start)
			continue
		}
		rows = append(rows, i)
		vectors = append(vectors, vector)
	}
	if len(rows) == 0 {
		return results
	}

	failAll := func(err error) []core.Result {
		for _, i := range rows {
			results[i] = p.finish(ctx, core.Fail(core.StagePredicting, err), start)
		}
		return results
	}

	if ctx.Err() != nil {
		return failAll(core.ErrCanceled)
	}
	stageStart := time.Now()
	out, err := c.Regressor.PredictBatch(ctx, vectors)
	observeStage(core.StagePredicting, stageStart)
	if err != nil {
		return failAll(predictError(ctx, err))
	}
	if len(out) != len(rows) {
		return failAll(core.NewShapeError(core.ModulePipeline, "prediction rows", len(rows), len(out)))
	}

	for j, i := range rows {
		results[i] = p.finish(ctx, p.shape(ctx, c, descs[i], out[j]), start)
	}
	return results
}

// prepare 执行 Encoding 与 Reconciling；ok 为 false 时 res 为失败结果
func (p *Pipeline) prepare(ctx context.Context, c *Context, desc core.ProcessDescriptor) ([]float64, core.Result, bool) {
	logger := zerolog.Ctx(ctx)

	stageStart := time.Now()
	encoded, err := c.Encoder.Encode(desc)
	observeStage(core.StageEncoding, stageStart)
	if err != nil {
		return nil, core.Fail(core.StageEncoding, err), false
	}

	stageStart = time.Now()
	vector, report, err := p.reconciler.ReconcileWithReport(encoded, c.FeatureSchema)
	observeStage(core.StageReconciling, stageStart)
	if err != nil {
		return nil, core.Fail(core.StageReconciling, err), false
	}
	if len(report.Filled) > 0 {
		metrics.Count(metrics.FeatureFilled, int64(len(report.Filled)), nil)
	}
	if len(report.Dropped) > 0 {
		metrics.Count(metrics.FeatureDropped, int64(len(report.Dropped)), nil)
	}

	logger.Debug().
		Str("descriptor", desc.Key()).
		Strs("columns", c.FeatureSchema.Names()).
		Strs("filled", report.Filled).
		Strs("dropped", report.Dropped).
		Msg("features reconciled")
	return vector, core.Result{}, true
}

// shape 执行 Shaping 并评估合理性规则
func (p *Pipeline) shape(ctx context.Context, c *Context, desc core.ProcessDescriptor, raw []float64) core.Result {
	stageStart := time.Now()
	prediction, err := Shape(raw, c.OutputSchema)
	observeStage(core.StageShaping, stageStart)
	if err != nil {
		return core.Fail(core.StageShaping, err)
	}
	return core.Succeed(prediction, p.evaluateRules(ctx, prediction, desc))
}

// evaluateRules 规则只附加标记，从不修改预测值；规则执行出错只记录日志
func (p *Pipeline) evaluateRules(ctx context.Context, prediction *core.PredictionResult, desc core.ProcessDescriptor) []core.Flag {
	if len(p.rules) == 0 {
		return nil
	}
	input := desc.AsMap()
	var flags []core.Flag
	for _, rule := range p.rules {
		hit, err := rule.Evaluate(prediction.Values, input)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("rule", rule.Name).Msg("rule evaluation failed")
			continue
		}
		if hit {
			flags = append(flags, core.Flag{Rule: rule.Name, Message: rule.Message})
			metrics.Count(metrics.FlagCount, 1, []string{metrics.Tag("rule", rule.Name)})
		}
	}
	return flags
}

// finish 记录日志与指标
func (p *Pipeline) finish(ctx context.Context, res core.Result, start time.Time) core.Result {
	logger := zerolog.Ctx(ctx)
	if res.Err != nil {
		kind := string(res.Err.Kind)
		logger.Info().
			Str("stage", string(res.Stage)).
			Str("kind", kind).
			Str("field", res.Err.Field).
			Str("value", res.Err.Value).
			Msg(res.Err.Message)
		metrics.Count(metrics.RequestCount, 1, []string{metrics.Tag("status", "failed"), metrics.Tag("kind", kind)})
		return res
	}
	metrics.Count(metrics.RequestCount, 1, []string{metrics.Tag("status", "succeeded")})
	metrics.Timing(metrics.RequestLatency, time.Since(start), nil)
	return res
}

// predictError 将预测阶段的错误归类：调用方取消为 CanceledError，其余为领域错误
func predictError(ctx context.Context, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return core.ErrCanceled
	}
	return err
}

func observeStage(stage core.Stage, start time.Time) {
	metrics.Timing(metrics.StageLatency, time.Since(start), []string{metrics.Tag("stage", string(stage))})
}

var _ Runner = (*Pipeline)(nil)
