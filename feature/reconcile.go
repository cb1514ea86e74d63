package feature

import (
	"sort"

	"github.com/rushteam/imputekit/core"
)

// DefaultFillValue 是缺失特征的默认值。
// 对 One-Hot 类编码，缺失表示“该特征未被当前输入激活”。
const DefaultFillValue = 0.0

// ReconcileReport 记录一次对齐中被补齐和被丢弃的特征，用于诊断日志与监控。
type ReconcileReport struct {
	// Filled 在 Schema 中但编码结果中缺失、被填充默认值的特征（按 Schema 顺序）
	Filled []string
	// Dropped 编码器产出但不在 Schema 中、被丢弃的特征（按名称排序）
	Dropped []string
}

// Reconciler 将任意编码结果按 FeatureSchema 对齐为定长、定序的特征向量。
//
// 模型按位置而不是按名字读取特征，任何重排都会静默地破坏预测，
// 因此这是唯一允许补齐特征的地方。
type Reconciler struct {
	// Default 缺失特征的填充值
	Default float64
	// Monitor 可选，记录每个特征的补齐/丢弃次数
	Monitor Monitor
}

// NewReconciler 创建使用 DefaultFillValue 的对齐器
func NewReconciler() *Reconciler {
	return &Reconciler{Default: DefaultFillValue}
}

// WithMonitor 设置监控
func (r *Reconciler) WithMonitor(m Monitor) *Reconciler {
	r.Monitor = m
	return r
}

// Reconcile 按 schema 顺序构建特征向量
func (r *Reconciler) Reconcile(encoded map[string]float64, schema core.FeatureSchema) ([]float64, error) {
	vector, _, err := r.ReconcileWithReport(encoded, schema)
	return vector, err
}

// ReconcileWithReport 按 schema 顺序构建特征向量，并返回补齐/丢弃明细
//
// 对 schema 中的每个特征（按顺序）：
//   - 编码结果中存在：复制其值
//   - 不存在：填充 Default
//
// 编码结果中不在 schema 里的特征被丢弃，不会以任何形式进入向量。
func (r *Reconciler) ReconcileWithReport(encoded map[string]float64, schema core.FeatureSchema) ([]float64, ReconcileReport, error) {
	var report ReconcileReport
	if schema.Empty() {
		return nil, report, core.NewSchemaError(core.ModuleFeature, "feature schema is empty or unavailable")
	}

	vector := make([]float64, schema.Len())
	for i := 0; i < schema.Len(); i++ {
		name := schema.At(i)
		if v, ok := encoded[name]; ok {
			vector[i] = v
		} else {
			vector[i] = r.Default
			report.Filled = append(report.Filled, name)
		}
	}

	for name := range encoded {
		if !schema.Contains(name) {
			report.Dropped = append(report.Dropped, name)
		}
	}
	sort.Strings(report.Dropped)

	if r.Monitor != nil {
		r.Monitor.RecordReconcile(report)
	}
	return vector, report, nil
}

// Reconcile 使用默认对齐器构建特征向量
func Reconcile(encoded map[string]float64, schema core.FeatureSchema) ([]float64, error) {
	return NewReconciler().Reconcile(encoded, schema)
}

// MissingFeatures 返回 schema 中编码器永远不会产出的特征名。
// 启动时用于提示编码器与模型的训练特征集不一致（例如模型重训后编码器未更新）。
func MissingFeatures(namesOut []string, schema core.FeatureSchema) []string {
	produced := make(map[string]struct{}, len(namesOut))
	for _, n := range namesOut {
		produced[n] = struct{}{}
	}
	var missing []string
	for _, n := range schema.Names() {
		if _, ok := produced[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// UnusedFeatures 返回编码器产出但不在 schema 中的特征名
func UnusedFeatures(namesOut []string, schema core.FeatureSchema) []string {
	var unused []string
	for _, n := range namesOut {
		if !schema.Contains(n) {
			unused = append(unused, n)
		}
	}
	return unused
}
