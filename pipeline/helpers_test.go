package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rushteam/imputekit/core"
	"github.com/rushteam/imputekit/feature"
	"github.com/rushteam/imputekit/model"
)

var (
	testFields     = core.DescriptorFields()
	testCategories = [][]string{
		{"primary_aluminium", "secondary_aluminium"},
		{"recycling", "smelting"},
		{"production", "refining"},
		{"asia", "europe"},
	}
	// 模型特征顺序与编码器不同；缺少 region_europe，多出编码器不会产出的 region_oceania
	testModelFeatures = []string{
		"region_asia",
		"region_oceania",
		"metal_primary_aluminium",
		"metal_secondary_aluminium",
		"route_recycling",
		"route_smelting",
		"stage_production",
		"stage_refining",
	}
	primaryAsia = core.ProcessDescriptor{Metal: "primary_aluminium", Route: "smelting", Stage: "production", Region: "asia"}
)

func newTestEncoder(t *testing.T, policy feature.UnknownPolicy) *feature.OneHotEncoder {
	t.Helper()
	enc, err := feature.NewOneHotEncoder(testFields, testCategories, nil, policy)
	if err != nil {
		t.Fatalf("NewOneHotEncoder: %v", err)
	}
	return enc.WithVersion("enc-test")
}

// newTestLinear 每个输出 j 的系数均为 j+1、截距为 10*j
func newTestLinear(t *testing.T) *model.LinearRegressor {
	t.Helper()
	coef := make([][]float64, len(core.AluminiumOutputs))
	intercepts := make([]float64, len(core.AluminiumOutputs))
	for j := range coef {
		coef[j] = make([]float64, len(testModelFeatures))
		for i := range coef[j] {
			coef[j][i] = float64(j + 1)
		}
		intercepts[j] = float64(10 * j)
	}
	m, err := model.NewLinearRegressor(testModelFeatures, nil, intercepts, coef, "lr-test")
	if err != nil {
		t.Fatalf("NewLinearRegressor: %v", err)
	}
	return m
}

func newTestContext(t *testing.T, policy feature.UnknownPolicy, r model.Regressor) *Context {
	t.Helper()
	c, err := NewContext(newTestEncoder(t, policy), r, WithExpectedOutputs(core.AluminiumOutputs))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return c
}

// fakeRegressor 按 fn 返回预测，并统计调用次数
type fakeRegressor struct {
	features []string
	outputs  []string
	calls    atomic.Int64
	fn       func(ctx context.Context, vectors [][]float64) ([][]float64, error)
}

func newFakeRegressor(fn func(ctx context.Context, vectors [][]float64) ([][]float64, error)) *fakeRegressor {
	return &fakeRegressor{features: testModelFeatures, outputs: core.AluminiumOutputs, fn: fn}
}

// constantRows 每行返回 values
func constantRows(values []float64) func(context.Context, [][]float64) ([][]float64, error) {
	return func(_ context.Context, vectors [][]float64) ([][]float64, error) {
		out := make([][]float64, len(vectors))
		for i := range out {
			out[i] = append([]float64(nil), values...)
		}
		return out, nil
	}
}

func (f *fakeRegressor) Name() string           { return "fake" }
func (f *fakeRegressor) Version() string        { return "fake-1" }
func (f *fakeRegressor) FeatureNames() []string { return f.features }
func (f *fakeRegressor) OutputNames() []string  { return f.outputs }
func (f *fakeRegressor) NumFeatures() int       { return len(f.features) }
func (f *fakeRegressor) NumOutputs() int        { return len(f.outputs) }

func (f *fakeRegressor) PredictBatch(ctx context.Context, vectors [][]float64) ([][]float64, error) {
	f.calls.Add(1)
	return f.fn(ctx, vectors)
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

// stumpBooster 生成一个在 split 特征上分裂的 XGBoost JSON：特征值 < 0.5 取 left，否则取 right
func stumpBooster(features []string, split int, left, right float64) string {
	names, _ := json.Marshal(features)
	return fmt.Sprintf(`{"learner":{"feature_names":%s,
"learner_model_param":{"base_score":"0E0","num_feature":"%d","num_target":"1"},
"gradient_booster":{"name":"gbtree","model":{"trees":[{"left_children":[1,-1,-1],"right_children":[2,-1,-1],
"split_indices":[%d,0,0],"split_conditions":[0.5,%g,%g],"default_left":[0,0,0]}],"tree_info":[0]}},
"objective":{"name":"reg:squarederror"}}}`, names, len(features), split, left, right)
}

// writeArtifacts 写入编码器与九输出 xgboost_multi 模型制品，返回两个路径
func writeArtifacts(t *testing.T, handleUnknown string) (string, string) {
	t.Helper()
	dir := t.TempDir()

	enc := map[string]any{
		"type":           "one_hot",
		"version":        "enc-file",
		"fields":         testFields,
		"categories":     testCategories,
		"handle_unknown": handleUnknown,
	}
	encData, _ := json.Marshal(enc)
	encPath := filepath.Join(dir, "categorical_encoder.json")
	if err := os.WriteFile(encPath, encData, 0o600); err != nil {
		t.Fatalf("write encoder: %v", err)
	}

	// 输出 j 在特征 j%8 上分裂：激活时取 100*(j+1)，否则取 j+1
	estimators := make([]string, len(core.AluminiumOutputs))
	for j := range estimators {
		estimators[j] = stumpBooster(testModelFeatures, j%len(testModelFeatures), float64(j+1), float64(100*(j+1)))
	}
	modelData := `{"format":"xgboost_multi","version":"xgb-file","estimators":[` + strings.Join(estimators, ",") + `]}`
	modelPath := filepath.Join(dir, "multioutput_xgboost_model.json")
	if err := os.WriteFile(modelPath, []byte(modelData), 0o600); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return encPath, modelPath
}
