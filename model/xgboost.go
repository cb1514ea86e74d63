package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rushteam/imputekit/core"
)

// XGBoostRegressor 在本地执行 XGBoost 树模型推理。
//
// 支持两种多输出形态：
//   - sklearn MultiOutputRegressor：每个输出一个 Booster（estimators_），按顺序拼接输出
//   - 单个多目标 Booster（num_target > 1，tree_info 指明每棵树所属目标）
//
// 模型文件为 XGBoost save_model 产出的 JSON。特征名取自 learner.feature_names，
// 对应 estimators_[0].get_booster().feature_names。
//
// 数值语义与 XGBoost 一致：特征值与叶子值按 float32 比较与累加，
// 最后转换为 float64 输出。
type XGBoostRegressor struct {
	version      string
	featureNames []string
	outputNames  []string
	boosters     []*xgbBooster
	numOutputs   int
}

// xgbBooster 是单个 Booster 的可执行形式
type xgbBooster struct {
	numFeature int
	numTarget  int
	baseMargin []float32 // 每个目标的初始 margin
	trees      []*xgbTree
	treeInfo   []int // 每棵树所属目标
	transform  func(float32) float32
}

type xgbTree struct {
	left        []int32
	right       []int32
	splitIndex  []int32
	splitCond   []float32
	defaultLeft []bool
}

// NewXGBoostRegressor 从一组 XGBoost JSON 模型构建回归器
func NewXGBoostRegressor(models []json.RawMessage, featureNames, outputNames []string, version string) (*XGBoostRegressor, error) {
	if len(models) == 0 {
		return nil, core.NewSchemaError(core.ModuleModel, "xgboost artifact has no estimators")
	}

	r := &XGBoostRegressor{version: version}
	var boosterNames []string
	for i, raw := range models {
		var doc xgbModelJSON
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, core.NewSchemaError(core.ModuleModel, "parse xgboost estimator %d: %v", i, err)
		}
		b, err := doc.build()
		if err != nil {
			return nil, fmt.Errorf("xgboost estimator %d: %w", i, err)
		}
		names := doc.Learner.FeatureNames
		if i == 0 {
			boosterNames = names
		} else if len(names) > 0 && !equalStrings(names, boosterNames) {
			return nil, core.NewSchemaError(core.ModuleModel, "xgboost estimator %d was fit on a different feature set", i)
		}
		if i > 0 && b.numFeature != r.boosters[0].numFeature {
			return nil, core.NewSchemaError(core.ModuleModel, "xgboost estimator %d expects %d features, estimator 0 expects %d", i, b.numFeature, r.boosters[0].numFeature)
		}
		r.boosters = append(r.boosters, b)
		r.numOutputs += b.numTarget
	}

	// 特征顺序以制品为准：信封中显式声明的优先，其次是第一个 Booster 的 feature_names
	switch {
	case len(featureNames) > 0:
		if len(boosterNames) > 0 && !equalStrings(featureNames, boosterNames) {
			return nil, core.NewSchemaError(core.ModuleModel, "declared feature_names disagree with booster feature_names")
		}
		r.featureNames = append([]string(nil), featureNames...)
	case len(boosterNames) > 0:
		r.featureNames = append([]string(nil), boosterNames...)
	default:
		return nil, core.NewSchemaError(core.ModuleModel, "xgboost artifact does not expose feature names")
	}
	if len(r.featureNames) != r.boosters[0].numFeature {
		return nil, core.NewSchemaError(core.ModuleModel, "xgboost booster expects %d features but names %d", r.boosters[0].numFeature, len(r.featureNames))
	}

	if len(outputNames) == 0 && r.numOutputs == len(core.AluminiumOutputs) {
		outputNames = core.AluminiumOutputs
	}
	if len(outputNames) != r.numOutputs {
		return nil, core.NewSchemaError(core.ModuleModel, "xgboost artifact produces %d outputs but names %d", r.numOutputs, len(outputNames))
	}
	r.outputNames = append([]string(nil), outputNames...)
	return r, nil
}

func (r *XGBoostRegressor) Name() string    { return "xgboost" }
func (r *XGBoostRegressor) Version() string { return r.version }

func (r *XGBoostRegressor) FeatureNames() []string { return append([]string(nil), r.featureNames...) }
func (r *XGBoostRegressor) OutputNames() []string  { return append([]string(nil), r.outputNames...) }
func (r *XGBoostRegressor) NumFeatures() int       { return len(r.featureNames) }
func (r *XGBoostRegressor) NumOutputs() int        { return r.numOutputs }

// PredictBatch 批量预测；纯 CPU 计算，不检查 ctx
func (r *XGBoostRegressor) PredictBatch(_ context.Context, vectors [][]float64) ([][]float64, error) {
	if err := CheckInputs(vectors, r.NumFeatures()); err != nil {
		return nil, err
	}

	out := make([][]float64, len(vectors))
	fvals := make([]float32, r.NumFeatures())
	for row, v := range vectors {
		for i, x := range v {
			fvals[i] = float32(x)
		}
		preds := make([]float64, 0, r.numOutputs)
		for _, b := range r.boosters {
			for _, p := range b.predict(fvals) {
				preds = append(preds, float64(p))
			}
		}
		out[row] = preds
	}
	return out, nil
}

func (b *xgbBooster) predict(fvals []float32) []float32 {
	sums := make([]float32, b.numTarget)
	for i, t := range b.trees {
		sums[b.treeInfo[i]] += t.leaf(fvals)
	}
	for k := range sums {
		sums[k] = b.transform(sums[k] + b.baseMargin[k])
	}
	return sums
}

func (t *xgbTree) leaf(fvals []float32) float32 {
	node := int32(0)
	for t.left[node] != -1 {
		fv := fvals[t.splitIndex[node]]
		switch {
		case math.IsNaN(float64(fv)):
			if t.defaultLeft[node] {
				node = t.left[node]
			} else {
				node = t.right[node]
			}
		case fv < t.splitCond[node]:
			node = t.left[node]
		default:
			node = t.right[node]
		}
	}
	// XGBoost JSON 中叶子节点的值存放在 split_conditions
	return t.splitCond[node]
}

// xgbModelJSON 对应 XGBoost save_model 的 JSON 结构（只解析推理需要的部分）
type xgbModelJSON struct {
	Learner struct {
		FeatureNames      []string `json:"feature_names"`
		LearnerModelParam struct {
			BaseScore  string `json:"base_score"`
			NumFeature string `json:"num_feature"`
			NumTarget  string `json:"num_target"`
		} `json:"learner_model_param"`
		GradientBooster xgbGBTreeJSON `json:"gradient_booster"`
		Objective       struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
}

type xgbGBTreeJSON struct {
	Name  string `json:"name"`
	Model struct {
		Trees    []xgbTreeJSON `json:"trees"`
		TreeInfo []int         `json:"tree_info"`
	} `json:"model"`
	// Gbtree DART 模型把树放在 gradient_booster.gbtree 下
	Gbtree *xgbGBTreeJSON `json:"gbtree,omitempty"`
	// WeightDrop DART 每棵树的权重
	WeightDrop []float64 `json:"weight_drop,omitempty"`
}

type xgbTreeJSON struct {
	LeftChildren    []int32   `json:"left_children"`
	RightChildren   []int32   `json:"right_children"`
	SplitIndices    []int32   `json:"split_indices"`
	SplitConditions []float64 `json:"split_conditions"`
	DefaultLeft     flexBools `json:"default_left"`
	CategoriesNodes []int32   `json:"categories_nodes"`
	TreeParam       struct {
		NumNodes string `json:"num_nodes"`
	} `json:"tree_param"`
}

// flexBools 兼容 default_left 的两种编码：[0, 1] 或 [false, true]
type flexBools []bool

func (f *flexBools) UnmarshalJSON(data []byte) error {
	var bools []bool
	if err := json.Unmarshal(data, &bools); err == nil {
		*f = bools
		return nil
	}
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return fmt.Errorf("default_left must be a list of bools or ints: %w", err)
	}
	out := make([]bool, len(ints))
	for i, v := range ints {
		out[i] = v != 0
	}
	*f = out
	return nil
}

func (doc *xgbModelJSON) build() (*xgbBooster, error) {
	params := doc.Learner.LearnerModelParam
	numFeature, err := strconv.Atoi(params.NumFeature)
	if err != nil || numFeature <= 0 {
		return nil, core.NewSchemaError(core.ModuleModel, "invalid num_feature %q", params.NumFeature)
	}
	numTarget := 1
	if params.NumTarget != "" {
		if numTarget, err = strconv.Atoi(params.NumTarget); err != nil || numTarget <= 0 {
			return nil, core.NewSchemaError(core.ModuleModel, "invalid num_target %q", params.NumTarget)
		}
	}

	transform, toMargin, err := objectiveFuncs(doc.Learner.Objective.Name)
	if err != nil {
		return nil, err
	}
	baseScores, err := parseBaseScore(params.BaseScore, numTarget)
	if err != nil {
		return nil, err
	}
	baseMargin := make([]float32, numTarget)
	for i, s := range baseScores {
		baseMargin[i] = toMargin(s)
	}

	gb := doc.Learner.GradientBooster
	var weights []float64
	switch gb.Name {
	case "gbtree", "":
	case "dart":
		if gb.Gbtree == nil {
			return nil, core.NewSchemaError(core.ModuleModel, "dart booster has no gbtree section")
		}
		weights = gb.WeightDrop
		gb = *gb.Gbtree
	default:
		return nil, core.NewSchemaError(core.ModuleModel, "unsupported booster %q", gb.Name)
	}

	b := &xgbBooster{
		numFeature: numFeature,
		numTarget:  numTarget,
		baseMargin: baseMargin,
		transform:  transform,
	}
	for i, tj := range gb.Model.Trees {
		t, err := tj.build(numFeature)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		if weights != nil {
			if i >= len(weights) {
				return nil, core.NewSchemaError(core.ModuleModel, "dart weight_drop has %d entries for %d trees", len(weights), len(gb.Model.Trees))
			}
			w := float32(weights[i])
			for n := range t.splitCond {
				if t.left[n] == -1 {
					t.splitCond[n] *= w
				}
			}
		}
		group := 0
		if i < len(gb.Model.TreeInfo) {
			group = gb.Model.TreeInfo[i]
		}
		if group < 0 || group >= numTarget {
			return nil, core.NewSchemaError(core.ModuleModel, "tree %d belongs to target %d of %d", i, group, numTarget)
		}
		b.trees = append(b.trees, t)
		b.treeInfo = append(b.treeInfo, group)
	}
	return b, nil
}

func (tj *xgbTreeJSON) build(numFeature int) (*xgbTree, error) {
	if len(tj.CategoriesNodes) > 0 {
		return nil, core.NewSchemaError(core.ModuleModel, "categorical splits are not supported")
	}
	n := len(tj.LeftChildren)
	if n == 0 {
		return nil, core.NewSchemaError(core.ModuleModel, "empty tree")
	}
	if tj.TreeParam.NumNodes != "" {
		if declared, err := strconv.Atoi(tj.TreeParam.NumNodes); err == nil && declared != n {
			return nil, core.NewSchemaError(core.ModuleModel, "tree declares %d nodes but has %d", declared, n)
		}
	}
	if len(tj.RightChildren) != n || len(tj.SplitIndices) != n || len(tj.SplitConditions) != n || len(tj.DefaultLeft) != n {
		return nil, core.NewSchemaError(core.ModuleModel, "tree arrays have inconsistent lengths")
	}

	t := &xgbTree{
		left:        tj.LeftChildren,
		right:       tj.RightChildren,
		splitIndex:  tj.SplitIndices,
		splitCond:   make([]float32, n),
		defaultLeft: tj.DefaultLeft,
	}
	for i := 0; i < n; i++ {
		t.splitCond[i] = float32(tj.SplitConditions[i])
		l, r := t.left[i], t.right[i]
		if l == -1 {
			continue
		}
		if l <= int32(i) || int(l) >= n || r <= int32(i) || int(r) >= n {
			return nil, core.NewSchemaError(core.ModuleModel, "node %d has invalid children (%d, %d)", i, l, r)
		}
		if idx := t.splitIndex[i]; idx < 0 || int(idx) >= numFeature {
			return nil, core.NewSchemaError(core.ModuleModel, "node %d splits on feature %d of %d", i, idx, numFeature)
		}
	}
	return t, nil
}

// objectiveFuncs 返回输出变换及 base_score 到 margin 的变换
func objectiveFuncs(objective string) (func(float32) float32, func(float64) float32, error) {
	identity := func(v float32) float32 { return v }
	switch objective {
	case "", "reg:squarederror", "reg:linear", "reg:absoluteerror", "reg:pseudohubererror",
		"reg:quantileerror", "reg:squaredlogerror":
		return identity, func(s float64) float32 { return float32(s) }, nil
	case "count:poisson", "reg:gamma", "reg:tweedie":
		return func(v float32) float32 { return float32(math.Exp(float64(v))) },
			func(s float64) float32 { return float32(math.Log(s)) }, nil
	case "reg:logistic":
		return func(v float32) float32 { return float32(1 / (1 + math.Exp(-float64(v)))) },
			func(s float64) float32 { return float32(-math.Log(1/s - 1)) }, nil
	default:
		return nil, nil, core.NewSchemaError(core.ModuleModel, "unsupported objective %q", objective)
	}
}

// parseBaseScore 解析 "5E-1" 或 "[5E-1,3E-1]" 形式的 base_score
func parseBaseScore(raw string, numTarget int) ([]float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "0.5"
	}
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	parts := strings.Split(raw, ",")
	scores := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, core.NewSchemaError(core.ModuleModel, "invalid base_score %q", raw)
		}
		scores = append(scores, v)
	}
	if len(scores) == 1 && numTarget > 1 {
		for len(scores) < numTarget {
			scores = append(scores, scores[0])
		}
	}
	if len(scores) != numTarget {
		return nil, core.NewSchemaError(core.ModuleModel, "base_score has %d values for %d targets", len(scores), numTarget)
	}
	return scores, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var _ Regressor = (*XGBoostRegressor)(nil)
