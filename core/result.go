package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// PredictionResult 是输出字段名到有限 float64 的映射。
// Names 保留 OutputSchema 顺序，JSON 序列化时按该顺序输出。
type PredictionResult struct {
	Names  []string
	Values map[string]float64
}

// Len 返回输出字段数量
func (r *PredictionResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Names)
}

// Get 按字段名取值
func (r *PredictionResult) Get(name string) (float64, bool) {
	if r == nil {
		return 0, false
	}
	v, ok := r.Values[name]
	return v, ok
}

// MarshalJSON 按 Names 顺序输出 {"electricity_MJ": 1.0, ...}
func (r *PredictionResult) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.Names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(r.Values[name], 'g', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 解析 JSON 对象，保留对象中出现的 key 顺序（用于缓存回读）
func (r *PredictionResult) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("prediction result must be a JSON object")
	}
	r.Names = r.Names[:0]
	r.Values = make(map[string]float64)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("prediction result key must be a string")
		}
		var v float64
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		r.Names = append(r.Names, key)
		r.Values[key] = v
	}
	_, err = dec.Token()
	return err
}

// Flag 是可信度规则命中后附加在结果上的标记。
// 结果本身不会被修改（不截断、不裁剪）。
type Flag struct {
	Rule    string `json:"rule"`
	Message string `json:"message,omitempty"`
}

// Stage 是单次请求在 Pipeline 中所处的阶段
type Stage string

const (
	StageReceived    Stage = "received"
	StageEncoding    Stage = "encoding"
	StageReconciling Stage = "reconciling"
	StagePredicting  Stage = "predicting"
	StageShaping     Stage = "shaping"
	StageSucceeded   Stage = "succeeded"
	StageFailed      Stage = "failed"
)

// Result 是一次推理的显式结果：要么有 Prediction，要么有 Err，二者不会同时存在。
type Result struct {
	Prediction *PredictionResult
	Flags      []Flag
	Err        *DomainError
	// Stage 成功时为 StageSucceeded，失败时为出错的阶段
	Stage Stage
}

// OK 表示推理成功
func (r Result) OK() bool { return r.Err == nil && r.Prediction != nil }

// Succeed 构建成功结果
func Succeed(p *PredictionResult, flags []Flag) Result {
	return Result{Prediction: p, Flags: flags, Stage: StageSucceeded}
}

// Fail 构建失败结果；非 DomainError 会被归类为 PredictionError
func Fail(stage Stage, err error) Result {
	de := AsDomainError(err)
	if de == nil {
		de = WrapPredictionError(ModulePipeline, err)
	}
	return Result{Err: de, Stage: stage}
}
