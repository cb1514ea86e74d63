package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rushteam/imputekit/core"
	"github.com/rushteam/imputekit/pkg/conv"
)

// KServe 协议版本
const (
	KServeV1 = "v1"
	KServeV2 = "v2"
)

// KServeClient 通过 KServe REST 协议调用远程多输出回归模型，实现 core.MLService。
//
// V1：POST /v1/models/{model}:predict，{"instances": [[...]]} → {"predictions": [[...]]}
// V2：POST /v2/models/{model}[/versions/{version}]/infer，输入张量 shape 为 [batch, features]，
// 输出张量 shape 为 [batch, outputs]（行优先展平）。
type KServeClient struct {
	cfg    ServiceConfig
	client *http.Client
}

// NewKServeClient 按服务配置创建客户端；client 为 nil 时使用 cfg.Timeout（默认 30 秒）
func NewKServeClient(cfg ServiceConfig, client *http.Client) *KServeClient {
	if cfg.Protocol == "" {
		cfg.Protocol = KServeV2
	}
	if cfg.InputName == "" {
		cfg.InputName = "input0"
	}
	if client == nil {
		timeout := time.Duration(cfg.Timeout) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &KServeClient{cfg: cfg, client: client}
}

// Protocol 返回实际使用的协议版本
func (c *KServeClient) Protocol() string { return c.cfg.Protocol }

type v2Input struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float64 `json:"data"`
}

type v2Output struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
	Data  []any  `json:"data"`
}

// Predict 每个实例返回一行多输出预测
func (c *KServeClient) Predict(ctx context.Context, req *core.MLPredictRequest) (*core.MLPredictResponse, error) {
	if req == nil || len(req.Instances) == 0 {
		return nil, fmt.Errorf("instances are required")
	}
	if c.cfg.Protocol == KServeV1 {
		return c.predictV1(ctx, req.Instances)
	}
	return c.predictV2(ctx, req.Instances)
}

func (c *KServeClient) predictV1(ctx context.Context, instances [][]float64) (*core.MLPredictResponse, error) {
	var out struct {
		Predictions []any `json:"predictions"`
	}
	url := fmt.Sprintf("%s/v1/models/%s:predict", c.cfg.Endpoint, c.cfg.ModelName)
	if err := c.do(ctx, http.MethodPost, url, map[string]any{"instances": instances}, &out); err != nil {
		return nil, err
	}

	predictions := make([][]float64, 0, len(out.Predictions))
	for i, v := range out.Predictions {
		row, err := toFloatRow(v)
		if err != nil {
			return nil, fmt.Errorf("kserve v1 prediction %d: %w", i, err)
		}
		predictions = append(predictions, row)
	}
	return &core.MLPredictResponse{Predictions: predictions, ModelVersion: c.cfg.ModelVersion}, nil
}

func (c *KServeClient) predictV2(ctx context.Context, instances [][]float64) (*core.MLPredictResponse, error) {
	rows, dim := len(instances), len(instances[0])
	data := make([]float64, 0, rows*dim)
	for _, row := range instances {
		if len(row) != dim {
			return nil, fmt.Errorf("kserve v2: ragged instances, expected width %d, got %d", dim, len(row))
		}
		data = append(data, row...)
	}

	url := fmt.Sprintf("%s/v2/models/%s", c.cfg.Endpoint, c.cfg.ModelName)
	if c.cfg.ModelVersion != "" {
		url += "/versions/" + c.cfg.ModelVersion
	}
	in := map[string]any{
		"inputs": []v2Input{{Name: c.cfg.InputName, Shape: []int{rows, dim}, Datatype: "FP64", Data: data}},
	}
	var out struct {
		ModelVersion string     `json:"model_version"`
		Outputs      []v2Output `json:"outputs"`
	}
	if err := c.do(ctx, http.MethodPost, url+"/infer", in, &out); err != nil {
		return nil, err
	}

	predictions, err := c.splitOutput(out.Outputs, rows)
	if err != nil {
		return nil, err
	}
	version := out.ModelVersion
	if version == "" {
		version = c.cfg.ModelVersion
	}
	return &core.MLPredictResponse{Predictions: predictions, ModelVersion: version}, nil
}

// splitOutput 选出输出张量（优先匹配 OutputName），按行还原为 [rows, outputs]
func (c *KServeClient) splitOutput(outputs []v2Output, rows int) ([][]float64, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("kserve v2 empty outputs")
	}
	tensor := &outputs[0]
	for i := range outputs {
		if c.cfg.OutputName != "" && outputs[i].Name == c.cfg.OutputName {
			tensor = &outputs[i]
			break
		}
	}

	flat, err := conv.ToFloat64Slice(tensor.Data)
	if err != nil {
		return nil, fmt.Errorf("kserve v2 output %s: %w", tensor.Name, err)
	}
	if len(flat)%rows != 0 {
		return nil, fmt.Errorf("kserve v2 output %s: %d values cannot be split into %d rows", tensor.Name, len(flat), rows)
	}
	width := len(flat) / rows
	if len(tensor.Shape) >= 2 && tensor.Shape[len(tensor.Shape)-1] != width {
		return nil, fmt.Errorf("kserve v2 output %s: shape %v disagrees with %d values", tensor.Name, tensor.Shape, len(flat))
	}
	predictions := make([][]float64, rows)
	for r := range predictions {
		predictions[r] = flat[r*width : (r+1)*width : (r+1)*width]
	}
	return predictions, nil
}

// toFloatRow 单输出模型返回标量时视为一列
func toFloatRow(v any) ([]float64, error) {
	if arr, ok := v.([]any); ok {
		return conv.ToFloat64Slice(arr)
	}
	if f, ok := conv.ToFloat64(v); ok {
		return []float64{f}, nil
	}
	return nil, fmt.Errorf("unexpected prediction type %T", v)
}

// Health V1 检查模型状态，V2 检查服务就绪
func (c *KServeClient) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/v2/health/ready", c.cfg.Endpoint)
	if c.cfg.Protocol == KServeV1 {
		url = fmt.Sprintf("%s/v1/models/%s", c.cfg.Endpoint, c.cfg.ModelName)
	}
	return c.do(ctx, http.MethodGet, url, nil, nil)
}

func (c *KServeClient) Close(context.Context) error { return nil }

// do 发送请求；非 200 响应带上响应体返回错误，out 非 nil 时解析 JSON 响应
func (c *KServeClient) do(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("kserve marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("kserve create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("kserve %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("kserve read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kserve %s %s: status=%d, body=%s", method, url, resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("kserve parse response: %w", err)
	}
	return nil
}

func (c *KServeClient) addAuth(req *http.Request) {
	auth := c.cfg.Auth
	if auth == nil {
		return
	}
	switch auth.Type {
	case "basic":
		req.SetBasicAuth(auth.Username, auth.Password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case "api_key":
		req.Header.Set("X-API-Key", auth.APIKey)
	}
}

var _ core.MLService = (*KServeClient)(nil)
