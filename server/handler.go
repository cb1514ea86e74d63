package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/rushteam/imputekit/core"
)

// success 成功响应
type success struct {
	Success         bool                   `json:"success"`
	PredictedInputs *core.PredictionResult `json:"predicted_inputs"`
	Flags           []core.Flag            `json:"flags,omitempty"`
}

// failure 失败响应；Kind 为错误分类，便于调用方分支
type failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Field   string `json:"field,omitempty"`
}

// batchResponse 批量响应：results 与请求顺序一一对应，每行独立成功或失败
type batchResponse struct {
	Success bool  `json:"success"`
	Results []any `json:"results"`
}

// statusFor 错误分类到 HTTP 状态码
func statusFor(err *core.DomainError) int {
	switch err.Kind {
	case core.KindSchema:
		return http.StatusBadRequest
	case core.KindEncoding:
		return http.StatusUnprocessableEntity
	case core.KindUnavailable, core.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toBody(res core.Result) any {
	if res.OK() {
		return success{Success: true, PredictedInputs: res.Prediction, Flags: res.Flags}
	}
	return failure{Success: false, Error: res.Err.Message, Kind: string(res.Err.Kind), Field: res.Err.Field}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, failure{Success: false, Error: msg, Kind: string(core.KindSchema)})
}

// predict POST /predict/aluminium/inputs
//
//	{"metal": "primary_aluminium", "route": "smelting", "stage": "production", "region": "asia"}
func (s *Server) predict(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, fmt.Sprintf("request body must be a JSON object: %v", err))
		return
	}

	res := s.runner.RunMap(c.Request.Context(), payload)
	if !res.OK() {
		c.JSON(statusFor(res.Err), toBody(res))
		return
	}
	c.JSON(http.StatusOK, toBody(res))
}

// predictBatch POST /predict/aluminium/inputs/batch，请求体为描述符数组
func (s *Server) predictBatch(c *gin.Context) {
	var payloads []map[string]any
	if err := c.ShouldBindJSON(&payloads); err != nil {
		badRequest(c, fmt.Sprintf("request body must be a JSON array of objects: %v", err))
		return
	}
	if len(payloads) == 0 {
		badRequest(c, "batch is empty")
		return
	}
	if len(payloads) > s.opts.MaxBatchSize {
		badRequest(c, fmt.Sprintf("batch size %d exceeds limit %d", len(payloads), s.opts.MaxBatchSize))
		return
	}
	if s.runner.Context() == nil {
		c.JSON(http.StatusServiceUnavailable, failure{Success: false, Error: core.ErrUnavailable.Message, Kind: string(core.KindUnavailable)})
		return
	}

	results := make([]core.Result, len(payloads))
	descs := make([]core.ProcessDescriptor, 0, len(payloads))
	rows := make([]int, 0, len(payloads))
	for i, p := range payloads {
		desc, err := core.DescriptorFromMap(p)
		if err != nil {
			results[i] = core.Fail(core.StageReceived, err)
			continue
		}
		descs = append(descs, desc)
		rows = append(rows, i)
	}
	if len(descs) > 0 {
		for j, res := range s.runner.RunBatch(c.Request.Context(), descs) {
			results[rows[j]] = res
		}
	}

	body := batchResponse{Success: true, Results: make([]any, len(results))}
	for i, res := range results {
		if !res.OK() {
			body.Success = false
		}
		body.Results[i] = toBody(res)
	}
	c.JSON(http.StatusOK, body)
}

// healthChecker 由远程模型（model.RPCRegressor）实现
type healthChecker interface {
	Health(ctx context.Context) error
}

// health GET /health：制品加载完成才视为就绪
func (s *Server) health(c *gin.Context) {
	pc := s.runner.Context()
	if pc == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	if hc, ok := pc.Regressor.(healthChecker); ok {
		if err := hc.Health(c.Request.Context()); err != nil {
			zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("model backend unhealthy")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"model_version":   pc.Regressor.Version(),
		"encoder_version": pc.Encoder.Version(),
	})
}

// modelInfo GET /v1/model
func (s *Server) modelInfo(c *gin.Context) {
	pc := s.runner.Context()
	if pc == nil {
		c.JSON(http.StatusServiceUnavailable, failure{Success: false, Error: core.ErrUnavailable.Message, Kind: string(core.KindUnavailable)})
		return
	}
	c.JSON(http.StatusOK, pc.Info())
}

// featureStats GET /v1/debug/features
func (s *Server) featureStats(c *gin.Context) {
	if s.monitor == nil {
		c.JSON(http.StatusNotFound, failure{Success: false, Error: "feature monitor is not enabled"})
		return
	}
	c.JSON(http.StatusOK, s.monitor.Snapshot())
}
