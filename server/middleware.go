package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rushteam/imputekit/pkg/metrics"
)

// HeaderRequestID 请求 ID 头；客户端未提供时生成 UUID
const HeaderRequestID = "X-Request-ID"

// 指标名称
const (
	apiRequestCount   = "api.request.count"
	apiRequestLatency = "api.request.latency"
)

// RequestID 为每个请求注入带 request_id 的 logger，下游通过 zerolog.Ctx(ctx) 获取
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)

		l := log.With().Str("request_id", id).Logger()
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
		c.Next()
	}
}

// HTTPLogger 记录访问日志与接口指标
func HTTPLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		statusCode := c.Writer.Status()

		tags := []string{
			metrics.Tag("path", path),
			metrics.Tag("method", method),
			metrics.Tag("status", strconv.Itoa(statusCode)),
		}
		metrics.Count(apiRequestCount, 1, tags)
		metrics.Timing(apiRequestLatency, latency, tags)

		zerolog.Ctx(c.Request.Context()).Info().
			Str("client_ip", c.ClientIP()).
			Str("method", method).
			Str("path", path).
			Int("status", statusCode).
			Dur("latency", latency).
			Msg("[access]")
	}
}

// HTTPRecovery 捕获 panic，返回统一的失败响应
func HTTPRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		zerolog.Ctx(c.Request.Context()).Error().Interface("panic", recovered).Msg("request panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, failure{Success: false, Error: "internal server error"})
	})
}
