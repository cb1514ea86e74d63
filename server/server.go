package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/rushteam/imputekit/feature"
	"github.com/rushteam/imputekit/pipeline"
)

// 路由
const (
	PathPredict      = "/predict/aluminium/inputs"
	PathPredictBatch = "/predict/aluminium/inputs/batch"
	PathHealth       = "/health"
	PathModel        = "/v1/model"
	PathFeatures     = "/v1/debug/features"
)

// Options HTTP 服务配置
type Options struct {
	Addr            string
	Mode            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	MaxBatchSize    int
}

// Server 是推理 HTTP 服务
type Server struct {
	runner  pipeline.Runner
	monitor *feature.MemoryMonitor
	opts    Options
	router  *gin.Engine
	http    *http.Server
}

// New 创建服务并注册路由；monitor 可为 nil
func New(runner pipeline.Runner, monitor *feature.MemoryMonitor, opts Options) *Server {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 256
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 15 * time.Second
	}

	s := &Server{runner: runner, monitor: monitor, opts: opts}
	s.router = gin.New()
	s.router.Use(RequestID(), HTTPLogger(), HTTPRecovery(), cors.New(corsConfig(opts.CORSOrigins)))
	s.routes()
	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", HeaderRequestID}
	cfg.ExposeHeaders = []string{HeaderRequestID}
	return cfg
}

func (s *Server) routes() {
	s.router.POST(PathPredict, s.predict)
	s.router.POST(PathPredictBatch, s.predictBatch)
	s.router.GET(PathHealth, s.health)
	s.router.GET(PathModel, s.modelInfo)
	s.router.GET(PathFeatures, s.featureStats)
}

// Handler 返回 http.Handler（测试使用）
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run 启动服务，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.opts.Addr).Msg("http server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Dur("timeout", s.opts.ShutdownTimeout).Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
