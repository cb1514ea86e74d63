package main

import (
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rushteam/imputekit/config"
	"github.com/rushteam/imputekit/pkg/metrics"
	"github.com/rushteam/imputekit/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load artifacts and serve the HTTP inference API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			defer metrics.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// 制品加载失败直接退出，不接收任何请求
			rt, err := config.Build(ctx, cfg)
			if err != nil {
				log.Error().Err(err).Msg("failed to load artifacts")
				return err
			}
			defer rt.Close()

			srv := server.New(rt.Runner, rt.Monitor, server.Options{
				Addr:            cfg.Server.Addr,
				Mode:            cfg.Server.Mode,
				ReadTimeout:     cfg.Server.ReadTimeout,
				WriteTimeout:    cfg.Server.WriteTimeout,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
				CORSOrigins:     cfg.Server.CORSOrigins,
				MaxBatchSize:    cfg.Server.MaxBatchSize,
			})
			return srv.Run(ctx)
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	_ = opts.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}
