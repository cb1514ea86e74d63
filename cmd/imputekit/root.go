package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rushteam/imputekit/config"
	"github.com/rushteam/imputekit/pkg/logger"
	"github.com/rushteam/imputekit/pkg/metrics"
)

type rootOptions struct {
	cfgFile string
	v       *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: config.New()}

	cmd := &cobra.Command{
		Use:           "imputekit",
		Short:         "Aluminium process-input inference service",
		Long:          "Predicts the nine resource inputs of an aluminium process (energy carriers and material feedstocks) from a categorical process descriptor.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default is ./imputekit.yaml or /etc/imputekit/imputekit.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", logger.FormatJSON, "log format: json or console")
	flags.String("encoder", "", "encoder artifact location (path, http(s)://, s3://, redis://)")
	flags.String("model", "", "model artifact location (path, http(s)://, s3://, redis://)")
	flags.String("handle-unknown", "", "override the encoder's unseen-category policy: error or ignore")
	_ = opts.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = opts.v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = opts.v.BindPFlag("artifacts.encoder", flags.Lookup("encoder"))
	_ = opts.v.BindPFlag("artifacts.model", flags.Lookup("model"))
	_ = opts.v.BindPFlag("encoder.handle_unknown", flags.Lookup("handle-unknown"))

	cmd.AddCommand(
		newServeCmd(opts),
		newPredictCmd(opts),
		newInspectCmd(opts),
	)
	return cmd
}

// load 读取配置并初始化日志与指标
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.LoadWith(o.v, o.cfgFile)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	if err := metrics.Init(cfg.Metrics); err != nil {
		return nil, err
	}
	return cfg, nil
}
