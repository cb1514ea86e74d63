package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rushteam/imputekit/config"
	"github.com/rushteam/imputekit/core"
)

func newPredictCmd(opts *rootOptions) *cobra.Command {
	var (
		raw  string
		desc core.ProcessDescriptor
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run a single prediction and print the response JSON",
		Example: `  imputekit predict --metal primary_aluminium --route smelting --stage production --region asia
  imputekit predict --json '{"metal":"primary_aluminium","route":"smelting","stage":"production","region":"asia"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := desc.AsMap()
			input := make(map[string]any, len(payload))
			for k, v := range payload {
				input[k] = v
			}
			if raw != "" {
				input = nil
				if err := json.Unmarshal([]byte(raw), &input); err != nil {
					return fmt.Errorf("--json must be a JSON object: %w", err)
				}
			}

			cfg, err := opts.load()
			if err != nil {
				return err
			}
			rt, err := config.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			res := rt.Runner.RunMap(cmd.Context(), input)
			out := map[string]any{"success": res.OK()}
			if res.OK() {
				out["predicted_inputs"] = res.Prediction
				if len(res.Flags) > 0 {
					out["flags"] = res.Flags
				}
			} else {
				out["error"] = res.Err.Message
				out["kind"] = res.Err.Kind
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if !res.OK() {
				return res.Err
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&desc.Metal, "metal", "", "metal category")
	f.StringVar(&desc.Route, "route", "", "production route")
	f.StringVar(&desc.Stage, "stage", "", "process stage")
	f.StringVar(&desc.Region, "region", "", "region")
	f.StringVar(&raw, "json", "", "raw JSON descriptor (overrides the individual flags)")
	return cmd
}
