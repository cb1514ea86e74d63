package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/rushteam/imputekit/config"
	"github.com/rushteam/imputekit/core"
)

func newInspectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Load artifacts and print the resolved feature/output schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			rt, err := config.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			pc := rt.Runner.Context()
			if pc == nil {
				return core.ErrUnavailable
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(pc.Info())
		},
	}
}
