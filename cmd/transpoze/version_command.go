package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dendotai/transpoze-app/internal/encoder"
)

func newVersionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the encoder in use",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			locator := encoder.NewLocator(cfg.Encoder.Path)
			path, err := locator.Locate()
			if err != nil {
				return err
			}
			info, err := locator.VersionInfo(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("read encoder version: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "FFmpeg:  %s\n", path)
			fmt.Fprintf(out, "Version: %s\n", info.Version)
			if info.Date != "" {
				fmt.Fprintf(out, "Built:   %s\n", info.Date)
			}
			if info.Updated != "" {
				fmt.Fprintf(out, "Updated: %s\n", info.Updated)
			}
			return nil
		},
	}
}
