package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dendotai/transpoze-app/internal/diagnostics"
	"github.com/dendotai/transpoze-app/internal/domain"
	"github.com/dendotai/transpoze-app/internal/encoder"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the encoder and required directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.settingsStore()
			if err != nil {
				return err
			}
			settings, err := store.Load()
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}

			checker := diagnostics.NewChecker(encoder.NewLocator(cfg.Encoder.Path), cfg.Paths.DataDir, cfg.Paths.CacheDir)
			report := checker.Run(cmd.Context(), settings)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config: %s\n", ctx.configPath)
			fmt.Fprintln(out, renderDiagnostics(report))
			if report.HasFailures {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
}

func renderDiagnostics(report domain.DiagnosticReport) string {
	rows := make([][]string, 0, len(report.Items))
	for _, item := range report.Items {
		message := item.Message
		if item.Hint != "" && item.Status != domain.DiagnosticStatusPass {
			message += "\n" + item.Hint
		}
		rows = append(rows, []string{item.Name, strings.ToUpper(string(item.Status)), message})
	}
	return renderTable([]string{"Check", "Status", "Details"}, rows, nil)
}
