package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dendotai/transpoze-app/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show finished conversions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.History.Backend, cfg.HistoryPath(), cfg.History.Limit)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if clearAll {
				if err := store.Clear(cmd.Context()); err != nil {
					return fmt.Errorf("clear history: %w", err)
				}
				fmt.Fprintln(out, "History cleared")
				return nil
			}

			entries, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("load history: %w", err)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No conversions yet")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					filepath.Base(entry.OutputPath),
					entry.PresetName,
					humanize.Bytes(uint64(max(entry.FileSizeBefore, 0))),
					humanize.Bytes(uint64(max(entry.FileSizeAfter, 0))),
					savedPercent(entry.FileSizeBefore, entry.FileSizeAfter),
					humanize.Time(entry.CompletedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Output", "Preset", "Before", "After", "Saved", "Completed"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearAll, "clear", false, "Remove every history entry")
	return cmd
}

func savedPercent(before, after int64) string {
	if before <= 0 || after <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", float64(before-after)/float64(before)*100)
}
