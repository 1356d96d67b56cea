package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dendotai/transpoze-app/internal/domain"
)

func newPresetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "presets",
		Short:       "List conversion presets",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(domain.Presets()))
			for _, preset := range domain.Presets() {
				crf := "-"
				if preset.CRF != nil {
					crf = strconv.Itoa(*preset.CRF)
				}
				rows = append(rows, []string{
					preset.Name,
					crf,
					valueOrDash(preset.Bitrate),
					valueOrDash(preset.Scale),
					yesNo(preset.FastStart),
					preset.Description,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Name", "CRF", "Bitrate", "Scale", "Fast start", "Description"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func valueOrDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
