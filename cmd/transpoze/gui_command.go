package main

import (
	"github.com/spf13/cobra"

	"github.com/dendotai/transpoze-app/frontend"
	"github.com/dendotai/transpoze-app/internal/bootstrap"
)

func newGUICommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "gui",
		Short: "Open the desktop app",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGUI(ctx)
		},
	}
}

func runGUI(ctx *commandContext) error {
	app, err := bootstrap.NewWithAssets(frontend.Assets, ctx.configFlagValue())
	if err != nil {
		return err
	}
	return app.Run()
}
