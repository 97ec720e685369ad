package cli

import (
	"taskboard/internal/config"
	"taskboard/internal/format"

	"github.com/spf13/cobra"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (file, environment and flags merged)",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := app.ConfigPath
			if path == "" {
				p, err := config.Path()
				if err != nil {
					return writeErr(cmd, err)
				}
				path = p
			}
			return writeOut(cmd, app, format.Envelope{Data: app.cfg, Meta: map[string]any{"path": path}})
		},
	})
	return cmd
}
