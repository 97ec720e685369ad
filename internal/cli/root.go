package cli

import (
	"fmt"
	"os"
	"strings"

	"taskboard/internal/apiclient"
	"taskboard/internal/config"
	"taskboard/internal/format"
	"taskboard/internal/logging"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

type App struct {
	ConfigPath string
	Format     string
	PrettyJSON bool
	BaseURL    string
	LogLevel   string

	cfg *config.Config
	log logr.Logger
}

// flagBindings maps config keys to the flag names that override them. Flags that a
// command does not define are skipped.
var flagBindings = map[string]string{
	"client.base_url":        "base-url",
	"client.max_retries":     "retries",
	"client.base_delay":      "base-delay",
	"client.attempt_timeout": "attempt-timeout",
	"server.addr":            "addr",
	"server.db_path":         "db",
	"server.dedup_window":    "dedup-window",
	"log.level":              "log-level",
}

func NewRootCmd() *cobra.Command {
	app := &App{log: logr.Discard()}

	cmd := &cobra.Command{
		Use:          "taskboard",
		Short:        "Task board server, CLI and TUI",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Run the API server
  taskboard serve

  # Open the interactive board
  taskboard

  # Quick add (waits until the server confirms)
  taskboard add --status today "Call the plumber"

  # Direct task lookup (shortcut for: taskboard show <task-id>)
  taskboard task-abc123
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive board.
			if len(args) == 0 {
				return runBoard(cmd, app, boardOptions{})
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(app.ConfigPath, cmd.Flags(), flagBindings)
		if err != nil {
			return writeErr(cmd, err)
		}
		app.cfg = cfg
		log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
		if err != nil {
			return writeErr(cmd, err)
		}
		app.log = log
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", envOr("TASKBOARD_CONFIG", ""), "Path to config.yaml (default: $TASKBOARD_CONFIG_DIR/config.yaml or ~/.taskboard/config.yaml)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("TASKBOARD_FORMAT", "json"), "Output format (json|yaml)")
	cmd.PersistentFlags().StringVar(&app.BaseURL, "base-url", "", "API base URL (overrides client.base_url)")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", "", "Log level (error|info|debug|trace)")

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newAddCmd(app))
	cmd.AddCommand(newListCmd(app))
	cmd.AddCommand(newShowCmd(app))
	cmd.AddCommand(newEditCmd(app))
	cmd.AddCommand(newMoveCmd(app))
	cmd.AddCommand(newRmCmd(app))
	cmd.AddCommand(newBoardCmd(app))
	cmd.AddCommand(newExportCmd(app))
	cmd.AddCommand(newDocsCmd(app))
	cmd.AddCommand(newConfigCmd(app))

	return cmd
}

func newClient(app *App) (*apiclient.Client, error) {
	return apiclient.New(app.cfg.Client.BaseURL, apiclient.WithLogger(app.log))
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
