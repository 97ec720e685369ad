package cli

import (
	"fmt"
	"strings"

	"taskboard/internal/docs"
	"taskboard/internal/format"
	"taskboard/internal/tui"

	"github.com/spf13/cobra"
)

func newDocsCmd(app *App) *cobra.Command {
	var render bool
	var width int
	cmd := &cobra.Command{
		Use:   "docs [topic]",
		Short: "Built-in documentation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return writeOut(cmd, app, format.Envelope{Data: docs.Topics()})
			}
			body, ok := docs.Get(args[0])
			if !ok {
				return writeErr(cmd, fmt.Errorf("unknown topic %q (available: %s)", args[0], strings.Join(docs.Topics(), ", ")))
			}
			if render {
				body = tui.RenderMarkdown(body, width)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(body, "\n"))
			return err
		},
	}
	cmd.Flags().BoolVar(&render, "render", false, "Render markdown for the terminal")
	cmd.Flags().IntVar(&width, "width", 80, "Wrap width for --render")
	return cmd
}
