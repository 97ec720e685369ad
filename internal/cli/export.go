package cli

import (
	"fmt"
	"strings"

	"taskboard/internal/format"
	"taskboard/internal/publish"

	"github.com/spf13/cobra"
)

func newExportCmd(app *App) *cobra.Command {
	var f filterFlags
	var to string
	var title string
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tasks as markdown (index.md plus one page per task)",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := f.filter()
			if err != nil {
				return writeErr(cmd, err)
			}
			client, err := newClient(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			tasks, err := client.ListTasks(cmd.Context(), filter)
			if err != nil {
				return writeErr(cmd, err)
			}
			if strings.TrimSpace(to) == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), publish.RenderBoardMarkdown(title, tasks, false))
				return err
			}
			res, err := publish.WriteBoard(tasks, to, publish.WriteOptions{Title: title, Overwrite: overwrite})
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, format.Envelope{Data: res})
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&to, "to", "", "Output directory (default: print the board to stdout)")
	cmd.Flags().StringVar(&title, "title", "", "Board title")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing files")
	return cmd
}
