package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskboard/internal/format"
	"taskboard/internal/model"
	"taskboard/internal/optimistic"
	"taskboard/internal/publish"
	"taskboard/internal/statusutil"
	"taskboard/internal/tui"

	"github.com/spf13/cobra"
)

func newAddCmd(app *App) *cobra.Command {
	var status string
	var description string
	var tags []string
	var projectID string
	var goalID string
	var size string
	var effort int
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "add <title...>",
		Short: "Quick-add a task and wait for the server to confirm it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(strings.Join(args, " "))
			if title == "" {
				return writeErr(cmd, optimistic.ErrBlankTitle)
			}
			bucket, err := statusutil.NormalizeBucket(status)
			if err != nil {
				return writeErr(cmd, err)
			}
			fields := optimistic.Fields{
				Description: description,
				Tags:        tags,
				ProjectID:   optionalString(projectID),
				GoalID:      optionalString(goalID),
			}
			if strings.TrimSpace(size) != "" {
				sz, err := model.ParseSize(size)
				if err != nil {
					return writeErr(cmd, err)
				}
				fields.Size = &sz
			}
			if cmd.Flags().Changed("effort") {
				if effort < 0 {
					return writeErr(cmd, errors.New("--effort must not be negative"))
				}
				fields.EffortMinutes = &effort
			}

			sess, err := newSession(app, nil)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer sess.Close()

			ctx := cmd.Context()
			active := model.TaskFilter{Statuses: []string{bucket}}
			if err := sess.preload(ctx, active); err != nil {
				// Positioning falls back to an empty bucket; the create itself still retries.
				app.log.V(1).Info("could not load bucket before add", "bucket", bucket, "error", err.Error())
				sess.cache.Ensure(active)
			}

			localID, err := sess.mgr.QuickAdd(bucket, title, active, fields)
			if err != nil {
				return writeErr(cmd, err)
			}

			waitCtx := ctx
			if wait > 0 {
				var cancel context.CancelFunc
				waitCtx, cancel = context.WithTimeout(ctx, wait)
				defer cancel()
			}
			state, err := sess.mgr.Wait(waitCtx, localID)
			if err != nil {
				sess.mgr.Cancel(localID)
				return writeErr(cmd, canceledError{localID: localID})
			}
			switch state {
			case model.SyncError:
				return writeErr(cmd, syncFailedError{localID: localID, title: title, attempts: sess.mgr.Attempts(localID)})
			default:
				task, ok := sess.confirmedTask(localID)
				if !ok {
					return writeErr(cmd, canceledError{localID: localID})
				}
				return writeOut(cmd, app, format.Envelope{Data: task})
			}
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", statusutil.Backlog, "Bucket (backlog|week|today|doing|done)")
	cmd.Flags().StringVar(&description, "description", "", "Description (markdown)")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().StringVar(&projectID, "project", "", "Project id")
	cmd.Flags().StringVar(&goalID, "goal", "", "Goal id")
	cmd.Flags().StringVar(&size, "size", "", "Size (XS|S|M|L|XL)")
	cmd.Flags().IntVar(&effort, "effort", 0, "Effort estimate in minutes")
	cmd.Flags().DurationVar(&wait, "wait", 0, "Give up (and discard the task) after this long; 0 waits for the retries to finish")
	cmd.Flags().Int("retries", 0, "Attempts before giving up (overrides client.max_retries)")
	cmd.Flags().Duration("base-delay", 0, "First retry delay, doubled per failure (overrides client.base_delay)")
	cmd.Flags().Duration("attempt-timeout", 0, "Timeout per create request (overrides client.attempt_timeout)")
	return cmd
}

func newListCmd(app *App) *cobra.Command {
	var f filterFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
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
			if tasks == nil {
				tasks = []model.Task{}
			}
			return writeOut(cmd, app, format.Envelope{Data: tasks, Meta: map[string]any{"count": len(tasks)}})
		},
	}
	f.register(cmd)
	return cmd
}

func newShowCmd(app *App) *cobra.Command {
	var render bool
	var width int
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			t, err := client.GetTask(cmd.Context(), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if render {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), tui.RenderMarkdown(publish.RenderTaskMarkdown(t), width))
				return err
			}
			return writeOut(cmd, app, format.Envelope{Data: t})
		},
	}
	cmd.Flags().BoolVar(&render, "render", false, "Render as markdown for the terminal instead of structured output")
	cmd.Flags().IntVar(&width, "width", 80, "Wrap width for --render")
	return cmd
}

func newEditCmd(app *App) *cobra.Command {
	var title string
	var description string
	cmd := &cobra.Command{
		Use:   "edit <task-id>",
		Short: "Change a task's title or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req model.UpdateTaskRequest
			if cmd.Flags().Changed("title") {
				req.Title = &title
			}
			if cmd.Flags().Changed("description") {
				req.Description = &description
			}
			if req.Title == nil && req.Description == nil {
				return writeErr(cmd, errors.New("nothing to change; pass --title and/or --description"))
			}
			return updateTask(cmd, app, args[0], req)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&description, "description", "", "New description (markdown)")
	return cmd
}

func newMoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "move <task-id> <bucket>",
		Short: "Move a task to the top of another bucket",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, err := statusutil.NormalizeBucket(args[1])
			if err != nil {
				return writeErr(cmd, err)
			}
			return updateTask(cmd, app, args[0], model.UpdateTaskRequest{Status: &bucket})
		},
	}
}

func updateTask(cmd *cobra.Command, app *App, id string, req model.UpdateTaskRequest) error {
	client, err := newClient(app)
	if err != nil {
		return writeErr(cmd, err)
	}
	t, err := client.UpdateTask(cmd.Context(), id, req)
	if err != nil {
		return writeErr(cmd, err)
	}
	return writeOut(cmd, app, format.Envelope{Data: t})
}

func newRmCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <task-id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := client.DeleteTask(cmd.Context(), args[0]); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, format.Envelope{Data: map[string]any{"id": args[0], "deleted": true}})
		},
	}
}

type filterFlags struct {
	status    string
	projectID string
	goalID    string
	tag       string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.status, "status", "s", "", "Comma-separated buckets")
	cmd.Flags().StringVar(&f.projectID, "project", "", "Only tasks in this project")
	cmd.Flags().StringVar(&f.goalID, "goal", "", "Only tasks for this goal")
	cmd.Flags().StringVar(&f.tag, "tag", "", "Only tasks with this tag")
}

func (f filterFlags) filter() (model.TaskFilter, error) {
	statuses, err := statusutil.ParseBuckets(f.status)
	if err != nil {
		return model.TaskFilter{}, err
	}
	return model.TaskFilter{
		Statuses:  statuses,
		ProjectID: strings.TrimSpace(f.projectID),
		GoalID:    strings.TrimSpace(f.goalID),
		Tag:       strings.TrimSpace(f.tag),
	}, nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
