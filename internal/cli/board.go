package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"taskboard/internal/tui"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type boardOptions struct {
	filter      filterFlags
	metricsAddr string
}

func newBoardCmd(app *App) *cobra.Command {
	var opts boardOptions
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Open the interactive task board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoard(cmd, app, opts)
		},
	}
	opts.filter.register(cmd)
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve client retry metrics on this address while the board is open")
	cmd.Flags().Int("retries", 0, "Attempts before giving up (overrides client.max_retries)")
	cmd.Flags().Duration("base-delay", 0, "First retry delay, doubled per failure (overrides client.base_delay)")
	return cmd
}

func runBoard(cmd *cobra.Command, app *App, opts boardOptions) error {
	filter, err := opts.filter.filter()
	if err != nil {
		return writeErr(cmd, err)
	}

	reg := prometheus.NewRegistry()
	sess, err := newSession(app, reg)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer sess.Close()

	ctx, stop := context.WithCancel(cmd.Context())
	defer stop()

	loadCtx, cancelLoad := context.WithTimeout(ctx, app.cfg.Client.AttemptTimeout)
	err = sess.preload(loadCtx, filter)
	cancelLoad()
	if err != nil {
		return writeErr(cmd, fmt.Errorf("load board from %s: %w", app.cfg.Client.BaseURL, err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		err := tui.Run(gctx, sess.cache, sess.mgr, filter)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	if opts.metricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	if err := g.Wait(); err != nil {
		return writeErr(cmd, err)
	}
	return nil
}
