package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskboard/internal/server"
	"taskboard/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const pruneInterval = time.Hour

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the task API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cfg := app.cfg.Server

			st, err := store.Open(ctx, cfg.DBPath, store.Options{
				DedupWindow: cfg.DedupWindow,
				Logger:      app.log,
			})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer st.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			srv := server.New(st, server.Options{Logger: app.log, Registry: reg})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.ListenAndServe(gctx, cfg.Addr)
			})
			g.Go(func() error {
				return pruneLoop(gctx, st)
			})
			if err := g.Wait(); err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().String("db", "", "SQLite database path (overrides server.db_path)")
	cmd.Flags().Duration("dedup-window", 0, "How long client_request_id deduplicates creates (overrides server.dedup_window)")
	return cmd
}

// pruneLoop drops expired idempotency records until ctx is done.
func pruneLoop(ctx context.Context, st *store.Store) error {
	t := time.NewTicker(pruneInterval)
	defer t.Stop()
	for {
		if _, err := st.PruneRequestIDs(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
