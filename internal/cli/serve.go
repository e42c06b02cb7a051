package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/matzehuels/pkgpulse/pkg/api"
	"github.com/matzehuels/pkgpulse/pkg/observability"
	"github.com/matzehuels/pkgpulse/pkg/packagestats"
	"github.com/matzehuels/pkgpulse/pkg/schedule"
	"github.com/matzehuels/pkgpulse/pkg/storage/postgres"
)

const (
	jobTimeout      = 10 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// serveCommand runs the read API and, unless disabled, the scheduler.
func (c *CLI) serveCommand() *cobra.Command {
	var noSchedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API and run scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			provider, statsCache, err := c.newProvider(ctx)
			if err != nil {
				return err
			}
			defer statsCache.Close()

			metrics := observability.NewMetrics(prometheus.NewRegistry())
			metrics.Install()
			defer observability.Reset()

			if !noSchedule {
				sched, _, err := c.newScheduler(ctx, store, provider)
				if err != nil {
					return err
				}
				sched.Start()
				defer func() { <-sched.Stop().Done() }()
			}

			srv := api.New(store, provider, api.Options{
				Project: c.cfg.Project,
				Package: c.cfg.Package,
				Metrics: metrics.Handler(),
				Logger:  c.Logger,
			})
			return c.listen(ctx, srv.Handler())
		},
	}
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "serve the API without running scheduled jobs")
	return cmd
}

// listen serves h until ctx is cancelled, then shuts down gracefully.
func (c *CLI) listen(ctx context.Context, h http.Handler) error {
	server := &http.Server{
		Addr:              c.cfg.Server.Listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		c.Logger.Info("listening", "addr", server.Addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	c.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// scheduleCommand runs scheduled jobs without the HTTP API.
func (c *CLI) scheduleCommand() *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run reconciliation and download snapshots on their cron schedules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			provider, statsCache, err := c.newProvider(ctx)
			if err != nil {
				return err
			}
			defer statsCache.Close()

			sched, reconcile, err := c.newScheduler(ctx, store, provider)
			if err != nil {
				return err
			}
			// Before Start, so the cron cannot fire a second pass alongside.
			if runNow {
				sched.RunNow("reconcile", reconcile)
			}
			sched.Start()
			for _, next := range sched.Entries() {
				c.Logger.Debug("next run", "at", next.Format(time.RFC3339))
			}

			<-ctx.Done()
			<-sched.Stop().Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "reconcile once immediately on start")
	return cmd
}

// newScheduler registers the reconcile and snapshot jobs and returns the
// reconcile job for an immediate run. Reconciliation runs never overlap; a
// tick that arrives while one is still running is skipped.
func (c *CLI) newScheduler(ctx context.Context, store *postgres.Store, provider *packagestats.Provider) (*schedule.Scheduler, schedule.JobFunc, error) {
	rec, err := c.newReconciler(ctx, store)
	if err != nil {
		return nil, nil, err
	}
	reconcile := func(ctx context.Context) error {
		_, err := rec.Reconcile(ctx)
		return err
	}
	pkg := c.cfg.Package
	snapshot := func(ctx context.Context) error {
		_, err := snapshotDownloads(ctx, provider, store, pkg, time.Now(), c.Logger)
		return err
	}

	sched := schedule.New(schedule.Options{Timeout: jobTimeout, Logger: c.Logger})
	if err := sched.Add("reconcile", c.cfg.Schedule.Reconcile, reconcile); err != nil {
		return nil, nil, err
	}
	if err := sched.Add("snapshot", c.cfg.Schedule.Snapshot, snapshot); err != nil {
		return nil, nil, err
	}
	return sched, reconcile, nil
}
