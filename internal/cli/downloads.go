package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/pkgpulse/pkg/daily"
	"github.com/matzehuels/pkgpulse/pkg/errors"
	"github.com/matzehuels/pkgpulse/pkg/packagestats"
)

// statsRefresher recomputes statistics without consulting the cache.
type statsRefresher interface {
	Refresh(ctx context.Context, pkg string) (*packagestats.PackageStatistics, error)
}

// downloadRecorder stores one download total per package and day.
type downloadRecorder interface {
	UpsertDownloads(ctx context.Context, pkg string, date time.Time, total int64) error
}

// snapshotDownloads records today's total download count for pkg. Nothing is
// written when the registry does not report a total.
func snapshotDownloads(ctx context.Context, stats statsRefresher, store downloadRecorder, pkg string, now time.Time, logger *log.Logger) (int64, error) {
	s, err := stats.Refresh(ctx, pkg)
	if err != nil {
		return 0, err
	}
	if s.TotalDownloads == nil {
		return 0, errors.New(errors.ErrCodeSourceUnavailable, "registry reported no total downloads for %s", pkg)
	}
	day := daily.Day(now)
	if err := store.UpsertDownloads(ctx, s.PackageID, day, *s.TotalDownloads); err != nil {
		return 0, err
	}
	logger.Info("recorded download snapshot", "package", s.PackageID, "date", day.Format("2006-01-02"), "downloads", *s.TotalDownloads)
	return *s.TotalDownloads, nil
}

// snapshotCommand records today's download total.
func (c *CLI) snapshotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot [package]",
		Short: "Record today's total download count",
		Args:  cobra.MaximumNArgs(1),
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

			pkg := packageArg(c, args)
			total, err := snapshotDownloads(ctx, provider, store, pkg, time.Now(), c.Logger)
			if err != nil {
				return err
			}
			printSuccess("Recorded %s downloads for %s", StyleNumber.Render(formatCount(total)), pkg)
			return nil
		},
	}
}

const maxDays = 365

type dailyOptions struct {
	days   int
	stars  bool
	asJSON bool
}

// dailyCommand prints daily growth for downloads or stars.
func (c *CLI) dailyCommand() *cobra.Command {
	var opts dailyOptions
	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Show daily download (or star) growth with weekly comparisons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := errors.ValidateDays(opts.days, maxDays); err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			// One extra snapshot is the baseline for the oldest delta.
			var snaps []daily.Snapshot
			label := c.cfg.Package + " downloads"
			if opts.stars {
				label = c.cfg.Project + " stars"
				snaps, err = store.StarHistory(ctx, c.cfg.Project, opts.days+1)
			} else {
				snaps, err = store.DownloadHistory(ctx, c.cfg.Package, opts.days+1)
			}
			if err != nil {
				return err
			}
			deltas := daily.Deltas(snaps, daily.NewestFirst)
			summary := daily.Summarize(deltas, time.Now())
			if opts.asJSON {
				return writeJSON(map[string]any{"deltas": deltas, "summary": summary})
			}
			renderDaily(label, deltas, summary)
			return nil
		},
	}
	cmd.Flags().IntVarP(&opts.days, "days", "d", 30, "number of days to show")
	cmd.Flags().BoolVar(&opts.stars, "stars", false, "show stargazer growth instead of downloads")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print JSON")
	return cmd
}

func renderDaily(label string, deltas []daily.Delta, s daily.Summary) {
	if len(deltas) == 0 {
		printInfo("Not enough history for %s yet; at least two daily snapshots are needed", label)
		return
	}
	printTitle("%s", label)
	printNewline()
	printKeyValue("Today", formatGrowth(s.Today))
	printKeyValue("This week", formatCount(s.Week.ThisWeek)+" "+formatPercent(s.Week.Percent))
	printKeyValue("Previous week", formatCount(s.Week.PreviousWeek))
	printKeyValue("Month to date", formatCount(s.MonthToDate))
	printKeyValue("Daily average", formatFloat(s.AverageDaily))
	printKeyValue("Monthly average", formatFloat(s.AverageMonthly))
	printNewline()

	rows := make([][]string, len(deltas))
	for i, d := range deltas {
		rows[i] = []string{d.Date.Format("2006-01-02"), formatCount(d.Total), formatGrowth(d.Growth)}
	}
	printTable([]string{"Date", "Total", "Growth"}, rows)

	if len(s.Weekly) > 0 {
		weeks := make([][]string, len(s.Weekly))
		for i, w := range s.Weekly {
			weeks[i] = []string{w.Label, formatCount(w.Total), formatPercent(w.Percent)}
		}
		printTable([]string{"Week of", "Growth", "vs. prior"}, weeks)
	}
}

func formatFloat(f float64) string {
	return formatCount(int64(f + 0.5))
}
