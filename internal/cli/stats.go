package cli

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pkgpulse/pkg/integrations/github"
	"github.com/matzehuels/pkgpulse/pkg/packagestats"
	"github.com/matzehuels/pkgpulse/pkg/registry"
)

type statsOptions struct {
	refresh bool
	asJSON  bool
}

// statsCommand prints the merged statistics of the configured package.
func (c *CLI) statsCommand() *cobra.Command {
	var opts statsOptions
	cmd := &cobra.Command{
		Use:   "stats [package]",
		Short: "Show download statistics for a NuGet package",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := c.fetchStats(cmd.Context(), packageArg(c, args), opts.refresh)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeJSON(stats)
			}
			renderStats(stats, time.Now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass the statistics cache")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of a summary")
	return cmd
}

type versionsOptions struct {
	top        int
	since      string
	prerelease bool
	refresh    bool
}

// versionsCommand lists versions, optionally ranked by downloads.
func (c *CLI) versionsCommand() *cobra.Command {
	var opts versionsOptions
	cmd := &cobra.Command{
		Use:   "versions [package]",
		Short: "List package versions with their download counts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var since time.Time
			if opts.since != "" {
				t, err := parseDay(opts.since)
				if err != nil {
					return err
				}
				since = t
			}
			stats, err := c.fetchStats(cmd.Context(), packageArg(c, args), opts.refresh)
			if err != nil {
				return err
			}
			recs := stats.Versions
			if opts.top > 0 || !since.IsZero() || !opts.prerelease {
				recs = stats.TopVersions(since, opts.top, opts.prerelease)
			}
			renderVersions(recs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&opts.top, "top", "n", 0, "show only the N most downloaded versions")
	cmd.Flags().StringVar(&opts.since, "since", "", "only versions published on or after this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&opts.prerelease, "prerelease", true, "include prerelease versions")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass the statistics cache")
	return cmd
}

func (c *CLI) fetchStats(ctx context.Context, pkg string, refresh bool) (*packagestats.PackageStatistics, error) {
	provider, store, err := c.newProvider(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	prog := newProgress(c.Logger)
	stats, err := spin(ctx, "Fetching "+pkg, func(ctx context.Context) (*packagestats.PackageStatistics, error) {
		if refresh {
			return provider.Refresh(ctx, pkg)
		}
		return provider.Statistics(ctx, pkg)
	})
	if err != nil {
		return nil, err
	}
	prog.done("Fetched statistics", "package", stats.PackageID, "versions", stats.TotalVersions)
	return stats, nil
}

func packageArg(c *CLI, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return c.cfg.Package
}

func renderStats(s *packagestats.PackageStatistics, now time.Time) {
	printTitle("%s", s.PackageID)
	if s.Description != "" {
		printDetail("%s", s.Description)
	}
	printNewline()
	printKeyValue("Total downloads", formatOptionalCount(s.TotalDownloads))
	printKeyValue("Versions", strconv.Itoa(s.TotalVersions))
	printKeyValue("Latest", s.LatestVersion+" ("+formatDate(s.LatestVersionPublished)+")")
	printKeyValue("First published", formatDate(s.FirstVersionPublished))
	if top, ok := s.MostDownloaded(); ok {
		printKeyValue("Most downloaded", top.Version+" ("+formatOptionalCount(top.Downloads)+")")
	}
	month := now.UTC().AddDate(0, 0, -30)
	printKeyValue("Released (30d)", strconv.Itoa(s.VersionsPublishedBetween(month, now)))
	if s.Authors != "" {
		printKeyValue("Authors", s.Authors)
	}
	if s.ProjectURL != "" {
		printKeyValue("Project", s.ProjectURL)
	}
	if owner, repo, ok := github.RepoFromURL(s.ProjectURL); ok {
		printKeyValue("Repository", owner+"/"+repo)
	}
	if len(s.SkippedPages) > 0 {
		printNewline()
		printWarning("%d registry page(s) could not be fetched; the version list may be incomplete", len(s.SkippedPages))
		for _, u := range s.SkippedPages {
			printDetail("%s", u)
		}
	}
}

func renderVersions(recs []registry.VersionRecord) {
	rows := make([][]string, len(recs))
	for i, r := range recs {
		rows[i] = []string{r.Version, formatDate(r.Published), formatOptionalCount(r.Downloads)}
	}
	printTable([]string{"Version", "Published", "Downloads"}, rows)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
