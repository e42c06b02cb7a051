package cli

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pkgpulse/pkg/errors"
	"github.com/matzehuels/pkgpulse/pkg/roster"
)

// reconcileCommand runs one roster reconciliation pass.
func (c *CLI) reconcileCommand() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Sync the stored stargazer roster with GitHub",
		Long: `Fetch every stargazer of the configured project and bring the stored roster
in line: new accounts are inserted, departed accounts get an unstar time and
returning accounts are reactivated. Today's counts are written to the daily
stats table.

With --dry-run the plan is printed and nothing is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			rec, err := c.newReconciler(ctx, store)
			if err != nil {
				return err
			}

			if dryRun {
				return c.planReconcile(ctx, rec, store)
			}
			res, err := spin(ctx, "Reconciling "+rec.Project(), rec.Reconcile)
			if err != nil {
				return err
			}
			renderResult(res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the changes without writing them")
	return cmd
}

func (c *CLI) planReconcile(ctx context.Context, rec *roster.Reconciler, store roster.Store) error {
	current, err := spin(ctx, "Fetching stargazers", rec.FetchAll)
	if err != nil {
		return err
	}
	active, err := store.ActiveUsernames(ctx, rec.Project())
	if err != nil {
		return err
	}
	departed, err := store.DepartedUsernames(ctx, rec.Project())
	if err != nil {
		return err
	}
	plan := roster.Diff(current, active, departed)
	names := make([]string, len(plan.New))
	for i, s := range plan.New {
		names[i] = s.Username
	}
	printTitle("%s (dry run)", rec.Project())
	printChanges("New", names)
	printChanges("Reactivated", plan.Reactivated)
	printChanges("Departed", plan.Departed)
	printKeyValue("Unchanged", strconv.Itoa(len(plan.Unchanged)))
	return nil
}

func renderResult(res *roster.Result) {
	printSuccess("Reconciled %s for %s", res.Project, res.Date.Format("2006-01-02"))
	printDetail("run %s", res.RunID)
	printChanges("New", res.New)
	printChanges("Reactivated", res.Reactivated)
	printChanges("Departed", res.Departed)
	printKeyValue("Unchanged", strconv.Itoa(len(res.Unchanged)))
}

func printChanges(label string, names []string) {
	value := strconv.Itoa(len(names))
	if len(names) > 0 && len(names) <= 10 {
		value += "  " + StyleDim.Render(strings.Join(names, ", "))
	}
	printKeyValue(label, value)
}

// starsCommand lists stored stargazers.
func (c *CLI) starsCommand() *cobra.Command {
	var departed, all bool
	cmd := &cobra.Command{
		Use:   "stars",
		Short: "List the stored stargazers of the configured project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var accounts []roster.Account
			switch {
			case all:
				accounts, err = store.Accounts(ctx, c.cfg.Project)
			case departed:
				accounts, err = store.Unstarred(ctx, c.cfg.Project)
			default:
				accounts, err = store.Starred(ctx, c.cfg.Project)
			}
			if err != nil {
				return err
			}
			summary, err := store.Summary(ctx, c.cfg.Project)
			if err != nil {
				return err
			}

			rows := make([][]string, len(accounts))
			for i, a := range accounts {
				rows[i] = []string{a.Username, formatDate(a.StarredAt), formatDate(a.UnstarredAt)}
			}
			printTitle("%s", c.cfg.Project)
			printTable([]string{"Account", "Starred", "Unstarred"}, rows)
			printKeyValue("Starred", formatCount(summary.Starred))
			printKeyValue("Unstarred", formatCount(summary.Unstarred))
			printKeyValue("Total ever", formatCount(summary.TotalEver))
			return nil
		},
	}
	cmd.Flags().BoolVar(&departed, "departed", false, "list accounts that removed their star")
	cmd.Flags().BoolVar(&all, "all", false, "list every account ever seen")
	return cmd
}

// eventsCommand prints joined/left events.
func (c *CLI) eventsCommand() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show stargazers joining and leaving, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var lo, hi time.Time
			var err error
			if from != "" {
				if lo, err = parseDay(from); err != nil {
					return err
				}
			}
			if to != "" {
				if hi, err = parseDay(to); err != nil {
					return err
				}
				hi = hi.AddDate(0, 0, 1).Add(-time.Nanosecond)
			}

			ctx := cmd.Context()
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			accounts, err := store.Accounts(ctx, c.cfg.Project)
			if err != nil {
				return err
			}

			events := roster.Events(accounts, lo, hi)
			if len(events) == 0 {
				printInfo("No events in range")
				return nil
			}
			rows := make([][]string, len(events))
			for i, e := range events {
				action := StyleSuccess.Render(string(e.Action))
				if e.Action == roster.Left {
					action = StyleError.Render(string(e.Action))
				}
				since := "–"
				if e.DaysSincePrevious != nil {
					since = strconv.Itoa(*e.DaysSincePrevious) + "d"
				}
				rows[i] = []string{e.When.UTC().Format("2006-01-02 15:04"), e.Username, action, since}
			}
			printTable([]string{"When", "Account", "Event", "After"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day to include (YYYY-MM-DD)")
	return cmd
}

// parseDay parses a YYYY-MM-DD date as UTC midnight.
func parseDay(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}
