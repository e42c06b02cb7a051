// Package roster keeps a stored stargazer roster in sync with the hosting
// platform.
//
// The platform only exposes who stars a project right now. A
// [Reconciler] pass fetches that roster, compares it with the stored
// accounts and writes the transitions:
//
//	never seen -> active     (new)
//	departed   -> active     (reactivated)
//	active     -> departed   (departed)
//
// Departure time is the time of the pass that first missed the account, not
// the moment the user actually unstarred. Passes for the same project must
// not overlap; the scheduler serializes them.
package roster

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/pkgpulse/pkg/errors"
	"github.com/matzehuels/pkgpulse/pkg/observability"
)

// DefaultPerPage is the page size requested from the roster source.
const DefaultPerPage = 100

// Write steps, in execution order.
const (
	StepInsertNew  = "insert_new"
	StepReactivate = "reactivate"
	StepDepart     = "depart"
	StepDailyStats = "daily_stats"
)

// Options configures a Reconciler.
type Options struct {
	PerPage int              // default DefaultPerPage
	Now     func() time.Time // default time.Now
	Logger  *log.Logger      // default log.Default()
}

// Reconciler runs reconciliation passes for one project.
type Reconciler struct {
	project string
	source  Source
	store   Store
	perPage int
	now     func() time.Time
	logger  *log.Logger
}

// NewReconciler creates a Reconciler for project (owner/repo).
func NewReconciler(project string, source Source, store Store, opts Options) *Reconciler {
	if opts.PerPage <= 0 {
		opts.PerPage = DefaultPerPage
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Reconciler{
		project: project,
		source:  source,
		store:   store,
		perPage: opts.PerPage,
		now:     opts.Now,
		logger:  opts.Logger,
	}
}

// Project returns the project this reconciler writes.
func (r *Reconciler) Project() string { return r.project }

// Result describes one completed pass. All username lists are sorted.
type Result struct {
	RunID       string    `json:"run_id"`
	Project     string    `json:"project"`
	Date        time.Time `json:"date"`
	New         []string  `json:"new"`
	Departed    []string  `json:"departed"`
	Reactivated []string  `json:"reactivated"`
	Unchanged   []string  `json:"unchanged"`
}

// Counts returns the size of each classification.
func (r *Result) Counts() observability.RosterCounts {
	return observability.RosterCounts{
		New:         len(r.New),
		Departed:    len(r.Departed),
		Reactivated: len(r.Reactivated),
		Unchanged:   len(r.Unchanged),
	}
}

// Plan is the classification of a fetched roster against stored state.
type Plan struct {
	New         []Stargazer
	Reactivated []string
	Departed    []string
	Unchanged   []string
}

// Diff classifies current against the stored active and departed usernames.
// Accounts in neither stored set are new; departed accounts seen again are
// reactivated; active accounts not seen are departed.
func Diff(current []Stargazer, active, departed []string) Plan {
	activeSet := toSet(active)
	departedSet := toSet(departed)
	seen := make(map[string]bool, len(current))

	var p Plan
	for _, s := range current {
		if seen[s.Username] {
			continue
		}
		seen[s.Username] = true
		switch {
		case activeSet[s.Username]:
			p.Unchanged = append(p.Unchanged, s.Username)
		case departedSet[s.Username]:
			p.Reactivated = append(p.Reactivated, s.Username)
		default:
			p.New = append(p.New, s)
		}
	}
	for _, u := range active {
		if !seen[u] {
			p.Departed = append(p.Departed, u)
		}
	}

	sort.Slice(p.New, func(i, j int) bool { return p.New[i].Username < p.New[j].Username })
	sort.Strings(p.Reactivated)
	sort.Strings(p.Departed)
	sort.Strings(p.Unchanged)
	return p
}

// FetchAll reads the complete current roster, page by page, until the source
// returns an empty page. Entries without a username are skipped and
// duplicates across pages are dropped.
//
// Any page failure is fatal: an incomplete roster would mark the missing
// accounts as departed. An empty roster is reported as SOURCE_UNAVAILABLE for
// the same reason.
func (r *Reconciler) FetchAll(ctx context.Context) ([]Stargazer, error) {
	var out []Stargazer
	seen := make(map[string]bool)
	for page := 1; ; page++ {
		batch, err := r.source.Page(ctx, page, r.perPage)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSourceUnavailable, err, "roster page %d for %s", page, r.project)
		}
		if len(batch) == 0 {
			break
		}
		for _, s := range batch {
			if s.Username == "" || seen[s.Username] {
				continue
			}
			seen[s.Username] = true
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, errors.New(errors.ErrCodeSourceUnavailable, "roster for %s is empty", r.project)
	}
	return out, nil
}

// Reconcile runs one pass: fetch, diff, then the write steps in order.
//
// A failing write returns *errors.PartialWriteError. Steps before it stay
// committed; a later pass converges because it diffs against roster state,
// not against the daily stats table.
func (r *Reconciler) Reconcile(ctx context.Context) (res *Result, err error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := r.logger.With("run", runID, "project", r.project)

	defer func() {
		var counts observability.RosterCounts
		if res != nil {
			counts = res.Counts()
		}
		observability.Roster().OnReconcileComplete(ctx, r.project, counts, time.Since(start), err)
	}()

	current, err := r.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	active, err := r.store.ActiveUsernames(ctx, r.project)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "load active accounts")
	}
	departed, err := r.store.DepartedUsernames(ctx, r.project)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "load departed accounts")
	}

	plan := Diff(current, active, departed)
	now := r.now().UTC()
	res = &Result{
		RunID:       runID,
		Project:     r.project,
		Date:        day(now),
		Reactivated: plan.Reactivated,
		Departed:    plan.Departed,
		Unchanged:   plan.Unchanged,
	}
	for _, s := range plan.New {
		res.New = append(res.New, s.Username)
	}
	logger.Debug("roster diff",
		"fetched", len(current),
		"new", len(res.New),
		"reactivated", len(res.Reactivated),
		"departed", len(res.Departed),
	)

	steps := []struct {
		name string
		skip bool
		run  func() error
	}{
		{StepInsertNew, len(plan.New) == 0, func() error {
			return r.store.InsertNew(ctx, r.project, plan.New)
		}},
		{StepReactivate, len(plan.Reactivated) == 0, func() error {
			return r.store.Reactivate(ctx, r.project, plan.Reactivated)
		}},
		{StepDepart, len(plan.Departed) == 0, func() error {
			return r.store.MarkDeparted(ctx, r.project, plan.Departed, now)
		}},
		{StepDailyStats, false, func() error {
			return r.store.UpsertDailyStats(ctx, r.project, DailyStats{
				Date:        res.Date,
				New:         len(res.New),
				Unstarred:   len(res.Departed),
				Reactivated: len(res.Reactivated),
			})
		}},
	}

	var committed []string
	for _, s := range steps {
		if s.skip {
			continue
		}
		if err := s.run(); err != nil {
			logger.Error("reconciliation write failed", "step", s.name, "committed", committed, "err", err)
			return res, &errors.PartialWriteError{Step: s.name, Committed: committed, Cause: err}
		}
		committed = append(committed, s.name)
	}

	logger.Info("reconciled roster",
		"new", len(res.New),
		"reactivated", len(res.Reactivated),
		"departed", len(res.Departed),
		"unchanged", len(res.Unchanged),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}
