package roster

import (
	"context"
	"time"
)

// Stargazer is one entry of a roster fetch.
type Stargazer struct {
	Username  string
	StarredAt *time.Time // nil when the source does not report it
}

// Account is the stored state of one account for one project.
//
// State is reconstructed from presence in successive roster fetches, not read
// from an event feed: UnstarredAt is the time of the first pass that no longer
// saw the account.
type Account struct {
	Username    string     `json:"username"`
	StarredAt   *time.Time `json:"starred_at,omitempty"`
	UnstarredAt *time.Time `json:"unstarred_at,omitempty"`
}

// IsActive reports whether the account currently stars the project.
func (a Account) IsActive() bool { return a.UnstarredAt == nil }

// DailyStats is the per-day outcome of the last reconciliation pass that ran
// on Date. A later pass on the same day overwrites it.
type DailyStats struct {
	Date        time.Time `json:"date"`
	New         int       `json:"new_count"`
	Unstarred   int       `json:"unstar_count"`
	Reactivated int       `json:"reactivated_count"`
}

// Summary counts accounts by state.
type Summary struct {
	Starred   int64 `json:"starred"`
	Unstarred int64 `json:"unstarred"`
	TotalEver int64 `json:"total_ever"`
}

// Summarize counts accounts by state.
func Summarize(accounts []Account) Summary {
	var s Summary
	for _, a := range accounts {
		if a.IsActive() {
			s.Starred++
		} else {
			s.Unstarred++
		}
	}
	s.TotalEver = s.Starred + s.Unstarred
	return s
}

// Source returns one page of the current roster. Pages are 1-based; an empty
// page marks the end of the roster.
type Source interface {
	Page(ctx context.Context, page, perPage int) ([]Stargazer, error)
}

// Store persists roster state for a project. Each write is one bulk
// statement; the reconciler calls them in order and does not wrap them in a
// transaction.
type Store interface {
	ActiveUsernames(ctx context.Context, project string) ([]string, error)
	DepartedUsernames(ctx context.Context, project string) ([]string, error)

	// InsertNew adds accounts that were never seen before. Rows that already
	// exist are left alone.
	InsertNew(ctx context.Context, project string, accounts []Stargazer) error

	// Reactivate clears unstarred_at for departed accounts seen again.
	Reactivate(ctx context.Context, project string, usernames []string) error

	// MarkDeparted sets unstarred_at for active accounts no longer seen.
	MarkDeparted(ctx context.Context, project string, usernames []string, at time.Time) error

	// UpsertDailyStats writes the row for stats.Date, replacing any existing one.
	UpsertDailyStats(ctx context.Context, project string, stats DailyStats) error
}
