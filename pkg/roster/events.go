package roster

import (
	"sort"
	"time"
)

// Action is the kind of a roster event.
type Action string

const (
	Joined Action = "joined"
	Left   Action = "left"
)

// Event is one reconstructed roster transition.
type Event struct {
	Username string    `json:"username"`
	Action   Action    `json:"action"`
	When     time.Time `json:"when"`

	// DaysSincePrevious is the number of whole days since the account's
	// previous event. Only set for Left events with a known StarredAt.
	DaysSincePrevious *int `json:"days_since_previous,omitempty"`
}

// Events derives joined and left events from stored accounts and returns
// those inside [from, to], newest first. A zero bound is open.
//
// An account has at most one of each: reactivation clears UnstarredAt, so
// earlier departures are not recoverable.
func Events(accounts []Account, from, to time.Time) []Event {
	inRange := func(t time.Time) bool {
		if !from.IsZero() && t.Before(from) {
			return false
		}
		if !to.IsZero() && t.After(to) {
			return false
		}
		return true
	}

	var out []Event
	for _, a := range accounts {
		if a.StarredAt != nil && inRange(*a.StarredAt) {
			out = append(out, Event{Username: a.Username, Action: Joined, When: *a.StarredAt})
		}
		if a.UnstarredAt != nil && inRange(*a.UnstarredAt) {
			ev := Event{Username: a.Username, Action: Left, When: *a.UnstarredAt}
			if a.StarredAt != nil {
				days := int(a.UnstarredAt.Sub(*a.StarredAt).Hours() / 24)
				ev.DaysSincePrevious = &days
			}
			out = append(out, ev)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].When.Equal(out[j].When) {
			return out[i].When.After(out[j].When)
		}
		return out[i].Username < out[j].Username
	})
	return out
}
