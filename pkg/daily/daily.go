// Package daily turns cumulative snapshots into day-over-day deltas and the
// trailing aggregates shown on dashboards.
//
// Snapshots are cumulative totals (all-time downloads, current star count)
// observed once per day. A [Delta] is the difference to the previous
// snapshot. Gaps between snapshots are not filled: a delta always spans from
// the previous available snapshot, so growth over a missing day is attributed
// to the next observed day.
//
// Aggregates clamp negative growth to zero. A downward correction in a
// cumulative counter is not churn and must not reduce a weekly total.
package daily

import (
	"sort"
	"time"
)

// Snapshot is one cumulative observation.
type Snapshot struct {
	Date  time.Time `json:"date"`
	Total int64     `json:"total"`
}

// Delta is the change between a snapshot and its predecessor.
type Delta struct {
	Date   time.Time `json:"date"`
	Total  int64     `json:"total"`
	Growth int64     `json:"growth"`
}

// Order selects the output order of Deltas.
type Order int

const (
	// NewestFirst is the display order of tables.
	NewestFirst Order = iota
	// OldestFirst is the order charts consume.
	OldestFirst
)

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Deltas computes growth for every snapshot that has a predecessor.
//
// snaps must be in ascending date order. The first snapshot only provides
// the baseline and is not part of the output.
func Deltas(snaps []Snapshot, order Order) []Delta {
	if len(snaps) < 2 {
		return nil
	}
	out := make([]Delta, 0, len(snaps)-1)
	for i := 1; i < len(snaps); i++ {
		out = append(out, Delta{
			Date:   Day(snaps[i].Date),
			Total:  snaps[i].Total,
			Growth: snaps[i].Total - snaps[i-1].Total,
		})
	}
	if order == NewestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// Clamp returns max(0, growth).
func Clamp(growth int64) int64 {
	if growth < 0 {
		return 0
	}
	return growth
}

// Window returns the deltas dated within [from, to], both days inclusive,
// preserving input order. A zero bound is open.
func Window(deltas []Delta, from, to time.Time) []Delta {
	var out []Delta
	for _, d := range deltas {
		day := Day(d.Date)
		if !from.IsZero() && day.Before(Day(from)) {
			continue
		}
		if !to.IsZero() && day.After(Day(to)) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Sum adds the clamped growth of deltas.
func Sum(deltas []Delta) int64 {
	var total int64
	for _, d := range deltas {
		total += Clamp(d.Growth)
	}
	return total
}

// WeeklySum is the clamped growth over the seven days ending today.
func WeeklySum(deltas []Delta, today time.Time) int64 {
	today = Day(today)
	return Sum(Window(deltas, today.AddDate(0, 0, -6), today))
}

// GrowthPercent compares two period totals. When prev is zero and this is
// positive the result is this itself, not a ratio; dashboards have always
// shown it that way.
func GrowthPercent(this, prev int64) float64 {
	switch {
	case prev > 0:
		return float64(this-prev) / float64(prev) * 100
	case this > 0:
		return float64(this)
	default:
		return 0
	}
}

// WeekComparison is the result of WeekOverWeek.
type WeekComparison struct {
	ThisWeek     int64   `json:"this_week"`
	PreviousWeek int64   `json:"previous_week"`
	Percent      float64 `json:"growth_percent"`
}

// WeekOverWeek compares the seven days ending today with the seven days
// before them.
func WeekOverWeek(deltas []Delta, today time.Time) WeekComparison {
	today = Day(today)
	this := Sum(Window(deltas, today.AddDate(0, 0, -6), today))
	prev := Sum(Window(deltas, today.AddDate(0, 0, -13), today.AddDate(0, 0, -7)))
	return WeekComparison{ThisWeek: this, PreviousWeek: prev, Percent: GrowthPercent(this, prev)}
}

// Point is one value of a derived series.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// MovingAverage returns the trailing n-day average of growth for each delta,
// oldest first. The first n-1 points average over the days available so far.
// The window counts deltas, not calendar days.
func MovingAverage(deltas []Delta, n int) []Point {
	if n <= 0 || len(deltas) == 0 {
		return nil
	}
	asc := ascending(deltas)
	out := make([]Point, len(asc))
	var sum int64
	for i, d := range asc {
		sum += d.Growth
		if i >= n {
			sum -= asc[i-n].Growth
		}
		size := min(i+1, n)
		out[i] = Point{Date: d.Date, Value: float64(sum) / float64(size)}
	}
	return out
}

// Average is the mean clamped growth of deltas, 0 when empty.
func Average(deltas []Delta) float64 {
	if len(deltas) == 0 {
		return 0
	}
	return float64(Sum(deltas)) / float64(len(deltas))
}

// MonthToDate sums clamped growth dated in now's calendar month (UTC).
func MonthToDate(deltas []Delta, now time.Time) int64 {
	y, m, _ := now.UTC().Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	return Sum(Window(deltas, first, now))
}

// WeekGrowth is one bucket of WeeklyGrowthSeries.
type WeekGrowth struct {
	Start   time.Time `json:"start"`
	Label   string    `json:"week"`
	Total   int64     `json:"total"`
	Percent float64   `json:"growth_percent"`
}

// WeeklyGrowthSeries buckets deltas into Monday to Sunday weeks, ending with
// the week containing today, and reports each week's growth against the week
// before it. Buckets are returned oldest first and labelled MM/DD by their
// Monday.
func WeeklyGrowthSeries(deltas []Delta, today time.Time, weeks int) []WeekGrowth {
	if weeks <= 0 {
		return nil
	}
	monday := WeekStart(today)
	out := make([]WeekGrowth, weeks)
	for i := 0; i < weeks; i++ {
		start := monday.AddDate(0, 0, -7*i)
		this := Sum(Window(deltas, start, start.AddDate(0, 0, 6)))
		prev := Sum(Window(deltas, start.AddDate(0, 0, -7), start.AddDate(0, 0, -1)))
		out[weeks-1-i] = WeekGrowth{
			Start:   start,
			Label:   start.Format("01/02"),
			Total:   this,
			Percent: GrowthPercent(this, prev),
		}
	}
	return out
}

// WeekStart returns the Monday of t's week.
func WeekStart(t time.Time) time.Time {
	day := Day(t)
	back := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -back)
}

func ascending(deltas []Delta) []Delta {
	out := append([]Delta(nil), deltas...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
