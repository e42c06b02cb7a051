package daily

import "time"

// Summary bundles the figures a dashboard header shows for one counter.
// AverageMonthly extrapolates AverageDaily to a 30-day month.
type Summary struct {
	Today          int64          `json:"today"`
	Week           WeekComparison `json:"week"`
	MonthToDate    int64          `json:"month_to_date"`
	AverageDaily   float64        `json:"average_daily"`
	AverageMonthly float64        `json:"average_monthly"`
	Weekly         []WeekGrowth   `json:"weekly_growth"`
}

// Summarize computes a Summary from deltas as of now. The daily average
// covers the last 30 days and the weekly series the last 12 weeks.
func Summarize(deltas []Delta, now time.Time) Summary {
	today := Day(now)
	avg := Average(Window(deltas, today.AddDate(0, 0, -29), today))
	return Summary{
		Today:          Sum(Window(deltas, today, today)),
		Week:           WeekOverWeek(deltas, today),
		MonthToDate:    MonthToDate(deltas, today),
		AverageDaily:   avg,
		AverageMonthly: avg * 30,
		Weekly:         WeeklyGrowthSeries(deltas, today, 12),
	}
}
