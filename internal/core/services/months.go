package services

import "time"

type monthRange struct {
	Label string
	From  time.Time
	To    time.Time
}

func startOfMonth(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// lastMonths returns the n calendar months ending with the month of now,
// oldest first, with UTC bounds [From, To).
func lastMonths(now time.Time, loc *time.Location, n int) []monthRange {
	current := startOfMonth(now, loc)
	out := make([]monthRange, 0, n)
	for i := n - 1; i >= 0; i-- {
		from := current.AddDate(0, -i, 0)
		out = append(out, monthRange{
			Label: from.Format("2006-01"),
			From:  from.UTC(),
			To:    from.AddDate(0, 1, 0).UTC(),
		})
	}
	return out
}
