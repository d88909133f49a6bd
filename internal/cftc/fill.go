package cftc

import "time"

// ForwardFillDaily expands weekly positions into one row per calendar day,
// carrying the last report forward through end. Positions must belong to a
// single market and be sorted by date. No rows are produced before the
// first report.
func ForwardFillDaily(positions []Position, end time.Time) []Position {
	if len(positions) == 0 {
		return nil
	}

	end = truncateDay(end)
	first := truncateDay(positions[0].Date)
	if end.Before(first) {
		return nil
	}

	days := int(end.Sub(first).Hours()/24) + 1
	out := make([]Position, 0, days)

	next := 0
	var current Position
	for d := first; !d.After(end); d = d.AddDate(0, 0, 1) {
		for next < len(positions) && !truncateDay(positions[next].Date).After(d) {
			current = positions[next]
			next++
		}
		row := current
		row.Date = d
		out = append(out, row)
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
