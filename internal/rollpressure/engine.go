package rollpressure

import (
	"sort"

	"golang.org/x/sync/errgroup"
)

// Compute derives one DerivedRow per input row. The result is index-aligned
// with rows. Params are validated first and nothing is computed on failure.
//
// Each market keeps its own trailing window of the last LookbackPercentile
// valid positioning ratios; invalid rows are excluded from the window.
func Compute(rows []InputRow, p Params) ([]DerivedRow, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	out := make([]DerivedRow, len(rows))
	groups := groupByMarket(rows)

	var g errgroup.Group
	for _, idx := range groups {
		g.Go(func() error {
			computeMarket(rows, idx, p, out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// groupByMarket returns, per market, the input indices in chronological
// order. Rows sharing a date keep their input order.
func groupByMarket(rows []InputRow) map[string][]int {
	groups := make(map[string][]int)
	for i, r := range rows {
		groups[r.Market] = append(groups[r.Market], i)
	}
	for _, idx := range groups {
		sort.SliceStable(idx, func(a, b int) bool {
			return rows[idx[a]].Date.Before(rows[idx[b]].Date)
		})
	}
	return groups
}

// computeMarket fills out at the given indices. Callers for different
// markets touch disjoint indices.
func computeMarket(rows []InputRow, idx []int, p Params, out []DerivedRow) {
	capacity := p.LookbackPercentile
	if len(idx) < capacity {
		capacity = len(idx)
	}
	w := newWindow(capacity)

	for _, i := range idx {
		out[i] = deriveRow(rows[i], w, p)
	}
}

func deriveRow(in InputRow, w *window, p Params) DerivedRow {
	row := DerivedRow{
		InputRow:   in,
		TimeWeight: TimeWeight(in.DaysToExpiry, p.TimeWeightAlpha),
	}

	if !p.IsValid(in) {
		row.PositioningRatio = nan()
		row.PosScore = nan()
		row.RollPressure = nan()
		return row
	}

	row.Valid = true
	row.PositioningRatio = in.SpecNetLong / in.OpenInterest
	w.push(row.PositioningRatio)
	row.PosScore = w.rank(row.PositioningRatio)
	row.RollPressure = Clamp(row.PosScore*row.TimeWeight, p.MinValue, p.MaxValue)
	row.Alert = IsAlert(row.PosScore, in.DaysToExpiry, p)
	return row
}

// SortByMarketDate orders rows by market, then date. The sort is stable.
func SortByMarketDate(rows []DerivedRow) {
	sort.SliceStable(rows, func(a, b int) bool {
		if rows[a].Market != rows[b].Market {
			return rows[a].Market < rows[b].Market
		}
		return rows[a].Date.Before(rows[b].Date)
	})
}

// LatestAlerts returns the most recent alerting row of each market, sorted
// by market name.
func LatestAlerts(rows []DerivedRow) []DerivedRow {
	latest := make(map[string]DerivedRow)
	for _, r := range rows {
		if !r.Alert {
			continue
		}
		if cur, ok := latest[r.Market]; !ok || !r.Date.Before(cur.Date) {
			latest[r.Market] = r
		}
	}

	alerts := make([]DerivedRow, 0, len(latest))
	for _, r := range latest {
		alerts = append(alerts, r)
	}
	sort.Slice(alerts, func(a, b int) bool { return alerts[a].Market < alerts[b].Market })
	return alerts
}

// LatestPerMarket returns the most recent row of each market regardless of
// alert state, sorted by market name.
func LatestPerMarket(rows []DerivedRow) []DerivedRow {
	latest := make(map[string]DerivedRow)
	for _, r := range rows {
		if cur, ok := latest[r.Market]; !ok || !r.Date.Before(cur.Date) {
			latest[r.Market] = r
		}
	}
	result := make([]DerivedRow, 0, len(latest))
	for _, r := range latest {
		result = append(result, r)
	}
	sort.Slice(result, func(a, b int) bool { return result[a].Market < result[b].Market })
	return result
}
