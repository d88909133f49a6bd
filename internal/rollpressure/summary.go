package rollpressure

import (
	"math"
	"sort"
	"time"
)

// Range is the min and max over the defined values of a field.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// MarketSummary holds per-market statistics.
type MarketSummary struct {
	Market          string    `json:"market"`
	Rows            int       `json:"rows"`
	Invalid         int       `json:"invalid"`
	Alerts          int       `json:"alerts"`
	First           time.Time `json:"first"`
	Last            time.Time `json:"last"`
	RollPressure    Range     `json:"roll_pressure"`
	MeanPressure    float64   `json:"mean_roll_pressure"`
	PosScore        Range     `json:"pos_score"`
	TimeWeight      Range     `json:"time_weight"`
	definedPressure int
}

// Summary describes a computed batch.
type Summary struct {
	Rows    int             `json:"rows"`
	Invalid int             `json:"invalid"`
	Alerts  int             `json:"alerts"`
	First   time.Time       `json:"first"`
	Last    time.Time       `json:"last"`
	Markets []MarketSummary `json:"markets"`
}

// Summarize computes batch statistics. Ranges cover defined values only;
// a market with no defined value reports zero ranges.
func Summarize(rows []DerivedRow) Summary {
	var s Summary
	byMarket := make(map[string]*MarketSummary)

	for _, r := range rows {
		s.Rows++
		if s.First.IsZero() || r.Date.Before(s.First) {
			s.First = r.Date
		}
		if r.Date.After(s.Last) {
			s.Last = r.Date
		}

		m, ok := byMarket[r.Market]
		if !ok {
			m = &MarketSummary{
				Market:       r.Market,
				First:        r.Date,
				Last:         r.Date,
				RollPressure: emptyRange(),
				PosScore:     emptyRange(),
				TimeWeight:   emptyRange(),
			}
			byMarket[r.Market] = m
		}
		m.Rows++
		if r.Date.Before(m.First) {
			m.First = r.Date
		}
		if r.Date.After(m.Last) {
			m.Last = r.Date
		}
		if !r.Valid {
			m.Invalid++
			s.Invalid++
		}
		if r.Alert {
			m.Alerts++
			s.Alerts++
		}
		if Defined(r.RollPressure) {
			m.RollPressure.add(r.RollPressure)
			m.MeanPressure += r.RollPressure
			m.definedPressure++
		}
		if Defined(r.PosScore) {
			m.PosScore.add(r.PosScore)
		}
		if Defined(r.TimeWeight) {
			m.TimeWeight.add(r.TimeWeight)
		}
	}

	for _, m := range byMarket {
		if m.definedPressure > 0 {
			m.MeanPressure /= float64(m.definedPressure)
		}
		m.RollPressure.finish()
		m.PosScore.finish()
		m.TimeWeight.finish()
		s.Markets = append(s.Markets, *m)
	}
	sort.Slice(s.Markets, func(a, b int) bool { return s.Markets[a].Market < s.Markets[b].Market })
	return s
}

func emptyRange() Range {
	return Range{Min: math.Inf(1), Max: math.Inf(-1)}
}

func (r *Range) add(v float64) {
	r.Min = math.Min(r.Min, v)
	r.Max = math.Max(r.Max, v)
}

func (r *Range) finish() {
	if math.IsInf(r.Min, 1) {
		*r = Range{}
	}
}
