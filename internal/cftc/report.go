package cftc

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Report is one raw row of the disaggregated report. Socrata returns
// numerics as strings.
type Report struct {
	ReportDate             string `json:"report_date_as_yyyy_mm_dd"`
	MarketAndExchangeNames string `json:"market_and_exchange_names"`
	ContractMarketCode     string `json:"cftc_contract_market_code"`
	MoneyLong              string `json:"m_money_positions_long_all"`
	MoneyShort             string `json:"m_money_positions_short_all"`
	OpenInterest           string `json:"open_interest_all"`
}

// Position is a normalized weekly observation for one market.
type Position struct {
	Date         time.Time
	Market       string
	SpecNetLong  float64
	OpenInterest float64
}

// NormalizeStats counts what Normalize did with the raw rows.
type NormalizeStats struct {
	Total      int
	Kept       int
	BadDate    int
	BadNumeric int
}

// Normalize converts raw reports into positions sorted by date. Rows with an
// unparsable date are dropped; unparsable numerics become NaN so the row is
// later treated as invalid rather than silently removed.
func Normalize(mkt string, reports []Report) ([]Position, NormalizeStats) {
	stats := NormalizeStats{Total: len(reports)}
	positions := make([]Position, 0, len(reports))

	for _, r := range reports {
		date, err := parseReportDate(r.ReportDate)
		if err != nil {
			stats.BadDate++
			continue
		}

		long, okLong := parseNumber(r.MoneyLong)
		short, okShort := parseNumber(r.MoneyShort)
		oi, okOI := parseNumber(r.OpenInterest)
		if !okLong || !okShort || !okOI {
			stats.BadNumeric++
		}

		positions = append(positions, Position{
			Date:         date,
			Market:       mkt,
			SpecNetLong:  long - short,
			OpenInterest: oi,
		})
	}

	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].Date.Before(positions[j].Date)
	})
	stats.Kept = len(positions)
	return positions, stats
}

func parseReportDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(queryDateLayout, s)
	if err == nil {
		return t, nil
	}
	if len(s) >= 10 {
		return time.Parse("2006-01-02", s[:10])
	}
	return time.Time{}, err
}

func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), false
	}
	return v, true
}
