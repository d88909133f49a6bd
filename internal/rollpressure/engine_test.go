package rollpressure

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestTimeWeight_Bounds(t *testing.T) {
	for _, alpha := range []float64{-0.5, 0, 0.5, 1, 5} {
		assert.InDelta(t, 1.0, TimeWeight(1, alpha), 1e-12, "alpha=%v", alpha)
		for d := 1; d <= 400; d++ {
			w := TimeWeight(d, alpha)
			assert.Greater(t, w, 0.0)
			assert.LessOrEqual(t, w, 1.0+1e-12)
		}
	}
}

func TestTimeWeight_StrictlyDecreasing(t *testing.T) {
	for _, alpha := range []float64{-0.5, 0, 1, 3} {
		prev := TimeWeight(1, alpha)
		for d := 2; d <= 100; d++ {
			w := TimeWeight(d, alpha)
			assert.Less(t, w, prev, "alpha=%v d=%d", alpha, d)
			prev = w
		}
	}
}

func TestTimeWeight_NonPositiveDaysClamp(t *testing.T) {
	for _, d := range []int{0, -1, -30} {
		assert.Equal(t, TimeWeight(1, 1.0), TimeWeight(d, 1.0))
	}
}

func TestTimeWeight_ThirtyDays(t *testing.T) {
	assert.InDelta(t, 2.0/31.0, TimeWeight(30, 1.0), 1e-12)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-1, 0, 1))
	assert.Equal(t, 1.0, Clamp(3, 0, 1))
	assert.Equal(t, 0.4, Clamp(0.4, 0, 1))
	assert.True(t, math.IsNaN(Clamp(math.NaN(), 0, 1)))
}

func TestParams_Validate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"alpha at -1", func(p *Params) { p.TimeWeightAlpha = -1 }},
		{"alpha below -1", func(p *Params) { p.TimeWeightAlpha = -2 }},
		{"alpha NaN", func(p *Params) { p.TimeWeightAlpha = math.NaN() }},
		{"max infinite", func(p *Params) { p.MaxValue = math.Inf(1) }},
		{"zero window", func(p *Params) { p.LookbackPercentile = 0 }},
		{"min above max", func(p *Params) { p.MinValue = 2; p.MaxValue = 1 }},
		{"negative floor", func(p *Params) { p.MinOpenInterest = -5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidParams))

			var pe *ParamsError
			require.True(t, errors.As(err, &pe))
			assert.NotEmpty(t, pe.Problems)
		})
	}
}

func TestParams_ValidateCollectsAllProblems(t *testing.T) {
	p := DefaultParams()
	p.LookbackPercentile = 0
	p.MinOpenInterest = -1
	err := p.Validate()

	var pe *ParamsError
	require.True(t, errors.As(err, &pe))
	assert.Len(t, pe.Problems, 2)
}

func TestCompute_InvalidParamsProducesNoOutput(t *testing.T) {
	p := DefaultParams()
	p.TimeWeightAlpha = -1
	rows := []InputRow{{Date: day(0), Market: "wti", SpecNetLong: 1, OpenInterest: 5000, DaysToExpiry: 1}}

	out, err := Compute(rows, p)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestCompute_SingleRowAlert(t *testing.T) {
	rows := []InputRow{{Date: day(0), Market: "wti", SpecNetLong: 900, OpenInterest: 1000, DaysToExpiry: 1}}

	out, err := Compute(rows, DefaultParams())
	require.NoError(t, err)
	require.Len(t, out, 1)

	r := out[0]
	assert.True(t, r.Valid)
	assert.InDelta(t, 0.9, r.PositioningRatio, 1e-12)
	assert.Equal(t, 1.0, r.PosScore)
	assert.Equal(t, 1.0, r.TimeWeight)
	assert.Equal(t, 1.0, r.RollPressure)
	assert.True(t, r.Alert)
}

func TestCompute_OpenInterestFloor(t *testing.T) {
	p := DefaultParams()
	require.Equal(t, 1000.0, p.MinOpenInterest)

	rows := []InputRow{
		{Date: day(0), Market: "wti", SpecNetLong: 900, OpenInterest: 999, DaysToExpiry: 1},
		{Date: day(1), Market: "wti", SpecNetLong: 900, OpenInterest: 1000, DaysToExpiry: 1},
	}

	out, err := Compute(rows, p)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.False(t, out[0].Valid, "below the floor")
	assert.False(t, out[0].Alert)
	assert.True(t, out[1].Valid, "equal to the floor")
	assert.Equal(t, 1.0, out[1].PosScore)
	assert.True(t, out[1].Alert)
}

func TestCompute_ThirtyDaysNoAlert(t *testing.T) {
	p := DefaultParams()
	p.MinOpenInterest = 0

	ratios := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 1.0, 0.9}
	rows := make([]InputRow, len(ratios))
	for i, ratio := range ratios {
		rows[i] = InputRow{Date: day(i), Market: "wti", SpecNetLong: ratio * 10000, OpenInterest: 10000, DaysToExpiry: 30}
	}

	out, err := Compute(rows, p)
	require.NoError(t, err)

	last := out[len(out)-1]
	assert.InDelta(t, 0.9, last.PosScore, 1e-12)
	assert.InDelta(t, 2.0/31.0, last.TimeWeight, 1e-12)
	assert.InDelta(t, 0.9*2.0/31.0, last.RollPressure, 1e-12)
	assert.False(t, last.Alert)
}

func TestCompute_ZeroOpenInterest(t *testing.T) {
	rows := []InputRow{{Date: day(0), Market: "wti", SpecNetLong: 500, OpenInterest: 0, DaysToExpiry: 1}}

	out, err := Compute(rows, DefaultParams())
	require.NoError(t, err)

	r := out[0]
	assert.False(t, r.Valid)
	assert.True(t, math.IsNaN(r.PositioningRatio))
	assert.True(t, math.IsNaN(r.PosScore))
	assert.True(t, math.IsNaN(r.RollPressure))
	assert.False(t, r.Alert)
	assert.Equal(t, 1.0, r.TimeWeight)
}

func TestCompute_BelowFloorIsInvalid(t *testing.T) {
	rows := []InputRow{{Date: day(0), Market: "wti", SpecNetLong: 500, OpenInterest: 999, DaysToExpiry: 1}}

	out, err := Compute(rows, DefaultParams())
	require.NoError(t, err)
	assert.False(t, out[0].Valid)
	assert.False(t, out[0].Alert)
}

func TestCompute_InvalidRowsSkippedFromWindow(t *testing.T) {
	p := DefaultParams()
	p.LookbackPercentile = 2
	rows := []InputRow{
		{Date: day(0), Market: "wti", SpecNetLong: 5000, OpenInterest: 10000},
		{Date: day(1), Market: "wti", SpecNetLong: 100, OpenInterest: 0},
		{Date: day(2), Market: "wti", SpecNetLong: 1000, OpenInterest: 10000},
	}

	out, err := Compute(rows, p)
	require.NoError(t, err)
	// window for the last row is {0.5, 0.1}; the invalid row does not occupy a slot
	assert.InDelta(t, 0.5, out[2].PosScore, 1e-12)
}

func TestCompute_TwoMarketsNoLeakage(t *testing.T) {
	p := DefaultParams()
	p.MinOpenInterest = 0

	// interleaved, wti ratios rise while brent ratios fall
	var rows []InputRow
	for i := 0; i < 5; i++ {
		rows = append(rows,
			InputRow{Date: day(i), Market: "wti", SpecNetLong: float64(i+1) * 100, OpenInterest: 1000, DaysToExpiry: 10},
			InputRow{Date: day(i), Market: "brent", SpecNetLong: float64(5-i) * 100, OpenInterest: 1000, DaysToExpiry: 10},
		)
	}

	out, err := Compute(rows, p)
	require.NoError(t, err)
	require.Len(t, out, len(rows))

	for i, r := range out {
		assert.Equal(t, rows[i].Market, r.Market)
		assert.Equal(t, rows[i].Date, r.Date)
		if r.Market == "wti" {
			assert.Equal(t, 1.0, r.PosScore, "wti row %d", i)
		}
	}

	// brent: each new value is the window minimum
	var brent []float64
	for _, r := range out {
		if r.Market == "brent" {
			brent = append(brent, r.PosScore)
		}
	}
	assert.InDeltaSlice(t, []float64{1, 0.5, 1.0 / 3, 0.25, 0.2}, brent, 1e-12)

	wtiOnly := make([]InputRow, 0)
	for _, r := range rows {
		if r.Market == "wti" {
			wtiOnly = append(wtiOnly, r)
		}
	}
	alone, err := Compute(wtiOnly, p)
	require.NoError(t, err)
	j := 0
	for _, r := range out {
		if r.Market == "wti" {
			assert.Equal(t, alone[j].PosScore, r.PosScore)
			j++
		}
	}
}

func TestCompute_UnsortedInputIsRankedChronologically(t *testing.T) {
	p := DefaultParams()
	p.MinOpenInterest = 0
	rows := []InputRow{
		{Date: day(2), Market: "wti", SpecNetLong: 300, OpenInterest: 1000},
		{Date: day(0), Market: "wti", SpecNetLong: 100, OpenInterest: 1000},
		{Date: day(1), Market: "wti", SpecNetLong: 200, OpenInterest: 1000},
	}

	out, err := Compute(rows, p)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out[0].PosScore)
	assert.Equal(t, 1.0, out[1].PosScore)
	assert.Equal(t, 1.0, out[2].PosScore)
	assert.Equal(t, day(2), out[0].Date)
}

func TestCompute_PosScoreTies(t *testing.T) {
	p := DefaultParams()
	p.MinOpenInterest = 0
	rows := make([]InputRow, 4)
	for i := range rows {
		rows[i] = InputRow{Date: day(i), Market: "wti", SpecNetLong: 500, OpenInterest: 1000}
	}

	out, err := Compute(rows, p)
	require.NoError(t, err)
	for _, r := range out {
		assert.Equal(t, 1.0, r.PosScore)
	}
}

func TestCompute_WindowEviction(t *testing.T) {
	p := DefaultParams()
	p.MinOpenInterest = 0
	p.LookbackPercentile = 3
	values := []float64{900, 800, 100, 200, 300}
	rows := make([]InputRow, len(values))
	for i, v := range values {
		rows[i] = InputRow{Date: day(i), Market: "wti", SpecNetLong: v, OpenInterest: 1000}
	}

	out, err := Compute(rows, p)
	require.NoError(t, err)
	// last window is {0.1, 0.2, 0.3}
	assert.InDelta(t, 1.0, out[4].PosScore, 1e-12)
	// window {0.8, 0.1, 0.2}
	assert.InDelta(t, 2.0/3.0, out[3].PosScore, 1e-12)
}

func TestCompute_PropertiesHold(t *testing.T) {
	p := DefaultParams()
	p.MinOpenInterest = 0
	p.LookbackPercentile = 7

	rows := make([]InputRow, 60)
	for i := range rows {
		rows[i] = InputRow{
			Date:         day(i),
			Market:       []string{"wti", "brent"}[i%2],
			SpecNetLong:  math.Sin(float64(i)) * 1000,
			OpenInterest: 2000,
			DaysToExpiry: 30 - i,
		}
	}

	out, err := Compute(rows, p)
	require.NoError(t, err)
	for _, r := range out {
		assert.Greater(t, r.PosScore, 0.0)
		assert.LessOrEqual(t, r.PosScore, 1.0)
		assert.GreaterOrEqual(t, r.RollPressure, p.MinValue)
		assert.LessOrEqual(t, r.RollPressure, p.MaxValue)
		assert.Equal(t, IsAlert(r.PosScore, r.DaysToExpiry, p), r.Alert)
	}
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	rows := []InputRow{
		{Date: day(1), Market: "wti", SpecNetLong: 2000, OpenInterest: 5000},
		{Date: day(0), Market: "wti", SpecNetLong: 1000, OpenInterest: 5000},
	}
	before := append([]InputRow(nil), rows...)

	_, err := Compute(rows, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, before, rows)
}

func TestIsAlert_Quadrants(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		pos  float64
		days int
		want bool
	}{
		{0.80, 2, true},
		{0.95, 0, true},
		{0.79, 2, false},
		{0.80, 3, false},
		{0.50, 10, false},
		{math.NaN(), 0, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsAlert(tt.pos, tt.days, p), "pos=%v days=%d", tt.pos, tt.days)
	}
}

func TestIsAlert_IndependentOfClamp(t *testing.T) {
	p := DefaultParams()
	p.MinOpenInterest = 0
	p.MaxValue = 0.1
	rows := []InputRow{{Date: day(0), Market: "wti", SpecNetLong: 900, OpenInterest: 1000, DaysToExpiry: 2}}

	out, err := Compute(rows, p)
	require.NoError(t, err)
	assert.Equal(t, 0.1, out[0].RollPressure)
	assert.True(t, out[0].Alert)
}

func TestLatestAlerts(t *testing.T) {
	rows := []DerivedRow{
		{InputRow: InputRow{Date: day(0), Market: "wti"}, Alert: true},
		{InputRow: InputRow{Date: day(3), Market: "wti"}, Alert: true},
		{InputRow: InputRow{Date: day(5), Market: "wti"}, Alert: false},
		{InputRow: InputRow{Date: day(1), Market: "brent"}, Alert: true},
	}

	alerts := LatestAlerts(rows)
	require.Len(t, alerts, 2)
	assert.Equal(t, "brent", alerts[0].Market)
	assert.Equal(t, "wti", alerts[1].Market)
	assert.Equal(t, day(3), alerts[1].Date)
}

func TestSortByMarketDate(t *testing.T) {
	rows := []DerivedRow{
		{InputRow: InputRow{Date: day(1), Market: "wti"}},
		{InputRow: InputRow{Date: day(0), Market: "wti"}},
		{InputRow: InputRow{Date: day(2), Market: "brent"}},
	}
	SortByMarketDate(rows)
	assert.Equal(t, "brent", rows[0].Market)
	assert.Equal(t, day(0), rows[1].Date)
	assert.Equal(t, day(1), rows[2].Date)
}

func TestSummarize(t *testing.T) {
	p := DefaultParams()
	rows := []InputRow{
		{Date: day(0), Market: "wti", SpecNetLong: 900, OpenInterest: 1000, DaysToExpiry: 1},
		{Date: day(1), Market: "wti", SpecNetLong: 100, OpenInterest: 0, DaysToExpiry: 1},
		{Date: day(2), Market: "brent", SpecNetLong: 100, OpenInterest: 2000, DaysToExpiry: 40},
	}
	out, err := Compute(rows, p)
	require.NoError(t, err)

	s := Summarize(out)
	assert.Equal(t, 3, s.Rows)
	assert.Equal(t, 1, s.Invalid)
	assert.Equal(t, 1, s.Alerts)
	assert.Equal(t, day(0), s.First)
	assert.Equal(t, day(2), s.Last)
	require.Len(t, s.Markets, 2)
	assert.Equal(t, "brent", s.Markets[0].Market)
	assert.Equal(t, 1, s.Markets[1].Invalid)
	assert.Equal(t, 1.0, s.Markets[1].MeanPressure)
}

func TestDerivedRow_JSONNulls(t *testing.T) {
	out, err := Compute([]InputRow{{Date: day(0), Market: "wti", SpecNetLong: 1, OpenInterest: 0, DaysToExpiry: 3}}, DefaultParams())
	require.NoError(t, err)

	b, err := json.Marshal(out[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), `"pos_score":null`)
	assert.Contains(t, string(b), `"roll_pressure":null`)
	assert.Contains(t, string(b), `"date":"2024-01-01"`)

	var back DerivedRow
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, math.IsNaN(back.PosScore))
	assert.Equal(t, 0.5, back.TimeWeight)
}
