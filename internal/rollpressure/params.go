package rollpressure

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidParams is the sentinel wrapped by every ParamsError.
var ErrInvalidParams = errors.New("invalid roll pressure parameters")

// Params are the recognized calculation and alert options. They are passed
// into every computation; nothing is read from package state.
type Params struct {
	LookbackPercentile int     // window size W for percentile ranking
	TimeWeightAlpha    float64 // α smoothing parameter, must be > -1
	MinValue           float64 // lower clamp bound for roll pressure
	MaxValue           float64 // upper clamp bound for roll pressure
	MinOpenInterest    float64 // validity floor for open interest
	DaysThreshold      int     // alert when days to expiry <= this
	PosScoreThreshold  float64 // alert when pos score >= this
}

// DefaultParams returns the documented defaults.
func DefaultParams() Params {
	return Params{
		LookbackPercentile: 252,
		TimeWeightAlpha:    1.0,
		MinValue:           0.0,
		MaxValue:           1.0,
		MinOpenInterest:    1000,
		DaysThreshold:      2,
		PosScoreThreshold:  0.80,
	}
}

// ParamsError lists every constraint a Params value violates.
type ParamsError struct {
	Problems []string
}

func (e *ParamsError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidParams, strings.Join(e.Problems, "; "))
}

func (e *ParamsError) Unwrap() error {
	return ErrInvalidParams
}

// Validate checks the parameters before any row is processed.
func (p Params) Validate() error {
	var problems []string

	finite := map[string]float64{
		"time_weight_alpha":   p.TimeWeightAlpha,
		"min_value":           p.MinValue,
		"max_value":           p.MaxValue,
		"min_open_interest":   p.MinOpenInterest,
		"pos_score_threshold": p.PosScoreThreshold,
	}
	for _, name := range []string{"time_weight_alpha", "min_value", "max_value", "min_open_interest", "pos_score_threshold"} {
		v := finite[name]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			problems = append(problems, fmt.Sprintf("%s must be finite, got %v", name, v))
		}
	}

	if p.LookbackPercentile < 1 {
		problems = append(problems, fmt.Sprintf("lookback_percentile must be >= 1, got %d", p.LookbackPercentile))
	}
	if p.TimeWeightAlpha <= -1 {
		problems = append(problems, fmt.Sprintf("time_weight_alpha must be > -1, got %v", p.TimeWeightAlpha))
	}
	if p.MinValue > p.MaxValue {
		problems = append(problems, fmt.Sprintf("min_value (%v) must not exceed max_value (%v)", p.MinValue, p.MaxValue))
	}
	if p.MinOpenInterest < 0 {
		problems = append(problems, fmt.Sprintf("min_open_interest must be >= 0, got %v", p.MinOpenInterest))
	}

	if len(problems) > 0 {
		return &ParamsError{Problems: problems}
	}
	return nil
}

// IsValid reports whether a row passes the open interest validity check.
func (p Params) IsValid(row InputRow) bool {
	oi := row.OpenInterest
	if math.IsNaN(oi) || math.IsInf(oi, 0) || oi <= 0 {
		return false
	}
	if oi < p.MinOpenInterest {
		return false
	}
	return !math.IsNaN(row.SpecNetLong) && !math.IsInf(row.SpecNetLong, 0)
}
