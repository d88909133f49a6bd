// Package rollpressure computes the roll pressure indicator for commodity
// futures from speculative positioning, open interest and days to expiry.
package rollpressure

import (
	"encoding/json"
	"math"
	"time"
)

// DateLayout is the calendar date format used for every date field.
const DateLayout = "2006-01-02"

// InputRow is one observation for one market on one date.
type InputRow struct {
	Date         time.Time
	Market       string
	SpecNetLong  float64
	OpenInterest float64
	DaysToExpiry int
}

// DerivedRow is an InputRow plus the computed indicator fields.
// Undefined numeric fields are NaN.
type DerivedRow struct {
	InputRow

	PositioningRatio float64
	PosScore         float64
	TimeWeight       float64
	RollPressure     float64
	Alert            bool
	Valid            bool
}

type derivedRowJSON struct {
	Date             string   `json:"date"`
	Market           string   `json:"market"`
	SpecNetLong      *float64 `json:"spec_net_long"`
	OpenInterest     *float64 `json:"open_interest"`
	DaysToExpiry     int      `json:"days_to_expiry"`
	PositioningRatio *float64 `json:"positioning_ratio"`
	PosScore         *float64 `json:"pos_score"`
	TimeWeight       *float64 `json:"time_weight"`
	RollPressure     *float64 `json:"roll_pressure"`
	Alert            bool     `json:"alert"`
	Valid            bool     `json:"valid"`
}

// MarshalJSON renders NaN and infinite values as null.
func (r DerivedRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(derivedRowJSON{
		Date:             r.Date.Format(DateLayout),
		Market:           r.Market,
		SpecNetLong:      nullable(r.SpecNetLong),
		OpenInterest:     nullable(r.OpenInterest),
		DaysToExpiry:     r.DaysToExpiry,
		PositioningRatio: nullable(r.PositioningRatio),
		PosScore:         nullable(r.PosScore),
		TimeWeight:       nullable(r.TimeWeight),
		RollPressure:     nullable(r.RollPressure),
		Alert:            r.Alert,
		Valid:            r.Valid,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON; null becomes NaN.
func (r *DerivedRow) UnmarshalJSON(b []byte) error {
	var raw derivedRowJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	date, err := time.Parse(DateLayout, raw.Date)
	if err != nil {
		return err
	}
	*r = DerivedRow{
		InputRow: InputRow{
			Date:         date,
			Market:       raw.Market,
			SpecNetLong:  orNaN(raw.SpecNetLong),
			OpenInterest: orNaN(raw.OpenInterest),
			DaysToExpiry: raw.DaysToExpiry,
		},
		PositioningRatio: orNaN(raw.PositioningRatio),
		PosScore:         orNaN(raw.PosScore),
		TimeWeight:       orNaN(raw.TimeWeight),
		RollPressure:     orNaN(raw.RollPressure),
		Alert:            raw.Alert,
		Valid:            raw.Valid,
	}
	return nil
}

// Defined reports whether v is a usable number.
func Defined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func nullable(v float64) *float64 {
	if !Defined(v) {
		return nil
	}
	return &v
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
