// Package export renders derived rows to CSV, JSONL and Parquet and ships
// committed artifacts to S3.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
)

// Columns is the CSV header, in order.
var Columns = []string{
	"date", "market", "spec_net_long", "open_interest", "days_to_expiry",
	"positioning_ratio", "pos_score", "time_weight", "roll_pressure", "alert",
}

// WriteCSV writes rows with a header. Undefined values are empty cells.
func WriteCSV(w io.Writer, rows []rollpressure.DerivedRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, r := range rows {
		rec := []string{
			r.Date.Format(rollpressure.DateLayout),
			r.Market,
			formatFloat(r.SpecNetLong),
			formatFloat(r.OpenInterest),
			strconv.Itoa(r.DaysToExpiry),
			formatFloat(r.PositioningRatio),
			formatFloat(r.PosScore),
			formatFloat(r.TimeWeight),
			formatFloat(r.RollPressure),
			strconv.FormatBool(r.Alert),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a processed CSV. Empty numeric cells become NaN and a row
// is marked valid when its positioning ratio is defined.
func ReadCSV(r io.Reader) ([]rollpressure.DerivedRow, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, name := range Columns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var rows []rollpressure.DerivedRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row, err := parseRecord(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadCSVFile is ReadCSV on a path.
func ReadCSVFile(path string) ([]rollpressure.DerivedRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return ReadCSV(f)
}

func parseRecord(rec []string, cols map[string]int) (rollpressure.DerivedRow, error) {
	get := func(name string) string { return strings.TrimSpace(rec[cols[name]]) }

	date, err := time.Parse(rollpressure.DateLayout, get("date"))
	if err != nil {
		return rollpressure.DerivedRow{}, fmt.Errorf("invalid date: %w", err)
	}
	days, err := strconv.Atoi(get("days_to_expiry"))
	if err != nil {
		return rollpressure.DerivedRow{}, fmt.Errorf("invalid days_to_expiry: %w", err)
	}

	var floats [6]float64
	for i, name := range []string{"spec_net_long", "open_interest", "positioning_ratio", "pos_score", "time_weight", "roll_pressure"} {
		v, err := parseFloat(get(name))
		if err != nil {
			return rollpressure.DerivedRow{}, fmt.Errorf("invalid %s: %w", name, err)
		}
		floats[i] = v
	}

	alert, err := strconv.ParseBool(strings.ToLower(get("alert")))
	if err != nil {
		return rollpressure.DerivedRow{}, fmt.Errorf("invalid alert: %w", err)
	}

	return rollpressure.DerivedRow{
		InputRow: rollpressure.InputRow{
			Date:         date,
			Market:       get("market"),
			SpecNetLong:  floats[0],
			OpenInterest: floats[1],
			DaysToExpiry: days,
		},
		PositioningRatio: floats[2],
		PosScore:         floats[3],
		TimeWeight:       floats[4],
		RollPressure:     floats[5],
		Alert:            alert,
		Valid:            rollpressure.Defined(floats[2]),
	}, nil
}

func formatFloat(v float64) string {
	if !rollpressure.Defined(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) (float64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
