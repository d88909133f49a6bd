package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/roll-pressure/internal/market"
	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
)

// FormatAlertLine renders one alert, e.g. "WTI 2025-01-17 RP=1.000 pos=0.92 days=1".
func FormatAlertLine(r rollpressure.DerivedRow) string {
	label := strings.ToUpper(r.Market)
	if spec, err := market.Lookup(r.Market); err == nil {
		label = spec.Display
	}
	return fmt.Sprintf("%s %s RP=%.3f pos=%.2f days=%d",
		label, r.Date.Format(rollpressure.DateLayout), r.RollPressure, r.PosScore, r.DaysToExpiry)
}

// FormatAlertMessage creates an alert notification body, one line per alert.
func FormatAlertMessage(alerts []rollpressure.DerivedRow) string {
	lines := make([]string, 0, len(alerts))
	for _, a := range alerts {
		lines = append(lines, FormatAlertLine(a))
	}
	return strings.Join(lines, "\n")
}

// FormatSuccessMessage creates a run summary body.
func FormatSuccessMessage(s rollpressure.Summary, duration time.Duration) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Rows: %d\n", s.Rows))
	sb.WriteString(fmt.Sprintf("Invalid: %d\n", s.Invalid))
	sb.WriteString(fmt.Sprintf("Alerts: %d\n", s.Alerts))
	for _, m := range s.Markets {
		sb.WriteString(fmt.Sprintf("%s: RP %.3f..%.3f (mean %.3f)\n",
			strings.ToUpper(m.Market), m.RollPressure.Min, m.RollPressure.Max, m.MeanPressure))
	}
	sb.WriteString(fmt.Sprintf("Duration: %s", duration.Round(time.Second)))

	return sb.String()
}

// FormatFailureMessage creates a failure notification body.
func FormatFailureMessage(duration time.Duration, err error, details []string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Duration: %s", duration.Round(time.Second)))

	if err != nil {
		sb.WriteString(fmt.Sprintf("\n\nError: %v", err))
	}

	// Include first 3 details if available
	if len(details) > 0 {
		sb.WriteString("\n\nErrors:\n")
		limit := 3
		if len(details) < limit {
			limit = len(details)
		}
		for i := 0; i < limit; i++ {
			sb.WriteString(fmt.Sprintf("- %s\n", details[i]))
		}
		if len(details) > 3 {
			sb.WriteString(fmt.Sprintf("... and %d more errors", len(details)-3))
		}
	}

	return sb.String()
}
