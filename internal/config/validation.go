package config

import (
	"fmt"
	"strings"

	"github.com/dgnsrekt/roll-pressure/internal/market"
	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
)

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	InvalidMarkets []string
	Params         *rollpressure.ParamsError
	Problems       []string
}

func (e *ValidationErrors) add(problem string) {
	e.Problems = append(e.Problems, problem)
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.InvalidMarkets) > 0 || e.Params != nil || len(e.Problems) > 0
}

// Unwrap exposes the parameter error so callers can match
// rollpressure.ErrInvalidParams.
func (e *ValidationErrors) Unwrap() error {
	if e.Params == nil {
		return nil
	}
	return e.Params
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")

	if len(e.InvalidMarkets) > 0 {
		sb.WriteString("\nInvalid markets:\n")
		for _, m := range e.InvalidMarkets {
			sb.WriteString(fmt.Sprintf("  - %s\n", m))
		}
		sb.WriteString(fmt.Sprintf("\nValid markets: %s\n", strings.Join(market.Names(), ", ")))
	}

	if e.Params != nil {
		sb.WriteString("\nInvalid calculation parameters:\n")
		for _, p := range e.Params.Problems {
			sb.WriteString(fmt.Sprintf("  - %s\n", p))
		}
	}

	if len(e.Problems) > 0 {
		sb.WriteString("\nOther problems:\n")
		for _, p := range e.Problems {
			sb.WriteString(fmt.Sprintf("  - %s\n", p))
		}
	}

	return sb.String()
}

// ValidateMarkets checks a market list on its own, for CLI overrides.
func ValidateMarkets(markets []string) error {
	errs := &ValidationErrors{}
	validateMarkets(errs, markets)
	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateMarkets(errs *ValidationErrors, markets []string) {
	if len(markets) == 0 {
		errs.add("at least one market is required")
		return
	}
	for _, m := range markets {
		if !market.Valid(m) {
			errs.InvalidMarkets = append(errs.InvalidMarkets, m)
		}
	}
}
