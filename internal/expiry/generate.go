package expiry

import (
	"fmt"
	"time"

	"github.com/scmhub/calendar"

	"github.com/dgnsrekt/roll-pressure/internal/market"
)

const monthCodes = "FGHJKMNQUVXZ"

// expiryRule maps a delivery month to its last trading day.
type expiryRule func(bd *businessDays, year int, month time.Month) time.Time

var rules = map[string]expiryRule{
	// NYMEX WTI: three business days before the 25th of the prior month.
	"wti": func(bd *businessDays, year int, month time.Month) time.Time {
		base := time.Date(year, month-1, 25, 0, 0, 0, 0, time.UTC)
		return bd.add(base, -3)
	},
	// ICE Brent: last business day of the second month before delivery.
	"brent": func(bd *businessDays, year int, month time.Month) time.Time {
		return bd.lastOfMonth(year, month-2)
	},
}

// ContractCode formats a contract code such as CLG25.
func ContractCode(mkt string, year int, month time.Month) (string, error) {
	spec, err := market.Lookup(mkt)
	if err != nil {
		return "", err
	}
	if month < time.January || month > time.December {
		return "", fmt.Errorf("invalid month %d", month)
	}
	return fmt.Sprintf("%s%c%02d", spec.ContractPrefix, monthCodes[month-1], year%100), nil
}

// MonthsBackFor returns how many delivery months before today a generated
// calendar must start so rows up to days old have an active front contract.
func MonthsBackFor(days int) int {
	if days < 0 {
		days = 0
	}
	return days/28 + 2
}

// Generate builds a default calendar of approximate expiry dates for every
// registered market, for delivery months from monthsBack months before ref
// through monthsAhead months after it.
func Generate(ref time.Time, monthsBack, monthsAhead int) *Calendar {
	bd := newBusinessDays()
	first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)

	var contracts []Contract
	for offset := -monthsBack; offset <= monthsAhead; offset++ {
		delivery := first.AddDate(0, offset, 0)
		year, month := delivery.Year(), delivery.Month()

		for _, name := range market.Names() {
			rule, ok := rules[name]
			if !ok {
				continue
			}
			spec, _ := market.Lookup(name)
			code, _ := ContractCode(name, year, month)
			contracts = append(contracts, Contract{
				Symbol:        spec.Display,
				ContractCode:  code,
				ExpiryDate:    rule(bd, year, month),
				Exchange:      spec.Exchange,
				DeliveryMonth: fmt.Sprintf("%d-%02d", year, int(month)),
			})
		}
	}
	return New(contracts)
}

// businessDays answers business day questions against the NYSE calendar.
type businessDays struct {
	cal *calendar.Calendar
	loc *time.Location
}

func newBusinessDays() *businessDays {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &businessDays{cal: calendar.XNYS(), loc: loc}
}

func (b *businessDays) isBusinessDay(d time.Time) bool {
	// Evaluate at noon local time so the calendar sees the intended date.
	noon := time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, b.loc)
	return b.cal.IsBusinessDay(noon)
}

// add moves n business days from start, not counting start itself.
func (b *businessDays) add(start time.Time, n int) time.Time {
	step := 1
	if n < 0 {
		step, n = -1, -n
	}
	d := start
	for added := 0; added < n; {
		d = d.AddDate(0, 0, step)
		if b.isBusinessDay(d) {
			added++
		}
	}
	return d
}

func (b *businessDays) lastOfMonth(year int, month time.Month) time.Time {
	d := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	for !b.isBusinessDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
