// Package expiry maintains the futures contract expiry calendar and derives
// days to expiry for the front contract of each market.
package expiry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/roll-pressure/internal/market"
)

const dateLayout = "2006-01-02"

var csvHeader = []string{"symbol", "contract_code", "expiry_date", "exchange", "delivery_month"}

// Contract is one futures contract and its last trading day.
type Contract struct {
	Symbol        string // market display symbol, e.g. "WTI"
	ContractCode  string // e.g. "CLG25"
	ExpiryDate    time.Time
	Exchange      string
	DeliveryMonth string // YYYY-MM
}

// Market returns the registry key for the contract's symbol.
func (c Contract) Market() string {
	if s, err := market.Lookup(c.Symbol); err == nil {
		return s.Name
	}
	return strings.ToLower(c.Symbol)
}

// Calendar is an immutable set of contracts sorted by expiry.
type Calendar struct {
	contracts []Contract
}

func New(contracts []Contract) *Calendar {
	sorted := append([]Contract(nil), contracts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExpiryDate.Before(sorted[j].ExpiryDate)
	})
	return &Calendar{contracts: sorted}
}

// Contracts returns a copy of every contract, sorted by expiry.
func (c *Calendar) Contracts() []Contract {
	return append([]Contract(nil), c.contracts...)
}

// ForMarket returns the market's contracts, sorted by expiry.
func (c *Calendar) ForMarket(mkt string) []Contract {
	var out []Contract
	for _, ct := range c.contracts {
		if ct.Market() == strings.ToLower(mkt) {
			out = append(out, ct)
		}
	}
	return out
}

// FrontContract returns the nearest contract expiring on or after ref. The
// calendar only knows the front contract once an earlier contract of the
// market has expired before ref, so dates up to the first listed expiry
// report false.
func (c *Calendar) FrontContract(mkt string, ref time.Time) (Contract, bool) {
	day := truncateDay(ref)
	contracts := c.ForMarket(mkt)
	if len(contracts) == 0 || !contracts[0].ExpiryDate.Before(day) {
		return Contract{}, false
	}
	for _, ct := range contracts[1:] {
		if !ct.ExpiryDate.Before(day) {
			return ct, true
		}
	}
	return Contract{}, false
}

// Covers reports whether the calendar has a front contract for mkt on every
// day from start through end.
func (c *Calendar) Covers(mkt string, start, end time.Time) bool {
	_, okStart := c.FrontContract(mkt, start)
	_, okEnd := c.FrontContract(mkt, end)
	return okStart && okEnd
}

// DaysToExpiry returns calendar days from ref to the front contract's
// expiry, never negative. ok is false when no contract is active.
func (c *Calendar) DaysToExpiry(mkt string, ref time.Time) (days int, ok bool) {
	front, ok := c.FrontContract(mkt, ref)
	if !ok {
		return 0, false
	}
	days = int(front.ExpiryDate.Sub(truncateDay(ref)).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days, true
}

// Open loads the calendar at path, generating and saving a default one
// when the file does not exist.
func Open(path string, monthsBack, monthsAhead int, logger *zap.Logger) (*Calendar, error) {
	cal, err := Load(path)
	if err == nil {
		logger.Info("loaded expiry calendar",
			zap.String("path", path),
			zap.Int("contracts", len(cal.contracts)))
		return cal, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	logger.Warn("expiry calendar not found, generating default",
		zap.String("path", path),
		zap.Int("months_back", monthsBack),
		zap.Int("months_ahead", monthsAhead))

	cal = Generate(time.Now(), monthsBack, monthsAhead)
	if err := cal.Save(path); err != nil {
		return nil, err
	}
	logger.Warn("default expiry dates are approximations, verify them against exchange calendars",
		zap.String("path", path),
		zap.Int("contracts", len(cal.contracts)))
	return cal, nil
}

// Load reads a calendar CSV.
func Load(path string) (*Calendar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening calendar: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Read(f)
}

// Read parses calendar CSV from r. The header row is required.
func Read(r io.Reader) (*Calendar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading calendar header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range csvHeader {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("calendar missing column %q", name)
		}
	}

	var contracts []Contract
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading calendar line %d: %w", line, err)
		}

		expiry, err := time.Parse(dateLayout, strings.TrimSpace(rec[cols["expiry_date"]]))
		if err != nil {
			return nil, fmt.Errorf("calendar line %d: invalid expiry_date: %w", line, err)
		}
		contracts = append(contracts, Contract{
			Symbol:        rec[cols["symbol"]],
			ContractCode:  rec[cols["contract_code"]],
			ExpiryDate:    expiry,
			Exchange:      rec[cols["exchange"]],
			DeliveryMonth: rec[cols["delivery_month"]],
		})
	}
	return New(contracts), nil
}

// Save writes the calendar CSV atomically.
func (c *Calendar) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating calendar directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if err := c.Write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming calendar: %w", err)
	}
	return nil
}

// Write renders the calendar as CSV.
func (c *Calendar) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing calendar header: %w", err)
	}
	for _, ct := range c.contracts {
		rec := []string{ct.Symbol, ct.ContractCode, ct.ExpiryDate.Format(dateLayout), ct.Exchange, ct.DeliveryMonth}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing calendar row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
