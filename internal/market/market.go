// Package market is the registry of supported futures markets.
package market

import (
	"fmt"
	"sort"
	"strings"
)

// Spec describes one market across the data sources that reference it.
type Spec struct {
	Name           string   // canonical key, e.g. "wti"
	Display        string   // label used in notifications, e.g. "WTI"
	CFTCCode       string   // cftc_contract_market_code
	CFTCNames      []string // market_and_exchange_names prefixes, primary first
	ContractPrefix string   // exchange root symbol, e.g. "CL"
	Exchange       string
}

var registry = map[string]Spec{
	"wti": {
		Name:           "wti",
		Display:        "WTI",
		CFTCCode:       "067651",
		CFTCNames:      []string{"WTI FINANCIAL CRUDE OIL", "CRUDE OIL, LIGHT SWEET-WTI"},
		ContractPrefix: "CL",
		Exchange:       "NYMEX",
	},
	"brent": {
		Name:           "brent",
		Display:        "BRENT",
		CFTCCode:       "0B3",
		CFTCNames:      []string{"BRENT LAST DAY"},
		ContractPrefix: "BZ",
		Exchange:       "ICE",
	},
}

// Lookup returns the spec for name, case-insensitively.
func Lookup(name string) (Spec, error) {
	s, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Spec{}, fmt.Errorf("unknown market %q (valid: %s)", name, strings.Join(Names(), ", "))
	}
	return s, nil
}

// Names returns every registered market, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Valid reports whether name is a registered market.
func Valid(name string) bool {
	_, err := Lookup(name)
	return err == nil
}

// Normalize lowercases and validates a list of market names, dropping
// duplicates while keeping the first occurrence order.
func Normalize(names []string) ([]string, error) {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		s, err := Lookup(n)
		if err != nil {
			return nil, err
		}
		if seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		out = append(out, s.Name)
	}
	return out, nil
}
