package data

import (
	"sort"
	"sync"
	"time"

	"github.com/dgnsrekt/roll-pressure/internal/rollpressure"
)

// Snapshot is an immutable set of derived rows served by the read API.
type Snapshot struct {
	RunID    string
	Source   string
	LoadedAt time.Time
	Rows     []rollpressure.DerivedRow
	Summary  rollpressure.Summary
}

// NewSnapshot sorts rows by market and date and precomputes the summary.
func NewSnapshot(runID, source string, rows []rollpressure.DerivedRow, loadedAt time.Time) *Snapshot {
	sorted := make([]rollpressure.DerivedRow, len(rows))
	copy(sorted, rows)
	rollpressure.SortByMarketDate(sorted)
	return &Snapshot{
		RunID:    runID,
		Source:   source,
		LoadedAt: loadedAt,
		Rows:     sorted,
		Summary:  rollpressure.Summarize(sorted),
	}
}

// Markets returns the distinct markets in the snapshot, sorted.
func (s *Snapshot) Markets() []string {
	seen := make(map[string]bool)
	var markets []string
	for _, r := range s.Rows {
		if !seen[r.Market] {
			seen[r.Market] = true
			markets = append(markets, r.Market)
		}
	}
	sort.Strings(markets)
	return markets
}

// Filter returns rows matching market within [from, to]. An empty market
// matches every market; zero bounds are open.
func (s *Snapshot) Filter(market string, from, to time.Time) []rollpressure.DerivedRow {
	out := make([]rollpressure.DerivedRow, 0)
	for _, r := range s.Rows {
		if market != "" && r.Market != market {
			continue
		}
		if !from.IsZero() && r.Date.Before(from) {
			continue
		}
		if !to.IsZero() && r.Date.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Alerts returns the latest alerting row per market.
func (s *Snapshot) Alerts() []rollpressure.DerivedRow {
	return rollpressure.LatestAlerts(s.Rows)
}

// Store holds the current snapshot and allows atomic replacement.
// This enables hot-reloading of data without stopping the server.
type Store struct {
	mu      sync.RWMutex
	current *Snapshot
}

// NewStore creates a Store. initial may be nil until the first load.
func NewStore(initial *Snapshot) *Store {
	return &Store{current: initial}
}

// Swap atomically replaces the snapshot and returns the old one.
func (s *Store) Swap(next *Snapshot) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.current
	s.current = next
	return old
}

// Current returns the active snapshot, or ErrNotFound before the first load.
func (s *Store) Current() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNotFound
	}
	return s.current, nil
}
