package main

import (
	"time"

	"github.com/scmhub/calendar"
)

// Scheduler decides when the daily run is due. Runs happen on NYSE
// business days at a fixed wall-clock time.
type Scheduler struct {
	hour     int
	minute   int
	location *time.Location
	nyse     *calendar.Calendar
	now      func() time.Time
}

// NewScheduler falls back to UTC when the timezone cannot be loaded.
func NewScheduler(hour, minute int, timezone string) *Scheduler {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return &Scheduler{
		hour:     hour,
		minute:   minute,
		location: loc,
		nyse:     calendar.XNYS(),
		now:      time.Now,
	}
}

// IsScheduledTime reports whether the current minute is the scheduled one.
func (s *Scheduler) IsScheduledTime() bool {
	now := s.now().In(s.location)
	return now.Hour() == s.hour && now.Minute() == s.minute
}

// PastScheduledTime reports whether today's scheduled time has been reached.
func (s *Scheduler) PastScheduledTime() bool {
	now := s.now().In(s.location)
	scheduled := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, s.location)
	return !now.Before(scheduled)
}

// TodayDate returns today's date in YYYY-MM-DD format in the configured timezone
func (s *Scheduler) TodayDate() string {
	return s.now().In(s.location).Format("2006-01-02")
}

// IsMarketDay checks if the given date is a trading day (not weekend/holiday)
func (s *Scheduler) IsMarketDay(dateStr string) bool {
	// Noon avoids DST edges shifting the date
	t, err := time.ParseInLocation("2006-01-02 15:04:05", dateStr+" 12:00:00", s.location)
	if err != nil {
		return false
	}
	return s.nyse.IsBusinessDay(t)
}

func (s *Scheduler) Location() *time.Location {
	return s.location
}
