package domain

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock minute within the trading day.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	if _, err := fmt.Sscanf(s, "%d:%d", &t.Hour, &t.Minute); err != nil {
		return t, fmt.Errorf("domain: parse time of day %q: %w", s, err)
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return t, fmt.Errorf("domain: time of day %q out of range: %w", s, ErrValidation)
	}
	return t, nil
}

// String renders "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

// Reached reports whether now's wall clock is at or past t.
func (t TimeOfDay) Reached(now time.Time) bool {
	return now.Hour()*60+now.Minute() >= t.Minutes()
}

// Schedule drives the daily start/stop cycle.
type Schedule struct {
	Start        TimeOfDay `json:"start"`
	Stop         TimeOfDay `json:"stop"`
	SquareOffEOD bool      `json:"square_off_eod"`
	Timezone     string    `json:"timezone"`
}

// SessionWindow bounds when new entries are accepted.
type SessionWindow struct {
	Open  TimeOfDay `json:"open"`
	Close TimeOfDay `json:"close"`
}

// Contains reports whether now's wall clock falls inside the window.
func (w SessionWindow) Contains(now time.Time) bool {
	m := now.Hour()*60 + now.Minute()
	return m >= w.Open.Minutes() && m < w.Close.Minutes()
}
