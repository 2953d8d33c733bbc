package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ErrSubMinute rejects reservation times that carry non-zero seconds.
var ErrSubMinute = errors.New("reservation time must be a whole minute")

// ParseSlot parses a reservation date and time into one value in UTC.
// Times with non-zero seconds are rejected.
func ParseSlot(date, clock string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid reservation date %q: %w", date, err)
	}
	secs, err := minuteSeconds(clock)
	if err != nil {
		return time.Time{}, err
	}
	return d.Add(time.Duration(secs) * time.Second), nil
}

// ClockSeconds returns the seconds-of-day of an "HH:MM" (or "HH:MM:SS") time.
func ClockSeconds(clock string) (int, error) {
	clock = strings.TrimSpace(clock)
	layout := TimeLayout
	if strings.Count(clock, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, clock)
	if err != nil {
		return 0, fmt.Errorf("invalid reservation time %q: %w", clock, err)
	}
	return t.Hour()*3600 + t.Minute()*60 + t.Second(), nil
}

func minuteSeconds(clock string) (int, error) {
	secs, err := ClockSeconds(clock)
	if err != nil {
		return 0, err
	}
	if secs%60 != 0 {
		return 0, fmt.Errorf("%w: %q", ErrSubMinute, clock)
	}
	return secs, nil
}

// NormalizeClock rewrites a time as "HH:MM". "HH:MM:00" is accepted; any
// other seconds value is an error rather than being truncated.
func NormalizeClock(clock string) (string, error) {
	secs, err := minuteSeconds(clock)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", secs/3600, (secs%3600)/60), nil
}
