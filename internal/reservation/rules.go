package reservation

import (
	"fmt"
	"time"

	"github.com/suPer8Hu/cookingpapa/internal/config"
	"github.com/suPer8Hu/cookingpapa/internal/models"
)

// Window is one service period. Both bounds are inclusive.
type Window struct {
	Name  string
	Open  string // HH:MM
	Close string // HH:MM

	open, close int // seconds of day
}

func newWindow(name, open, close string) (Window, error) {
	o, err := models.ClockSeconds(open)
	if err != nil {
		return Window{}, fmt.Errorf("%s open: %w", name, err)
	}
	c, err := models.ClockSeconds(close)
	if err != nil {
		return Window{}, fmt.Errorf("%s close: %w", name, err)
	}
	if c < o {
		return Window{}, fmt.Errorf("%s window closes before it opens", name)
	}
	return Window{Name: name, Open: open, Close: close, open: o, close: c}, nil
}

func (w Window) contains(sec int) bool {
	return sec >= w.open && sec <= w.close
}

// Rules are the booking limits the validator enforces.
type Rules struct {
	Windows       []Window
	MaxPartySize  int
	MaxConcurrent int
	Tolerance     time.Duration
}

func DefaultRules() Rules {
	r, _ := NewRules(config.BookingConfig{
		LunchOpen:     "11:30",
		LunchClose:    "15:00",
		DinnerOpen:    "18:00",
		DinnerClose:   "22:00",
		MaxPartySize:  8,
		MaxConcurrent: 3,
		Tolerance:     30 * time.Minute,
	})
	return r
}

func NewRules(cfg config.BookingConfig) (Rules, error) {
	lunch, err := newWindow("午市", cfg.LunchOpen, cfg.LunchClose)
	if err != nil {
		return Rules{}, err
	}
	dinner, err := newWindow("晚市", cfg.DinnerOpen, cfg.DinnerClose)
	if err != nil {
		return Rules{}, err
	}
	if cfg.MaxPartySize <= 0 || cfg.MaxConcurrent <= 0 || cfg.Tolerance <= 0 {
		return Rules{}, fmt.Errorf("booking limits must be positive: party=%d concurrent=%d tolerance=%s",
			cfg.MaxPartySize, cfg.MaxConcurrent, cfg.Tolerance)
	}
	return Rules{
		Windows:       []Window{lunch, dinner},
		MaxPartySize:  cfg.MaxPartySize,
		MaxConcurrent: cfg.MaxConcurrent,
		Tolerance:     cfg.Tolerance,
	}, nil
}

// InServiceHours reports whether clock falls inside any window.
func (r Rules) InServiceHours(clock string) (bool, error) {
	sec, err := models.ClockSeconds(clock)
	if err != nil {
		return false, err
	}
	for _, w := range r.Windows {
		if w.contains(sec) {
			return true, nil
		}
	}
	return false, nil
}
