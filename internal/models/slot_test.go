package models

import (
	"errors"
	"testing"
)

func TestClockSeconds(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "11:30", want: 11*3600 + 30*60},
		{in: " 22:00 ", want: 22 * 3600},
		{in: "18:15:30", want: 18*3600 + 15*60 + 30},
		{in: "25:00", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ClockSeconds(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ClockSeconds(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ClockSeconds(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ClockSeconds(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseSlot(t *testing.T) {
	got, err := ParseSlot("2025-06-01", "12:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Format("2006-01-02 15:04") != "2025-06-01 12:00" {
		t.Fatalf("unexpected slot %s", got)
	}

	if _, err := ParseSlot("2025-13-01", "12:00"); err == nil {
		t.Fatal("expected invalid month to fail")
	}
	if _, err := ParseSlot("2025-06-01", "12"); err == nil {
		t.Fatal("expected invalid time to fail")
	}
}

func TestNormalizeClock(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "9:05", want: "09:05"},
		{in: "12:00:00", want: "12:00"},
		{in: "12:00:45", wantErr: true},
		{in: "24:00", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeClock(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NormalizeClock(%q) = %q, expected error", tt.in, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("NormalizeClock(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestParseSlot_RejectsSeconds(t *testing.T) {
	_, err := ParseSlot("2025-06-01", "12:00:45")
	if !errors.Is(err, ErrSubMinute) {
		t.Fatalf("expected ErrSubMinute, got %v", err)
	}
	if _, err := ParseSlot("2025-06-01", "12:00:00"); err != nil {
		t.Fatalf("whole-minute seconds must parse: %v", err)
	}
}

func TestDraftComplete(t *testing.T) {
	var nilDraft *ReservationDraft
	if nilDraft.Complete() {
		t.Fatal("nil draft must not be complete")
	}
	d := &ReservationDraft{Date: "2025-06-01", Time: "12:00"}
	if d.Complete() {
		t.Fatal("draft without party size must not be complete")
	}
	d.PartySize = 2
	if !d.Complete() {
		t.Fatal("expected complete draft")
	}
}
