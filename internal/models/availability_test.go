package models

import (
	"testing"
	"time"
)

func validWindow() AvailabilityWindow {
	return AvailabilityWindow{
		ID:        "0c6f2f1a-9f3e-4a7b-8f21-1d2e3c4b5a69",
		OwnerID:   "owner-1",
		DayOfWeek: 1,
		StartTime: "09:00",
		EndTime:   "10:00",
		Status:    StatusAvailable,
		Timezone:  "UTC",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestAvailabilityWindow_Validate(t *testing.T) {
	w := validWindow()
	if err := w.Validate(); err != nil {
		t.Fatalf("Expected valid window, got: %v", err)
	}
}

func TestAvailabilityWindow_Validate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AvailabilityWindow)
	}{
		{"missing owner", func(w *AvailabilityWindow) { w.OwnerID = "" }},
		{"day too low", func(w *AvailabilityWindow) { w.DayOfWeek = -1 }},
		{"day too high", func(w *AvailabilityWindow) { w.DayOfWeek = 7 }},
		{"bad start time", func(w *AvailabilityWindow) { w.StartTime = "9am" }},
		{"bad end time", func(w *AvailabilityWindow) { w.EndTime = "25:00" }},
		{"start equals end", func(w *AvailabilityWindow) { w.EndTime = w.StartTime }},
		{"start after end", func(w *AvailabilityWindow) { w.StartTime = "11:00" }},
		{"unknown status", func(w *AvailabilityWindow) { w.Status = "busy" }},
		{"missing timezone", func(w *AvailabilityWindow) { w.Timezone = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := validWindow()
			tt.mutate(&w)
			if err := w.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		input   string
		want    Clock
		wantErr bool
	}{
		{"09:00", Clock{9, 0}, false},
		{"23:59", Clock{23, 59}, false},
		{"00:00", Clock{0, 0}, false},
		{"09:30:15", Clock{9, 30}, false}, // seconds dropped
		{"24:00", Clock{}, true},
		{"12:60", Clock{}, true},
		{"12", Clock{}, true},
		{"noon", Clock{}, true},
		{"", Clock{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseClock(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseClock(%q): expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClock(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseClock(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeClock(t *testing.T) {
	if got := NormalizeClock("09:30:45"); got != "09:30" {
		t.Errorf("Expected 09:30, got %s", got)
	}
	if got := NormalizeClock("9:5"); got != "09:05" {
		t.Errorf("Expected zero-padded 09:05, got %s", got)
	}
	// invalid input passes through untouched
	if got := NormalizeClock("bogus"); got != "bogus" {
		t.Errorf("Expected bogus unchanged, got %s", got)
	}
}

func TestClock_Before(t *testing.T) {
	a := Clock{9, 0}
	b := Clock{9, 30}
	c := Clock{10, 0}

	if !a.Before(b) || !b.Before(c) || !a.Before(c) {
		t.Error("Expected strictly increasing clocks")
	}
	if b.Before(a) || a.Before(a) {
		t.Error("Before must be strict")
	}
}

func TestAvailabilityStatus_IsValid(t *testing.T) {
	for _, s := range []AvailabilityStatus{StatusAvailable, StatusIdle, StatusDoNotDisturb} {
		if !s.IsValid() {
			t.Errorf("Expected %s to be valid", s)
		}
	}
	if AvailabilityStatus("away").IsValid() {
		t.Error("Expected unknown status to be invalid")
	}
}
