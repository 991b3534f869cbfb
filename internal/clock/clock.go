// Package clock provides time-of-day arithmetic for appointment negotiation.
//
// Times are passed around as 24-hour "HH:MM" strings, matching how appointment
// times appear in contracts and dock schedules. All functions are pure.
package clock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay is the number of minutes in one day.
const MinutesPerDay = 24 * 60

// ErrInvalidTime indicates a string that is not a valid "HH:MM" time of day.
var ErrInvalidTime = errors.New("invalid time of day")

// MinuteOfDay parses a 24-hour "HH:MM" string into minutes since midnight.
func MinuteOfDay(t string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(t), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, t)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, t)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, t)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, t)
	}
	return h*60 + m, nil
}

// FromMinuteOfDay formats minutes since midnight as a 24-hour "HH:MM" string.
// Values outside [0, 1440) wrap around the day boundary.
func FromMinuteOfDay(minutes int) string {
	minutes %= MinutesPerDay
	if minutes < 0 {
		minutes += MinutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// AddMinutes adds delta minutes to a "HH:MM" time, wrapping across the 24h
// boundary in either direction. Invalid input is returned unchanged so that
// upstream validation remains the single place that rejects bad times.
func AddMinutes(t string, delta int) string {
	m, err := MinuteOfDay(t)
	if err != nil {
		return t
	}
	return FromMinuteOfDay(m + delta)
}

// LatenessMinutes returns how many minutes candidate falls after original.
// A candidate earlier on the clock by more than 12 hours is treated as having
// wrapped into the next day, so "23:30" -> "01:00" is 90 minutes late rather
// than 22.5 hours early.
func LatenessMinutes(original, candidate string) (int, error) {
	om, err := MinuteOfDay(original)
	if err != nil {
		return 0, err
	}
	cm, err := MinuteOfDay(candidate)
	if err != nil {
		return 0, err
	}
	d := cm - om
	if d < -MinutesPerDay/2 {
		d += MinutesPerDay
	}
	return d, nil
}

// DayOffset reports whether candidate lands on the day after original
// (1) or the same day (0), using the same wrap rule as LatenessMinutes.
func DayOffset(original, candidate string) int {
	d, err := LatenessMinutes(original, candidate)
	if err != nil {
		return 0
	}
	cm, _ := MinuteOfDay(candidate)
	om, _ := MinuteOfDay(original)
	if d > 0 && cm < om {
		return 1
	}
	return 0
}

// FormatForSpeech converts a 24-hour "HH:MM" time to its 12-hour spoken form:
// "14:30" -> "2:30 PM", "14:00" -> "2 PM", "00:15" -> "12:15 AM". The mapping
// is exact; no rounding is applied.
func FormatForSpeech(t string) string {
	m, err := MinuteOfDay(t)
	if err != nil {
		return t
	}
	h := m / 60
	min := m % 60
	meridiem := "AM"
	if h >= 12 {
		meridiem = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	if min == 0 {
		return fmt.Sprintf("%d %s", h12, meridiem)
	}
	return fmt.Sprintf("%d:%02d %s", h12, min, meridiem)
}

// Compare orders two "HH:MM" times relative to a reference appointment:
// it returns a negative value if a is earlier than b in lateness terms,
// zero if equal, positive if later. Both are measured against original
// with the next-day wrap rule.
func Compare(original, a, b string) int {
	la, errA := LatenessMinutes(original, a)
	lb, errB := LatenessMinutes(original, b)
	if errA != nil || errB != nil {
		return 0
	}
	return la - lb
}
