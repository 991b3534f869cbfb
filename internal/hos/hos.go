// Package hos implements the Hours-of-Service feasibility engine.
//
// Given a driver's remaining allowances it computes the latest feasible
// arrival time and which legal constraint binds first. The result feeds the
// strategy builder as an upper bound on acceptable appointment times: an
// offer later than the latest feasible time is infeasible regardless of cost.
package hos

import (
	"log/slog"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/clock"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// Regulatory constants (minutes).
const (
	// BreakRequiredAfterMinutes is the maximum driving time since the last
	// 30-minute break before a break becomes immediately binding.
	BreakRequiredAfterMinutes = 480
	// DailyResetMinutes is the off-duty rest period that starts a new shift.
	DailyResetMinutes = 10 * 60
)

// Constraint names reported as the binding limit.
const (
	ConstraintDrive  = "drive"
	ConstraintWindow = "window"
	ConstraintBreak  = "break"
	ConstraintWeekly = "weekly"
)

// Evaluate computes the binding Hours-of-Service constraint for a driver
// relative to now ("HH:MM"). Malformed negative inputs are clamped to zero
// rather than rejected.
func Evaluate(input models.HOSInput, now string) models.HOSConstraint {
	in := input.Clamped()

	candidates := []struct {
		name    string
		minutes int
	}{
		{ConstraintDrive, in.RemainingDriveMinutes},
		{ConstraintWindow, in.RemainingWindowMinutes},
		{ConstraintBreak, breakRemaining(in)},
		{ConstraintWeekly, in.RemainingWeeklyMinutes},
	}

	binding := candidates[0]
	for _, c := range candidates[1:] {
		if c.minutes < binding.minutes {
			binding = c
		}
	}

	result := models.HOSConstraint{
		BindingConstraint:  binding.name,
		RemainingMinutes:   binding.minutes,
		LatestFeasibleTime: clock.AddMinutes(now, binding.minutes),
	}
	if binding.minutes <= 0 {
		result.RequiresNextShift = true
		result.NextShiftEarliestTime = clock.AddMinutes(now, DailyResetMinutes)
	}

	slog.Debug("hos.Evaluate computed binding constraint",
		"constraint", result.BindingConstraint,
		"remainingMinutes", result.RemainingMinutes,
		"latestFeasibleTime", result.LatestFeasibleTime,
		"requiresNextShift", result.RequiresNextShift)
	return result
}

// breakRemaining returns how many more minutes the driver may continue before
// the 30-minute break rule binds. At or past the threshold the break is
// immediately binding (zero), unless the short-haul exemption applies.
func breakRemaining(in models.HOSInput) int {
	if in.ShortHaulExempt {
		// Exempt drivers are limited by the other constraints only.
		return in.RemainingWindowMinutes + in.RemainingDriveMinutes + 1
	}
	remaining := BreakRequiredAfterMinutes - in.MinutesSinceLastBreak
	if remaining < 0 {
		return 0
	}
	return remaining
}
