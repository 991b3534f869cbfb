package hos

import (
	"testing"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

func TestEvaluateBindingConstraint(t *testing.T) {
	cases := []struct {
		name         string
		input        models.HOSInput
		wantBinding  string
		wantMinutes  int
		wantFeasible string
	}{
		{
			name: "drive limit binds",
			input: models.HOSInput{
				RemainingDriveMinutes:  90,
				RemainingWindowMinutes: 300,
				MinutesSinceLastBreak:  100,
				RemainingWeeklyMinutes: 600,
			},
			wantBinding:  ConstraintDrive,
			wantMinutes:  90,
			wantFeasible: "15:30",
		},
		{
			name: "window limit binds",
			input: models.HOSInput{
				RemainingDriveMinutes:  400,
				RemainingWindowMinutes: 45,
				MinutesSinceLastBreak:  0,
				RemainingWeeklyMinutes: 600,
			},
			wantBinding:  ConstraintWindow,
			wantMinutes:  45,
			wantFeasible: "14:45",
		},
		{
			name: "break immediately binding",
			input: models.HOSInput{
				RemainingDriveMinutes:  200,
				RemainingWindowMinutes: 300,
				MinutesSinceLastBreak:  500,
				RemainingWeeklyMinutes: 600,
			},
			wantBinding:  ConstraintBreak,
			wantMinutes:  0,
			wantFeasible: "14:00",
		},
		{
			name: "weekly limit binds",
			input: models.HOSInput{
				RemainingDriveMinutes:  200,
				RemainingWindowMinutes: 300,
				MinutesSinceLastBreak:  0,
				RemainingWeeklyMinutes: 30,
			},
			wantBinding:  ConstraintWeekly,
			wantMinutes:  30,
			wantFeasible: "14:30",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Evaluate(c.input, "14:00")
			if got.BindingConstraint != c.wantBinding {
				t.Errorf("binding = %q, want %q", got.BindingConstraint, c.wantBinding)
			}
			if got.RemainingMinutes != c.wantMinutes {
				t.Errorf("remaining = %d, want %d", got.RemainingMinutes, c.wantMinutes)
			}
			if got.LatestFeasibleTime != c.wantFeasible {
				t.Errorf("latest feasible = %q, want %q", got.LatestFeasibleTime, c.wantFeasible)
			}
		})
	}
}

func TestEvaluateRequiresNextShift(t *testing.T) {
	got := Evaluate(models.HOSInput{
		RemainingDriveMinutes:  0,
		RemainingWindowMinutes: 100,
		MinutesSinceLastBreak:  0,
		RemainingWeeklyMinutes: 100,
	}, "14:00")
	if !got.RequiresNextShift {
		t.Fatal("expected RequiresNextShift when a hard limit is exhausted")
	}
	if got.NextShiftEarliestTime != "00:00" { // 14:00 + 10h
		t.Errorf("next shift earliest = %q, want 00:00", got.NextShiftEarliestTime)
	}
}

func TestEvaluateShortHaulExemptIgnoresBreak(t *testing.T) {
	got := Evaluate(models.HOSInput{
		RemainingDriveMinutes:  120,
		RemainingWindowMinutes: 200,
		MinutesSinceLastBreak:  700,
		RemainingWeeklyMinutes: 400,
		ShortHaulExempt:        true,
	}, "08:00")
	if got.BindingConstraint == ConstraintBreak {
		t.Errorf("short-haul exempt driver should not be break-bound, got %q", got.BindingConstraint)
	}
	if got.BindingConstraint != ConstraintDrive {
		t.Errorf("binding = %q, want %q", got.BindingConstraint, ConstraintDrive)
	}
}

func TestEvaluateClampsNegativeInput(t *testing.T) {
	got := Evaluate(models.HOSInput{
		RemainingDriveMinutes:  -50,
		RemainingWindowMinutes: 100,
		MinutesSinceLastBreak:  0,
		RemainingWeeklyMinutes: 100,
	}, "09:00")
	if got.RemainingMinutes != 0 {
		t.Errorf("negative drive minutes should clamp to 0, got %d", got.RemainingMinutes)
	}
	if !got.RequiresNextShift {
		t.Error("clamped zero should still require next shift")
	}
}
