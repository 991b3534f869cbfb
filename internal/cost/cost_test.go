package cost

import (
	"testing"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/clock"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

func defaultTerms() models.ContractTerms {
	return models.ContractTerms{
		ComplianceWindowMinutes: 30,
		DwellRatePerHour:        50,
	}
}

func TestDwellTimeCost(t *testing.T) {
	terms := defaultTerms()
	cases := []struct {
		name      string
		candidate string
		want      float64
	}{
		{"on time", "14:00", 0},
		{"early", "13:30", 0},
		{"inside compliance window", "14:15", 0},
		{"at window edge", "14:30", 0},
		{"one hour late", "15:00", 25}, // 30 billable min past the window
		{"ninety minutes late", "15:30", 50},
		{"wraps past midnight", "01:00", 525}, // 660 min late, 630 billable
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := DwellTimeCost(c.candidate, "14:00", terms)
			if got.TotalCost != c.want {
				t.Errorf("DwellTimeCost(%q) = %.2f, want %.2f", c.candidate, got.TotalCost, c.want)
			}
		})
	}
}

func TestDwellTimeCostFreePeriod(t *testing.T) {
	// A contractual free period longer than the compliance window extends the
	// unbilled grace; a shorter one never shrinks it.
	terms := defaultTerms()
	terms.FreePeriodMinutes = 60
	got := DwellTimeCost("14:45", "14:00", terms)
	if got.TotalCost != 0 {
		t.Errorf("within free period: got %.2f, want 0", got.TotalCost)
	}
	got = DwellTimeCost("16:00", "14:00", terms)
	if got.TotalCost != 50 { // 120 min late, 60 billable
		t.Errorf("beyond free period: got %.2f, want 50", got.TotalCost)
	}

	terms.FreePeriodMinutes = 10
	got = DwellTimeCost("14:20", "14:00", terms)
	if got.TotalCost != 0 {
		t.Errorf("inside compliance window with short free period: got %.2f, want 0", got.TotalCost)
	}
}

func TestDwellTimeCostTiered(t *testing.T) {
	terms := defaultTerms()
	terms.PenaltyTiers = []models.DelayPenaltyTier{
		{AfterMinutes: 0, RatePerHour: 50},
		{AfterMinutes: 120, RatePerHour: 100},
	}
	// 180 min late, 150 billable: 120 min at $50/hr + 30 min at $100/hr
	got := DwellTimeCost("17:00", "14:00", terms)
	if got.TotalCost != 150 {
		t.Errorf("tiered cost = %.2f, want 150", got.TotalCost)
	}
	if len(got.Breakdown) != 2 {
		t.Errorf("expected 2 tier line items, got %d", len(got.Breakdown))
	}
}

func TestOTIFPenalty(t *testing.T) {
	if got := OTIFPenalty("14:20", "14:00", 30, 3, 50000); got.TotalCost != 0 {
		t.Errorf("inside window: got %.2f, want 0", got.TotalCost)
	}
	if got := OTIFPenalty("15:00", "14:00", 30, 3, 50000); got.TotalCost != 1500 {
		t.Errorf("outside window: got %.2f, want 1500", got.TotalCost)
	}
	// Early arrivals outside the window are also non-compliant.
	if got := OTIFPenalty("12:00", "14:00", 30, 3, 50000); got.TotalCost != 1500 {
		t.Errorf("early outside window: got %.2f, want 1500", got.TotalCost)
	}
}

func TestTotalImpactIncludesFlatFees(t *testing.T) {
	terms := defaultTerms()
	terms.FlatFees = map[string]float64{"receiver": 25, "carrier": 75}
	params := models.SetupParams{OriginalAppointment: "14:00", DelayMinutes: 60, ShipmentValue: 1000, Mode: models.ModeText}

	got := TotalImpact("15:00", params, terms)
	// 30 billable dwell min = 25, OTIF 0% default, flat fees 100.
	if got.TotalCost != 125 {
		t.Errorf("TotalImpact = %.2f, want 125", got.TotalCost)
	}

	onTime := TotalImpact("14:00", params, terms)
	if onTime.TotalCost != 0 {
		t.Errorf("on-time TotalImpact = %.2f, want 0 (no flat fees)", onTime.TotalCost)
	}

	inWindow := TotalImpact("14:20", params, terms)
	if inWindow.TotalCost != 0 {
		t.Errorf("in-window TotalImpact = %.2f, want 0 (still compliant)", inWindow.TotalCost)
	}
}

// An offer inside the compliance window is on time for every cost component:
// no dwell, no OTIF, no flat fees.
func TestTotalImpactZeroInsideComplianceWindow(t *testing.T) {
	terms := defaultTerms()
	terms.OTIFPenaltyPercent = 3
	terms.FlatFees = map[string]float64{"receiver": 25}
	params := models.SetupParams{OriginalAppointment: "14:00", DelayMinutes: 30, ShipmentValue: 45000, Mode: models.ModeText}

	for _, candidate := range []string{"14:05", "14:15", "14:30"} {
		got := TotalImpact(candidate, params, terms)
		if got.TotalCost != 0 {
			t.Errorf("TotalImpact(%q) = %.2f, want 0", candidate, got.TotalCost)
		}
	}
}

// Cost must never decrease as the candidate gets later.
func TestTotalImpactMonotonic(t *testing.T) {
	terms := models.ContractTerms{
		ComplianceWindowMinutes: 30,
		DwellRatePerHour:        50,
		OTIFPenaltyPercent:      3,
		FlatFees:                map[string]float64{"receiver": 25},
	}
	params := models.SetupParams{OriginalAppointment: "14:00", ShipmentValue: 45000, Mode: models.ModeText}

	prev := -1.0
	for offset := 0; offset <= 10*60; offset += 5 {
		candidate := clock.AddMinutes("14:00", offset)
		got := TotalImpact(candidate, params, terms)
		if got.TotalCost < prev {
			t.Fatalf("cost decreased at +%d min: %.2f < %.2f", offset, got.TotalCost, prev)
		}
		prev = got.TotalCost
	}
}
