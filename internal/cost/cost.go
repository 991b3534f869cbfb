// Package cost implements the multi-tier cost model reducing a candidate
// appointment time to a total dollar impact.
//
// All functions are pure and deterministic: no side effects, no I/O. Costs
// are monotonically non-decreasing in lateness.
package cost

import (
	"fmt"
	"sort"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/clock"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// DwellTimeCost computes the detention cost of arriving at candidate instead
// of original. Arrivals inside the compliance window (or a longer contractual
// free period) are still on time and cost nothing; minutes beyond that edge
// are billed hourly, linearly at the flat dwell rate by default, or per the
// contract's tier schedule when one is present.
func DwellTimeCost(candidate, original string, terms models.ContractTerms) models.TotalCostImpactResult {
	late, err := clock.LatenessMinutes(original, candidate)
	if err != nil || late <= 0 {
		return models.TotalCostImpactResult{}
	}

	free := terms.FreePeriodMinutes
	if terms.ComplianceWindowMinutes > free {
		free = terms.ComplianceWindowMinutes
	}
	billable := late - free
	if billable <= 0 {
		return models.TotalCostImpactResult{
			Breakdown: []models.CostLineItem{
				{Label: fmt.Sprintf("Dwell: %d min within %d min grace", late, free), Amount: 0},
			},
		}
	}

	if len(terms.PenaltyTiers) == 0 {
		amount := round2(float64(billable) / 60 * terms.DwellRatePerHour)
		return models.TotalCostImpactResult{
			TotalCost: amount,
			Breakdown: []models.CostLineItem{
				{Label: fmt.Sprintf("Dwell: %d min at $%.2f/hr", billable, terms.DwellRatePerHour), Amount: amount},
			},
		}
	}
	return tieredDwellCost(billable, terms.PenaltyTiers)
}

// tieredDwellCost bills each lateness segment at its tier's hourly rate.
// Tiers are evaluated in ascending AfterMinutes order regardless of how the
// contract listed them.
func tieredDwellCost(billableMinutes int, tiers []models.DelayPenaltyTier) models.TotalCostImpactResult {
	sorted := make([]models.DelayPenaltyTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].AfterMinutes < sorted[j].AfterMinutes })

	var result models.TotalCostImpactResult
	for i, tier := range sorted {
		if billableMinutes <= tier.AfterMinutes {
			break
		}
		end := billableMinutes
		if i+1 < len(sorted) && sorted[i+1].AfterMinutes < end {
			end = sorted[i+1].AfterMinutes
		}
		segment := end - tier.AfterMinutes
		amount := round2(float64(segment) / 60 * tier.RatePerHour)
		result.TotalCost = round2(result.TotalCost + amount)
		result.Breakdown = append(result.Breakdown, models.CostLineItem{
			Label:  fmt.Sprintf("Dwell tier >%d min: %d min at $%.2f/hr", tier.AfterMinutes, segment, tier.RatePerHour),
			Amount: amount,
		})
	}
	return result
}

// OTIFPenalty computes the On-Time-In-Full compliance penalty: zero when the
// candidate falls within the compliance window around the original
// appointment, otherwise a fixed percentage of shipment value.
func OTIFPenalty(candidate, original string, windowMinutes int, penaltyPercent, shipmentValue float64) models.TotalCostImpactResult {
	late, err := clock.LatenessMinutes(original, candidate)
	if err != nil {
		return models.TotalCostImpactResult{}
	}
	if late < 0 {
		late = -late
	}
	if late <= windowMinutes {
		return models.TotalCostImpactResult{
			Breakdown: []models.CostLineItem{
				{Label: fmt.Sprintf("OTIF: within %d min compliance window", windowMinutes), Amount: 0},
			},
		}
	}
	amount := round2(penaltyPercent / 100 * shipmentValue)
	return models.TotalCostImpactResult{
		TotalCost: amount,
		Breakdown: []models.CostLineItem{
			{Label: fmt.Sprintf("OTIF penalty: %.1f%% of $%.2f shipment value", penaltyPercent, shipmentValue), Amount: amount},
		},
	}
}

// TotalImpact sums dwell-time cost, OTIF penalty and any flat party fees
// defined in the contract terms. The breakdown preserves per-component
// detail for display.
func TotalImpact(candidate string, params models.SetupParams, terms models.ContractTerms) models.TotalCostImpactResult {
	late, err := clock.LatenessMinutes(params.OriginalAppointment, candidate)
	if err != nil {
		return models.TotalCostImpactResult{}
	}

	var result models.TotalCostImpactResult

	dwell := DwellTimeCost(candidate, params.OriginalAppointment, terms)
	result.TotalCost = round2(result.TotalCost + dwell.TotalCost)
	result.Breakdown = append(result.Breakdown, dwell.Breakdown...)

	otif := OTIFPenalty(candidate, params.OriginalAppointment, terms.ComplianceWindowMinutes, terms.OTIFPenaltyPercent, params.ShipmentValue)
	result.TotalCost = round2(result.TotalCost + otif.TotalCost)
	result.Breakdown = append(result.Breakdown, otif.Breakdown...)

	// Flat fees apply once delivery falls outside the compliance window.
	if late > terms.ComplianceWindowMinutes {
		for _, party := range sortedKeys(terms.FlatFees) {
			fee := round2(terms.FlatFees[party])
			result.TotalCost = round2(result.TotalCost + fee)
			result.Breakdown = append(result.Breakdown, models.CostLineItem{
				Label:  fmt.Sprintf("Flat fee (%s)", party),
				Amount: fee,
			})
		}
	}
	return result
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// round2 rounds to whole cents to keep summed line items stable.
func round2(v float64) float64 {
	if v < 0 {
		return float64(int64(v*100-0.5)) / 100
	}
	return float64(int64(v*100+0.5)) / 100
}
