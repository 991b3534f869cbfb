package negotiation

import (
	"fmt"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/clock"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/cost"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// EvaluateTimeOffer evaluates one candidate time against the strategy and
// returns the cost analysis plus an accept/pushback recommendation.
//
// The function has no side effects: callers own the decision of whether to
// apply ShouldPushback (incrementing the session's pushback count) or accept.
// Running past the pushback budget is not an error; the offer is then
// force-accepted with a reason noting no better options remain.
func EvaluateTimeOffer(candidate string, strategy models.NegotiationStrategy, pushbackCount int, params models.SetupParams, terms models.ContractTerms) (models.TotalCostImpactResult, models.OfferEvaluation) {
	analysis := cost.TotalImpact(candidate, params, terms)

	late, err := clock.LatenessMinutes(params.OriginalAppointment, candidate)
	if err != nil {
		return analysis, models.OfferEvaluation{
			Quality: models.QualityUnknown,
			Reason:  fmt.Sprintf("could not interpret %q as a time of day", candidate),
		}
	}

	spoken := clock.FormatForSpeech(candidate)
	budgetLeft := pushbackCount < strategy.MaxPushbackAttempts

	switch {
	case late <= strategy.Ideal.MaxMinutesLate:
		return analysis, models.OfferEvaluation{
			Quality:      models.QualityIdeal,
			ShouldAccept: true,
			Reason:       fmt.Sprintf("%s is within the on-time window; cost impact $%.2f", spoken, analysis.TotalCost),
		}
	case late <= strategy.Acceptable.MaxMinutesLate:
		return analysis, models.OfferEvaluation{
			Quality:      models.QualityAcceptable,
			ShouldAccept: true,
			Reason:       fmt.Sprintf("%s is within the acceptable window (by %s); cost impact $%.2f", spoken, clock.FormatForSpeech(strategy.AcceptableBefore), analysis.TotalCost),
		}
	case late <= strategy.Problematic.MaxMinutesLate:
		if budgetLeft {
			return analysis, models.OfferEvaluation{
				Quality:        models.QualitySuboptimal,
				ShouldPushback: true,
				Reason:         fmt.Sprintf("%s is past the acceptable cutoff of %s and would cost $%.2f; countering for an earlier slot", spoken, clock.FormatForSpeech(strategy.AcceptableBefore), analysis.TotalCost),
			}
		}
		return analysis, models.OfferEvaluation{
			Quality:      models.QualitySuboptimal,
			ShouldAccept: true,
			Reason:       fmt.Sprintf("%s costs $%.2f but no better options remain after %d counters", spoken, analysis.TotalCost, pushbackCount),
		}
	default:
		if budgetLeft {
			return analysis, models.OfferEvaluation{
				Quality:        models.QualityUnacceptable,
				ShouldPushback: true,
				Reason:         fmt.Sprintf("%s is far beyond the workable window (worst case %s) at $%.2f; countering for an earlier slot", spoken, clock.FormatForSpeech(strategy.WorstCaseArrival), analysis.TotalCost),
			}
		}
		return analysis, models.OfferEvaluation{
			Quality:      models.QualityUnacceptable,
			ShouldAccept: true,
			Reason:       fmt.Sprintf("%s costs $%.2f but no better options remain after %d counters", spoken, analysis.TotalCost, pushbackCount),
		}
	}
}
