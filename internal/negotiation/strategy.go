// Package negotiation implements the dispatcher's negotiation strategy:
// threshold bands derived from contract terms and driver availability, and
// the evaluation of candidate appointment times against them.
package negotiation

import (
	"fmt"
	"log/slog"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/clock"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/cost"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// Policy constants.
const (
	// MaxPushbackAttempts is the fixed pushback budget per session.
	MaxPushbackAttempts = 2
	// ProblematicMarginMinutes extends the acceptable boundary to the edge of
	// the suboptimal band; offers beyond it are unacceptable.
	ProblematicMarginMinutes = 120
	// DefaultAcceptableCostThreshold is the dollar cutoff under which an
	// offer's cost is described as acceptable.
	DefaultAcceptableCostThreshold = 100
	// DefaultProblematicCostThreshold is the dollar cutoff beyond which an
	// offer's cost is described as problematic.
	DefaultProblematicCostThreshold = 500
)

// BuildStrategy derives the session's negotiation strategy from setup
// parameters, contract terms and the optional HOS constraint. The result is
// immutable for the session; callers recompute it only on a full reset.
func BuildStrategy(params models.SetupParams, terms models.ContractTerms, hosConstraint *models.HOSConstraint) models.NegotiationStrategy {
	original := params.OriginalAppointment
	actualArrival := clock.AddMinutes(original, params.DelayMinutes)

	idealLate := terms.ComplianceWindowMinutes
	acceptableLate := params.DelayMinutes
	if acceptableLate < idealLate {
		acceptableLate = idealLate
	}

	strategy := models.NegotiationStrategy{
		MaxPushbackAttempts: MaxPushbackAttempts,
	}

	// An HOS-bound driver tightens the acceptable window: no point accepting
	// a slot the driver cannot legally reach.
	if hosConstraint != nil {
		strategy.HOS = hosConstraint
		feasibleLate, err := clock.LatenessMinutes(original, hosConstraint.LatestFeasibleTime)
		if err == nil && feasibleLate < acceptableLate {
			slog.Info("negotiation.BuildStrategy: HOS constraint tightens acceptable window",
				"constraint", hosConstraint.BindingConstraint,
				"latestFeasibleTime", hosConstraint.LatestFeasibleTime,
				"contractAcceptableMinutesLate", acceptableLate,
				"hosAcceptableMinutesLate", feasibleLate)
			acceptableLate = feasibleLate
			if acceptableLate < idealLate {
				idealLate = acceptableLate
			}
		}
	}

	problematicLate := acceptableLate + ProblematicMarginMinutes

	idealBefore := clock.AddMinutes(original, idealLate)
	acceptableBefore := clock.AddMinutes(original, acceptableLate)
	worstCase := clock.AddMinutes(original, problematicLate)

	strategy.Ideal = models.StrategyBand{
		MaxMinutesLate: idealLate,
		Description:    fmt.Sprintf("Arrive by %s, inside the on-time compliance window", clock.FormatForSpeech(idealBefore)),
		CostLabel:      "no cost impact",
		BoundaryCost:   cost.TotalImpact(idealBefore, params, terms).TotalCost,
	}
	strategy.Acceptable = models.StrategyBand{
		MaxMinutesLate: acceptableLate,
		Description:    fmt.Sprintf("Arrive by %s, matching the delayed arrival", clock.FormatForSpeech(acceptableBefore)),
		CostLabel:      "moderate cost impact",
		BoundaryCost:   cost.TotalImpact(acceptableBefore, params, terms).TotalCost,
	}
	strategy.Problematic = models.StrategyBand{
		MaxMinutesLate: problematicLate,
		Description:    fmt.Sprintf("Anything after %s drives detention and compliance penalties", clock.FormatForSpeech(acceptableBefore)),
		CostLabel:      "significant cost impact",
		BoundaryCost:   cost.TotalImpact(worstCase, params, terms).TotalCost,
	}
	strategy.CostThresholds = models.CostThresholds{
		Acceptable:  DefaultAcceptableCostThreshold,
		Problematic: DefaultProblematicCostThreshold,
	}
	strategy.IdealBefore = idealBefore
	strategy.AcceptableBefore = acceptableBefore
	strategy.WorstCaseArrival = worstCase
	strategy.ActualArrival = actualArrival

	slog.Debug("negotiation.BuildStrategy: strategy built",
		"idealBefore", idealBefore,
		"acceptableBefore", acceptableBefore,
		"worstCaseArrival", worstCase,
		"actualArrival", actualArrival,
		"hasHOS", hosConstraint != nil)
	return strategy
}
