package negotiation

import (
	"strings"
	"testing"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/clock"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

func TestEvaluateTimeOfferQualities(t *testing.T) {
	params := testParams() // original 14:00, delay 120 -> acceptable before 16:00
	terms := testTerms()
	strategy := BuildStrategy(params, terms, nil)

	cases := []struct {
		candidate    string
		wantQuality  models.OfferQuality
		wantAccept   bool
		wantPushback bool
	}{
		{"14:15", models.QualityIdeal, true, false},
		{"14:30", models.QualityIdeal, true, false},
		{"15:30", models.QualityAcceptable, true, false},
		{"16:00", models.QualityAcceptable, true, false},
		{"17:00", models.QualitySuboptimal, false, true},
		{"19:30", models.QualityUnacceptable, false, true},
	}
	for _, c := range cases {
		t.Run(c.candidate, func(t *testing.T) {
			_, eval := EvaluateTimeOffer(c.candidate, strategy, 0, params, terms)
			if eval.Quality != c.wantQuality {
				t.Errorf("quality = %q, want %q", eval.Quality, c.wantQuality)
			}
			if eval.ShouldAccept != c.wantAccept {
				t.Errorf("shouldAccept = %v, want %v", eval.ShouldAccept, c.wantAccept)
			}
			if eval.ShouldPushback != c.wantPushback {
				t.Errorf("shouldPushback = %v, want %v", eval.ShouldPushback, c.wantPushback)
			}
		})
	}
}

// Any time at or before the ideal boundary is IDEAL and accepted.
func TestEvaluatorConsistencyIdealBand(t *testing.T) {
	params := testParams()
	terms := testTerms()
	strategy := BuildStrategy(params, terms, nil)

	for offset := 0; offset <= strategy.Ideal.MaxMinutesLate; offset += 5 {
		candidate := clock.AddMinutes(params.OriginalAppointment, offset)
		_, eval := EvaluateTimeOffer(candidate, strategy, 0, params, terms)
		if eval.Quality != models.QualityIdeal || !eval.ShouldAccept {
			t.Fatalf("offset %d: quality=%q accept=%v, want IDEAL/accepted", offset, eval.Quality, eval.ShouldAccept)
		}
	}
}

// Repeated bad offers never push back more than the budget allows; the next
// one is force-accepted.
func TestPushbackBudgetTermination(t *testing.T) {
	params := testParams()
	terms := testTerms()
	strategy := BuildStrategy(params, terms, nil)

	pushbacks := 0
	var lastEval models.OfferEvaluation
	for i := 0; i < strategy.MaxPushbackAttempts+1; i++ {
		_, eval := EvaluateTimeOffer("18:30", strategy, pushbacks, params, terms)
		lastEval = eval
		if eval.ShouldPushback {
			pushbacks++
		}
	}
	if pushbacks != strategy.MaxPushbackAttempts {
		t.Errorf("pushed back %d times, want exactly %d", pushbacks, strategy.MaxPushbackAttempts)
	}
	if !lastEval.ShouldAccept {
		t.Error("offer after exhausted budget should be force-accepted")
	}
	if !strings.Contains(lastEval.Reason, "no better options") {
		t.Errorf("forced-accept reason %q should note no better options", lastEval.Reason)
	}
}

func TestEvaluateTimeOfferUnparseable(t *testing.T) {
	params := testParams()
	terms := testTerms()
	strategy := BuildStrategy(params, terms, nil)
	_, eval := EvaluateTimeOffer("half past never", strategy, 0, params, terms)
	if eval.Quality != models.QualityUnknown {
		t.Errorf("quality = %q, want UNKNOWN", eval.Quality)
	}
	if eval.ShouldAccept || eval.ShouldPushback {
		t.Error("unknown offers should neither accept nor push back")
	}
}

func TestEvaluateReasonCitesCost(t *testing.T) {
	params := testParams()
	terms := testTerms()
	strategy := BuildStrategy(params, terms, nil)
	analysis, eval := EvaluateTimeOffer("17:00", strategy, 0, params, terms)
	if analysis.TotalCost <= 0 {
		t.Fatal("expected positive cost for a late offer")
	}
	if !strings.Contains(eval.Reason, "$") {
		t.Errorf("reason %q should cite the computed cost", eval.Reason)
	}
}
