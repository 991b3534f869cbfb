package extract

import (
	"testing"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

func TestDriverResponseTieBreak(t *testing.T) {
	// Negation must dominate a coincidentally-matching time mention.
	got := DriverResponseFromMessage("I don't think I can make 3:30 work", "15:30")
	if got.Kind != models.DriverUnclear {
		t.Fatalf("kind = %q, want unclear (negation dominates time mention)", got.Kind)
	}
}

func TestDriverResponseClassification(t *testing.T) {
	cases := []struct {
		name        string
		text        string
		proposed    string
		wantKind    models.DriverResponseKind
		wantCounter string
	}{
		{
			name:     "plain confirmation",
			text:     "yeah that works, see you then",
			proposed: "15:30",
			wantKind: models.DriverConfirmed,
		},
		{
			name:     "no problem is affirmative not rejection",
			text:     "no problem, I'll be there",
			proposed: "15:30",
			wantKind: models.DriverConfirmed,
		},
		{
			name:     "echoing the proposed time is not a counter",
			text:     "3:30 works for me",
			proposed: "15:30",
			wantKind: models.DriverConfirmed,
		},
		{
			name:        "different time is a counter proposal",
			text:        "how about 4:15 instead",
			proposed:    "15:30",
			wantKind:    models.DriverCounterProposal,
			wantCounter: "16:15",
		},
		{
			name:        "counter without framing still counts",
			text:        "I'll be rolling in at 5:00",
			proposed:    "15:30",
			wantKind:    models.DriverCounterProposal,
			wantCounter: "17:00",
		},
		{
			name:     "explicit rejection",
			text:     "that won't work for me",
			proposed: "15:30",
			wantKind: models.DriverRejected,
		},
		{
			name:     "bare no",
			text:     "no",
			proposed: "15:30",
			wantKind: models.DriverRejected,
		},
		{
			name:     "uncertainty",
			text:     "not sure yet, let me check my hours",
			proposed: "15:30",
			wantKind: models.DriverUnclear,
		},
		{
			name:     "no signal",
			text:     "copy that, still driving",
			proposed: "15:30",
			wantKind: models.DriverNone,
		},
		{
			name:     "empty utterance",
			text:     "   ",
			proposed: "15:30",
			wantKind: models.DriverNone,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := DriverResponseFromMessage(c.text, c.proposed)
			if got.Kind != c.wantKind {
				t.Errorf("kind = %q, want %q", got.Kind, c.wantKind)
			}
			if got.CounterTime != c.wantCounter {
				t.Errorf("counterTime = %q, want %q", got.CounterTime, c.wantCounter)
			}
		})
	}
}
