package flow

import (
	"context"
	"strings"
	"testing"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/store"
)

func newTestEngine(t *testing.T, now string) (*Engine, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	e := NewEngine(st, nil, WithNowFunc(func() string { return now }))
	return e, st
}

func TestHappyPathTextMode(t *testing.T) {
	e, st := newTestEngine(t, "13:00")
	ctx := context.Background()

	sess, greeting, err := e.CreateSession(ctx, models.SetupParams{
		OriginalAppointment: "14:00",
		DelayMinutes:        30,
		Mode:                models.ModeText,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if greeting == "" {
		t.Error("expected an opening line")
	}
	if sess.Phase != models.PhaseAwaitingName {
		t.Fatalf("phase = %q, want awaiting_name", sess.Phase)
	}

	steps := []struct {
		msg       string
		wantPhase models.ConversationPhase
	}{
		{"This is Sarah", models.PhaseNegotiatingTime},
		{"I can do 2:15", models.PhaseAwaitingDock},
		{"Dock 7", models.PhaseConfirming},
		{"sounds good", models.PhaseDone},
	}
	for _, step := range steps {
		_, got, err := e.HandleMessage(ctx, sess.ID, step.msg)
		if err != nil {
			t.Fatalf("HandleMessage(%q): %v", step.msg, err)
		}
		if got.Phase != step.wantPhase {
			t.Fatalf("after %q: phase = %q, want %q", step.msg, got.Phase, step.wantPhase)
		}
		sess = got
	}

	if sess.ContactName != "Sarah" {
		t.Errorf("contactName = %q, want Sarah", sess.ContactName)
	}
	if sess.ConfirmedTime != "14:15" {
		t.Errorf("confirmedTime = %q, want 14:15", sess.ConfirmedTime)
	}
	if sess.ConfirmedDock != "7" {
		t.Errorf("confirmedDock = %q, want 7", sess.ConfirmedDock)
	}
	if sess.Agreement == nil {
		t.Fatal("expected a final agreement")
	}
	if sess.Agreement.TotalCost != 0 {
		t.Errorf("totalCost = %.2f, want 0 (inside compliance window)", sess.Agreement.TotalCost)
	}
	if sess.Agreement.DayOffset != 0 {
		t.Errorf("dayOffset = %d, want 0", sess.Agreement.DayOffset)
	}

	recs, err := st.GetAgreements()
	if err != nil || len(recs) != 1 {
		t.Fatalf("agreements = %v, %v; want one row", recs, err)
	}
	if recs[0].CostImpact != "$0.00" || recs[0].NewTime != "14:15" || recs[0].Status != "confirmed" {
		t.Errorf("unexpected export row: %+v", recs[0])
	}

	// A message after done is rejected.
	if _, _, err := e.HandleMessage(ctx, sess.ID, "one more thing"); err != models.ErrSessionDone {
		t.Errorf("post-done message error = %v, want ErrSessionDone", err)
	}
}

func TestPushbackThenForcedAccept(t *testing.T) {
	e, _ := newTestEngine(t, "13:00")
	ctx := context.Background()

	sess, _, err := e.CreateSession(ctx, models.SetupParams{
		OriginalAppointment: "14:00",
		DelayMinutes:        120,
		Mode:                models.ModeText,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, _, err := e.HandleMessage(ctx, sess.ID, "hello"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	for i, offer := range []string{"17:30", "18:00"} {
		reply, got, err := e.HandleMessage(ctx, sess.ID, "how about "+offer)
		if err != nil {
			t.Fatalf("offer %s: %v", offer, err)
		}
		if got.Phase != models.PhaseNegotiatingTime {
			t.Fatalf("offer %s: phase = %q, want to stay in negotiating_time", offer, got.Phase)
		}
		if got.PushbackCount != i+1 {
			t.Fatalf("offer %s: pushbackCount = %d, want %d", offer, got.PushbackCount, i+1)
		}
		if !strings.Contains(reply, "earlier") {
			t.Errorf("offer %s: reply %q should counter-ask for an earlier slot", offer, reply)
		}
	}

	// Budget exhausted: the third bad offer is force-accepted.
	_, got, err := e.HandleMessage(ctx, sess.ID, "best I can do is 18:30")
	if err != nil {
		t.Fatalf("third offer: %v", err)
	}
	if got.Phase != models.PhaseAwaitingDock {
		t.Fatalf("third offer: phase = %q, want awaiting_dock (forced accept)", got.Phase)
	}
	if got.ConfirmedTime != "18:30" {
		t.Errorf("confirmedTime = %q, want 18:30", got.ConfirmedTime)
	}
	if got.PushbackCount != 2 {
		t.Errorf("pushbackCount = %d, want 2 (no further pushbacks)", got.PushbackCount)
	}
}

func TestHOSTightensAcceptableWindow(t *testing.T) {
	e, _ := newTestEngine(t, "16:00")
	ctx := context.Background()

	sess, _, err := e.CreateSession(ctx, models.SetupParams{
		OriginalAppointment: "14:00",
		DelayMinutes:        240, // nominal acceptable cutoff would be 18:00
		Mode:                models.ModeText,
		HOS: &models.HOSInput{
			RemainingDriveMinutes:  30, // latest feasible 16:30
			RemainingWindowMinutes: 600,
			RemainingWeeklyMinutes: 600,
		},
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.Strategy.AcceptableBefore != "16:30" {
		t.Fatalf("acceptableBefore = %q, want 16:30 (HOS-tightened)", sess.Strategy.AcceptableBefore)
	}

	if _, _, err := e.HandleMessage(ctx, sess.ID, "hi"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	_, got, err := e.HandleMessage(ctx, sess.ID, "we could do 17:00")
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if got.Phase != models.PhaseNegotiatingTime || got.PushbackCount != 1 {
		t.Errorf("17:00 beyond the HOS limit should be pushed back, got phase=%q pushbacks=%d", got.Phase, got.PushbackCount)
	}
}

func TestDockRevisionReentersNegotiation(t *testing.T) {
	e, _ := newTestEngine(t, "13:00")
	ctx := context.Background()

	sess, _, _ := e.CreateSession(ctx, models.SetupParams{
		OriginalAppointment: "14:00",
		DelayMinutes:        30,
		Mode:                models.ModeText,
	})
	e.HandleMessage(ctx, sess.ID, "This is Mike")
	e.HandleMessage(ctx, sess.ID, "2:15 works")

	// Revised time while awaiting the dock stays in awaiting_dock.
	_, got, err := e.HandleMessage(ctx, sess.ID, "actually make it 2:20")
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	if got.Phase != models.PhaseAwaitingDock {
		t.Fatalf("phase = %q, want awaiting_dock after time revision", got.Phase)
	}
	if got.ConfirmedTime != "14:20" {
		t.Errorf("confirmedTime = %q, want revised 14:20", got.ConfirmedTime)
	}

	_, got, _ = e.HandleMessage(ctx, sess.ID, "dock 3")
	if got.Phase != models.PhaseConfirming || got.ConfirmedDock != "3" {
		t.Errorf("after dock: phase=%q dock=%q", got.Phase, got.ConfirmedDock)
	}
}

func TestResetClearsNegotiationState(t *testing.T) {
	e, _ := newTestEngine(t, "13:00")
	ctx := context.Background()

	sess, _, _ := e.CreateSession(ctx, models.SetupParams{
		OriginalAppointment: "14:00",
		DelayMinutes:        120,
		Mode:                models.ModeText,
	})
	e.HandleMessage(ctx, sess.ID, "hello")
	e.HandleMessage(ctx, sess.ID, "how about 17:30")

	got, _, err := e.ResetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ResetSession: %v", err)
	}
	if got.Phase != models.PhaseAwaitingName {
		t.Errorf("phase = %q, want awaiting_name", got.Phase)
	}
	if got.PushbackCount != 0 || got.ConfirmedTime != "" || got.ConfirmedDock != "" || got.ContactName != "" {
		t.Errorf("reset left state behind: %+v", got)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	e, _ := newTestEngine(t, "13:00")
	ctx := context.Background()

	cases := []struct {
		name    string
		params  models.SetupParams
		wantErr error
	}{
		{"bad mode", models.SetupParams{OriginalAppointment: "14:00", Mode: "carrier-pigeon"}, models.ErrInvalidMode},
		{"negative delay", models.SetupParams{OriginalAppointment: "14:00", DelayMinutes: -5, Mode: models.ModeText}, models.ErrNegativeDelay},
		{"bad appointment", models.SetupParams{OriginalAppointment: "25:99", Mode: models.ModeText}, models.ErrInvalidAppointment},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, _, err := e.CreateSession(ctx, c.params); err != c.wantErr {
				t.Errorf("err = %v, want %v", err, c.wantErr)
			}
		})
	}
}
