package flow

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/clock"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/cost"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/store"
)

// finalizeSession builds the FinalAgreement exactly once from the session's
// confirmed time and dock, marks the session done, and persists the flat
// agreement row for export. Calling it on an already-finalized session is a
// no-op.
func finalizeSession(st store.Store, sess *models.Session) {
	if sess.Agreement != nil {
		return
	}
	impact := cost.TotalImpact(sess.ConfirmedTime, sess.Params, sess.Terms)
	agreement := &models.FinalAgreement{
		ConfirmedTime: sess.ConfirmedTime,
		ConfirmedDock: sess.ConfirmedDock,
		TotalCost:     impact.TotalCost,
		ContactName:   sess.ContactName,
		DayOffset:     clock.DayOffset(sess.Params.OriginalAppointment, sess.ConfirmedTime),
		AgreedAt:      time.Now(),
	}
	sess.Agreement = agreement
	sess.Phase = models.PhaseDone
	sess.Status = models.SessionStatusCompleted

	rec := models.AgreementExport{
		Date:         agreement.AgreedAt.Format("2006-01-02"),
		OriginalTime: sess.Params.OriginalAppointment,
		NewTime:      agreement.ConfirmedTime,
		Dock:         agreement.ConfirmedDock,
		DelayMinutes: sess.Params.DelayMinutes,
		CostImpact:   fmt.Sprintf("$%.2f", agreement.TotalCost),
		DayOffset:    agreement.DayOffset,
		Status:       "confirmed",
	}
	if err := st.SaveAgreement(sess.ID, rec); err != nil {
		slog.Error("flow.finalizeSession: failed to persist agreement", "error", err, "sessionID", sess.ID)
	}
	slog.Info("flow.finalizeSession: agreement reached",
		"sessionID", sess.ID,
		"confirmedTime", agreement.ConfirmedTime,
		"confirmedDock", agreement.ConfirmedDock,
		"totalCost", agreement.TotalCost)
}
