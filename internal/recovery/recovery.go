// Package recovery restores negotiation state after a service restart.
//
// Active text sessions are rebound to their warehouse contact so inbound
// messages keep routing; active voice sessions cannot reattach a live call
// and are marked failed.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/store"
)

// ContactRebinder rebinds a warehouse contact number to a session. The
// messaging response router satisfies it.
type ContactRebinder interface {
	RegisterContact(recipient, sessionID string) error
}

// Manager orchestrates startup recovery over the session store.
type Manager struct {
	st       store.Store
	rebinder ContactRebinder
}

// NewManager creates a recovery manager. rebinder may be nil when the service
// runs without a text channel.
func NewManager(st store.Store, rebinder ContactRebinder) *Manager {
	return &Manager{st: st, rebinder: rebinder}
}

// RecoverAll walks the active sessions and restores or retires each one.
// Returns an error when any session could not be processed; recovery still
// attempts every session.
func (m *Manager) RecoverAll(ctx context.Context) error {
	sessions, err := m.st.ListActiveSessions()
	if err != nil {
		slog.Error("Recovery.RecoverAll: failed to list active sessions", "error", err)
		return fmt.Errorf("failed to list active sessions: %w", err)
	}
	slog.Info("Recovery.RecoverAll: starting", "active_sessions", len(sessions))

	recovered := 0
	retired := 0
	errorCount := 0
	for i := range sessions {
		sess := sessions[i]
		if err := ctx.Err(); err != nil {
			return err
		}
		switch {
		case sess.Phase.IsTerminal():
			// Status lagged behind the phase; normalize it.
			if err := m.retire(sess); err != nil {
				errorCount++
				continue
			}
			retired++
		case sess.Params.Mode == models.ModeVoice:
			// A live call cannot be reattached after a restart.
			slog.Warn("Recovery.RecoverAll: marking interrupted voice session failed",
				"sessionID", sess.ID, "phase", sess.Phase)
			sess.Phase = models.PhaseFailed
			if err := m.retire(sess); err != nil {
				errorCount++
				continue
			}
			retired++
		default:
			if err := m.recoverTextSession(sess); err != nil {
				errorCount++
				continue
			}
			recovered++
		}
	}

	slog.Info("Recovery.RecoverAll: completed", "recovered", recovered, "retired", retired, "errors", errorCount)
	if errorCount > 0 {
		return fmt.Errorf("recovery completed with %d errors out of %d sessions", errorCount, len(sessions))
	}
	return nil
}

// recoverTextSession rebinds the warehouse contact for an interrupted text
// session. Sessions without a contact number stay active and remain reachable
// through the HTTP API.
func (m *Manager) recoverTextSession(sess models.Session) error {
	if m.rebinder == nil || sess.Params.WarehousePhone == "" {
		slog.Debug("Recovery: text session left for HTTP-only access", "sessionID", sess.ID, "phase", sess.Phase)
		return nil
	}
	if err := m.rebinder.RegisterContact(sess.Params.WarehousePhone, sess.ID); err != nil {
		slog.Error("Recovery: failed to rebind contact", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to rebind contact for session %s: %w", sess.ID, err)
	}
	slog.Info("Recovery: text session rebound", "sessionID", sess.ID, "phase", sess.Phase)
	return nil
}

// retire persists a terminal phase/status pair for a session.
func (m *Manager) retire(sess models.Session) error {
	switch sess.Phase {
	case models.PhaseDone:
		sess.Status = models.SessionStatusCompleted
	default:
		sess.Status = models.SessionStatusFailed
	}
	if err := m.st.SaveSession(sess); err != nil {
		slog.Error("Recovery: failed to persist retired session", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to persist session %s: %w", sess.ID, err)
	}
	return nil
}
