package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/clock"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/contract"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/extract"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/hos"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/negotiation"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/store"
)

// Engine drives text-mode negotiation sessions through the conversation
// phases. Inbound messages are processed one at a time per engine: a message
// is fully handled (extraction, evaluation, transition, reply) before the next
// is accepted.
type Engine struct {
	mu       sync.Mutex
	st       store.Store
	resolver *contract.Resolver
	nowFn    func() string // current time of day as "HH:MM", for HOS feasibility
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithNowFunc overrides the wall-clock time source. Used by tests and by the
// voice listener to pin HOS computations.
func WithNowFunc(fn func() string) EngineOption {
	return func(e *Engine) { e.nowFn = fn }
}

// NewEngine creates an engine backed by the given store. A nil resolver means
// contract terms always fall back to defaults.
func NewEngine(st store.Store, resolver *contract.Resolver, opts ...EngineOption) *Engine {
	if resolver == nil {
		resolver = contract.NewResolver(nil, nil)
	}
	e := &Engine{
		st:       st,
		resolver: resolver,
		nowFn: func() string {
			now := time.Now()
			return fmt.Sprintf("%02d:%02d", now.Hour(), now.Minute())
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateSession validates setup parameters, resolves contract terms, builds
// the negotiation strategy and persists a new session in awaiting_name. The
// returned greeting is the dispatcher's opening line.
func (e *Engine) CreateSession(ctx context.Context, params models.SetupParams) (*models.Session, string, error) {
	if err := params.Validate(); err != nil {
		slog.Error("Engine.CreateSession: invalid setup", "error", err)
		return nil, "", err
	}
	if _, err := clock.MinuteOfDay(params.OriginalAppointment); err != nil {
		slog.Error("Engine.CreateSession: invalid appointment", "error", err, "appointment", params.OriginalAppointment)
		return nil, "", models.ErrInvalidAppointment
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	terms, usingDefaults := e.resolver.Resolve(ctx, params)

	var hosConstraint *models.HOSConstraint
	if params.HOS != nil {
		hc := hos.Evaluate(*params.HOS, e.nowFn())
		hosConstraint = &hc
	}
	strategy := negotiation.BuildStrategy(params, terms, hosConstraint)

	now := time.Now()
	sess := &models.Session{
		ID:            uuid.New().String(),
		Params:        params,
		Terms:         terms,
		Strategy:      strategy,
		Phase:         models.PhaseAwaitingName,
		Status:        models.SessionStatusActive,
		UsingDefaults: usingDefaults,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.st.SaveSession(*sess); err != nil {
		return nil, "", fmt.Errorf("failed to persist new session: %w", err)
	}

	greeting := greetingReply()
	e.recordMessage(sess.ID, models.RoleDispatcher, greeting, nil, nil)
	slog.Info("Engine.CreateSession: session created", "sessionID", sess.ID, "mode", params.Mode, "usingDefaults", usingDefaults)
	return sess, greeting, nil
}

// GetSession loads a session by ID.
func (e *Engine) GetSession(ctx context.Context, id string) (*models.Session, error) {
	sess, err := e.st.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, models.ErrSessionNotFound
	}
	return sess, nil
}

// HandleMessage processes one inbound warehouse message for a session and
// returns the dispatcher's reply plus the updated session. Messages are
// handled strictly in call order.
func (e *Engine) HandleMessage(ctx context.Context, sessionID, text string) (string, *models.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, err := e.st.GetSession(sessionID)
	if err != nil {
		return "", nil, err
	}
	if sess == nil {
		return "", nil, models.ErrSessionNotFound
	}
	if sess.Phase.IsTerminal() {
		return "", sess, models.ErrSessionDone
	}

	e.recordMessage(sessionID, models.RoleWarehouse, text, nil, nil)

	var reply string
	var analysis *models.TotalCostImpactResult
	var eval *models.OfferEvaluation

	switch sess.Phase {
	case models.PhaseAwaitingName:
		reply = e.handleAwaitingName(sess, text)
	case models.PhaseNegotiatingTime:
		reply, analysis, eval = e.handleNegotiatingTime(sess, text)
	case models.PhaseAwaitingDock:
		reply, analysis, eval = e.handleAwaitingDock(sess, text)
	case models.PhaseConfirming:
		reply = e.handleConfirming(sess)
	default:
		slog.Error("Engine.HandleMessage: unexpected phase", "sessionID", sessionID, "phase", sess.Phase)
		reply = askTimeAgainReply()
	}

	sess.UpdatedAt = time.Now()
	if err := e.st.SaveSession(*sess); err != nil {
		return "", nil, fmt.Errorf("failed to persist session %s: %w", sessionID, err)
	}
	e.recordMessage(sessionID, models.RoleDispatcher, reply, analysis, eval)

	slog.Debug("Engine.HandleMessage: processed", "sessionID", sessionID, "phase", sess.Phase, "pushbackCount", sess.PushbackCount)
	return reply, sess, nil
}

// ResetSession returns a session to awaiting_name with a fresh strategy,
// zeroed pushback count and cleared confirmed time/dock. The universal
// recovery path: it works regardless of the session's current state.
func (e *Engine) ResetSession(ctx context.Context, sessionID string) (*models.Session, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, err := e.st.GetSession(sessionID)
	if err != nil {
		return nil, "", err
	}
	if sess == nil {
		return nil, "", models.ErrSessionNotFound
	}

	terms, usingDefaults := e.resolver.Resolve(ctx, sess.Params)
	var hosConstraint *models.HOSConstraint
	if sess.Params.HOS != nil {
		hc := hos.Evaluate(*sess.Params.HOS, e.nowFn())
		hosConstraint = &hc
	}

	sess.Terms = terms
	sess.UsingDefaults = usingDefaults
	sess.Strategy = negotiation.BuildStrategy(sess.Params, terms, hosConstraint)
	sess.Phase = models.PhaseAwaitingName
	sess.Status = models.SessionStatusActive
	sess.PushbackCount = 0
	sess.ContactName = ""
	sess.ConfirmedTime = ""
	sess.ConfirmedDock = ""
	sess.Agreement = nil
	sess.UpdatedAt = time.Now()

	if err := e.st.SaveSession(*sess); err != nil {
		return nil, "", fmt.Errorf("failed to persist reset session %s: %w", sessionID, err)
	}
	greeting := greetingReply()
	e.recordMessage(sessionID, models.RoleDispatcher, greeting, nil, nil)
	slog.Info("Engine.ResetSession: session reset", "sessionID", sessionID)
	return sess, greeting, nil
}

func (e *Engine) handleAwaitingName(sess *models.Session, text string) string {
	if name, ok := extract.ManagerNameFromMessage(text); ok && sess.ContactName == "" {
		sess.ContactName = name
	}
	sess.Phase = models.PhaseNegotiatingTime
	return delayExplanationReply(sess)
}

func (e *Engine) handleNegotiatingTime(sess *models.Session, text string) (string, *models.TotalCostImpactResult, *models.OfferEvaluation) {
	candidate, hasTime := extract.TimeFromMessage(text)
	dock, hasDock := extract.DockFromMessage(text)

	if hasTime {
		analysis, eval := negotiation.EvaluateTimeOffer(candidate, sess.Strategy, sess.PushbackCount, sess.Params, sess.Terms)
		switch {
		case eval.ShouldPushback:
			sess.PushbackCount++
			return pushbackReply(sess.Strategy), &analysis, &eval
		case eval.ShouldAccept:
			sess.ConfirmedTime = candidate
			if hasDock {
				sess.ConfirmedDock = dock
				sess.Phase = models.PhaseConfirming
				return confirmReply(sess), &analysis, &eval
			}
			sess.Phase = models.PhaseAwaitingDock
			return askDockReply(candidate), &analysis, &eval
		default:
			// Unparseable or unknown quality: treat as no new information.
			return askTimeAgainReply(), &analysis, &eval
		}
	}

	if hasDock && sess.ConfirmedTime != "" {
		sess.ConfirmedDock = dock
		sess.Phase = models.PhaseConfirming
		return confirmReply(sess), nil, nil
	}

	return askTimeAgainReply(), nil, nil
}

func (e *Engine) handleAwaitingDock(sess *models.Session, text string) (string, *models.TotalCostImpactResult, *models.OfferEvaluation) {
	if dock, ok := extract.DockFromMessage(text); ok {
		sess.ConfirmedDock = dock
		sess.Phase = models.PhaseConfirming
		return confirmReply(sess), nil, nil
	}

	// A revised time in this phase re-runs evaluation; the session stays here
	// until a dock arrives.
	if candidate, ok := extract.TimeFromMessage(text); ok {
		analysis, eval := negotiation.EvaluateTimeOffer(candidate, sess.Strategy, sess.PushbackCount, sess.Params, sess.Terms)
		if eval.ShouldPushback {
			sess.PushbackCount++
			return pushbackReply(sess.Strategy), &analysis, &eval
		}
		if eval.ShouldAccept {
			sess.ConfirmedTime = candidate
		}
		return askDockReply(sess.ConfirmedTime), &analysis, &eval
	}

	return fmt.Sprintf("Which dock should the driver head to for the %s slot?", clock.FormatForSpeech(sess.ConfirmedTime)), nil, nil
}

func (e *Engine) handleConfirming(sess *models.Session) string {
	e.finalize(sess)
	return doneReply(sess)
}

// finalize builds the FinalAgreement exactly once and records the flat
// agreement row for export.
func (e *Engine) finalize(sess *models.Session) {
	finalizeSession(e.st, sess)
}

// recordMessage appends a transcript entry; persistence failures are logged,
// never surfaced, since the transcript is informational.
func (e *Engine) recordMessage(sessionID string, role models.ChatRole, content string, analysis *models.TotalCostImpactResult, eval *models.OfferEvaluation) {
	msg := models.ChatMessage{
		Role:         role,
		Content:      content,
		Timestamp:    time.Now(),
		CostAnalysis: analysis,
		Evaluation:   eval,
	}
	if err := e.st.AddChatMessage(sessionID, msg); err != nil {
		slog.Error("Engine.recordMessage: failed to persist chat message", "error", err, "sessionID", sessionID)
	}
}
