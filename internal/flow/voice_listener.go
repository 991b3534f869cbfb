package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/clock"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/extract"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/genai"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/negotiation"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/store"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/voice"
)

// DefaultSilenceDelay is how long the call must stay silent after a closing
// phrase before the agreement is finalized.
const DefaultSilenceDelay = 4 * time.Second

// closingPhrases are the assistant-side lines that signal the conversation is
// wrapping up. Matching is case-insensitive substring.
var closingPhrases = []string{
	"have a great day",
	"have a good one",
	"see you then",
	"we're all set",
	"we are all set",
	"thanks for your help",
	"thanks so much",
	"goodbye",
	"take care",
}

// Listener tracks a live voice negotiation. The dispatcher persona is voiced
// by an external conversational agent; the listener consumes the transcript
// stream, runs extraction and evaluation to track the agreed time and dock,
// and decides when the call has semantically ended.
//
// End-of-call timing: a closing phrase from the assistant (with time and dock
// both known) arms a single-shot silence timer. Speech from either side
// cancels the timer; arming is deferred, not dropped, while the assistant is
// still speaking. Timer expiry finalizes the agreement. Finalization happens
// at most once regardless of timer/cancel interleaving.
type Listener struct {
	mu        sync.Mutex
	st        store.Store
	sess      *models.Session
	transport voice.Transport
	driver    voice.Transport
	slots     genai.ClientInterface
	timer     Timer

	silenceDelay   time.Duration
	silenceTimerID string
	armRequested   bool
	speaking       map[models.VoiceRole]bool
	driverNeeded   bool
	driverApproved bool
	finalized      bool
	ended          bool
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithSlotExtractor sets the GenAI slot extraction client. Without one the
// listener relies on the inline regex extractors only.
func WithSlotExtractor(client genai.ClientInterface) ListenerOption {
	return func(l *Listener) { l.slots = client }
}

// WithDriverTransport enables the driver-confirmation sub-flow: before
// finalizing, the tentative time and dock are confirmed with the driver over a
// second call.
func WithDriverTransport(t voice.Transport) ListenerOption {
	return func(l *Listener) {
		l.driver = t
		l.driverNeeded = true
	}
}

// WithSilenceDelay overrides the end-of-call silence window.
func WithSilenceDelay(d time.Duration) ListenerOption {
	return func(l *Listener) { l.silenceDelay = d }
}

// WithListenerTimer overrides the timer implementation. Used by tests.
func WithListenerTimer(t Timer) ListenerOption {
	return func(l *Listener) { l.timer = t }
}

// NewListener creates a listener for one voice session.
func NewListener(st store.Store, sess *models.Session, transport voice.Transport, opts ...ListenerOption) *Listener {
	l := &Listener{
		st:           st,
		sess:         sess,
		transport:    transport,
		timer:        NewSimpleTimer(),
		silenceDelay: DefaultSilenceDelay,
		speaking:     make(map[models.VoiceRole]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run consumes the warehouse call's event stream until it closes or the
// context is canceled. Events are processed strictly in arrival order.
func (l *Listener) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.Shutdown()
			return ctx.Err()
		case ev, ok := <-l.transport.Events():
			if !ok {
				l.Shutdown()
				return nil
			}
			l.HandleEvent(ctx, ev)
		}
	}
}

// HandleEvent processes one warehouse-call event. Safe to call directly in
// tests; Run serializes calls in arrival order.
func (l *Listener) HandleEvent(ctx context.Context, ev models.VoiceEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch ev.Type {
	case models.VoiceEventCallStart:
		l.sess.Phase = models.PhaseNegotiatingTime
		l.persistLocked()
	case models.VoiceEventCallEnd:
		l.endCallLocked(false)
	case models.VoiceEventError:
		slog.Error("Listener.HandleEvent: transport error", "error", ev.Error, "sessionID", l.sess.ID)
		l.endCallLocked(true)
	case models.VoiceEventSpeechUpdate:
		l.handleSpeechUpdateLocked(ev)
	case models.VoiceEventTranscript:
		if !ev.IsFinal {
			return
		}
		l.recordLocked(roleForVoice(ev.Role), ev.Transcript)
		switch ev.Role {
		case models.VoiceRoleAssistant:
			l.handleAssistantLineLocked(ev.Transcript)
		case models.VoiceRoleUser:
			l.handleWarehouseLineLocked(ctx, ev.Transcript)
		}
		l.persistLocked()
	}
}

func (l *Listener) handleSpeechUpdateLocked(ev models.VoiceEvent) {
	started := ev.Status == models.SpeechStarted
	l.speaking[ev.Role] = started

	if started {
		// Any speech resets the end-of-call countdown; the pending arm is
		// deferred, never dropped.
		if l.silenceTimerID != "" {
			l.cancelSilenceLocked()
			l.armRequested = true
		}
		return
	}
	if l.armRequested && !l.anySpeakingLocked() {
		l.armSilenceLocked()
	}
}

func (l *Listener) handleAssistantLineLocked(text string) {
	if !containsClosingPhrase(text) {
		return
	}
	if l.sess.ConfirmedTime == "" || l.sess.ConfirmedDock == "" {
		slog.Debug("Listener: closing phrase before agreement complete, ignoring",
			"sessionID", l.sess.ID, "hasTime", l.sess.ConfirmedTime != "", "hasDock", l.sess.ConfirmedDock != "")
		return
	}
	if l.driverNeeded && !l.driverApproved {
		l.beginDriverConfirmLocked()
		return
	}
	if l.anySpeakingLocked() {
		l.armRequested = true
		return
	}
	l.armSilenceLocked()
}

func (l *Listener) handleWarehouseLineLocked(ctx context.Context, text string) {
	// The warehouse speaking restarts the end-of-call countdown. The pending
	// arm survives unless the line actually revises the offer; a sign-off like
	// "you too, goodbye" must not lose the agreement.
	if l.silenceTimerID != "" {
		l.cancelSilenceLocked()
		l.armRequested = true
	}

	slot := l.extractSlots(ctx, text)
	if slot.Dock != "" && slot.Dock != l.sess.ConfirmedDock {
		l.sess.ConfirmedDock = slot.Dock
		l.armRequested = false
	}
	if slot.Time == "" || slot.Time == l.sess.ConfirmedTime {
		if l.armRequested && !l.anySpeakingLocked() {
			l.armSilenceLocked()
		}
		return
	}

	// A fresh time proposal reopens the negotiation.
	l.armRequested = false

	analysis, eval := negotiation.EvaluateTimeOffer(slot.Time, l.sess.Strategy, l.sess.PushbackCount, l.sess.Params, l.sess.Terms)
	l.recordAnalysisLocked(eval, analysis)
	switch {
	case eval.ShouldPushback:
		l.sess.PushbackCount++
		line := pushbackReply(l.sess.Strategy)
		if err := l.transport.Say(ctx, line); err != nil {
			slog.Error("Listener: failed to voice counter", "error", err, "sessionID", l.sess.ID)
		}
	case eval.ShouldAccept:
		l.sess.ConfirmedTime = slot.Time
		// A revised time invalidates an earlier driver approval.
		l.driverApproved = false
	}
}

// extractSlots prefers the external slot extraction service; on error or a
// low-confidence parse it falls back to the inline extractors and leaves
// already-confirmed values untouched.
func (l *Listener) extractSlots(ctx context.Context, text string) models.SlotExtraction {
	if l.slots != nil {
		slot, err := l.slots.ExtractSlots(ctx, text)
		if err == nil && slot.Confidence == models.ConfidenceHigh {
			return slot
		}
		if err != nil {
			slog.Warn("Listener.extractSlots: extraction service failed, using inline extractors", "error", err)
		}
	}
	var slot models.SlotExtraction
	if t, ok := extract.TimeFromMessage(text); ok {
		slot.Time = t
	}
	if d, ok := extract.DockFromMessage(text); ok {
		slot.Dock = d
	}
	slot.Confidence = models.ConfidenceLow
	return slot
}

// beginDriverConfirmLocked puts the warehouse on hold and dials the driver to
// confirm the tentative time and dock.
func (l *Listener) beginDriverConfirmLocked() {
	ctx := context.Background()
	l.sess.Phase = models.PhasePuttingOnHold
	if err := l.transport.Say(ctx, "One moment while I confirm that with our driver."); err != nil {
		slog.Error("Listener: failed to voice hold message", "error", err, "sessionID", l.sess.ID)
	}
	l.sess.Phase = models.PhaseWarehouseOnHold
	l.persistLocked()

	l.sess.Phase = models.PhaseDriverCallConnecting
	if err := l.driver.Start(ctx, "driver-confirm", map[string]string{
		"time": clock.FormatForSpeech(l.sess.ConfirmedTime),
		"dock": l.sess.ConfirmedDock,
	}); err != nil {
		slog.Error("Listener: driver call failed to start, proceeding without confirmation", "error", err, "sessionID", l.sess.ID)
		l.driverNeeded = false
		l.sess.Phase = models.PhaseNegotiatingTime
		l.persistLocked()
		return
	}
	l.persistLocked()
	go l.runDriverCall()
}

func (l *Listener) runDriverCall() {
	ctx := context.Background()
	for ev := range l.driver.Events() {
		l.HandleDriverEvent(ctx, ev)
		l.mu.Lock()
		done := l.sess.Phase != models.PhaseDriverCallConnecting && l.sess.Phase != models.PhaseDriverCallActive
		l.mu.Unlock()
		if done {
			return
		}
	}
}

// HandleDriverEvent processes one driver-call event during the confirmation
// sub-flow.
func (l *Listener) HandleDriverEvent(ctx context.Context, ev models.VoiceEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch ev.Type {
	case models.VoiceEventCallStart:
		l.sess.Phase = models.PhaseDriverCallActive
		l.persistLocked()
	case models.VoiceEventCallEnd, models.VoiceEventError:
		// Lost the driver without an answer: return to the warehouse and keep
		// negotiating without confirmation.
		if l.sess.Phase == models.PhaseDriverCallConnecting || l.sess.Phase == models.PhaseDriverCallActive {
			l.returnToWarehouseLocked("Our driver dropped off; let me double-check the schedule on our side.")
			l.driverNeeded = false
		}
	case models.VoiceEventTranscript:
		if !ev.IsFinal || ev.Role != models.VoiceRoleUser {
			return
		}
		l.recordLocked(models.RoleDriver, ev.Transcript)
		l.handleDriverReplyLocked(ev.Transcript)
		l.persistLocked()
	}
}

func (l *Listener) handleDriverReplyLocked(text string) {
	ctx := context.Background()
	resp := extract.DriverResponseFromMessage(text, l.sess.ConfirmedTime)
	slog.Debug("Listener: driver response classified", "sessionID", l.sess.ID, "kind", resp.Kind, "counterTime", resp.CounterTime)

	switch resp.Kind {
	case models.DriverConfirmed:
		l.driverApproved = true
		l.returnToWarehouseLocked(fmt.Sprintf("Our driver confirmed %s at dock %s works.",
			clock.FormatForSpeech(l.sess.ConfirmedTime), l.sess.ConfirmedDock))
	case models.DriverRejected:
		l.sess.ConfirmedTime = ""
		l.returnToWarehouseLocked("Our driver can't make that slot after all. Could we look at a different time?")
	case models.DriverCounterProposal:
		_, eval := negotiation.EvaluateTimeOffer(resp.CounterTime, l.sess.Strategy, l.sess.PushbackCount, l.sess.Params, l.sess.Terms)
		if eval.ShouldAccept {
			l.sess.ConfirmedTime = resp.CounterTime
			l.driverApproved = true
			l.returnToWarehouseLocked(fmt.Sprintf("Our driver can do %s instead. Does that still work at dock %s?",
				clock.FormatForSpeech(resp.CounterTime), l.sess.ConfirmedDock))
		} else {
			l.sess.ConfirmedTime = ""
			l.returnToWarehouseLocked("Our driver proposed a later slot that won't work. Could we look at other options?")
		}
	default:
		if err := l.driver.Say(ctx, fmt.Sprintf("Just to confirm, can you make %s at dock %s?",
			clock.FormatForSpeech(l.sess.ConfirmedTime), l.sess.ConfirmedDock)); err != nil {
			slog.Error("Listener: failed to re-ask driver", "error", err, "sessionID", l.sess.ID)
		}
	}
}

func (l *Listener) returnToWarehouseLocked(line string) {
	ctx := context.Background()
	if err := l.driver.Stop(); err != nil {
		slog.Error("Listener: failed to stop driver call", "error", err, "sessionID", l.sess.ID)
	}
	l.sess.Phase = models.PhaseReturningToWarehouse
	l.persistLocked()
	if err := l.transport.Say(ctx, line); err != nil {
		slog.Error("Listener: failed to resume warehouse call", "error", err, "sessionID", l.sess.ID)
	}
	l.sess.Phase = models.PhaseNegotiatingTime
	l.persistLocked()
}

// armSilenceLocked arms the end-of-call timer, replacing any existing one.
func (l *Listener) armSilenceLocked() {
	l.cancelSilenceLocked()
	l.armRequested = false
	id, err := l.timer.ScheduleAfter(l.silenceDelay, l.onSilenceExpired)
	if err != nil {
		slog.Error("Listener: failed to arm silence timer", "error", err, "sessionID", l.sess.ID)
		return
	}
	l.silenceTimerID = id
	slog.Debug("Listener: silence timer armed", "sessionID", l.sess.ID, "id", id, "delay", l.silenceDelay)
}

// cancelSilenceLocked cancels the pending silence timer if any. Idempotent.
func (l *Listener) cancelSilenceLocked() {
	if l.silenceTimerID == "" {
		return
	}
	if err := l.timer.Cancel(l.silenceTimerID); err != nil {
		slog.Error("Listener: failed to cancel silence timer", "error", err, "sessionID", l.sess.ID)
	}
	l.silenceTimerID = ""
}

func (l *Listener) onSilenceExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.silenceTimerID = ""
	l.finalizeLocked()
}

// finalizeLocked builds the agreement and ends the call. At most once.
func (l *Listener) finalizeLocked() {
	if l.finalized {
		return
	}
	l.finalized = true
	finalizeSession(l.st, l.sess)
	l.persistLocked()
	if err := l.transport.Stop(); err != nil {
		slog.Error("Listener: failed to stop transport after finalize", "error", err, "sessionID", l.sess.ID)
	}
	l.ended = true
}

// endCallLocked handles call-end and transport errors: pending timers are
// canceled, an already-built agreement is preserved, tentative values are
// discarded otherwise.
func (l *Listener) endCallLocked(failed bool) {
	if l.ended {
		return
	}
	l.ended = true
	l.cancelSilenceLocked()
	l.timer.Stop()

	if l.finalized || l.sess.Agreement != nil {
		l.persistLocked()
		return
	}
	l.sess.ConfirmedTime = ""
	l.sess.ConfirmedDock = ""
	l.sess.Phase = models.PhaseFailed
	l.sess.Status = models.SessionStatusFailed
	l.persistLocked()
	if failed {
		slog.Error("Listener: call ended in error before agreement", "sessionID", l.sess.ID)
	} else {
		slog.Info("Listener: call ended before agreement", "sessionID", l.sess.ID)
	}
}

// Shutdown cancels timers and stops both transports. Idempotent.
func (l *Listener) Shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelSilenceLocked()
	l.timer.Stop()
	if err := l.transport.Stop(); err != nil {
		slog.Error("Listener.Shutdown: transport stop failed", "error", err, "sessionID", l.sess.ID)
	}
	if l.driver != nil {
		if err := l.driver.Stop(); err != nil {
			slog.Error("Listener.Shutdown: driver transport stop failed", "error", err, "sessionID", l.sess.ID)
		}
	}
}

// Session returns the session being tracked.
func (l *Listener) Session() *models.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess
}

func (l *Listener) anySpeakingLocked() bool {
	for _, s := range l.speaking {
		if s {
			return true
		}
	}
	return false
}

func (l *Listener) persistLocked() {
	l.sess.UpdatedAt = time.Now()
	if err := l.st.SaveSession(*l.sess); err != nil {
		slog.Error("Listener: failed to persist session", "error", err, "sessionID", l.sess.ID)
	}
}

func (l *Listener) recordLocked(role models.ChatRole, content string) {
	msg := models.ChatMessage{Role: role, Content: content, Timestamp: time.Now()}
	if err := l.st.AddChatMessage(l.sess.ID, msg); err != nil {
		slog.Error("Listener: failed to persist transcript line", "error", err, "sessionID", l.sess.ID)
	}
}

func (l *Listener) recordAnalysisLocked(eval models.OfferEvaluation, analysis models.TotalCostImpactResult) {
	msg := models.ChatMessage{
		Role:         models.RoleDispatcher,
		Content:      eval.Reason,
		Timestamp:    time.Now(),
		CostAnalysis: &analysis,
		Evaluation:   &eval,
	}
	if err := l.st.AddChatMessage(l.sess.ID, msg); err != nil {
		slog.Error("Listener: failed to persist evaluation", "error", err, "sessionID", l.sess.ID)
	}
}

func containsClosingPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range closingPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func roleForVoice(r models.VoiceRole) models.ChatRole {
	if r == models.VoiceRoleAssistant {
		return models.RoleDispatcher
	}
	return models.RoleWarehouse
}
