package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/flow"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// DefaultReplyDelay paces outbound replies so the dispatcher does not answer
// a human faster than a human could type.
const DefaultReplyDelay = 2 * time.Second

// defaultUnknownSenderMessage is sent when a text arrives from a number with
// no active negotiation session.
const defaultUnknownSenderMessage = "This number has no active delivery negotiation. Please contact your carrier's dispatch office."

// ResponseRouter maps warehouse contact numbers to negotiation sessions and
// routes inbound texts into the flow engine, sending the engine's reply back
// on the same channel.
type ResponseRouter struct {
	// sessions maps canonicalized phone numbers to session IDs
	sessions map[string]string
	// mu protects concurrent access to the sessions map
	mu         sync.RWMutex
	svc        Service
	engine     *flow.Engine
	replyDelay time.Duration
}

// RouterOption configures a ResponseRouter.
type RouterOption func(*ResponseRouter)

// WithReplyDelay overrides the pacing delay before outbound replies.
func WithReplyDelay(d time.Duration) RouterOption {
	return func(r *ResponseRouter) { r.replyDelay = d }
}

// NewResponseRouter creates a router over the given messaging service and
// negotiation engine.
func NewResponseRouter(svc Service, engine *flow.Engine, opts ...RouterOption) *ResponseRouter {
	r := &ResponseRouter{
		sessions:   make(map[string]string),
		svc:        svc,
		engine:     engine,
		replyDelay: DefaultReplyDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterContact binds a warehouse contact number to a negotiation session.
// Inbound texts from that number are routed into the session until the
// binding is removed.
func (r *ResponseRouter) RegisterContact(recipient, sessionID string) error {
	canonical, err := r.svc.ValidateAndCanonicalizeRecipient(recipient)
	if err != nil {
		slog.Error("ResponseRouter.RegisterContact: validation failed", "error", err, "recipient", recipient)
		return fmt.Errorf("invalid recipient: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[canonical] = sessionID
	slog.Debug("ResponseRouter contact registered", "recipient", canonical, "sessionID", sessionID)
	return nil
}

// UnregisterContact removes the session binding for a contact number.
func (r *ResponseRouter) UnregisterContact(recipient string) error {
	canonical, err := r.svc.ValidateAndCanonicalizeRecipient(recipient)
	if err != nil {
		slog.Error("ResponseRouter.UnregisterContact: validation failed", "error", err, "recipient", recipient)
		return fmt.Errorf("invalid recipient: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, canonical)
	slog.Debug("ResponseRouter contact unregistered", "recipient", canonical)
	return nil
}

// SessionFor returns the session ID bound to a contact number, if any.
func (r *ResponseRouter) SessionFor(recipient string) (string, bool) {
	canonical, err := r.svc.ValidateAndCanonicalizeRecipient(recipient)
	if err != nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.sessions[canonical]
	return id, ok
}

// ContactCount returns the number of currently bound contacts.
func (r *ResponseRouter) ContactCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Run consumes the service's inbound messages until the channel closes or the
// context is canceled. Intended to run in its own goroutine.
func (r *ResponseRouter) Run(ctx context.Context) {
	slog.Debug("ResponseRouter.Run: consuming inbound messages")
	for {
		select {
		case <-ctx.Done():
			slog.Debug("ResponseRouter.Run: context canceled")
			return
		case msg, ok := <-r.svc.Responses():
			if !ok {
				slog.Debug("ResponseRouter.Run: responses channel closed")
				return
			}
			if err := r.ProcessInbound(ctx, msg); err != nil {
				slog.Error("ResponseRouter.Run: failed to process inbound message", "error", err, "from", msg.From)
			}
		}
	}
}

// ProcessInbound routes one inbound text into its bound session and sends the
// engine's reply back, paced by the reply delay.
func (r *ResponseRouter) ProcessInbound(ctx context.Context, msg models.InboundMessage) error {
	canonicalFrom, err := r.svc.ValidateAndCanonicalizeRecipient(msg.From)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	r.mu.RLock()
	sessionID, bound := r.sessions[canonicalFrom]
	r.mu.RUnlock()

	if !bound {
		slog.Debug("ResponseRouter.ProcessInbound: no session for sender", "from", canonicalFrom)
		return r.reply(ctx, canonicalFrom, defaultUnknownSenderMessage)
	}

	reply, sess, err := r.engine.HandleMessage(ctx, sessionID, msg.Body)
	switch {
	case errors.Is(err, models.ErrSessionDone):
		// Negotiation finished; release the binding so later texts get the
		// default notice instead of a stale session.
		if uerr := r.UnregisterContact(canonicalFrom); uerr != nil {
			slog.Error("ResponseRouter.ProcessInbound: failed to unbind finished session", "error", uerr, "from", canonicalFrom)
		}
		return r.reply(ctx, canonicalFrom, defaultUnknownSenderMessage)
	case errors.Is(err, models.ErrSessionNotFound):
		if uerr := r.UnregisterContact(canonicalFrom); uerr != nil {
			slog.Error("ResponseRouter.ProcessInbound: failed to unbind missing session", "error", uerr, "from", canonicalFrom)
		}
		return r.reply(ctx, canonicalFrom, defaultUnknownSenderMessage)
	case err != nil:
		slog.Error("ResponseRouter.ProcessInbound: engine error", "error", err, "sessionID", sessionID, "from", canonicalFrom)
		return fmt.Errorf("failed to handle message: %w", err)
	}

	if sess != nil && sess.Phase == models.PhaseDone {
		if uerr := r.UnregisterContact(canonicalFrom); uerr != nil {
			slog.Error("ResponseRouter.ProcessInbound: failed to unbind completed session", "error", uerr, "from", canonicalFrom)
		}
	}
	slog.Info("ResponseRouter.ProcessInbound: message routed", "sessionID", sessionID, "from", canonicalFrom)
	return r.reply(ctx, canonicalFrom, reply)
}

// reply sends an outbound text after the pacing delay.
func (r *ResponseRouter) reply(ctx context.Context, to, body string) error {
	if body == "" {
		return nil
	}
	if r.replyDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.replyDelay):
		}
	}
	if err := r.svc.SendMessage(ctx, to, body); err != nil {
		slog.Error("ResponseRouter.reply: send failed", "error", err, "to", to)
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}
