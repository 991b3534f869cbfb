// Package voice provides the voice-call transport boundary.
//
// This file implements the Twilio Programmable Voice transport. Outbound call
// control goes through the Twilio REST API; inbound call events arrive on the
// status/transcription webhook and are narrowed into typed events.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// Opts holds configuration options for the Twilio voice transport.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	ToNumber   string
	WebhookURL string
}

// Option defines a configuration option for the Twilio voice transport.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the caller number in E.164 format.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// WithToNumber sets the callee number in E.164 format.
func WithToNumber(to string) Option {
	return func(o *Opts) { o.ToNumber = to }
}

// WithWebhookURL sets the public URL Twilio posts call events to.
func WithWebhookURL(url string) Option {
	return func(o *Opts) { o.WebhookURL = url }
}

// TwilioTransport implements Transport over Twilio Programmable Voice.
type TwilioTransport struct {
	client  *twilio.RestClient
	cfg     Opts
	events  chan models.VoiceEvent
	mu      sync.Mutex
	callSID string
	stopped bool
}

// NewTwilioTransport creates a Twilio voice transport, falling back to the
// TWILIO_* environment variables for unset options.
func NewTwilioTransport(opts ...Option) (*TwilioTransport, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio voice transport config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioTransport{
		client: client,
		cfg:    cfg,
		events: make(chan models.VoiceEvent, DefaultChannelBufferSize),
	}, nil
}

// Start places the outbound call. The assistant ID and variables are carried
// to the answering webhook as query parameters so the conversational agent can
// open with the right context.
func (t *TwilioTransport) Start(ctx context.Context, assistantID string, variables map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return fmt.Errorf("transport already stopped")
	}
	if t.cfg.ToNumber == "" {
		return fmt.Errorf("to number must be provided")
	}

	url := t.cfg.WebhookURL + "?assistant=" + assistantID
	params := &twilioApi.CreateCallParams{}
	params.SetTo(t.cfg.ToNumber)
	params.SetFrom(t.cfg.FromNumber)
	params.SetUrl(url)
	params.SetStatusCallback(t.cfg.WebhookURL)

	resp, err := t.client.Api.CreateCall(params)
	if err != nil {
		slog.Error("TwilioTransport.Start: create call failed", "error", err, "to", t.cfg.ToNumber)
		return fmt.Errorf("failed to create call: %w", err)
	}
	if resp.Sid != nil {
		t.callSID = *resp.Sid
	}
	slog.Info("TwilioTransport.Start: call created", "callSID", t.callSID, "assistantID", assistantID, "variables", len(variables))
	return nil
}

// Stop ends the active call and closes the event stream. Idempotent.
func (t *TwilioTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil
	}
	t.stopped = true

	if t.callSID != "" {
		params := &twilioApi.UpdateCallParams{}
		params.SetStatus("completed")
		if _, err := t.client.Api.UpdateCall(t.callSID, params); err != nil {
			slog.Error("TwilioTransport.Stop: hangup failed", "error", err, "callSID", t.callSID)
		}
	}
	close(t.events)
	slog.Debug("TwilioTransport.Stop: transport stopped", "callSID", t.callSID)
	return nil
}

// Say injects a spoken line into the live call via a TwiML redirect.
func (t *TwilioTransport) Say(ctx context.Context, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return fmt.Errorf("transport already stopped")
	}
	if t.callSID == "" {
		return fmt.Errorf("no active call")
	}

	params := &twilioApi.UpdateCallParams{}
	params.SetTwiml(fmt.Sprintf("<Response><Say>%s</Say><Pause length=\"60\"/></Response>", text))
	if _, err := t.client.Api.UpdateCall(t.callSID, params); err != nil {
		slog.Error("TwilioTransport.Say failed", "error", err, "callSID", t.callSID)
		return fmt.Errorf("failed to inject utterance: %w", err)
	}
	slog.Debug("TwilioTransport.Say succeeded", "callSID", t.callSID)
	return nil
}

// Events returns the inbound event stream.
func (t *TwilioTransport) Events() <-chan models.VoiceEvent {
	return t.events
}

// HandleWebhookPayload narrows a raw webhook payload and feeds it into the
// event stream. Unknown event types are dropped with a warning so a transport
// hiccup never reaches the state machine.
func (t *TwilioTransport) HandleWebhookPayload(payload []byte) error {
	ev, err := models.ParseVoiceEvent(payload)
	if err != nil {
		slog.Warn("TwilioTransport.HandleWebhookPayload: dropping event", "error", err)
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return fmt.Errorf("transport already stopped")
	}
	t.events <- ev
	return nil
}
