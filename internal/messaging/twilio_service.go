package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// SMSSender sends SMS messages. The concrete Twilio client and test mocks
// both satisfy it.
type SMSSender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// TwilioOpts holds configuration for the Twilio SMS client.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioOption configures the Twilio SMS client.
type TwilioOption func(*TwilioOpts)

// WithTwilioAccountSID sets the Twilio account SID.
func WithTwilioAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithTwilioAuthToken sets the Twilio auth token.
func WithTwilioAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithTwilioFromNumber sets the sender number in E.164 format.
func WithTwilioFromNumber(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromNumber = from }
}

// TwilioSMSClient sends SMS messages through the Twilio REST API.
type TwilioSMSClient struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSMSClient creates a Twilio SMS client, falling back to the
// TWILIO_* environment variables for unset options.
func NewTwilioSMSClient(opts ...TwilioOption) (*TwilioSMSClient, error) {
	var cfg TwilioOpts
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
	return &TwilioSMSClient{client: client, from: cfg.FromNumber}, nil
}

// SendMessage sends an SMS to the given recipient.
func (c *TwilioSMSClient) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("+" + to)
	params.SetFrom(c.from)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("TwilioSMSClient.SendMessage: send failed", "error", err, "to", to)
		return fmt.Errorf("failed to send SMS to %s: %w", to, err)
	}
	var sid string
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("TwilioSMSClient.SendMessage: message created", "to", to, "messageSID", sid)
	return nil
}

// TwilioSMSService implements Service over Twilio SMS. Inbound messages
// arrive through HandleInboundPayload, fed by the inbound-SMS webhook.
type TwilioSMSService struct {
	client    SMSSender
	receipts  chan models.Receipt
	responses chan models.InboundMessage
	done      chan struct{}
	mu        sync.RWMutex
	stopped   bool
}

// NewTwilioSMSService creates a TwilioSMSService wrapping the given sender.
func NewTwilioSMSService(client SMSSender) *TwilioSMSService {
	return &TwilioSMSService{
		client:    client,
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.InboundMessage, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a phone number
// to its digits-only form.
func (s *TwilioSMSService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := canonicalizePhone(recipient)
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("TwilioSMSService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op; inbound SMS arrives via webhook.
func (s *TwilioSMSService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the service channels. Safe to call more than once.
func (s *TwilioSMSService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	// Give in-flight emitters a moment to drain before closing.
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.receipts)
		close(s.responses)
	}()
	slog.Info("TwilioSMSService stopped")
	return nil
}

// SendMessage sends an SMS and emits a sent receipt.
func (s *TwilioSMSService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioSMSService.SendMessage: validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		return err
	}
	s.safeEmitReceipt(models.Receipt{To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// Receipts returns a channel of receipt events.
func (s *TwilioSMSService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns a channel of inbound warehouse messages.
func (s *TwilioSMSService) Responses() <-chan models.InboundMessage {
	return s.responses
}

// HandleInboundPayload decodes a Twilio inbound-SMS webhook payload
// (application/x-www-form-urlencoded with From and Body fields) and feeds it
// into the responses channel.
func (s *TwilioSMSService) HandleInboundPayload(payload []byte) error {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return fmt.Errorf("failed to parse inbound SMS payload: %w", err)
	}
	from := values.Get("From")
	body := values.Get("Body")
	if from == "" || body == "" {
		return fmt.Errorf("inbound SMS payload missing From or Body")
	}

	canonicalFrom, err := s.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		return fmt.Errorf("inbound SMS sender invalid: %w", err)
	}

	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	msg := models.InboundMessage{From: canonicalFrom, Body: body, Time: time.Now().Unix()}
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("TwilioSMSService: responses channel closed, dropping message", "from", msg.From)
		}
	}()
	select {
	case <-s.done:
	case s.responses <- msg:
		slog.Debug("TwilioSMSService inbound message forwarded", "from", msg.From, "body_length", len(msg.Body))
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioSMSService responses channel blocked, dropping message", "from", msg.From)
	}
	return nil
}

// HandleStatusPayload decodes a Twilio delivery-status callback
// (MessageStatus and To fields) and feeds delivered statuses into the
// receipts channel. Unknown statuses are dropped.
func (s *TwilioSMSService) HandleStatusPayload(payload []byte) error {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return fmt.Errorf("failed to parse status payload: %w", err)
	}
	to := values.Get("To")
	rawStatus := values.Get("MessageStatus")
	if to == "" || rawStatus == "" {
		return fmt.Errorf("status payload missing To or MessageStatus")
	}

	var status models.MessageStatus
	switch rawStatus {
	case "sent":
		status = models.MessageStatusSent
	case "delivered":
		status = models.MessageStatusDelivered
	case "read":
		status = models.MessageStatusRead
	default:
		slog.Debug("TwilioSMSService ignoring status", "status", rawStatus, "to", to)
		return nil
	}

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return fmt.Errorf("status payload recipient invalid: %w", err)
	}
	s.safeEmitReceipt(models.Receipt{To: canonicalTo, Status: status, Time: time.Now().Unix()})
	return nil
}

// safeEmitReceipt delivers a receipt without blocking or panicking on a
// closed channel during shutdown.
func (s *TwilioSMSService) safeEmitReceipt(receipt models.Receipt) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("TwilioSMSService.safeEmitReceipt: channel closed, dropping receipt",
				"to", receipt.To, "status", string(receipt.Status))
		}
	}()
	select {
	case <-s.done:
	case s.receipts <- receipt:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioSMSService receipts channel blocked, dropping receipt",
			"to", receipt.To, "status", string(receipt.Status), "timeout", DefaultChannelTimeout)
	}
}
