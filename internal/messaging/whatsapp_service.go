package messaging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// WhatsAppService implements Service using the whatsmeow-backed client.
type WhatsAppService struct {
	client    WhatsAppSender
	waClient  *WhatsAppClient // nil when constructed with a mock sender
	receipts  chan models.Receipt
	responses chan models.InboundMessage
	done      chan struct{}
	mu        sync.RWMutex
	stopped   bool
}

// NewWhatsAppService creates a WhatsAppService wrapping the given sender.
// When the sender is the concrete client, incoming messages and receipts are
// forwarded from whatsmeow events.
func NewWhatsAppService(client WhatsAppSender) *WhatsAppService {
	s := &WhatsAppService{
		client:    client,
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.InboundMessage, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}
	if waClient, ok := client.(*WhatsAppClient); ok {
		s.waClient = waClient
	} else {
		slog.Debug("WhatsAppService created with interface sender, event handling disabled")
	}
	return s
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number to its digits-only form.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := canonicalizePhone(recipient)
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("WhatsAppService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start registers the whatsmeow event handler and keeps it running until the
// context is canceled.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.Raw() == nil {
		slog.Debug("WhatsAppService.Start: no concrete client, skipping event handling")
		return nil
	}
	go s.handleEvents(ctx)
	slog.Debug("WhatsAppService.Start: event handler started")
	return nil
}

// Stop closes the service channels. Safe to call more than once.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	close(s.receipts)
	close(s.responses)
	if s.waClient != nil {
		s.waClient.Disconnect()
	}
	slog.Info("WhatsAppService stopped")
	return nil
}

// SendMessage sends a message and emits a sent receipt.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService.SendMessage: validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService.SendMessage: send failed", "error", err, "to", canonicalTo)
		return err
	}
	s.emitReceipt(models.Receipt{To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// Receipts returns a channel of receipt events.
func (s *WhatsAppService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns a channel of inbound warehouse messages.
func (s *WhatsAppService) Responses() <-chan models.InboundMessage {
	return s.responses
}

// handleEvents forwards whatsmeow events into the service channels until the
// context is canceled.
func (s *WhatsAppService) handleEvents(ctx context.Context) {
	s.waClient.Raw().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(v)
		case *events.Receipt:
			s.handleMessageReceipt(v)
		}
	})
	<-ctx.Done()
	slog.Debug("WhatsAppService.handleEvents: stopping, context canceled")
}

// handleIncomingMessage forwards incoming text messages. Non-text messages
// (images, audio) are dropped.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil {
		return
	}
	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = *evt.Message.ExtendedTextMessage.Text
	default:
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	msg := models.InboundMessage{
		From: evt.Info.Sender.User,
		Body: text,
		Time: evt.Info.Timestamp.Unix(),
	}

	// Events arrive on whatsmeow goroutines and can race shutdown.
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("WhatsAppService: responses channel closed, dropping message", "from", msg.From)
		}
	}()
	select {
	case <-s.done:
	case s.responses <- msg:
		slog.Debug("WhatsAppService inbound message forwarded", "from", msg.From, "body_length", len(msg.Body))
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService responses channel blocked, dropping message", "from", msg.From)
	}
}

// handleMessageReceipt forwards delivery and read receipts.
func (s *WhatsAppService) handleMessageReceipt(evt *events.Receipt) {
	var status models.MessageStatus
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		status = models.MessageStatusDelivered
	case events.ReceiptTypeRead:
		status = models.MessageStatusRead
	default:
		return
	}

	to := strings.TrimPrefix(evt.MessageSource.Sender.User, "+")
	receipt := models.Receipt{To: to, Status: status, Time: evt.Timestamp.Unix()}

	defer func() {
		if r := recover(); r != nil {
			slog.Debug("WhatsAppService: receipts channel closed, dropping receipt", "to", receipt.To)
		}
	}()
	select {
	case <-s.done:
	case s.receipts <- receipt:
		slog.Debug("WhatsAppService receipt forwarded", "to", receipt.To, "status", receipt.Status)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService receipts channel blocked, dropping receipt", "to", receipt.To)
	}
}

// emitReceipt delivers a receipt without blocking; drops when the channel is full.
func (s *WhatsAppService) emitReceipt(receipt models.Receipt) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("WhatsAppService.emitReceipt: channel closed, dropping receipt", "to", receipt.To)
		}
	}()
	select {
	case s.receipts <- receipt:
	default:
		slog.Warn("WhatsAppService receipts channel full, dropping receipt", "to", receipt.To)
	}
}
