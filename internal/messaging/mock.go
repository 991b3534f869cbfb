package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// SentMessage records one outbound message sent through a MockService.
type SentMessage struct {
	To   string
	Body string
}

// MockService implements Service for testing. Outbound messages are recorded,
// and inbound messages can be injected onto the responses channel.
type MockService struct {
	SendErr error

	mu        sync.Mutex
	sent      []SentMessage
	receipts  chan models.Receipt
	responses chan models.InboundMessage
	stopped   bool
}

// NewMockService creates a MockService with buffered channels.
func NewMockService() *MockService {
	return &MockService{
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.InboundMessage, DefaultChannelBufferSize),
	}
}

// ValidateAndCanonicalizeRecipient applies the shared phone canonicalization.
func (m *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// SendMessage records the outbound message.
func (m *MockService) SendMessage(ctx context.Context, to string, body string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.mu.Lock()
	m.sent = append(m.sent, SentMessage{To: to, Body: body})
	m.mu.Unlock()
	return nil
}

// Start is a no-op.
func (m *MockService) Start(ctx context.Context) error { return nil }

// Stop closes the channels. Safe to call more than once.
func (m *MockService) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil
	}
	m.stopped = true
	close(m.receipts)
	close(m.responses)
	return nil
}

// Receipts returns the receipts channel.
func (m *MockService) Receipts() <-chan models.Receipt { return m.receipts }

// Responses returns the responses channel.
func (m *MockService) Responses() <-chan models.InboundMessage { return m.responses }

// Inject places an inbound message on the responses channel.
func (m *MockService) Inject(from, body string) {
	m.responses <- models.InboundMessage{From: from, Body: body, Time: time.Now().Unix()}
}

// Sent returns a copy of the outbound messages recorded so far.
func (m *MockService) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}
