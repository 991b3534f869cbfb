// Package voice provides the voice-call transport boundary for negotiation
// sessions.
//
// The Transport interface is the only surface the conversation flow depends
// on: start a call, stop it, inject a spoken line, and consume the event
// stream (call lifecycle, speech updates, transcripts). A Twilio-backed
// implementation and an in-memory mock are provided.
package voice

import (
	"context"
	"sync"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// DefaultChannelBufferSize is the buffer size for the event channel.
const DefaultChannelBufferSize = 100

// Transport is the voice call boundary consumed by the conversation flow.
type Transport interface {
	// Start places or accepts a call for the given assistant persona.
	// Variables parameterize the assistant's opening context.
	Start(ctx context.Context, assistantID string, variables map[string]string) error

	// Stop ends the active call. Stopping an already-ended call is a no-op.
	Stop() error

	// Say injects a dispatcher utterance into the live call.
	Say(ctx context.Context, text string) error

	// Events returns the stream of call events in arrival order.
	Events() <-chan models.VoiceEvent
}

// MockTransport implements Transport for testing. Tests push events through
// Emit and inspect SaidLines.
type MockTransport struct {
	mu        sync.Mutex
	events    chan models.VoiceEvent
	SaidLines []string
	Started   bool
	Stopped   bool
	StartErr  error
	SayErr    error
}

// NewMockTransport creates a mock transport with a buffered event channel.
func NewMockTransport() *MockTransport {
	return &MockTransport{events: make(chan models.VoiceEvent, DefaultChannelBufferSize)}
}

func (m *MockTransport) Start(ctx context.Context, assistantID string, variables map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartErr != nil {
		return m.StartErr
	}
	m.Started = true
	return nil
}

func (m *MockTransport) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Stopped {
		return nil
	}
	m.Stopped = true
	close(m.events)
	return nil
}

func (m *MockTransport) Say(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SayErr != nil {
		return m.SayErr
	}
	m.SaidLines = append(m.SaidLines, text)
	return nil
}

func (m *MockTransport) Events() <-chan models.VoiceEvent {
	return m.events
}

// IsStarted reports whether Start was called.
func (m *MockTransport) IsStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Started
}

// IsStopped reports whether the transport has been stopped.
func (m *MockTransport) IsStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Stopped
}

// Said returns a copy of the lines injected via Say.
func (m *MockTransport) Said() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.SaidLines))
	copy(out, m.SaidLines)
	return out
}

// Emit pushes an event into the stream as if the call produced it.
func (m *MockTransport) Emit(ev models.VoiceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Stopped {
		return
	}
	m.events <- ev
}

// EmitTranscript is a convenience for pushing a final transcript event.
func (m *MockTransport) EmitTranscript(role models.VoiceRole, text string) {
	m.Emit(models.VoiceEvent{
		Type:       models.VoiceEventTranscript,
		Role:       role,
		Transcript: text,
		IsFinal:    true,
	})
}
