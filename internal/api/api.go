// Package api provides the HTTP surface of the dispatcher service.
//
// It exposes RESTful endpoints for creating negotiation sessions, exchanging
// messages, resetting sessions, exporting agreements as CSV, and receiving
// voice webhook events.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/flow"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/store"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string
	SMSSink       SMSEventSink
	VoiceLauncher VoiceLauncher
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// VoiceEventSink receives raw voice webhook payloads for the active call.
type VoiceEventSink interface {
	HandleWebhookPayload(payload []byte) error
}

// SMSEventSink receives raw inbound-SMS webhook payloads.
type SMSEventSink interface {
	HandleInboundPayload(payload []byte) error
}

// WithSMSSink routes inbound-SMS webhook payloads to the given sink.
func WithSMSSink(sink SMSEventSink) Option {
	return func(o *Opts) { o.SMSSink = sink }
}

// VoiceCall holds the webhook sinks for a launched voice session. Driver is
// nil when the session has no driver-confirmation leg.
type VoiceCall struct {
	Warehouse VoiceEventSink
	Driver    VoiceEventSink
}

// VoiceLauncher places the outbound warehouse call for a newly created voice
// session and returns the sinks that webhook payloads should be fed to.
type VoiceLauncher interface {
	LaunchVoiceSession(sess *models.Session) (*VoiceCall, error)
}

// WithVoiceLauncher enables voice-mode session creation; the launcher's sink
// becomes the target of the voice webhook endpoint.
func WithVoiceLauncher(l VoiceLauncher) Option {
	return func(o *Opts) { o.VoiceLauncher = l }
}

// Server wires the negotiation engine and store to HTTP endpoints.
type Server struct {
	engine        *flow.Engine
	st            store.Store
	smsSink       SMSEventSink
	voiceLauncher VoiceLauncher
	httpSrv       *http.Server
	addr          string

	// sinkMu guards the sinks, which change when a launcher starts a call.
	sinkMu     sync.RWMutex
	voiceSink  VoiceEventSink
	driverSink VoiceEventSink
}

// NewServer creates an API server. voiceSink may be nil when the service runs
// text-only; the voice webhook then responds 503.
func NewServer(engine *flow.Engine, st store.Store, voiceSink VoiceEventSink, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{
		engine:        engine,
		st:            st,
		voiceSink:     voiceSink,
		smsSink:       cfg.SMSSink,
		voiceLauncher: cfg.VoiceLauncher,
		addr:          cfg.Addr,
	}
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", s.sessionsHandler)
	mux.HandleFunc("/sessions/", s.sessionHandler)
	mux.HandleFunc("/agreements.csv", s.agreementsCSVHandler)
	mux.HandleFunc("/voice/events", s.voiceEventsHandler)
	mux.HandleFunc("/voice/events/driver", s.driverEventsHandler)
	mux.HandleFunc("/sms/inbound", s.smsInboundHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// currentVoiceSink returns the sink for voice webhook payloads, if any.
func (s *Server) currentVoiceSink() VoiceEventSink {
	s.sinkMu.RLock()
	defer s.sinkMu.RUnlock()
	return s.voiceSink
}

// currentDriverSink returns the sink for driver-leg webhook payloads, if any.
func (s *Server) currentDriverSink() VoiceEventSink {
	s.sinkMu.RLock()
	defer s.sinkMu.RUnlock()
	return s.driverSink
}

// setVoiceSinks installs the sinks for the active call.
func (s *Server) setVoiceSinks(call *VoiceCall) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	s.voiceSink = call.Warehouse
	s.driverSink = call.Driver
}

// Run starts the HTTP server and blocks until the context is canceled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: dispatcher API listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("Server.Run: shutting down")
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("API server shutdown failed: %w", err)
		}
		return nil
	}
}
