// Package api provides HTTP handlers for dispatcher endpoints.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/export"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// createSessionRequest is the POST /sessions payload.
type createSessionRequest struct {
	Params models.SetupParams `json:"params"`
}

// sessionResponse is returned for session create/get/reset.
type sessionResponse struct {
	Session  *models.Session `json:"session"`
	Greeting string          `json:"greeting,omitempty"`
}

// messageRequest is the POST /sessions/{id}/messages payload.
type messageRequest struct {
	Text string `json:"text"`
}

// messageResponse carries the dispatcher's reply.
type messageResponse struct {
	Reply   string          `json:"reply"`
	Session *models.Session `json:"session"`
}

// sessionsHandler handles POST /sessions (create).
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.sessionsHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sessionsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	sess, greeting, err := s.engine.CreateSession(r.Context(), req.Params)
	if err != nil {
		slog.Warn("Server.sessionsHandler: session creation rejected", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if sess.Params.Mode == models.ModeVoice && s.voiceLauncher != nil {
		call, err := s.voiceLauncher.LaunchVoiceSession(sess)
		if err != nil {
			slog.Error("Server.sessionsHandler: failed to launch voice call", "error", err, "sessionID", sess.ID)
			writeJSONResponse(w, http.StatusBadGateway, models.Error("Failed to start voice call"))
			return
		}
		s.setVoiceSinks(call)
		slog.Info("Server.sessionsHandler: voice call launched", "sessionID", sess.ID, "hasDriverLeg", call.Driver != nil)
	}

	slog.Info("Server.sessionsHandler: session created", "sessionID", sess.ID)
	writeJSONResponse(w, http.StatusCreated, models.Success(sessionResponse{Session: sess, Greeting: greeting}))
}

// sessionHandler routes /sessions/{id}[/messages|/reset|/transcript].
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session ID required"))
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getSession(w, r, id)
	case action == "messages" && r.Method == http.MethodPost:
		s.postMessage(w, r, id)
	case action == "reset" && r.Method == http.MethodPost:
		s.resetSession(w, r, id)
	case action == "transcript" && r.Method == http.MethodGet:
		s.getTranscript(w, r, id)
	default:
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown session endpoint"))
	}
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := s.engine.GetSession(r.Context(), id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sessionResponse{Session: sess}))
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request, id string) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.postMessage: failed to decode JSON", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Message text required"))
		return
	}

	reply, sess, err := s.engine.HandleMessage(r.Context(), id, req.Text)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(messageResponse{Reply: reply, Session: sess}))
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request, id string) {
	sess, greeting, err := s.engine.ResetSession(r.Context(), id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	slog.Info("Server.resetSession: session reset", "sessionID", id)
	writeJSONResponse(w, http.StatusOK, models.Success(sessionResponse{Session: sess, Greeting: greeting}))
}

func (s *Server) getTranscript(w http.ResponseWriter, r *http.Request, id string) {
	msgs, err := s.st.GetChatMessages(id)
	if err != nil {
		slog.Error("Server.getTranscript: failed to load transcript", "error", err, "sessionID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load transcript"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(msgs))
}

// agreementsCSVHandler handles GET /agreements.csv.
func (s *Server) agreementsCSVHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	recs, err := s.st.GetAgreements()
	if err != nil {
		slog.Error("Server.agreementsCSVHandler: failed to load agreements", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load agreements"))
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="agreements.csv"`)
	if err := export.Write(w, recs); err != nil {
		slog.Error("Server.agreementsCSVHandler: failed to stream CSV", "error", err)
	}
}

// voiceEventsHandler handles POST /voice/events, feeding webhook payloads into
// the active voice transport.
func (s *Server) voiceEventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sink := s.currentVoiceSink()
	if sink == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Voice mode not enabled"))
		return
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Failed to read payload"))
		return
	}
	if err := sink.HandleWebhookPayload(payload); err != nil {
		slog.Warn("Server.voiceEventsHandler: payload rejected", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Malformed voice event"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Recorded())
}

// driverEventsHandler handles POST /voice/events/driver, feeding webhook
// payloads from the driver-confirmation leg into its transport.
func (s *Server) driverEventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sink := s.currentDriverSink()
	if sink == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("No driver call in progress"))
		return
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Failed to read payload"))
		return
	}
	if err := sink.HandleWebhookPayload(payload); err != nil {
		slog.Warn("Server.driverEventsHandler: payload rejected", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Malformed voice event"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Recorded())
}

// smsInboundHandler handles POST /sms/inbound, feeding Twilio inbound-SMS
// webhook payloads into the messaging service.
func (s *Server) smsInboundHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.smsSink == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("SMS channel not enabled"))
		return
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Failed to read payload"))
		return
	}
	if err := s.smsSink.HandleInboundPayload(payload); err != nil {
		slog.Warn("Server.smsInboundHandler: payload rejected", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Malformed SMS payload"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Recorded())
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}

// writeSessionError maps engine errors to HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
	case errors.Is(err, models.ErrSessionDone):
		writeJSONResponse(w, http.StatusConflict, models.Error("Session already completed"))
	default:
		slog.Error("Server: session operation failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}
