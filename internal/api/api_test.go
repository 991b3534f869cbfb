package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/flow"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/store"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	engine := flow.NewEngine(st, nil, flow.WithNowFunc(func() string { return "13:00" }))
	return NewServer(engine, st, nil), st
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, handler http.Handler) string {
	t.Helper()
	w := postJSON(t, handler, "/sessions", createSessionRequest{Params: models.SetupParams{
		OriginalAppointment: "14:00",
		DelayMinutes:        30,
		Mode:                models.ModeText,
	}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: status %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Result sessionResponse `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}
	if resp.Result.Session == nil || resp.Result.Session.ID == "" {
		t.Fatalf("missing session in response: %s", w.Body.String())
	}
	return resp.Result.Session.ID
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv, st := newTestServer(t)
	handler := srv.Handler()
	id := createSession(t, handler)

	for _, msg := range []string{"This is Sarah", "I can do 2:15", "Dock 7", "sounds good"} {
		w := postJSON(t, handler, "/sessions/"+id+"/messages", messageRequest{Text: msg})
		if w.Code != http.StatusOK {
			t.Fatalf("message %q: status %d, body %s", msg, w.Code, w.Body.String())
		}
	}

	// The completed session is visible via GET.
	req := httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get session: status %d", w.Code)
	}
	var got struct {
		Result sessionResponse `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Result.Session.Phase != models.PhaseDone {
		t.Errorf("phase = %q, want done", got.Result.Session.Phase)
	}

	// Further messages conflict.
	w2 := postJSON(t, handler, "/sessions/"+id+"/messages", messageRequest{Text: "hello again"})
	if w2.Code != http.StatusConflict {
		t.Errorf("post-done message: status %d, want 409", w2.Code)
	}

	recs, _ := st.GetAgreements()
	if len(recs) != 1 {
		t.Errorf("agreements = %d, want 1", len(recs))
	}
}

func TestAgreementsCSVEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	handler := srv.Handler()

	st.SaveAgreement("s1", models.AgreementExport{
		Date: "2026-08-31", OriginalTime: "14:00", NewTime: "15:15", Dock: "7",
		DelayMinutes: 45, CostImpact: "$0.00", DayOffset: 0, Status: "confirmed",
	})

	req := httptest.NewRequest(http.MethodGet, "/agreements.csv", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type = %q, want text/csv", ct)
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want header + row", len(lines))
	}
	if lines[0] != "date,originalTime,newTime,dock,delayMinutes,costImpact,dayOffset,status" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "2026-08-31,14:00,15:15,7,45,$0.00,0,confirmed" {
		t.Errorf("row = %q", lines[1])
	}
}

func TestCreateSessionRejectsInvalidSetup(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	w := postJSON(t, handler, "/sessions", createSessionRequest{Params: models.SetupParams{
		OriginalAppointment: "14:00",
		DelayMinutes:        -10,
		Mode:                models.ModeText,
	}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUnknownSessionIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	w := postJSON(t, handler, "/sessions/nope/messages", messageRequest{Text: "hi"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestResetEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	id := createSession(t, handler)

	postJSON(t, handler, "/sessions/"+id+"/messages", messageRequest{Text: "This is Mike"})
	w := postJSON(t, handler, "/sessions/"+id+"/reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset: status %d", w.Code)
	}
	var got struct {
		Result sessionResponse `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Result.Session.Phase != models.PhaseAwaitingName || got.Result.Session.ContactName != "" {
		t.Errorf("reset session = %+v", got.Result.Session)
	}
}

type stubSMSSink struct {
	payloads [][]byte
	err      error
}

func (s *stubSMSSink) HandleInboundPayload(payload []byte) error {
	if s.err != nil {
		return s.err
	}
	s.payloads = append(s.payloads, payload)
	return nil
}

func TestSMSInboundEndpoint(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := flow.NewEngine(st, nil, flow.WithNowFunc(func() string { return "13:00" }))
	sink := &stubSMSSink{}
	srv := NewServer(engine, st, nil, WithSMSSink(sink))
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/sms/inbound",
		strings.NewReader("From=%2B15550100001&Body=hello"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(sink.payloads) != 1 {
		t.Errorf("sink received %d payloads, want 1", len(sink.payloads))
	}
}

func TestSMSInboundWithoutSMSChannel(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/sms/inbound", strings.NewReader("From=x"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

type stubVoiceSink struct {
	payloads [][]byte
}

func (s *stubVoiceSink) HandleWebhookPayload(payload []byte) error {
	s.payloads = append(s.payloads, payload)
	return nil
}

type stubVoiceLauncher struct {
	sink       *stubVoiceSink
	driverSink *stubVoiceSink
	launched   int
}

func (l *stubVoiceLauncher) LaunchVoiceSession(sess *models.Session) (*VoiceCall, error) {
	l.launched++
	call := &VoiceCall{Warehouse: l.sink}
	if l.driverSink != nil {
		call.Driver = l.driverSink
	}
	return call, nil
}

func TestVoiceSessionLaunchesCall(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := flow.NewEngine(st, nil, flow.WithNowFunc(func() string { return "13:00" }))
	launcher := &stubVoiceLauncher{sink: &stubVoiceSink{}}
	srv := NewServer(engine, st, nil, WithVoiceLauncher(launcher))
	handler := srv.Handler()

	w := postJSON(t, handler, "/sessions", createSessionRequest{Params: models.SetupParams{
		OriginalAppointment: "14:00",
		DelayMinutes:        45,
		Mode:                models.ModeVoice,
	}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create voice session: status %d, body %s", w.Code, w.Body.String())
	}
	if launcher.launched != 1 {
		t.Fatalf("launched = %d, want 1", launcher.launched)
	}

	// Webhook payloads now reach the launched call's sink.
	req := httptest.NewRequest(http.MethodPost, "/voice/events", strings.NewReader(`{"type":"call-start"}`))
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req)
	if w2.Code != http.StatusOK {
		t.Fatalf("voice event: status %d", w2.Code)
	}
	if len(launcher.sink.payloads) != 1 {
		t.Errorf("sink received %d payloads, want 1", len(launcher.sink.payloads))
	}
}

func TestDriverEventsRouteToDriverLeg(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := flow.NewEngine(st, nil, flow.WithNowFunc(func() string { return "13:00" }))
	launcher := &stubVoiceLauncher{sink: &stubVoiceSink{}, driverSink: &stubVoiceSink{}}
	srv := NewServer(engine, st, nil, WithVoiceLauncher(launcher))
	handler := srv.Handler()

	w := postJSON(t, handler, "/sessions", createSessionRequest{Params: models.SetupParams{
		OriginalAppointment: "14:00",
		DelayMinutes:        45,
		Mode:                models.ModeVoice,
	}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create voice session: status %d, body %s", w.Code, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/voice/events/driver", strings.NewReader(`{"type":"call-start"}`))
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req)
	if w2.Code != http.StatusOK {
		t.Fatalf("driver event: status %d", w2.Code)
	}
	if len(launcher.driverSink.payloads) != 1 {
		t.Errorf("driver sink received %d payloads, want 1", len(launcher.driverSink.payloads))
	}
	if len(launcher.sink.payloads) != 0 {
		t.Errorf("warehouse sink received %d payloads, want 0", len(launcher.sink.payloads))
	}
}

func TestDriverEventsWithoutDriverLeg(t *testing.T) {
	st := store.NewInMemoryStore()
	engine := flow.NewEngine(st, nil, flow.WithNowFunc(func() string { return "13:00" }))
	launcher := &stubVoiceLauncher{sink: &stubVoiceSink{}}
	srv := NewServer(engine, st, nil, WithVoiceLauncher(launcher))
	handler := srv.Handler()

	w := postJSON(t, handler, "/sessions", createSessionRequest{Params: models.SetupParams{
		OriginalAppointment: "14:00",
		DelayMinutes:        45,
		Mode:                models.ModeVoice,
	}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create voice session: status %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/voice/events/driver", strings.NewReader(`{"type":"call-start"}`))
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req)
	if w2.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w2.Code)
	}
}

func TestVoiceEventsWithoutVoiceMode(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/voice/events", strings.NewReader(`{"type":"call-start"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
