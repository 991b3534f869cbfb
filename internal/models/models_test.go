package models

import "testing"

func TestSetupParamsValidate(t *testing.T) {
	cases := []struct {
		name    string
		params  SetupParams
		wantErr error
	}{
		{
			name:   "valid text session",
			params: SetupParams{OriginalAppointment: "14:00", DelayMinutes: 30, ShipmentValue: 45000, Mode: ModeText},
		},
		{
			name:    "invalid mode",
			params:  SetupParams{OriginalAppointment: "14:00", Mode: "carrier-pigeon"},
			wantErr: ErrInvalidMode,
		},
		{
			name:    "negative delay",
			params:  SetupParams{OriginalAppointment: "14:00", DelayMinutes: -5, Mode: ModeVoice},
			wantErr: ErrNegativeDelay,
		},
		{
			name:    "delay over a day",
			params:  SetupParams{OriginalAppointment: "14:00", DelayMinutes: 2000, Mode: ModeText},
			wantErr: ErrDelayTooLarge,
		},
		{
			name:    "shipment value too high",
			params:  SetupParams{OriginalAppointment: "14:00", ShipmentValue: 20_000_000, Mode: ModeText},
			wantErr: ErrShipmentValueTooHigh,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.params.Validate()
			if err != c.wantErr {
				t.Errorf("Validate() = %v, want %v", err, c.wantErr)
			}
		})
	}
}

func TestHOSInputClamped(t *testing.T) {
	in := HOSInput{
		RemainingDriveMinutes:  -10,
		RemainingWindowMinutes: 120,
		MinutesSinceLastBreak:  -1,
		RemainingWeeklyMinutes: -500,
	}
	got := in.Clamped()
	if got.RemainingDriveMinutes != 0 || got.MinutesSinceLastBreak != 0 || got.RemainingWeeklyMinutes != 0 {
		t.Errorf("Clamped() did not zero negative values: %+v", got)
	}
	if got.RemainingWindowMinutes != 120 {
		t.Errorf("Clamped() altered a valid value: %+v", got)
	}
	if got.WeekRule != WeekRule70In8 {
		t.Errorf("Clamped() week rule = %q, want default %q", got.WeekRule, WeekRule70In8)
	}
}

func TestParseVoiceEvent(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    VoiceEvent
		wantErr bool
	}{
		{
			name:    "call start",
			payload: `{"type":"call-start"}`,
			want:    VoiceEvent{Type: VoiceEventCallStart},
		},
		{
			name:    "speech update",
			payload: `{"type":"speech-update","role":"assistant","status":"started"}`,
			want:    VoiceEvent{Type: VoiceEventSpeechUpdate, Role: VoiceRoleAssistant, Status: SpeechStarted},
		},
		{
			name:    "final transcript",
			payload: `{"type":"transcript","role":"user","transcript":"dock 7 works","isFinal":true}`,
			want:    VoiceEvent{Type: VoiceEventTranscript, Role: VoiceRoleUser, Transcript: "dock 7 works", IsFinal: true},
		},
		{
			name:    "error event",
			payload: `{"type":"error","message":"connection lost"}`,
			want:    VoiceEvent{Type: VoiceEventError, Error: "connection lost"},
		},
		{
			name:    "unknown type rejected",
			payload: `{"type":"metrics"}`,
			wantErr: true,
		},
		{
			name:    "bad speech status rejected",
			payload: `{"type":"speech-update","role":"assistant","status":"mumbling"}`,
			wantErr: true,
		},
		{
			name:    "bad role rejected",
			payload: `{"type":"transcript","role":"operator","transcript":"hi"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `not json`,
			wantErr: true,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ParseVoiceEvent([]byte(c.payload))
			if c.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Errorf("ParseVoiceEvent = %+v, want %+v", got, c.want)
			}
		})
	}
}

func TestPhaseIsTerminal(t *testing.T) {
	if !PhaseDone.IsTerminal() || !PhaseFailed.IsTerminal() {
		t.Error("done/failed should be terminal")
	}
	if PhaseNegotiatingTime.IsTerminal() {
		t.Error("negotiating_time should not be terminal")
	}
}
