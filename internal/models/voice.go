// Package models defines the typed event union for the voice transport
// boundary.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// VoiceEventType discriminates the raw payloads emitted by the voice SDK.
type VoiceEventType string

const (
	VoiceEventCallStart    VoiceEventType = "call-start"
	VoiceEventCallEnd      VoiceEventType = "call-end"
	VoiceEventSpeechUpdate VoiceEventType = "speech-update"
	VoiceEventTranscript   VoiceEventType = "transcript"
	VoiceEventError        VoiceEventType = "error"
)

// SpeechStatus is the state carried by a speech-update event.
type SpeechStatus string

const (
	SpeechStarted SpeechStatus = "started"
	SpeechStopped SpeechStatus = "stopped"
)

// VoiceRole tags which side of the call produced an event.
type VoiceRole string

const (
	VoiceRoleAssistant VoiceRole = "assistant"
	VoiceRoleUser      VoiceRole = "user"
)

// VoiceEvent is the validated, narrowed form of a raw transport payload.
// Only the fields relevant to the event's Type are populated.
type VoiceEvent struct {
	Type       VoiceEventType `json:"type"`
	Role       VoiceRole      `json:"role,omitempty"`
	Status     SpeechStatus   `json:"status,omitempty"`
	Transcript string         `json:"transcript,omitempty"`
	IsFinal    bool           `json:"is_final,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Errors returned when narrowing raw transport payloads.
var (
	ErrUnknownVoiceEvent = errors.New("unknown voice event type")
	ErrMalformedEvent    = errors.New("malformed voice event payload")
)

// rawVoiceEvent mirrors the duck-typed SDK payload before narrowing.
type rawVoiceEvent struct {
	Type       string `json:"type"`
	Role       string `json:"role"`
	Status     string `json:"status"`
	Transcript string `json:"transcript"`
	IsFinal    *bool  `json:"isFinal"`
	Message    string `json:"message"`
}

// ParseVoiceEvent validates and narrows a raw JSON payload from the voice SDK
// into a typed VoiceEvent. Unknown event types are rejected at this boundary
// so the state machine only ever sees well-formed events.
func ParseVoiceEvent(payload []byte) (VoiceEvent, error) {
	var raw rawVoiceEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return VoiceEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	switch VoiceEventType(raw.Type) {
	case VoiceEventCallStart:
		return VoiceEvent{Type: VoiceEventCallStart}, nil
	case VoiceEventCallEnd:
		return VoiceEvent{Type: VoiceEventCallEnd}, nil
	case VoiceEventSpeechUpdate:
		role, err := parseVoiceRole(raw.Role)
		if err != nil {
			return VoiceEvent{}, err
		}
		var status SpeechStatus
		switch SpeechStatus(raw.Status) {
		case SpeechStarted, SpeechStopped:
			status = SpeechStatus(raw.Status)
		default:
			return VoiceEvent{}, fmt.Errorf("%w: speech status %q", ErrMalformedEvent, raw.Status)
		}
		return VoiceEvent{Type: VoiceEventSpeechUpdate, Role: role, Status: status}, nil
	case VoiceEventTranscript:
		role, err := parseVoiceRole(raw.Role)
		if err != nil {
			return VoiceEvent{}, err
		}
		isFinal := raw.IsFinal != nil && *raw.IsFinal
		return VoiceEvent{Type: VoiceEventTranscript, Role: role, Transcript: raw.Transcript, IsFinal: isFinal}, nil
	case VoiceEventError:
		return VoiceEvent{Type: VoiceEventError, Error: raw.Message}, nil
	default:
		return VoiceEvent{}, fmt.Errorf("%w: %q", ErrUnknownVoiceEvent, raw.Type)
	}
}

func parseVoiceRole(role string) (VoiceRole, error) {
	switch VoiceRole(role) {
	case VoiceRoleAssistant, VoiceRoleUser:
		return VoiceRole(role), nil
	default:
		return "", fmt.Errorf("%w: role %q", ErrMalformedEvent, role)
	}
}
