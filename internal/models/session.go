// Package models defines session and conversation structures for the
// dispatcher service.
package models

import "time"

// ConversationPhase is the named phase of the negotiation state machine.
// Exactly one phase is active at a time; progression is monotonic except that
// negotiating_time may be re-entered from awaiting_dock when the counterpart
// revises the time.
type ConversationPhase string

const (
	PhaseAwaitingName    ConversationPhase = "awaiting_name"
	PhaseNegotiatingTime ConversationPhase = "negotiating_time"
	PhaseAwaitingDock    ConversationPhase = "awaiting_dock"
	PhaseConfirming      ConversationPhase = "confirming"
	PhaseDone            ConversationPhase = "done"
	PhaseFailed          ConversationPhase = "failed"

	// Voice-only sub-flow phases for driver confirmation of a tentative
	// time/dock pair.
	PhasePuttingOnHold         ConversationPhase = "putting_on_hold"
	PhaseWarehouseOnHold       ConversationPhase = "warehouse_on_hold"
	PhaseDriverCallConnecting  ConversationPhase = "driver_call_connecting"
	PhaseDriverCallActive      ConversationPhase = "driver_call_active"
	PhaseReturningToWarehouse  ConversationPhase = "returning_to_warehouse"
)

// IsTerminal reports whether the phase ends the session.
func (p ConversationPhase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// ChatRole identifies who produced a chat message.
type ChatRole string

const (
	RoleDispatcher ChatRole = "dispatcher"
	RoleWarehouse  ChatRole = "warehouse"
	RoleDriver     ChatRole = "driver"
)

// ChatMessage is one append-only entry of the session transcript. Messages
// are never mutated or deleted.
type ChatMessage struct {
	Role         ChatRole               `json:"role"`
	Content      string                 `json:"content"`
	Timestamp    time.Time              `json:"timestamp"`
	CostAnalysis *TotalCostImpactResult `json:"cost_analysis,omitempty"`
	Evaluation   *OfferEvaluation       `json:"evaluation,omitempty"`
}

// SessionStatus is the lifecycle status of a stored session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// Session is the persisted view of one negotiation session.
type Session struct {
	ID            string              `json:"id"`
	Params        SetupParams         `json:"params"`
	Terms         ContractTerms       `json:"terms"`
	Strategy      NegotiationStrategy `json:"strategy"`
	Phase         ConversationPhase   `json:"phase"`
	PushbackCount int                 `json:"pushback_count"`
	ContactName   string              `json:"contact_name,omitempty"`
	ConfirmedTime string              `json:"confirmed_time,omitempty"`
	ConfirmedDock string              `json:"confirmed_dock,omitempty"`
	Agreement     *FinalAgreement     `json:"agreement,omitempty"`
	Status        SessionStatus       `json:"status"`
	UsingDefaults bool                `json:"using_defaults"` // informational: contract terms fell back to defaults
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// DriverResponseKind classifies a driver's reply to a proposed time.
type DriverResponseKind string

const (
	DriverConfirmed       DriverResponseKind = "confirmed"
	DriverRejected        DriverResponseKind = "rejected"
	DriverCounterProposal DriverResponseKind = "counter_proposal"
	DriverUnclear         DriverResponseKind = "unclear"
	DriverNone            DriverResponseKind = "none"
)

// DriverResponse is the classification result for a driver utterance.
// CounterTime is set only for counter_proposal.
type DriverResponse struct {
	Kind        DriverResponseKind `json:"kind"`
	CounterTime string             `json:"counter_time,omitempty"` // "HH:MM"
}

// SlotExtraction is the result of the external slot/entity extraction service
// for a warehouse utterance in voice mode.
type SlotExtraction struct {
	Time       string     `json:"time,omitempty"` // "HH:MM", empty if absent
	Dock       string     `json:"dock,omitempty"`
	Confidence Confidence `json:"confidence"`
}

// Confidence grades an extraction result.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// ExtractedContractTerms is the contract extraction service result. A nil
// result or low confidence means "use defaults"; it never blocks a session.
type ExtractedContractTerms struct {
	Terms      ContractTerms `json:"terms"`
	Confidence Confidence    `json:"confidence"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// AgreementExport is the flat record published for CSV export. Field order is
// significant and values are constrained to not contain commas.
type AgreementExport struct {
	Date         string `json:"date"` // YYYY-MM-DD
	OriginalTime string `json:"original_time"`
	NewTime      string `json:"new_time"`
	Dock         string `json:"dock"`
	DelayMinutes int    `json:"delay_minutes"`
	CostImpact   string `json:"cost_impact"` // formatted dollars, e.g. "$150.00"
	DayOffset    int    `json:"day_offset"`
	Status       string `json:"status"`
}
