// Package models defines the core data structures for the dispatcher service.
//
// It includes negotiation setup, contract terms, strategy and evaluation types
// shared across modules.
package models

import (
	"errors"
	"time"
)

// CommunicationMode selects how the negotiation is conducted.
type CommunicationMode string

const (
	// ModeVoice negotiates over a live voice call.
	ModeVoice CommunicationMode = "voice"
	// ModeText negotiates over a text chat channel.
	ModeText CommunicationMode = "text"
)

// Validation constants for setup input.
const (
	// MaxDelayMinutes caps the delay a session can be created with.
	MaxDelayMinutes = 24 * 60
	// MaxShipmentValue caps the shipment value in dollars.
	MaxShipmentValue = 10_000_000
)

// Error variables for better error handling and testability.
var (
	ErrInvalidMode          = errors.New("invalid communication mode")
	ErrInvalidAppointment   = errors.New("original appointment must be a valid HH:MM time")
	ErrNegativeDelay        = errors.New("delay minutes cannot be negative")
	ErrDelayTooLarge        = errors.New("delay minutes exceeds maximum")
	ErrShipmentValueTooHigh = errors.New("shipment value exceeds maximum")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionDone          = errors.New("session already completed")
)

// IsValidCommunicationMode checks whether the given mode is supported.
func IsValidCommunicationMode(m CommunicationMode) bool {
	switch m {
	case ModeVoice, ModeText:
		return true
	default:
		return false
	}
}

// WeekRule identifies which weekly Hours-of-Service rule applies.
type WeekRule string

const (
	// WeekRule70In8 is the 70-hours-in-8-days rule.
	WeekRule70In8 WeekRule = "70_in_8"
	// WeekRule60In7 is the 60-hours-in-7-days rule.
	WeekRule60In7 WeekRule = "60_in_7"
)

// HOSInput carries a driver's remaining Hours-of-Service allowances.
// Values are minutes; negative values are clamped to zero at the boundary.
type HOSInput struct {
	RemainingDriveMinutes  int      `json:"remaining_drive_minutes"`
	RemainingWindowMinutes int      `json:"remaining_window_minutes"`
	MinutesSinceLastBreak  int      `json:"minutes_since_last_break"`
	RemainingWeeklyMinutes int      `json:"remaining_weekly_minutes"`
	WeekRule               WeekRule `json:"week_rule,omitempty"`
	ShortHaulExempt        bool     `json:"short_haul_exempt,omitempty"`
}

// SetupParams is the immutable input snapshot for one negotiation session.
// It is created at session start and never mutated after negotiation begins.
type SetupParams struct {
	OriginalAppointment string            `json:"original_appointment"` // "HH:MM"
	DelayMinutes        int               `json:"delay_minutes"`
	ShipmentValue       float64           `json:"shipment_value"` // dollars
	Mode                CommunicationMode `json:"mode"`
	HOS                 *HOSInput         `json:"hos,omitempty"`
	UseCachedContract   bool              `json:"use_cached_contract,omitempty"`
	ShipperID           string            `json:"shipper_id,omitempty"` // key for cached contract terms
	ContractText        string            `json:"contract_text,omitempty"`
	WarehousePhone      string            `json:"warehouse_phone,omitempty"` // text-mode contact number
}

// DelayPenaltyTier is one tier of a contract's hourly delay penalty schedule.
type DelayPenaltyTier struct {
	AfterMinutes int     `json:"after_minutes"` // tier applies once lateness exceeds this
	RatePerHour  float64 `json:"rate_per_hour"`
}

// ContractTerms holds the negotiated terms extracted from a contract document,
// or the documented defaults when no contract is available. Fetched once per
// session and read-only afterward.
type ContractTerms struct {
	ShipperName             string             `json:"shipper_name,omitempty"`
	ReceiverName            string             `json:"receiver_name,omitempty"`
	ComplianceWindowMinutes int                `json:"compliance_window_minutes"` // +/- window treated as on time
	FreePeriodMinutes       int                `json:"free_period_minutes"`       // dwell free period before billing starts
	DwellRatePerHour        float64            `json:"dwell_rate_per_hour"`
	PenaltyTiers            []DelayPenaltyTier `json:"penalty_tiers,omitempty"`
	OTIFPenaltyPercent      float64            `json:"otif_penalty_percent"` // percent of shipment value
	FlatFees                map[string]float64 `json:"flat_fees,omitempty"`  // party -> flat fee charged on any late delivery
	Source                  string             `json:"source,omitempty"`     // "extracted", "cached" or "defaults"
}

// CostLineItem is one component of a total cost impact breakdown.
type CostLineItem struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

// TotalCostImpactResult is the itemized dollar impact of one candidate time.
// Derived purely from (candidate time, SetupParams, ContractTerms); never
// persisted.
type TotalCostImpactResult struct {
	TotalCost float64        `json:"total_cost"`
	Breakdown []CostLineItem `json:"breakdown"`
}

// OfferQuality labels how a candidate time compares against the strategy bands.
type OfferQuality string

const (
	QualityIdeal        OfferQuality = "IDEAL"
	QualityAcceptable   OfferQuality = "ACCEPTABLE"
	QualitySuboptimal   OfferQuality = "SUBOPTIMAL"
	QualityUnacceptable OfferQuality = "UNACCEPTABLE"
	QualityUnknown      OfferQuality = "UNKNOWN"
)

// OfferEvaluation is the transient result of evaluating one candidate time.
type OfferEvaluation struct {
	Quality        OfferQuality `json:"quality"`
	ShouldAccept   bool         `json:"should_accept"`
	ShouldPushback bool         `json:"should_pushback"`
	Reason         string       `json:"reason"`
}

// HOSConstraint summarizes the binding Hours-of-Service limit for display and
// for tightening the acceptable band.
type HOSConstraint struct {
	BindingConstraint     string `json:"binding_constraint"` // "drive", "window", "break", "weekly"
	RemainingMinutes      int    `json:"remaining_minutes"`
	LatestFeasibleTime    string `json:"latest_feasible_time"` // "HH:MM"
	RequiresNextShift     bool   `json:"requires_next_shift"`
	NextShiftEarliestTime string `json:"next_shift_earliest_time,omitempty"`
}

// StrategyBand is one labeled threshold band of a negotiation strategy.
type StrategyBand struct {
	MaxMinutesLate int     `json:"max_minutes_late"`
	Description    string  `json:"description"`
	CostLabel      string  `json:"cost_label"`
	BoundaryCost   float64 `json:"boundary_cost"` // representative cost at the band edge
}

// CostThresholds holds the dollar cutoffs used when describing offers.
type CostThresholds struct {
	Acceptable  float64 `json:"acceptable"`
	Problematic float64 `json:"problematic"`
}

// NegotiationStrategy is derived once per session from SetupParams and
// ContractTerms (plus HOS when enabled) and is immutable for the session.
// Invariant: Ideal.MaxMinutesLate <= Acceptable.MaxMinutesLate <=
// Problematic.MaxMinutesLate, and band boundary costs are monotonically
// non-decreasing.
type NegotiationStrategy struct {
	Ideal               StrategyBand   `json:"ideal"`
	Acceptable          StrategyBand   `json:"acceptable"`
	Problematic         StrategyBand   `json:"problematic"`
	CostThresholds      CostThresholds `json:"cost_thresholds"`
	MaxPushbackAttempts int            `json:"max_pushback_attempts"`

	// Display strings for the UI layer.
	IdealBefore      string `json:"ideal_before"`       // "HH:MM"
	AcceptableBefore string `json:"acceptable_before"`  // "HH:MM"
	WorstCaseArrival string `json:"worst_case_arrival"` // "HH:MM"
	ActualArrival    string `json:"actual_arrival"`     // "HH:MM"

	HOS *HOSConstraint `json:"hos,omitempty"`
}

// NegotiationState is the mutable per-session counter tracking pushbacks.
type NegotiationState struct {
	PushbackCount int `json:"pushback_count"`
}

// FinalAgreement is the derived snapshot built exactly once when both a
// confirmed time and a confirmed dock are known and the closing condition is
// met; immutable thereafter.
type FinalAgreement struct {
	ConfirmedTime string    `json:"confirmed_time"` // "HH:MM"
	ConfirmedDock string    `json:"confirmed_dock"`
	TotalCost     float64   `json:"total_cost"`
	ContactName   string    `json:"contact_name,omitempty"`
	DayOffset     int       `json:"day_offset"`
	AgreedAt      time.Time `json:"agreed_at"`
}

// Validate performs validation on setup parameters before a session starts.
func (p *SetupParams) Validate() error {
	if !IsValidCommunicationMode(p.Mode) {
		return ErrInvalidMode
	}
	if p.DelayMinutes < 0 {
		return ErrNegativeDelay
	}
	if p.DelayMinutes > MaxDelayMinutes {
		return ErrDelayTooLarge
	}
	if p.ShipmentValue > MaxShipmentValue {
		return ErrShipmentValueTooHigh
	}
	return nil
}

// Clamped returns a copy of the HOS input with negative minute values clamped
// to zero, per the boundary policy of never propagating invalid numerics.
func (h HOSInput) Clamped() HOSInput {
	if h.RemainingDriveMinutes < 0 {
		h.RemainingDriveMinutes = 0
	}
	if h.RemainingWindowMinutes < 0 {
		h.RemainingWindowMinutes = 0
	}
	if h.MinutesSinceLastBreak < 0 {
		h.MinutesSinceLastBreak = 0
	}
	if h.RemainingWeeklyMinutes < 0 {
		h.RemainingWeeklyMinutes = 0
	}
	if h.WeekRule == "" {
		h.WeekRule = WeekRule70In8
	}
	return h
}
