// Package contract supplies contract terms for a negotiation session:
// extracted from a pasted contract document when possible, cached per
// shipper, or the documented defaults otherwise.
//
// Absence of terms is never fatal. A nil or low-confidence extraction falls
// back to defaults and the session is flagged as "using defaults" for the
// caller to surface.
package contract

import (
	"context"
	"log/slog"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// Default term values used when no contract is available.
const (
	DefaultComplianceWindowMinutes = 30
	DefaultDwellRatePerHour        = 50.0
	DefaultOTIFPenaltyPercent      = 0.0
	DefaultFreePeriodMinutes       = 0
)

// Source labels recorded on resolved terms.
const (
	SourceDefaults  = "defaults"
	SourceExtracted = "extracted"
	SourceCached    = "cached"
)

// Extractor is the external contract extraction service boundary. A nil
// result with a nil error means the service could not extract terms.
type Extractor interface {
	ExtractContractTerms(ctx context.Context, contractText string) (*models.ExtractedContractTerms, error)
}

// Cache persists resolved terms per shipper between sessions.
type Cache interface {
	GetContractTerms(shipperID string) (*models.ContractTerms, error)
	SaveContractTerms(shipperID string, terms models.ContractTerms) error
}

// DefaultTerms returns the documented default contract terms.
func DefaultTerms() models.ContractTerms {
	return models.ContractTerms{
		ComplianceWindowMinutes: DefaultComplianceWindowMinutes,
		FreePeriodMinutes:       DefaultFreePeriodMinutes,
		DwellRatePerHour:        DefaultDwellRatePerHour,
		OTIFPenaltyPercent:      DefaultOTIFPenaltyPercent,
		Source:                  SourceDefaults,
	}
}

// Resolver resolves the terms for a session from cache, extraction or
// defaults.
type Resolver struct {
	extractor Extractor
	cache     Cache
}

// NewResolver creates a Resolver. Both dependencies may be nil; resolution
// then always yields defaults.
func NewResolver(extractor Extractor, cache Cache) *Resolver {
	return &Resolver{extractor: extractor, cache: cache}
}

// Resolve returns the contract terms for the given setup parameters plus a
// flag indicating whether defaults were used. Extraction and cache failures
// are logged and degrade to defaults; they never propagate.
func (r *Resolver) Resolve(ctx context.Context, params models.SetupParams) (models.ContractTerms, bool) {
	if params.UseCachedContract && r.cache != nil && params.ShipperID != "" {
		cached, err := r.cache.GetContractTerms(params.ShipperID)
		if err != nil {
			slog.Error("contract.Resolve: cache lookup failed, continuing", "error", err, "shipperID", params.ShipperID)
		} else if cached != nil {
			slog.Debug("contract.Resolve: using cached terms", "shipperID", params.ShipperID)
			cached.Source = SourceCached
			return fillDefaults(*cached), false
		}
	}

	if params.ContractText != "" && r.extractor != nil {
		extracted, err := r.extractor.ExtractContractTerms(ctx, params.ContractText)
		if err != nil {
			slog.Error("contract.Resolve: extraction failed, using defaults", "error", err)
		} else if extracted == nil || extracted.Confidence == models.ConfidenceLow {
			slog.Info("contract.Resolve: extraction low confidence or empty, using defaults",
				"hasResult", extracted != nil)
		} else {
			for _, w := range extracted.Warnings {
				slog.Warn("contract.Resolve: extraction warning", "warning", w)
			}
			terms := fillDefaults(extracted.Terms)
			terms.Source = SourceExtracted
			if r.cache != nil && params.ShipperID != "" {
				if err := r.cache.SaveContractTerms(params.ShipperID, terms); err != nil {
					slog.Error("contract.Resolve: failed to cache terms", "error", err, "shipperID", params.ShipperID)
				}
			}
			return terms, false
		}
	}

	return DefaultTerms(), true
}

// fillDefaults backfills zero-valued fields an extraction may have missed so
// downstream cost math always has workable numbers.
func fillDefaults(terms models.ContractTerms) models.ContractTerms {
	if terms.ComplianceWindowMinutes <= 0 {
		terms.ComplianceWindowMinutes = DefaultComplianceWindowMinutes
	}
	if terms.DwellRatePerHour <= 0 && len(terms.PenaltyTiers) == 0 {
		terms.DwellRatePerHour = DefaultDwellRatePerHour
	}
	return terms
}
