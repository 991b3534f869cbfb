package contract

import (
	"context"
	"errors"
	"testing"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

type fakeExtractor struct {
	result *models.ExtractedContractTerms
	err    error
	calls  int
}

func (f *fakeExtractor) ExtractContractTerms(ctx context.Context, text string) (*models.ExtractedContractTerms, error) {
	f.calls++
	return f.result, f.err
}

type fakeCache struct {
	terms map[string]models.ContractTerms
}

func newFakeCache() *fakeCache {
	return &fakeCache{terms: make(map[string]models.ContractTerms)}
}

func (f *fakeCache) GetContractTerms(shipperID string) (*models.ContractTerms, error) {
	t, ok := f.terms[shipperID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeCache) SaveContractTerms(shipperID string, terms models.ContractTerms) error {
	f.terms[shipperID] = terms
	return nil
}

func TestResolveDefaultsWhenNothingAvailable(t *testing.T) {
	r := NewResolver(nil, nil)
	terms, usingDefaults := r.Resolve(context.Background(), models.SetupParams{Mode: models.ModeText})
	if !usingDefaults {
		t.Error("expected defaults flag")
	}
	if terms.ComplianceWindowMinutes != 30 || terms.DwellRatePerHour != 50 {
		t.Errorf("unexpected default terms: %+v", terms)
	}
	if terms.Source != SourceDefaults {
		t.Errorf("source = %q, want %q", terms.Source, SourceDefaults)
	}
}

func TestResolveExtractionHighConfidence(t *testing.T) {
	ex := &fakeExtractor{result: &models.ExtractedContractTerms{
		Terms:      models.ContractTerms{ComplianceWindowMinutes: 15, DwellRatePerHour: 80, OTIFPenaltyPercent: 3},
		Confidence: models.ConfidenceHigh,
	}}
	cache := newFakeCache()
	r := NewResolver(ex, cache)

	params := models.SetupParams{Mode: models.ModeText, ContractText: "...", ShipperID: "shipper-1"}
	terms, usingDefaults := r.Resolve(context.Background(), params)
	if usingDefaults {
		t.Error("did not expect defaults flag")
	}
	if terms.DwellRatePerHour != 80 || terms.Source != SourceExtracted {
		t.Errorf("unexpected terms: %+v", terms)
	}
	if _, ok := cache.terms["shipper-1"]; !ok {
		t.Error("extracted terms should be cached per shipper")
	}
}

func TestResolveLowConfidenceFallsBack(t *testing.T) {
	ex := &fakeExtractor{result: &models.ExtractedContractTerms{
		Terms:      models.ContractTerms{DwellRatePerHour: 999},
		Confidence: models.ConfidenceLow,
	}}
	r := NewResolver(ex, nil)
	terms, usingDefaults := r.Resolve(context.Background(), models.SetupParams{Mode: models.ModeText, ContractText: "..."})
	if !usingDefaults || terms.DwellRatePerHour != 50 {
		t.Errorf("low confidence should use defaults, got %+v (defaults=%v)", terms, usingDefaults)
	}
}

func TestResolveExtractionErrorFallsBack(t *testing.T) {
	ex := &fakeExtractor{err: errors.New("service down")}
	r := NewResolver(ex, nil)
	_, usingDefaults := r.Resolve(context.Background(), models.SetupParams{Mode: models.ModeText, ContractText: "..."})
	if !usingDefaults {
		t.Error("extraction error should degrade to defaults, not propagate")
	}
}

func TestResolveCachedTermsPreferred(t *testing.T) {
	cache := newFakeCache()
	cache.terms["shipper-1"] = models.ContractTerms{ComplianceWindowMinutes: 20, DwellRatePerHour: 65}
	ex := &fakeExtractor{}
	r := NewResolver(ex, cache)

	params := models.SetupParams{Mode: models.ModeText, UseCachedContract: true, ShipperID: "shipper-1", ContractText: "ignored"}
	terms, usingDefaults := r.Resolve(context.Background(), params)
	if usingDefaults {
		t.Error("cached terms should not count as defaults")
	}
	if terms.DwellRatePerHour != 65 || terms.Source != SourceCached {
		t.Errorf("unexpected terms: %+v", terms)
	}
	if ex.calls != 0 {
		t.Error("extractor should not be called when cache hits")
	}
}

func TestFillDefaultsBackfillsMissing(t *testing.T) {
	got := fillDefaults(models.ContractTerms{OTIFPenaltyPercent: 5})
	if got.ComplianceWindowMinutes != DefaultComplianceWindowMinutes {
		t.Errorf("window = %d, want backfilled default", got.ComplianceWindowMinutes)
	}
	if got.DwellRatePerHour != DefaultDwellRatePerHour {
		t.Errorf("rate = %.2f, want backfilled default", got.DwellRatePerHour)
	}
	// A tier schedule means the flat rate is intentionally unused.
	tiered := fillDefaults(models.ContractTerms{PenaltyTiers: []models.DelayPenaltyTier{{AfterMinutes: 0, RatePerHour: 40}}})
	if tiered.DwellRatePerHour != 0 {
		t.Errorf("flat rate should stay zero when tiers exist, got %.2f", tiered.DwellRatePerHour)
	}
}
