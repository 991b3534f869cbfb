package genai

import (
	"context"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// MockClient implements ClientInterface for testing.
type MockClient struct {
	ContractResult *models.ExtractedContractTerms
	ContractErr    error
	SlotsResult    models.SlotExtraction
	SlotsErr       error

	ContractCalls []string
	SlotsCalls    []string
}

// NewMockClient creates a mock client with zero-valued replies.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) ExtractContractTerms(ctx context.Context, contractText string) (*models.ExtractedContractTerms, error) {
	m.ContractCalls = append(m.ContractCalls, contractText)
	return m.ContractResult, m.ContractErr
}

func (m *MockClient) ExtractSlots(ctx context.Context, utterance string) (models.SlotExtraction, error) {
	m.SlotsCalls = append(m.SlotsCalls, utterance)
	return m.SlotsResult, m.SlotsErr
}
