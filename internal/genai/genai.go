// Package genai provides GenAI-backed extraction services using the OpenAI API:
// contract-terms extraction from pasted contract text and slot/entity
// extraction for voice-mode warehouse utterances.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// ClientInterface defines the extraction operations the rest of the service
// depends on, allowing mocks in tests.
type ClientInterface interface {
	// ExtractContractTerms pulls delay-penalty terms out of raw contract
	// text. A nil result means nothing usable was found.
	ExtractContractTerms(ctx context.Context, contractText string) (*models.ExtractedContractTerms, error)

	// ExtractSlots pulls {time, dock, confidence} from a warehouse
	// utterance.
	ExtractSlots(ctx context.Context, utterance string) (models.SlotExtraction, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model used for extraction.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the OpenAI chat completion API for extraction tasks.
type Client struct {
	client openai.Client
	model  string
}

// NewClient initializes a new GenAI client, falling back to the
// OPENAI_API_KEY environment variable when no key option is given.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	slog.Debug("genai.NewClient: client configured", "model", cfg.Model)
	return &Client{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
	}, nil
}

const contractSystemPrompt = `You extract delivery contract terms. Reply with only a JSON object:
{"compliance_window_minutes": int, "free_period_minutes": int, "dwell_rate_per_hour": number,
"otif_penalty_percent": number, "shipper_name": string, "receiver_name": string,
"flat_fees": {party: number}, "confidence": "high"|"low", "warnings": [string]}.
Use "low" confidence when the document does not clearly state penalty terms.`

const slotSystemPrompt = `You extract appointment details from one warehouse utterance. Reply with only a JSON object:
{"time": "HH:MM" 24-hour or "", "dock": string or "", "confidence": "high"|"low"}.
Use "low" confidence for hedged or partial mentions.`

// ExtractContractTerms asks the model for structured terms and parses the
// reply. Unparseable replies are returned as an error for the caller's
// fallback path.
func (c *Client) ExtractContractTerms(ctx context.Context, contractText string) (*models.ExtractedContractTerms, error) {
	slog.Debug("genai.ExtractContractTerms invoked", "text_length", len(contractText))
	content, err := c.complete(ctx, contractSystemPrompt, contractText)
	if err != nil {
		return nil, err
	}
	result, err := ParseContractTermsJSON(content)
	if err != nil {
		slog.Error("genai.ExtractContractTerms: unparseable model reply", "error", err)
		return nil, err
	}
	slog.Debug("genai.ExtractContractTerms succeeded", "confidence", result.Confidence)
	return result, nil
}

// ExtractSlots asks the model for {time, dock, confidence} and parses the
// reply.
func (c *Client) ExtractSlots(ctx context.Context, utterance string) (models.SlotExtraction, error) {
	slog.Debug("genai.ExtractSlots invoked", "utterance_length", len(utterance))
	content, err := c.complete(ctx, slotSystemPrompt, utterance)
	if err != nil {
		return models.SlotExtraction{}, err
	}
	slots, err := ParseSlotsJSON(content)
	if err != nil {
		slog.Error("genai.ExtractSlots: unparseable model reply", "error", err)
		return models.SlotExtraction{}, err
	}
	slog.Debug("genai.ExtractSlots succeeded", "time", slots.Time, "dock", slots.Dock, "confidence", slots.Confidence)
	return slots, nil
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// contractTermsJSON mirrors the model's reply shape for contract extraction.
type contractTermsJSON struct {
	ComplianceWindowMinutes int                `json:"compliance_window_minutes"`
	FreePeriodMinutes       int                `json:"free_period_minutes"`
	DwellRatePerHour        float64            `json:"dwell_rate_per_hour"`
	OTIFPenaltyPercent      float64            `json:"otif_penalty_percent"`
	ShipperName             string             `json:"shipper_name"`
	ReceiverName            string             `json:"receiver_name"`
	FlatFees                map[string]float64 `json:"flat_fees"`
	Confidence              string             `json:"confidence"`
	Warnings                []string           `json:"warnings"`
}

// ParseContractTermsJSON parses a model reply into extracted contract terms.
// Markdown code fences around the JSON are tolerated.
func ParseContractTermsJSON(content string) (*models.ExtractedContractTerms, error) {
	var raw contractTermsJSON
	if err := json.Unmarshal([]byte(stripFences(content)), &raw); err != nil {
		return nil, fmt.Errorf("invalid contract terms JSON: %w", err)
	}
	confidence := models.ConfidenceLow
	if raw.Confidence == string(models.ConfidenceHigh) {
		confidence = models.ConfidenceHigh
	}
	return &models.ExtractedContractTerms{
		Terms: models.ContractTerms{
			ShipperName:             raw.ShipperName,
			ReceiverName:            raw.ReceiverName,
			ComplianceWindowMinutes: raw.ComplianceWindowMinutes,
			FreePeriodMinutes:       raw.FreePeriodMinutes,
			DwellRatePerHour:        raw.DwellRatePerHour,
			OTIFPenaltyPercent:      raw.OTIFPenaltyPercent,
			FlatFees:                raw.FlatFees,
		},
		Confidence: confidence,
		Warnings:   raw.Warnings,
	}, nil
}

// slotsJSON mirrors the model's reply shape for slot extraction.
type slotsJSON struct {
	Time       string `json:"time"`
	Dock       string `json:"dock"`
	Confidence string `json:"confidence"`
}

// ParseSlotsJSON parses a model reply into a slot extraction result.
func ParseSlotsJSON(content string) (models.SlotExtraction, error) {
	var raw slotsJSON
	if err := json.Unmarshal([]byte(stripFences(content)), &raw); err != nil {
		return models.SlotExtraction{}, fmt.Errorf("invalid slots JSON: %w", err)
	}
	confidence := models.ConfidenceLow
	if raw.Confidence == string(models.ConfidenceHigh) {
		confidence = models.ConfidenceHigh
	}
	return models.SlotExtraction{Time: raw.Time, Dock: raw.Dock, Confidence: confidence}, nil
}

// stripFences removes a surrounding markdown code fence if the model added one.
func stripFences(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
