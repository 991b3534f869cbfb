package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// chatAnalysis bundles the optional per-message evaluation payload into a
// single nullable JSON column.
type chatAnalysis struct {
	CostAnalysis *models.TotalCostImpactResult `json:"cost_analysis,omitempty"`
	Evaluation   *models.OfferEvaluation       `json:"evaluation,omitempty"`
}

// marshalAnalysis serializes the optional analysis payload of a chat message,
// returning nil for messages without one.
func marshalAnalysis(msg models.ChatMessage) (interface{}, error) {
	if msg.CostAnalysis == nil && msg.Evaluation == nil {
		return nil, nil
	}
	data, err := json.Marshal(chatAnalysis{CostAnalysis: msg.CostAnalysis, Evaluation: msg.Evaluation})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat analysis: %w", err)
	}
	return string(data), nil
}

// scanChatMessage scans a ChatMessage from sql.Rows ordered as
// (role, content, time, analysis).
func scanChatMessage(rows *sql.Rows) (models.ChatMessage, error) {
	var msg models.ChatMessage
	var role string
	var analysis sql.NullString
	if err := rows.Scan(&role, &msg.Content, &msg.Timestamp, &analysis); err != nil {
		return msg, fmt.Errorf("scan chat message failed: %w", err)
	}
	msg.Role = models.ChatRole(role)
	if analysis.Valid && analysis.String != "" {
		var a chatAnalysis
		if err := json.Unmarshal([]byte(analysis.String), &a); err != nil {
			return msg, fmt.Errorf("failed to unmarshal chat analysis: %w", err)
		}
		msg.CostAnalysis = a.CostAnalysis
		msg.Evaluation = a.Evaluation
	}
	return msg, nil
}
