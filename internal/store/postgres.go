// Package store provides storage backends for dispatcher sessions.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// Database connection pool configuration constants.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveSession(sess models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		slog.Error("PostgresStore SaveSession marshal failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to marshal session %s: %w", sess.ID, err)
	}
	_, err = s.db.Exec(`INSERT INTO sessions (id, phase, status, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET phase = EXCLUDED.phase, status = EXCLUDED.status, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		sess.ID, string(sess.Phase), string(sess.Status), string(data), sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "sessionID", sess.ID, "phase", sess.Phase)
	return nil
}

func (s *PostgresStore) GetSession(id string) (*models.Session, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM sessions WHERE id = $1`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to query session %s: %w", id, err)
	}
	var sess models.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		slog.Error("PostgresStore GetSession unmarshal failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *PostgresStore) ListActiveSessions() ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT data FROM sessions WHERE status = $1`, string(models.SessionStatusActive))
	if err != nil {
		slog.Error("PostgresStore ListActiveSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			slog.Error("PostgresStore ListActiveSessions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		var sess models.Session
		if err := json.Unmarshal([]byte(data), &sess); err != nil {
			slog.Error("PostgresStore ListActiveSessions unmarshal failed", "error", err)
			return nil, fmt.Errorf("failed to unmarshal session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListActiveSessions rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	slog.Debug("PostgresStore ListActiveSessions succeeded", "count", len(sessions))
	return sessions, nil
}

func (s *PostgresStore) DeleteSession(id string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = $1`, id); err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if _, err := s.db.Exec(`DELETE FROM chat_messages WHERE session_id = $1`, id); err != nil {
		slog.Error("PostgresStore DeleteSession messages cleanup failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to delete messages for session %s: %w", id, err)
	}
	slog.Debug("PostgresStore DeleteSession succeeded", "sessionID", id)
	return nil
}

func (s *PostgresStore) AddChatMessage(sessionID string, msg models.ChatMessage) error {
	analysis, err := marshalAnalysis(msg)
	if err != nil {
		slog.Error("PostgresStore AddChatMessage marshal failed", "error", err, "sessionID", sessionID)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO chat_messages (session_id, role, content, time, analysis) VALUES ($1, $2, $3, $4, $5)`,
		sessionID, string(msg.Role), msg.Content, msg.Timestamp, analysis)
	if err != nil {
		slog.Error("PostgresStore AddChatMessage failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to insert chat message for %s: %w", sessionID, err)
	}
	slog.Debug("PostgresStore AddChatMessage succeeded", "sessionID", sessionID, "role", msg.Role)
	return nil
}

func (s *PostgresStore) GetChatMessages(sessionID string) ([]models.ChatMessage, error) {
	rows, err := s.db.Query(`SELECT role, content, time, analysis FROM chat_messages WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		slog.Error("PostgresStore GetChatMessages query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.ChatMessage
	for rows.Next() {
		msg, err := scanChatMessage(rows)
		if err != nil {
			slog.Error("PostgresStore GetChatMessages scan failed", "error", err, "sessionID", sessionID)
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetChatMessages rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate chat message rows: %w", err)
	}
	slog.Debug("PostgresStore GetChatMessages succeeded", "sessionID", sessionID, "count", len(msgs))
	return msgs, nil
}

func (s *PostgresStore) GetContractTerms(shipperID string) (*models.ContractTerms, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM contract_terms WHERE shipper_id = $1`, shipperID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetContractTerms failed", "error", err, "shipperID", shipperID)
		return nil, fmt.Errorf("failed to query contract terms for %s: %w", shipperID, err)
	}
	var terms models.ContractTerms
	if err := json.Unmarshal([]byte(data), &terms); err != nil {
		slog.Error("PostgresStore GetContractTerms unmarshal failed", "error", err, "shipperID", shipperID)
		return nil, fmt.Errorf("failed to unmarshal contract terms for %s: %w", shipperID, err)
	}
	return &terms, nil
}

func (s *PostgresStore) SaveContractTerms(shipperID string, terms models.ContractTerms) error {
	data, err := json.Marshal(terms)
	if err != nil {
		return fmt.Errorf("failed to marshal contract terms for %s: %w", shipperID, err)
	}
	_, err = s.db.Exec(`INSERT INTO contract_terms (shipper_id, data, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (shipper_id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		shipperID, string(data), time.Now())
	if err != nil {
		slog.Error("PostgresStore SaveContractTerms failed", "error", err, "shipperID", shipperID)
		return fmt.Errorf("failed to save contract terms for %s: %w", shipperID, err)
	}
	slog.Debug("PostgresStore SaveContractTerms succeeded", "shipperID", shipperID)
	return nil
}

func (s *PostgresStore) SaveAgreement(sessionID string, rec models.AgreementExport) error {
	_, err := s.db.Exec(`INSERT INTO agreements (session_id, date, original_time, new_time, dock, delay_minutes, cost_impact, day_offset, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sessionID, rec.Date, rec.OriginalTime, rec.NewTime, rec.Dock, rec.DelayMinutes, rec.CostImpact, rec.DayOffset, rec.Status, time.Now())
	if err != nil {
		slog.Error("PostgresStore SaveAgreement failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to insert agreement for %s: %w", sessionID, err)
	}
	slog.Debug("PostgresStore SaveAgreement succeeded", "sessionID", sessionID, "newTime", rec.NewTime)
	return nil
}

func (s *PostgresStore) GetAgreements() ([]models.AgreementExport, error) {
	rows, err := s.db.Query(`SELECT date, original_time, new_time, dock, delay_minutes, cost_impact, day_offset, status FROM agreements ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore GetAgreements query failed", "error", err)
		return nil, fmt.Errorf("failed to query agreements: %w", err)
	}
	defer rows.Close()

	var recs []models.AgreementExport
	for rows.Next() {
		var r models.AgreementExport
		if err := rows.Scan(&r.Date, &r.OriginalTime, &r.NewTime, &r.Dock, &r.DelayMinutes, &r.CostImpact, &r.DayOffset, &r.Status); err != nil {
			slog.Error("PostgresStore GetAgreements scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan agreement row: %w", err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetAgreements rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate agreement rows: %w", err)
	}
	slog.Debug("PostgresStore GetAgreements succeeded", "count", len(recs))
	return recs, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
