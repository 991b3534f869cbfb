// Package store provides storage backends for dispatcher sessions.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path; the parent directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveSession(sess models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		slog.Error("SQLiteStore SaveSession marshal failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to marshal session %s: %w", sess.ID, err)
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO sessions (id, phase, status, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, string(sess.Phase), string(sess.Status), string(data), sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "sessionID", sess.ID, "phase", sess.Phase)
	return nil
}

func (s *SQLiteStore) GetSession(id string) (*models.Session, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "sessionID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to query session %s: %w", id, err)
	}
	var sess models.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		slog.Error("SQLiteStore GetSession unmarshal failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *SQLiteStore) ListActiveSessions() ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT data FROM sessions WHERE status = ?`, string(models.SessionStatusActive))
	if err != nil {
		slog.Error("SQLiteStore ListActiveSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			slog.Error("SQLiteStore ListActiveSessions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		var sess models.Session
		if err := json.Unmarshal([]byte(data), &sess); err != nil {
			slog.Error("SQLiteStore ListActiveSessions unmarshal failed", "error", err)
			return nil, fmt.Errorf("failed to unmarshal session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListActiveSessions rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	slog.Debug("SQLiteStore ListActiveSessions succeeded", "count", len(sessions))
	return sessions, nil
}

func (s *SQLiteStore) DeleteSession(id string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if _, err := s.db.Exec(`DELETE FROM chat_messages WHERE session_id = ?`, id); err != nil {
		slog.Error("SQLiteStore DeleteSession messages cleanup failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to delete messages for session %s: %w", id, err)
	}
	slog.Debug("SQLiteStore DeleteSession succeeded", "sessionID", id)
	return nil
}

func (s *SQLiteStore) AddChatMessage(sessionID string, msg models.ChatMessage) error {
	analysis, err := marshalAnalysis(msg)
	if err != nil {
		slog.Error("SQLiteStore AddChatMessage marshal failed", "error", err, "sessionID", sessionID)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO chat_messages (session_id, role, content, time, analysis) VALUES (?, ?, ?, ?, ?)`,
		sessionID, string(msg.Role), msg.Content, msg.Timestamp, analysis)
	if err != nil {
		slog.Error("SQLiteStore AddChatMessage failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to insert chat message for %s: %w", sessionID, err)
	}
	slog.Debug("SQLiteStore AddChatMessage succeeded", "sessionID", sessionID, "role", msg.Role)
	return nil
}

func (s *SQLiteStore) GetChatMessages(sessionID string) ([]models.ChatMessage, error) {
	rows, err := s.db.Query(`SELECT role, content, time, analysis FROM chat_messages WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		slog.Error("SQLiteStore GetChatMessages query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.ChatMessage
	for rows.Next() {
		msg, err := scanChatMessage(rows)
		if err != nil {
			slog.Error("SQLiteStore GetChatMessages scan failed", "error", err, "sessionID", sessionID)
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetChatMessages rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate chat message rows: %w", err)
	}
	slog.Debug("SQLiteStore GetChatMessages succeeded", "sessionID", sessionID, "count", len(msgs))
	return msgs, nil
}

func (s *SQLiteStore) GetContractTerms(shipperID string) (*models.ContractTerms, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM contract_terms WHERE shipper_id = ?`, shipperID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetContractTerms failed", "error", err, "shipperID", shipperID)
		return nil, fmt.Errorf("failed to query contract terms for %s: %w", shipperID, err)
	}
	var terms models.ContractTerms
	if err := json.Unmarshal([]byte(data), &terms); err != nil {
		slog.Error("SQLiteStore GetContractTerms unmarshal failed", "error", err, "shipperID", shipperID)
		return nil, fmt.Errorf("failed to unmarshal contract terms for %s: %w", shipperID, err)
	}
	return &terms, nil
}

func (s *SQLiteStore) SaveContractTerms(shipperID string, terms models.ContractTerms) error {
	data, err := json.Marshal(terms)
	if err != nil {
		return fmt.Errorf("failed to marshal contract terms for %s: %w", shipperID, err)
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO contract_terms (shipper_id, data, updated_at) VALUES (?, ?, ?)`,
		shipperID, string(data), time.Now())
	if err != nil {
		slog.Error("SQLiteStore SaveContractTerms failed", "error", err, "shipperID", shipperID)
		return fmt.Errorf("failed to save contract terms for %s: %w", shipperID, err)
	}
	slog.Debug("SQLiteStore SaveContractTerms succeeded", "shipperID", shipperID)
	return nil
}

func (s *SQLiteStore) SaveAgreement(sessionID string, rec models.AgreementExport) error {
	_, err := s.db.Exec(`INSERT INTO agreements (session_id, date, original_time, new_time, dock, delay_minutes, cost_impact, day_offset, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, rec.Date, rec.OriginalTime, rec.NewTime, rec.Dock, rec.DelayMinutes, rec.CostImpact, rec.DayOffset, rec.Status, time.Now())
	if err != nil {
		slog.Error("SQLiteStore SaveAgreement failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to insert agreement for %s: %w", sessionID, err)
	}
	slog.Debug("SQLiteStore SaveAgreement succeeded", "sessionID", sessionID, "newTime", rec.NewTime)
	return nil
}

func (s *SQLiteStore) GetAgreements() ([]models.AgreementExport, error) {
	rows, err := s.db.Query(`SELECT date, original_time, new_time, dock, delay_minutes, cost_impact, day_offset, status FROM agreements ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore GetAgreements query failed", "error", err)
		return nil, fmt.Errorf("failed to query agreements: %w", err)
	}
	defer rows.Close()

	var recs []models.AgreementExport
	for rows.Next() {
		var r models.AgreementExport
		if err := rows.Scan(&r.Date, &r.OriginalTime, &r.NewTime, &r.Dock, &r.DelayMinutes, &r.CostImpact, &r.DayOffset, &r.Status); err != nil {
			slog.Error("SQLiteStore GetAgreements scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan agreement row: %w", err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetAgreements rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate agreement rows: %w", err)
	}
	slog.Debug("SQLiteStore GetAgreements succeeded", "count", len(recs))
	return recs, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
