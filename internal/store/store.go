// Package store provides storage backends for dispatcher sessions, chat
// transcripts, cached contract terms and final agreements.
//
// It includes an in-memory store for tests and single-run use, plus SQLite and
// PostgreSQL backends for persistence across restarts.
package store

import (
	"strings"
	"sync"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database DSN (file path for SQLite, connection string for
// Postgres).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DSN type constants returned by DetectDSNType.
const (
	DSNTypePostgres = "postgres"
	DSNTypeSQLite   = "sqlite"
)

// DetectDSNType classifies a DSN as Postgres or SQLite. Anything that is not
// recognizably a Postgres connection string is treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return DSNTypePostgres
	}
	return DSNTypeSQLite
}

// Store is the persistence boundary for the dispatcher service. It also
// serves as the contract-terms cache.
type Store interface {
	SaveSession(s models.Session) error
	GetSession(id string) (*models.Session, error)
	ListActiveSessions() ([]models.Session, error)
	DeleteSession(id string) error

	AddChatMessage(sessionID string, msg models.ChatMessage) error
	GetChatMessages(sessionID string) ([]models.ChatMessage, error)

	GetContractTerms(shipperID string) (*models.ContractTerms, error)
	SaveContractTerms(shipperID string, terms models.ContractTerms) error

	SaveAgreement(sessionID string, rec models.AgreementExport) error
	GetAgreements() ([]models.AgreementExport, error)

	Close() error
}

// InMemoryStore keeps everything in process memory. Safe for concurrent use.
type InMemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]models.Session
	messages   map[string][]models.ChatMessage
	terms      map[string]models.ContractTerms
	agreements []models.AgreementExport
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]models.Session),
		messages: make(map[string][]models.ChatMessage),
		terms:    make(map[string]models.ContractTerms),
	}
}

func (s *InMemoryStore) SaveSession(sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *InMemoryStore) GetSession(id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *InMemoryStore) ListActiveSessions() ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []models.Session
	for _, sess := range s.sessions {
		if sess.Status == models.SessionStatusActive {
			active = append(active, sess)
		}
	}
	return active, nil
}

func (s *InMemoryStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

func (s *InMemoryStore) AddChatMessage(sessionID string, msg models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[sessionID] = append(s.messages[sessionID], msg)
	return nil
}

func (s *InMemoryStore) GetChatMessages(sessionID string) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[sessionID]
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *InMemoryStore) GetContractTerms(shipperID string) (*models.ContractTerms, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.terms[shipperID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *InMemoryStore) SaveContractTerms(shipperID string, terms models.ContractTerms) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terms[shipperID] = terms
	return nil
}

func (s *InMemoryStore) SaveAgreement(sessionID string, rec models.AgreementExport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agreements = append(s.agreements, rec)
	return nil
}

func (s *InMemoryStore) GetAgreements() ([]models.AgreementExport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AgreementExport, len(s.agreements))
	copy(out, s.agreements)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
