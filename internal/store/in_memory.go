package store

import (
	"sort"
	"sync"

	"github.com/CareBranch/CareChat/internal/models"
)

// InMemoryStore keeps patient records in process memory. It is used in
// tests and as a fallback when no durable backend is configured.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.PatientRecord
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]models.PatientRecord)}
}

// LoadRecord returns a copy of the stored record, or nil if none exists.
func (s *InMemoryStore) LoadRecord(patientID string) (*models.PatientRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[patientID]
	if !ok {
		return nil, nil
	}
	copied := copyRecord(record)
	return &copied, nil
}

// SaveRecord overwrites the record for the patient identifier.
func (s *InMemoryStore) SaveRecord(record models.PatientRecord) error {
	if err := models.ValidatePatientID(record.PatientID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.PatientID] = copyRecord(record)
	return nil
}

// ListPatientIDs returns all stored patient identifiers, sorted.
func (s *InMemoryStore) ListPatientIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// copyRecord deep-copies a record so callers cannot alias stored state.
func copyRecord(record models.PatientRecord) models.PatientRecord {
	copied := record
	copied.Conversations = make([]models.Conversation, len(record.Conversations))
	for i, conv := range record.Conversations {
		cc := conv
		cc.Messages = make([]models.Message, len(conv.Messages))
		copy(cc.Messages, conv.Messages)
		copied.Conversations[i] = cc
	}
	return copied
}
