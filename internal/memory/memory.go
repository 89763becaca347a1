// Package memory provides bounded, persistent per-patient conversation
// memory.
//
// A Memory tracks one active session per patient identifier per process,
// backed by a store.Store for continuity across restarts. The message log
// is append-only: messages are never mutated or removed once added.
// Missing or corrupt persisted history degrades to a first-time-patient
// experience, never to a failure.
package memory

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/CareBranch/CareChat/internal/models"
	"github.com/CareBranch/CareChat/internal/store"
)

// ErrNoActiveSession indicates an operation that requires StartSession to
// have been called first for the patient identifier.
var ErrNoActiveSession = errors.New("no active session for patient")

// session is the in-process state for one patient: the conversations
// loaded from persisted storage plus the current, unsaved conversation.
type session struct {
	patientID string
	prior     []models.Conversation
	current   models.Conversation
}

// Memory is the conversation memory for all patients in this process.
// Callers must serialize turns for a single patient identifier; distinct
// patients may be used concurrently.
type Memory struct {
	store store.Store

	mu       sync.Mutex
	sessions map[string]*session
}

// NewMemory creates a Memory over the given storage backend.
func NewMemory(st store.Store) *Memory {
	slog.Debug("Memory.NewMemory: creating conversation memory")
	return &Memory{
		store:    st,
		sessions: make(map[string]*session),
	}
}

// StartSession creates the in-process session for the patient, restoring
// persisted history when present. It is idempotent per process lifetime:
// calling it again for the same identifier returns the existing session
// and does not duplicate storage.
func (m *Memory) StartSession(patientID string) (models.Session, error) {
	if err := models.ValidatePatientID(patientID); err != nil {
		return models.Session{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[patientID]; ok {
		slog.Debug("Memory.StartSession: session already active", "patientID", patientID)
		return snapshot(existing), nil
	}

	sess := &session{
		patientID: patientID,
		current:   models.Conversation{StartedAt: time.Now()},
	}
	record, err := m.store.LoadRecord(patientID)
	if err != nil {
		// Corrupt or unreadable history is not fatal: the patient gets a
		// first-time experience and the bad record is overwritten on save.
		slog.Warn("Memory.StartSession: failed to load persisted history, starting empty", "error", err, "patientID", patientID)
	} else if record != nil {
		sess.prior = record.Conversations
		slog.Debug("Memory.StartSession: restored persisted history", "patientID", patientID, "conversations", len(record.Conversations), "messages", record.TotalMessages())
	} else {
		slog.Debug("Memory.StartSession: no persisted history", "patientID", patientID)
	}

	m.sessions[patientID] = sess
	return snapshot(sess), nil
}

// RecentContext returns the last maxMessages entries of the patient's full
// message log (persisted history plus the current conversation), oldest
// first. It never mutates state and returns an empty sequence when no
// history exists. Safe to call repeatedly.
func (m *Memory) RecentContext(patientID string, maxMessages int) ([]models.Message, error) {
	if err := models.ValidatePatientID(patientID); err != nil {
		return nil, err
	}
	if maxMessages <= 0 {
		return nil, nil
	}

	m.mu.Lock()
	sess, ok := m.sessions[patientID]
	var log []models.Message
	if ok {
		log = flatten(sess.prior, sess.current)
	}
	m.mu.Unlock()

	if !ok {
		// No active session: read persisted history without caching it.
		record, err := m.store.LoadRecord(patientID)
		if err != nil {
			slog.Warn("Memory.RecentContext: failed to load persisted history", "error", err, "patientID", patientID)
			return nil, nil
		}
		if record == nil {
			return nil, nil
		}
		log = flatten(record.Conversations, models.Conversation{})
	}

	if len(log) > maxMessages {
		log = log[len(log)-maxMessages:]
	}
	out := make([]models.Message, len(log))
	copy(out, log)
	return out, nil
}

// CurrentConversation returns a copy of the active conversation's messages
// for the patient, oldest first. Empty when no session is active.
func (m *Memory) CurrentConversation(patientID string) []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[patientID]
	if !ok {
		return nil
	}
	out := make([]models.Message, len(sess.current.Messages))
	copy(out, sess.current.Messages)
	return out
}

// AddMessage appends one immutable message to the patient's active
// conversation. Prior entries are never edited or removed.
func (m *Memory) AddMessage(patientID string, role models.Role, content string, categories []models.Category) (models.Message, error) {
	msg, err := models.NewMessage(role, content, categories)
	if err != nil {
		return models.Message{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[patientID]
	if !ok {
		return models.Message{}, ErrNoActiveSession
	}
	sess.current.Messages = append(sess.current.Messages, msg)
	slog.Debug("Memory.AddMessage: message appended", "patientID", patientID, "role", role, "sessionLength", len(sess.current.Messages))
	return msg, nil
}

// AddExchange appends a patient message and the assistant's reply as one
// unit: both messages are validated before either is appended, so a failed
// exchange leaves the log unchanged.
func (m *Memory) AddExchange(patientID, patientContent string, categories []models.Category, assistantContent string) error {
	patientMsg, err := models.NewMessage(models.RolePatient, patientContent, categories)
	if err != nil {
		return err
	}
	assistantMsg, err := models.NewMessage(models.RoleAssistant, assistantContent, nil)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[patientID]
	if !ok {
		return ErrNoActiveSession
	}
	sess.current.Messages = append(sess.current.Messages, patientMsg, assistantMsg)
	slog.Debug("Memory.AddExchange: exchange appended", "patientID", patientID, "sessionLength", len(sess.current.Messages))
	return nil
}

// SaveSession persists the patient's full log — prior conversations plus
// the current one — overwriting any previous record (last-write-wins).
// On failure the in-memory session is kept so the save can be retried.
// SaveSession is idempotent: saving twice without new messages writes the
// same record.
func (m *Memory) SaveSession(patientID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[patientID]
	if !ok {
		m.mu.Unlock()
		return ErrNoActiveSession
	}
	record := models.PatientRecord{
		PatientID:     patientID,
		Conversations: sess.prior,
		UpdatedAt:     time.Now(),
	}
	if len(sess.current.Messages) > 0 {
		conv := sess.current
		conv.EndedAt = time.Now()
		record.Conversations = append(append([]models.Conversation{}, sess.prior...), conv)
	}
	m.mu.Unlock()

	if err := m.store.SaveRecord(record); err != nil {
		slog.Error("Memory.SaveSession: failed to persist session", "error", err, "patientID", patientID)
		return err
	}
	slog.Info("Memory.SaveSession: session persisted", "patientID", patientID, "conversations", len(record.Conversations), "messages", record.TotalMessages())
	return nil
}

// Summary aggregates the patient's persisted history on demand. The
// result is computed from storage for every call, never cached, and a
// missing or corrupt record yields an empty summary rather than an error.
func (m *Memory) Summary(patientID string) (models.PatientSummary, error) {
	if err := models.ValidatePatientID(patientID); err != nil {
		return models.PatientSummary{}, err
	}
	record, err := m.store.LoadRecord(patientID)
	if err != nil {
		slog.Warn("Memory.Summary: failed to load persisted history, reporting empty summary", "error", err, "patientID", patientID)
		return models.PatientSummary{}, nil
	}
	if record == nil {
		return models.PatientSummary{}, nil
	}

	summary := models.PatientSummary{
		TotalConversations: len(record.Conversations),
		TotalMessages:      record.TotalMessages(),
	}
	if n := len(record.Conversations); n > 0 {
		last := record.Conversations[n-1]
		summary.LastConversation = last.EndedAt
		if summary.LastConversation.IsZero() {
			summary.LastConversation = last.StartedAt
		}
	}
	return summary, nil
}

// snapshot builds a read-only Session view of the active conversation.
func snapshot(sess *session) models.Session {
	messages := make([]models.Message, len(sess.current.Messages))
	copy(messages, sess.current.Messages)
	return models.Session{
		PatientID: sess.patientID,
		StartedAt: sess.current.StartedAt,
		Messages:  messages,
	}
}

// flatten concatenates conversation messages oldest first.
func flatten(prior []models.Conversation, current models.Conversation) []models.Message {
	var log []models.Message
	for _, conv := range prior {
		log = append(log, conv.Messages...)
	}
	return append(log, current.Messages...)
}
