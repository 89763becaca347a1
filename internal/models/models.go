// Package models defines the core data structures for CareChat.
//
// It includes conversation messages, red-flag categories, severity tiers,
// and the persisted per-patient record shared across modules.
package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RolePatient marks a message written by the patient.
	RolePatient Role = "patient"
	// RoleAssistant marks a message written by the assistant.
	RoleAssistant Role = "assistant"
)

// IsValidRole checks if the given role is supported.
func IsValidRole(r Role) bool {
	switch r {
	case RolePatient, RoleAssistant:
		return true
	default:
		return false
	}
}

// Category is a red-flag symptom category detected in a patient message.
type Category string

const (
	// CategorySeverePain indicates severe or unrelenting pain language.
	CategorySeverePain Category = "severe_pain"
	// CategoryHeavyBleeding indicates heavy rectal bleeding.
	CategoryHeavyBleeding Category = "heavy_bleeding"
	// CategoryFever indicates fever or chills alongside rectal symptoms.
	CategoryFever Category = "fever"
	// CategoryProlongedConstipation indicates multi-day inability to pass stool.
	CategoryProlongedConstipation Category = "prolonged_constipation"
	// CategoryBlackStool indicates black or tarry stools (upper GI bleeding sign).
	CategoryBlackStool Category = "black_stool"
	// CategoryDizzinessOrWeakness indicates dizziness, weakness, or fainting (blood loss signs).
	CategoryDizzinessOrWeakness Category = "dizziness_or_weakness"
)

// AllCategories lists every supported category in canonical order.
// Classifier output follows this order so results are deterministic.
var AllCategories = []Category{
	CategorySeverePain,
	CategoryHeavyBleeding,
	CategoryFever,
	CategoryProlongedConstipation,
	CategoryBlackStool,
	CategoryDizzinessOrWeakness,
}

// IsValidCategory checks if the given category is supported.
func IsValidCategory(c Category) bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Severity ranks how urgently a red-flag category needs medical evaluation.
type Severity string

const (
	// SeverityCritical requires same-day evaluation (ER or urgent care).
	SeverityCritical Severity = "critical"
	// SeverityNonUrgent requires follow-up with a doctor within 1-2 days.
	SeverityNonUrgent Severity = "non_urgent"
)

// Validation constants for message construction
const (
	// MaxMessageContentLength defines the maximum allowed length for message content
	MaxMessageContentLength = 8192
	// MaxPatientIDLength defines the maximum allowed length for patient identifiers
	MaxPatientIDLength = 128
)

// Error variables for better error handling and testability
var (
	ErrInvalidRole       = errors.New("invalid message role")
	ErrEmptyContent      = errors.New("message content cannot be empty")
	ErrContentTooLong    = errors.New("message content exceeds maximum length")
	ErrInvalidCategory   = errors.New("invalid red-flag category")
	ErrEmptyPatientID    = errors.New("patient ID cannot be empty")
	ErrPatientIDTooLong  = errors.New("patient ID exceeds maximum length")
	ErrAssistantCategory = errors.New("assistant messages cannot carry red-flag categories")
)

// Message is one immutable entry in a patient's conversation log.
// Categories holds the red-flag categories matched on patient messages
// and is always empty for assistant messages.
type Message struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Timestamp  time.Time  `json:"timestamp"`
	Categories []Category `json:"categories,omitempty"`
}

// NewMessage constructs a validated Message with a fresh ID and timestamp.
// The categories slice is copied so later mutation by the caller cannot
// reach the stored message.
func NewMessage(role Role, content string, categories []Category) (Message, error) {
	if !IsValidRole(role) {
		return Message{}, ErrInvalidRole
	}
	if content == "" {
		return Message{}, ErrEmptyContent
	}
	if len(content) > MaxMessageContentLength {
		return Message{}, ErrContentTooLong
	}
	if role == RoleAssistant && len(categories) > 0 {
		return Message{}, ErrAssistantCategory
	}
	var copied []Category
	if len(categories) > 0 {
		copied = make([]Category, len(categories))
		for i, c := range categories {
			if !IsValidCategory(c) {
				return Message{}, ErrInvalidCategory
			}
			copied[i] = c
		}
	}
	return Message{
		ID:         uuid.New().String(),
		Role:       role,
		Content:    content,
		Timestamp:  time.Now(),
		Categories: copied,
	}, nil
}

// ValidatePatientID checks a patient identifier for use as a storage key.
func ValidatePatientID(patientID string) error {
	if patientID == "" {
		return ErrEmptyPatientID
	}
	if len(patientID) > MaxPatientIDLength {
		return ErrPatientIDTooLong
	}
	return nil
}

// Conversation is one contiguous exchange of messages, from session start
// to explicit close. Messages are append-only.
type Conversation struct {
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Messages  []Message `json:"messages"`
}

// PatientRecord is the persisted storage record for one patient identifier:
// every saved conversation plus bookkeeping timestamps. It is read at
// session start and overwritten in full at session end (last-write-wins).
type PatientRecord struct {
	PatientID     string         `json:"patient_id"`
	Conversations []Conversation `json:"conversations"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// TotalMessages counts messages across all saved conversations.
func (r *PatientRecord) TotalMessages() int {
	total := 0
	for _, c := range r.Conversations {
		total += len(c.Messages)
	}
	return total
}

// Session is a read-only view of a patient's active conversation.
type Session struct {
	PatientID string    `json:"patient_id"`
	StartedAt time.Time `json:"started_at"`
	Messages  []Message `json:"messages"`
}

// PatientSummary aggregates a patient's persisted history. It is computed
// on demand from storage and never cached.
type PatientSummary struct {
	TotalConversations int       `json:"total_conversations"`
	TotalMessages      int       `json:"total_messages"`
	LastConversation   time.Time `json:"last_conversation,omitempty"`
}
