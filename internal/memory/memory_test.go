package memory

import (
	"errors"
	"strings"
	"testing"

	"github.com/CareBranch/CareChat/internal/models"
	"github.com/CareBranch/CareChat/internal/store"
)

// failingStore simulates a corrupt or unreachable backend.
type failingStore struct {
	loadErr error
	saveErr error
}

func (f *failingStore) LoadRecord(string) (*models.PatientRecord, error) { return nil, f.loadErr }
func (f *failingStore) SaveRecord(models.PatientRecord) error            { return f.saveErr }
func (f *failingStore) ListPatientIDs() ([]string, error)                { return nil, nil }
func (f *failingStore) Close() error                                     { return nil }

func TestStartSessionIdempotent(t *testing.T) {
	m := NewMemory(store.NewInMemoryStore())
	first, err := m.StartSession("patient_a")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if _, err := m.AddMessage("patient_a", models.RolePatient, "hello", nil); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}
	second, err := m.StartSession("patient_a")
	if err != nil {
		t.Fatalf("second StartSession failed: %v", err)
	}
	if !second.StartedAt.Equal(first.StartedAt) {
		t.Error("second StartSession should return the existing session")
	}
	if len(second.Messages) != 1 {
		t.Errorf("expected existing session messages, got %d", len(second.Messages))
	}
}

func TestStartSessionInvalidID(t *testing.T) {
	m := NewMemory(store.NewInMemoryStore())
	if _, err := m.StartSession(""); !errors.Is(err, models.ErrEmptyPatientID) {
		t.Errorf("expected ErrEmptyPatientID, got %v", err)
	}
}

func TestAddMessageRequiresSession(t *testing.T) {
	m := NewMemory(store.NewInMemoryStore())
	if _, err := m.AddMessage("ghost", models.RolePatient, "hello", nil); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestRecentContextBoundsAndOrder(t *testing.T) {
	m := NewMemory(store.NewInMemoryStore())
	if _, err := m.StartSession("patient_a"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	contents := []string{"one", "two", "three", "four", "five", "six", "seven", "eight"}
	for i, content := range contents {
		role := models.RolePatient
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		if _, err := m.AddMessage("patient_a", role, content, nil); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}

	ctx, err := m.RecentContext("patient_a", 6)
	if err != nil {
		t.Fatalf("RecentContext failed: %v", err)
	}
	if len(ctx) != 6 {
		t.Fatalf("expected 6 messages, got %d", len(ctx))
	}
	for i, want := range contents[2:] {
		if ctx[i].Content != want {
			t.Errorf("position %d: expected %q, got %q", i, want, ctx[i].Content)
		}
	}

	// A window larger than the log returns the whole log.
	all, err := m.RecentContext("patient_a", 100)
	if err != nil {
		t.Fatalf("RecentContext failed: %v", err)
	}
	if len(all) != len(contents) {
		t.Errorf("expected %d messages, got %d", len(contents), len(all))
	}

	// Zero window yields nothing.
	none, err := m.RecentContext("patient_a", 0)
	if err != nil {
		t.Fatalf("RecentContext failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected empty context for zero window, got %d", len(none))
	}
}

func TestRecentContextUnknownPatient(t *testing.T) {
	m := NewMemory(store.NewInMemoryStore())
	ctx, err := m.RecentContext("nobody", 6)
	if err != nil {
		t.Fatalf("RecentContext failed: %v", err)
	}
	if len(ctx) != 0 {
		t.Errorf("expected empty context, got %d messages", len(ctx))
	}
}

func TestSaveAndRestoreRoundTrip(t *testing.T) {
	st := store.NewInMemoryStore()

	m := NewMemory(st)
	if _, err := m.StartSession("patient_a"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if err := m.AddExchange("patient_a", "I feel dizzy and weak", []models.Category{models.CategoryDizzinessOrWeakness}, "Please go to urgent care today."); err != nil {
		t.Fatalf("AddExchange failed: %v", err)
	}
	if err := m.SaveSession("patient_a"); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	// Fresh memory simulates a process restart over the same storage.
	restored := NewMemory(st)
	if _, err := restored.StartSession("patient_a"); err != nil {
		t.Fatalf("StartSession after restart failed: %v", err)
	}
	ctx, err := restored.RecentContext("patient_a", 10)
	if err != nil {
		t.Fatalf("RecentContext failed: %v", err)
	}
	if len(ctx) != 2 {
		t.Fatalf("expected 2 restored messages, got %d", len(ctx))
	}
	if ctx[0].Role != models.RolePatient || ctx[0].Content != "I feel dizzy and weak" {
		t.Errorf("first restored message mismatch: %+v", ctx[0])
	}
	if len(ctx[0].Categories) != 1 || ctx[0].Categories[0] != models.CategoryDizzinessOrWeakness {
		t.Errorf("restored categories mismatch: %v", ctx[0].Categories)
	}
	if ctx[1].Role != models.RoleAssistant || ctx[1].Content != "Please go to urgent care today." {
		t.Errorf("second restored message mismatch: %+v", ctx[1])
	}
}

func TestSaveSessionIdempotent(t *testing.T) {
	st := store.NewInMemoryStore()
	m := NewMemory(st)
	if _, err := m.StartSession("patient_a"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if err := m.AddExchange("patient_a", "hello", nil, "hi there"); err != nil {
		t.Fatalf("AddExchange failed: %v", err)
	}
	if err := m.SaveSession("patient_a"); err != nil {
		t.Fatalf("first SaveSession failed: %v", err)
	}
	if err := m.SaveSession("patient_a"); err != nil {
		t.Fatalf("second SaveSession failed: %v", err)
	}
	record, err := st.LoadRecord("patient_a")
	if err != nil {
		t.Fatalf("LoadRecord failed: %v", err)
	}
	if len(record.Conversations) != 1 {
		t.Errorf("repeated save duplicated the conversation: %d conversations", len(record.Conversations))
	}
}

func TestSummaryAggregatesPersistedHistory(t *testing.T) {
	st := store.NewInMemoryStore()
	m := NewMemory(st)

	// First conversation.
	if _, err := m.StartSession("patient_a"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if err := m.AddExchange("patient_a", "question one", nil, "answer one"); err != nil {
		t.Fatalf("AddExchange failed: %v", err)
	}
	if err := m.SaveSession("patient_a"); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	// Second conversation, new process.
	m2 := NewMemory(st)
	if _, err := m2.StartSession("patient_a"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if err := m2.AddExchange("patient_a", "question two", nil, "answer two"); err != nil {
		t.Fatalf("AddExchange failed: %v", err)
	}
	if err := m2.SaveSession("patient_a"); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	summary, err := m2.Summary("patient_a")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.TotalConversations != 2 {
		t.Errorf("expected 2 conversations, got %d", summary.TotalConversations)
	}
	if summary.TotalMessages != 4 {
		t.Errorf("expected 4 messages, got %d", summary.TotalMessages)
	}
	if summary.LastConversation.IsZero() {
		t.Error("expected last conversation timestamp to be set")
	}
}

func TestSummaryUnsavedSessionNotCounted(t *testing.T) {
	m := NewMemory(store.NewInMemoryStore())
	if _, err := m.StartSession("patient_a"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if err := m.AddExchange("patient_a", "hello", nil, "hi"); err != nil {
		t.Fatalf("AddExchange failed: %v", err)
	}
	summary, err := m.Summary("patient_a")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.TotalConversations != 0 || summary.TotalMessages != 0 {
		t.Errorf("summary should reflect persisted storage only, got %+v", summary)
	}
}

func TestCorruptStoreDegradesToEmptyHistory(t *testing.T) {
	m := NewMemory(&failingStore{loadErr: store.ErrCorruptRecord})
	if _, err := m.StartSession("patient_a"); err != nil {
		t.Fatalf("StartSession should not fail on corrupt history: %v", err)
	}
	ctx, err := m.RecentContext("patient_a", 6)
	if err != nil {
		t.Fatalf("RecentContext failed: %v", err)
	}
	if len(ctx) != 0 {
		t.Errorf("expected empty context from corrupt history, got %d", len(ctx))
	}
	summary, err := m.Summary("patient_a")
	if err != nil {
		t.Fatalf("Summary should degrade, not fail: %v", err)
	}
	if summary.TotalConversations != 0 {
		t.Errorf("expected empty summary, got %+v", summary)
	}
}

func TestSaveSessionFailureKeepsState(t *testing.T) {
	st := &failingStore{saveErr: errors.New("disk full")}
	m := NewMemory(st)
	if _, err := m.StartSession("patient_a"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if err := m.AddExchange("patient_a", "hello", nil, "hi"); err != nil {
		t.Fatalf("AddExchange failed: %v", err)
	}
	if err := m.SaveSession("patient_a"); err == nil {
		t.Fatal("expected save failure")
	}
	// Session state survives a failed save so it can be retried.
	if msgs := m.CurrentConversation("patient_a"); len(msgs) != 2 {
		t.Errorf("expected session to survive failed save, got %d messages", len(msgs))
	}
}

func TestAddExchangeValidatesBeforeAppending(t *testing.T) {
	m := NewMemory(store.NewInMemoryStore())
	if _, err := m.StartSession("patient_a"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	// Assistant content invalid: nothing may be appended.
	err := m.AddExchange("patient_a", "valid question", nil, "")
	if !errors.Is(err, models.ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if msgs := m.CurrentConversation("patient_a"); len(msgs) != 0 {
		t.Errorf("failed exchange must leave the log unchanged, got %d messages", len(msgs))
	}
	// Oversized patient content likewise.
	err = m.AddExchange("patient_a", strings.Repeat("a", models.MaxMessageContentLength+1), nil, "reply")
	if !errors.Is(err, models.ErrContentTooLong) {
		t.Fatalf("expected ErrContentTooLong, got %v", err)
	}
	if msgs := m.CurrentConversation("patient_a"); len(msgs) != 0 {
		t.Errorf("failed exchange must leave the log unchanged, got %d messages", len(msgs))
	}
}
