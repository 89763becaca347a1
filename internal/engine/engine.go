// Package engine wires red-flag triage, warning composition, conversation
// memory, document retrieval, and the GenAI client into a single chat
// orchestrator for one patient session.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"

	"github.com/CareBranch/CareChat/internal/genai"
	"github.com/CareBranch/CareChat/internal/memory"
	"github.com/CareBranch/CareChat/internal/models"
	"github.com/CareBranch/CareChat/internal/retrieval"
	"github.com/CareBranch/CareChat/internal/triage"
)

const (
	// DefaultContextWindow is how many persisted messages from earlier
	// conversations are replayed into the prompt.
	DefaultContextWindow = 6

	// historyPreviewLimit bounds the length of each replayed message so a
	// long earlier exchange cannot crowd out the current question.
	historyPreviewLimit = 200
)

// Orchestrator drives a single patient's chat session. Earlier persisted
// history is captured once at construction; the current conversation grows
// turn by turn until EndConversation persists it.
type Orchestrator struct {
	classifier   *triage.Classifier
	composer     *triage.Composer
	memory       *memory.Memory
	retriever    retrieval.Retriever
	genaiClient  genai.ClientInterface
	systemPrompt string
	patientID    string

	// recentHistory is the tail of conversations persisted before this
	// session started. It never changes while the session runs.
	recentHistory []models.Message
}

// NewOrchestrator validates dependencies, opens a session for the patient,
// and captures the patient's recent persisted history for prompt context.
func NewOrchestrator(classifier *triage.Classifier, composer *triage.Composer, mem *memory.Memory, retriever retrieval.Retriever, genaiClient genai.ClientInterface, systemPrompt, patientID string) (*Orchestrator, error) {
	if classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if composer == nil {
		return nil, fmt.Errorf("composer is required")
	}
	if mem == nil {
		return nil, fmt.Errorf("conversation memory is required")
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if genaiClient == nil {
		return nil, fmt.Errorf("genai client is required")
	}
	if err := models.ValidatePatientID(patientID); err != nil {
		return nil, fmt.Errorf("invalid patient ID: %w", err)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}

	if _, err := mem.StartSession(patientID); err != nil {
		return nil, fmt.Errorf("failed to start session for patient %s: %w", patientID, err)
	}
	recent, err := mem.RecentContext(patientID, DefaultContextWindow)
	if err != nil {
		slog.Warn("Orchestrator: failed to load recent history, continuing without it", "patientID", patientID, "error", err)
		recent = nil
	}

	slog.Info("Orchestrator: session started", "patientID", patientID, "recentHistory", len(recent))
	return &Orchestrator{
		classifier:    classifier,
		composer:      composer,
		memory:        mem,
		retriever:     retriever,
		genaiClient:   genaiClient,
		systemPrompt:  systemPrompt,
		patientID:     patientID,
		recentHistory: recent,
	}, nil
}

// Chat runs one full turn: classify the patient message for red flags,
// retrieve supporting passages, generate a reply, collapse duplicate
// warnings, append a composed safety warning when the model produced none,
// and record the exchange. The exchange is only recorded once a reply
// exists, so a failed turn leaves memory untouched.
func (o *Orchestrator) Chat(ctx context.Context, userMessage string) (string, error) {
	if strings.TrimSpace(userMessage) == "" {
		return "", fmt.Errorf("cannot process message: %w", models.ErrEmptyContent)
	}

	categories := o.classifier.Classify(userMessage)
	if len(categories) > 0 {
		slog.Warn("Orchestrator.Chat: red flags detected", "patientID", o.patientID, "categories", categories)
	}

	passages, err := o.retriever.Retrieve(ctx, userMessage, retrieval.DefaultTopK)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve supporting documents: %w", err)
	}

	messages := o.buildMessages(userMessage, passages)
	reply, err := o.genaiClient.GenerateWithMessages(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	reply = o.composer.Deduplicate(reply)
	if len(categories) > 0 && !o.composer.HasExistingWarning(reply) {
		if w := o.composer.Compose(categories); !w.IsZero() {
			slog.Info("Orchestrator.Chat: appending safety warning", "patientID", o.patientID, "tier", w.Tier)
			reply += w.Text
		}
	}

	if err := o.memory.AddExchange(o.patientID, userMessage, categories, reply); err != nil {
		return "", fmt.Errorf("failed to record exchange: %w", err)
	}
	return reply, nil
}

// buildMessages assembles the generation request: policy prompt, retrieved
// medical context, replayed history, the disclaimer directive for this turn,
// the current conversation so far, and finally the patient's message.
func (o *Orchestrator) buildMessages(userMessage string, passages []string) []openai.ChatCompletionMessageParamUnion {
	current := o.memory.CurrentConversation(o.patientID)

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(o.systemPrompt),
		openai.SystemMessage("Medical information to inform your response:\n\n" + o.formatPassages(passages)),
		openai.SystemMessage("Previous conversation:\n" + o.formatHistory()),
	}
	if len(current) == 0 {
		messages = append(messages, openai.SystemMessage(firstTurnDirective))
	} else {
		messages = append(messages, openai.SystemMessage(followUpDirective))
	}
	for _, msg := range current {
		switch msg.Role {
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	return append(messages, openai.UserMessage(userMessage))
}

func (o *Orchestrator) formatPassages(passages []string) string {
	if len(passages) == 0 {
		return emptyCorpusContext
	}
	return strings.Join(passages, "\n\n")
}

func (o *Orchestrator) formatHistory() string {
	if len(o.recentHistory) == 0 {
		return firstContactHistory
	}
	var b strings.Builder
	for _, msg := range o.recentHistory {
		label := "Patient"
		if msg.Role == models.RoleAssistant {
			label = "You"
		}
		content := msg.Content
		if len(content) > historyPreviewLimit {
			content = content[:historyPreviewLimit] + "..."
		}
		fmt.Fprintf(&b, "%s: %s\n", label, content)
	}
	return b.String()
}

// Summary reports the patient's persisted conversation statistics.
func (o *Orchestrator) Summary() (models.PatientSummary, error) {
	return o.memory.Summary(o.patientID)
}

// EndConversation persists the session, folding the current conversation
// into the patient's record.
func (o *Orchestrator) EndConversation() error {
	if err := o.memory.SaveSession(o.patientID); err != nil {
		return fmt.Errorf("failed to save session for patient %s: %w", o.patientID, err)
	}
	slog.Info("Orchestrator: conversation saved", "patientID", o.patientID)
	return nil
}
