// Package genai provides the text-generation collaborator using the
// OpenAI chat completions API.
//
// The engine treats generation as an opaque synchronous call: failures are
// surfaced as errors, never inspected for content, and no retry or timeout
// policy lives here — that belongs to the caller.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultTemperature is the sampling temperature used when none is configured.
const DefaultTemperature = 0.7

// ErrNoChoicesReturned indicates the API answered without any completion choices.
var ErrNoChoicesReturned = errors.New("no choices returned")

// ClientInterface defines the generation operations consumed by the engine.
type ClientInterface interface {
	// GeneratePrompt generates a response from a system prompt and a user prompt.
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// GenerateWithMessages generates a response from a full message sequence.
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
}

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey      string
	Model       openai.ChatModel
	Temperature float64
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the API key, overriding the OPENAI_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temperature float64) Option {
	return func(o *Opts) { o.Temperature = temperature }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat        chatService
	model       openai.ChatModel
	temperature float64
}

// NewClient initializes a GenAI client. The API key comes from options or
// the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:       openai.ChatModelGPT4oMini,
		Temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		slog.Error("genai.NewClient: API key not provided")
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("genai.NewClient: client created", "model", cfg.Model)
	return &Client{
		chat:        &cli.Chat.Completions,
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// GeneratePrompt generates a response based on the provided system and user prompts.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	})
}

// GenerateWithMessages generates a response from the full message sequence.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		slog.Error("genai.GenerateWithMessages: completion failed", "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("genai.GenerateWithMessages: empty choices")
		return "", ErrNoChoicesReturned
	}
	slog.Debug("genai.GenerateWithMessages: completion succeeded", "responseLength", len(resp.Choices[0].Message.Content))
	return resp.Choices[0].Message.Content, nil
}
