// Package genai provides the OpenAI-backed intent classifier and reply
// generator used by the generic conversation flow.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/impulsalabs/ventaflow/internal/models"
)

// DefaultRequestTimeout bounds every model call. On expiry the caller falls
// back to its canned template path instead of blocking the turn.
const DefaultRequestTimeout = 20 * time.Second

// Classification is the structured output of the intent classifier.
type Classification struct {
	Category        string            `json:"category"`
	Confidence      float64           `json:"confidence"`
	ExtractedFields map[string]string `json:"extracted_fields,omitempty"`
}

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client wraps the OpenAI chat completion service for classification and
// reply drafting.
type Client struct {
	chat    chatService
	model   openai.ChatModel
	timeout time.Duration
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey  string
	Model   openai.ChatModel
	Timeout time.Duration
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the default chat model.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout overrides the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// NewClient initializes a new GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("GenAI client initialized", "model", cfg.Model, "timeout", cfg.Timeout)
	return &Client{chat: &cli.Chat.Completions, model: cfg.Model, timeout: cfg.Timeout}, nil
}

const classifySystemPrompt = `Eres el clasificador de intenciones de un asistente comercial por WhatsApp.
Clasifica el mensaje del usuario en UNA de estas categorías:
greeting, pricing, content, schedule, objection, referral, farewell, question, unknown.
Si el mensaje menciona su nombre, puesto o área de interés, extráelos.
Responde SOLO con JSON: {"category": "...", "confidence": 0.0-1.0, "extracted_fields": {"name": "...", "role": "...", "interest": "..."}}.
Omite los campos que no aparezcan en el mensaje.`

// Classify categorizes a user message and extracts optional profile fields.
func (c *Client) Classify(ctx context.Context, text, stateContext string) (Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	userContent := text
	if stateContext != "" {
		userContent = fmt.Sprintf("Contexto de la conversación: %s\n\nMensaje: %s", stateContext, text)
	}

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifySystemPrompt),
			openai.UserMessage(userContent),
		},
	})
	if err != nil {
		return Classification{}, wrapCollaboratorError("classify", err, ctx)
	}
	if len(resp.Choices) == 0 {
		slog.Error("GenAI Classify returned no choices")
		return Classification{}, fmt.Errorf("%w: no choices returned", models.ErrCollaboratorUnavailable)
	}

	classification, err := parseClassification(resp.Choices[0].Message.Content)
	if err != nil {
		slog.Warn("GenAI Classify output unparseable, treating as unknown", "error", err)
		return Classification{Category: "unknown"}, nil
	}
	slog.Debug("GenAI Classify succeeded", "category", classification.Category, "confidence", classification.Confidence)
	return classification, nil
}

const draftSystemPrompt = `Eres un asesor comercial cálido y profesional que conversa por WhatsApp en español.
Responde de forma breve (máximo 3 oraciones), útil y orientada a ayudar.
No inventes precios, duraciones ni cantidades: si no tienes el dato, ofrece confirmarlo.`

// Draft generates a candidate reply for the given message and category.
func (c *Client) Draft(ctx context.Context, text, stateContext, category string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	userContent := fmt.Sprintf("Categoría detectada: %s\nContexto: %s\nMensaje del usuario: %s", category, stateContext, text)
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(draftSystemPrompt),
			openai.UserMessage(userContent),
		},
	})
	if err != nil {
		return "", wrapCollaboratorError("draft", err, ctx)
	}
	if len(resp.Choices) == 0 {
		slog.Error("GenAI Draft returned no choices")
		return "", fmt.Errorf("%w: no choices returned", models.ErrCollaboratorUnavailable)
	}
	draft := strings.TrimSpace(resp.Choices[0].Message.Content)
	if draft == "" {
		return "", fmt.Errorf("%w: empty draft", models.ErrCollaboratorUnavailable)
	}
	slog.Debug("GenAI Draft succeeded", "length", len(draft))
	return draft, nil
}

// parseClassification decodes the classifier's JSON output, tolerating
// markdown code fences around it.
func parseClassification(content string) (Classification, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var c Classification
	if err := json.Unmarshal([]byte(content), &c); err != nil {
		return Classification{}, fmt.Errorf("failed to parse classification JSON: %w", err)
	}
	if c.Category == "" {
		c.Category = "unknown"
	}
	c.Category = strings.ToLower(strings.TrimSpace(c.Category))
	return c, nil
}

// wrapCollaboratorError maps transport failures onto the collaborator error
// taxonomy so handlers can recover with their canned fallbacks.
func wrapCollaboratorError(op string, err error, ctx context.Context) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		slog.Warn("GenAI call timed out", "op", op)
		return fmt.Errorf("%w: %s: %v", models.ErrCollaboratorTimeout, op, err)
	}
	slog.Error("GenAI call failed", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %v", models.ErrCollaboratorUnavailable, op, err)
}
