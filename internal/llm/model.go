package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rogercare/roger-go/internal/config"
)

// Generator produces a candidate reply for one conversation turn.
// Callers treat any error as a signal to fall back to a templated reply.
type Generator interface {
	GenerateReply(ctx context.Context, req ReplyRequest) (string, error)
	Model() string
}

// ReplyRequest carries everything the model needs for one turn.
type ReplyRequest struct {
	Input         string
	History       []string
	MemoryContext []string
	Mood          string
}

// companionPrompt keeps the model inside its lane: warm, brief, and
// making no claims beyond what the user actually said.
const companionPrompt = `You are Roger, a gentle conversational companion for someone who may be isolated or struggling.

Rules:
- Be warm and brief: two to four sentences.
- Only reference things the user actually told you. Never invent shared history.
- You are not a clinician. Never diagnose, prescribe, or claim access to records or appointments.
- If the user is distressed, acknowledge the feeling before anything else.`

// Model wraps a langchaingo LLM for reply generation.
type Model struct {
	llm       llms.Model
	modelName string
	timeout   time.Duration
}

// NewModel creates an LLM model based on configuration.
func NewModel(cfg config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{
		llm:       model,
		modelName: cfg.LLMModel,
		timeout:   cfg.GenerateTimeout,
	}, nil
}

// GenerateReply builds the turn prompt and generates a reply. The call
// is bounded by the configured timeout.
func (m *Model) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	reply, err := m.generateWithSystem(ctx, companionPrompt, buildTurnPrompt(req))
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

func (m *Model) generateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	response, err := m.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate with system: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	return response.Choices[0].Content, nil
}

// buildTurnPrompt assembles retrieved memories, recent history, and the
// current message into one user prompt.
func buildTurnPrompt(req ReplyRequest) string {
	var b strings.Builder

	if len(req.MemoryContext) > 0 {
		b.WriteString("Things the user has told you before:\n")
		for _, m := range req.MemoryContext {
			b.WriteString("- ")
			b.WriteString(m)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(req.History) > 0 {
		recent := req.History
		if len(recent) > 6 {
			recent = recent[len(recent)-6:]
		}
		b.WriteString("Recent conversation:\n")
		for _, h := range recent {
			b.WriteString(h)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if req.Mood != "" {
		fmt.Fprintf(&b, "The user currently seems %s.\n\n", req.Mood)
	}

	fmt.Fprintf(&b, "User: %s\n\nRoger:", req.Input)
	return b.String()
}
