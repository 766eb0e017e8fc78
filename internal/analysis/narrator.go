package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// Narrator writes a short market summary from locally known figures.
type Narrator interface {
	Narrate(ctx context.Context, f Facts) (string, error)
}

type NarratorConfig struct {
	Enabled    bool
	Model      string
	APIKey     string
	BaseURL    string
	ByAzure    bool
	APIVersion string
	TimeoutMs  int
}

// LLMNarrator is backed by an OpenAI-compatible chat model. A disabled
// narrator reports ErrNarratorDisabled so the cache moves on to the template.
type LLMNarrator struct {
	enabled        bool
	model          *openai.ChatModel
	modelName      string
	disabledReason string
	logger         *zap.Logger
}

var ErrNarratorDisabled = errors.New("narrator disabled")

func NewNarrator(cfg NarratorConfig, logger *zap.Logger) *LLMNarrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return &LLMNarrator{disabledReason: "disabled by config", logger: logger}
	}
	if cfg.APIKey == "" || cfg.Model == "" {
		logger.Warn("narrator disabled: missing api key or model")
		return &LLMNarrator{disabledReason: "api_key or model missing", logger: logger}
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	model, err := openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		ByAzure:    cfg.ByAzure,
		APIVersion: cfg.APIVersion,
		Timeout:    timeout,
	})
	if err != nil {
		logger.Warn("narrator init failed", zap.Error(err))
		return &LLMNarrator{disabledReason: "init failed", logger: logger}
	}
	return &LLMNarrator{enabled: true, model: model, modelName: cfg.Model, logger: logger}
}

func (n *LLMNarrator) Enabled() bool { return n != nil && n.enabled && n.model != nil }

// Status reports the narrator mode for the health endpoint.
func (n *LLMNarrator) Status() map[string]any {
	if !n.Enabled() {
		reason := "not configured"
		if n != nil && n.disabledReason != "" {
			reason = n.disabledReason
		}
		return map[string]any{"mode": "template", "reason": reason}
	}
	return map[string]any{"mode": "llm", "model": n.modelName}
}

const narratorSystem = `You summarise crypto price data for a dashboard.
Rules:
- Use only the figures given. Do not invent prices.
- Three sentences at most, plain text, no markdown.
- No buy or sell advice and no price predictions.
- If a figure is marked unavailable, say so briefly.`

func (n *LLMNarrator) Narrate(ctx context.Context, f Facts) (string, error) {
	if !n.Enabled() {
		return "", ErrNarratorDisabled
	}
	messages := []*schema.Message{
		schema.SystemMessage(narratorSystem),
		schema.UserMessage(f.describe()),
	}
	resp, err := n.model.Generate(ctx, messages)
	if err != nil {
		n.logLLMError(err)
		return "", fmt.Errorf("narrate %s: %w", f.Symbol, err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", fmt.Errorf("narrate %s: empty completion", f.Symbol)
	}
	return text, nil
}

func (n *LLMNarrator) logLLMError(err error) {
	apiErr := &openai.APIError{}
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if len(msg) > 300 {
			msg = msg[:300] + "..."
		}
		n.logger.Warn("narrator api error", zap.Int("status", apiErr.HTTPStatusCode), zap.String("message", msg))
		return
	}
	n.logger.Warn("narrator error", zap.Error(err))
}
