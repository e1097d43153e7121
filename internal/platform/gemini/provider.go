package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vkalinin/devagent-api/internal/capability"
	"github.com/vkalinin/devagent-api/internal/config"
	"github.com/vkalinin/devagent-api/internal/domain"
	"google.golang.org/genai"
)

// Progress milestones reported during an invocation: prompt sent, response
// received.
const (
	progressPromptSent = 30
	progressResponded  = 70
)

// modelCaller is the slice of the genai client the provider uses. It exists
// so tests can substitute the API call.
type modelCaller interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		cfg *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// genaiCaller adapts the real client to modelCaller.
type genaiCaller struct {
	client *genai.Client
}

func (c *genaiCaller) GenerateContent(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	return c.client.Models.GenerateContent(ctx, model, contents, cfg)
}

// Provider implements capability.Provider for the LLM capabilities using
// Google's Gemini API. One API call per attempt; the executor owns retries.
type Provider struct {
	caller  modelCaller
	model   string
	prompts promptSet
	logger  *slog.Logger
}

var _ capability.Provider = (*Provider)(nil)

// NewProvider creates a Gemini-backed capability provider.
func NewProvider(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Provider, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", capability.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", capability.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	prompts, err := parsePrompts()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", capability.ErrInvalidConfig, err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			capability.ErrInvalidConfig, err)
	}

	return &Provider{
		caller:  &genaiCaller{client: client},
		model:   cfg.ModelName,
		prompts: prompts,
		logger:  logger.With(slog.String("component", "gemini_provider")),
	}, nil
}

// Invoke implements capability.Provider. API-level failures are classified
// transient; malformed or safety-blocked responses are permanent, since the
// same prompt will keep producing them.
func (p *Provider) Invoke(
	ctx context.Context,
	cap domain.Capability,
	taskCtx domain.TaskContext,
) (json.RawMessage, error) {
	switch cap {
	case domain.CapabilityAnalyze, domain.CapabilityGenerate, domain.CapabilityFix:
	default:
		return nil, fmt.Errorf("%w: %s", capability.ErrUnsupportedCapability, cap)
	}

	prompt, err := p.prompts.render(cap, taskCtx)
	if err != nil {
		return nil, capability.Permanent(err)
	}

	reporter := capability.ReporterFromContext(ctx)

	p.logger.DebugContext(ctx, "calling gemini",
		slog.String("capability", string(cap)),
		slog.String("model", p.model),
		slog.Int("prompt_length", len(prompt)))
	reporter.ReportProgress(ctx, progressPromptSent)

	resp, err := p.caller.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		p.logger.WarnContext(ctx, "gemini call failed",
			slog.String("capability", string(cap)),
			slog.String("error", err.Error()))
		return nil, capability.Transient(fmt.Errorf("gemini call failed: %w", err))
	}

	reporter.ReportProgress(ctx, progressResponded)

	payload, err := p.extractJSON(resp)
	if err != nil {
		p.logger.WarnContext(ctx, "gemini response rejected",
			slog.String("capability", string(cap)),
			slog.String("error", err.Error()))
		return nil, err
	}

	return payload, nil
}

func (p *Provider) extractJSON(resp *genai.GenerateContentResponse) (json.RawMessage, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, capability.Permanent(fmt.Errorf("empty response from model"))
	}

	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return nil, capability.Permanent(fmt.Errorf("response blocked by safety filters"))
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, capability.Permanent(fmt.Errorf("no text in model response"))
	}

	// Some models still fence JSON despite instructions; strip before
	// validating.
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if !json.Valid([]byte(text)) {
		return nil, capability.Permanent(fmt.Errorf("model response is not valid JSON"))
	}

	return json.RawMessage(text), nil
}
