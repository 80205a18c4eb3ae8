package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/ashureev/diagnose-ai/internal/domain"
)

// ErrMissingAPIKey is returned by NewGenAI when no credential is configured.
var ErrMissingAPIKey = errors.New("gateway: model API key is required")

// Config holds the provider credential and model selection.
type Config struct {
	APIKey string
	Model  string
}

// contentGenerator is the subset of *genai.Models the gateway calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAI implements Generator on the Gemini API.
type GenAI struct {
	models contentGenerator
	model  string
	logger *slog.Logger
}

// Ensure GenAI implements Generator.
var _ Generator = (*GenAI)(nil)

// NewGenAI creates a Gemini-backed gateway. It fails fast if the API key is empty.
func NewGenAI(ctx context.Context, cfg Config, logger *slog.Logger) (*GenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenAI(client.Models, cfg.Model, logger), nil
}

func newGenAI(models contentGenerator, model string, logger *slog.Logger) *GenAI {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = DefaultModel
	}
	return &GenAI{
		models: models,
		model:  model,
		logger: logger,
	}
}

// Model returns the configured model name.
func (g *GenAI) Model() string {
	return g.model
}

// GenerateStep sends one prompt with the fixed instruction and schema and
// returns the validated step. It makes exactly one attempt.
func (g *GenAI) GenerateStep(ctx context.Context, prompt string) (*StepResponse, error) {
	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), generateConfig())
	if err != nil {
		g.logger.Error("Model call failed", "model", g.model, "error", err, "elapsed", time.Since(start))
		return nil, newError(ReasonTransport, err)
	}

	text := ""
	if resp != nil {
		text = strings.TrimSpace(resp.Text())
	}
	g.logger.Debug("Model call completed",
		"model", g.model,
		"prompt_length", len(prompt),
		"response_length", len(text),
		"elapsed", time.Since(start),
	)

	step, err := parseStepResponse(text)
	if err != nil {
		var gwErr *Error
		if errors.As(err, &gwErr) {
			g.logger.Warn("Model returned an unusable response", "model", g.model, "reason", gwErr.Reason, "error", gwErr.Err)
		}
		return nil, err
	}
	return step, nil
}

type wireStep struct {
	Title   string `json:"title"`
	Details string `json:"details"`
	Command string `json:"command"`
	Warning string `json:"warning"`
}

type wireResponse struct {
	Thought         *string   `json:"thought"`
	Step            *wireStep `json:"step"`
	SessionComplete *bool     `json:"sessionComplete"`
	Summary         string    `json:"summary"`
}

// parseStepResponse decodes and validates the model's JSON payload.
func parseStepResponse(text string) (*StepResponse, error) {
	if text == "" {
		return nil, newError(ReasonMalformed, errors.New("empty response text"))
	}

	var wire wireResponse
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return nil, newError(ReasonMalformed, fmt.Errorf("decode response: %w", err))
	}

	switch {
	case wire.Thought == nil:
		return nil, newError(ReasonSchema, errors.New("missing required field thought"))
	case wire.Step == nil:
		return nil, newError(ReasonSchema, errors.New("missing required field step"))
	case wire.SessionComplete == nil:
		return nil, newError(ReasonSchema, errors.New("missing required field sessionComplete"))
	case strings.TrimSpace(wire.Step.Title) == "":
		return nil, newError(ReasonSchema, errors.New("step.title is empty"))
	case strings.TrimSpace(wire.Step.Details) == "":
		return nil, newError(ReasonSchema, errors.New("step.details is empty"))
	}

	return &StepResponse{
		Thought: *wire.Thought,
		Step: domain.RepairStep{
			Title:   wire.Step.Title,
			Details: wire.Step.Details,
			Command: strings.TrimSpace(wire.Step.Command),
			Warning: strings.TrimSpace(wire.Step.Warning),
		},
		SessionComplete: *wire.SessionComplete,
		Summary:         wire.Summary,
	}, nil
}
