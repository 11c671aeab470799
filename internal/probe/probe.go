// Package probe checks provider connectivity. A probe fetches the model
// list where the vendor has one and then drives a minimal live completion
// to prove the credentials authorize inference. Probes never return errors
// or panic; every failure is folded into the result.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/winkai/studio-gateway/internal/domain"
	"github.com/winkai/studio-gateway/internal/tokens"
)

// probePrompt is the minimal completion input. maxProbeTokens caps the
// response so a probe costs next to nothing.
const (
	probePrompt    = "Hi"
	maxProbeTokens = 8
)

// Target is what a probe drives. The gateway's adapters satisfy it.
type Target interface {
	StreamChat(ctx context.Context, msgs []domain.Message, model string, opts *domain.GenerationOptions) (<-chan domain.Event, error)
	ListModels(ctx context.Context) ([]domain.ModelInfo, error)
}

// Option configures a probe run.
type Option func(*runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *runner) {
		r.logger = logger
	}
}

// WithEstimator overrides the token estimator.
func WithEstimator(e *tokens.Estimator) Option {
	return func(r *runner) {
		r.estimator = e
	}
}

type runner struct {
	logger    *slog.Logger
	estimator *tokens.Estimator
}

// Run executes the connectivity probe against the target.
func Run(ctx context.Context, provider domain.ProviderID, target Target, opts ...Option) *domain.ProbeResult {
	r := &runner{
		logger:    slog.Default(),
		estimator: tokens.NewEstimator(),
	}
	for _, opt := range opts {
		opt(r)
	}

	start := time.Now()
	result := r.probe(ctx, provider, target)
	result.ResponseTime = time.Since(start)

	if result.Success {
		r.logger.Info("probe succeeded",
			slog.String("provider", string(provider)),
			slog.Int("models", len(result.Models)),
			slog.Duration("response_time", result.ResponseTime))
	} else {
		r.logger.Warn("probe failed",
			slog.String("provider", string(provider)),
			slog.String("error", result.Error),
			slog.Duration("response_time", result.ResponseTime))
	}
	return result
}

func (r *runner) probe(ctx context.Context, provider domain.ProviderID, target Target) *domain.ProbeResult {
	models, err := target.ListModels(ctx)
	if err != nil {
		return &domain.ProbeResult{Error: err.Error()}
	}
	if provider == domain.ProviderVertex {
		models = mergeVertexModels(models)
	}

	model := probeModel(provider, models)
	if model == "" {
		return &domain.ProbeResult{Models: models, Error: "no model available to probe"}
	}

	r.logger.Debug("probing with minimal completion",
		slog.String("provider", string(provider)),
		slog.String("model", model),
		slog.Int("prompt_tokens_est", r.estimator.CountText(model, probePrompt)),
		slog.Int("max_tokens", maxProbeTokens))

	msgs := []domain.Message{{Role: "user", Content: probePrompt}}
	events, err := target.StreamChat(ctx, msgs, model, &domain.GenerationOptions{
		Mode:      domain.ModeChat,
		MaxTokens: maxProbeTokens,
	})
	if err != nil {
		return &domain.ProbeResult{Models: models, Error: err.Error()}
	}

	for ev := range events {
		if ev.Err != nil {
			return &domain.ProbeResult{Models: models, Error: ev.Err.Error()}
		}
	}

	return &domain.ProbeResult{
		Success: true,
		Models:  models,
		Message: fmt.Sprintf("connected (%d models)", len(models)),
	}
}

// probeModel picks the model for the live completion: the provider's
// preferred probe model when the catalog has it, else the first listed.
func probeModel(provider domain.ProviderID, models []domain.ModelInfo) string {
	preferred := ""
	switch provider {
	case domain.ProviderOpenAI:
		preferred = "gpt-4o-mini"
	case domain.ProviderAnthropic:
		preferred = "claude-3-5-haiku-latest"
	case domain.ProviderGoogle, domain.ProviderVertex:
		preferred = "gemini-2.5-flash"
	}

	for _, m := range models {
		if m.ID == preferred {
			return preferred
		}
	}
	if len(models) > 0 {
		return models[0].ID
	}
	return preferred
}

// curatedVertexModels is the recommended set surfaced even when publisher
// enumeration misses them.
var curatedVertexModels = []domain.ModelInfo{
	{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro"},
	{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash"},
	{ID: "gemini-2.5-flash-lite", Name: "Gemini 2.5 Flash Lite"},
	{ID: "imagen-4.0-generate-001", Name: "Imagen 4"},
	{ID: "veo-3.0-generate-preview", Name: "Veo 3"},
}

// mergeVertexModels merges the curated set with the enumerated publisher
// models and orders the result: curated first, then conversational and
// media families, with embeddings, TTS, and robotics families last.
func mergeVertexModels(listed []domain.ModelInfo) []domain.ModelInfo {
	seen := make(map[string]bool, len(curatedVertexModels)+len(listed))
	merged := make([]domain.ModelInfo, 0, len(curatedVertexModels)+len(listed))

	for _, m := range curatedVertexModels {
		seen[m.ID] = true
		merged = append(merged, m)
	}
	for _, m := range listed {
		if !seen[m.ID] {
			seen[m.ID] = true
			merged = append(merged, m)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return vertexRank(merged[i].ID) < vertexRank(merged[j].ID)
	})
	return merged
}

func vertexRank(id string) int {
	m := strings.ToLower(id)
	switch {
	case strings.Contains(m, "embedding"), strings.Contains(m, "tts"),
		strings.Contains(m, "robotics"):
		return 3
	case strings.Contains(m, "gemini"):
		return 0
	case strings.Contains(m, "imagen"), strings.Contains(m, "veo"):
		return 1
	default:
		return 2
	}
}
