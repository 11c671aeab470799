// Package gateway is the facade in front of the provider adapters. It
// resolves credentials, decides the generation mode, and hands the request
// to a cached adapter so per-adapter state (the Vertex region pin in
// particular) survives across calls within a session.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/winkai/studio-gateway/internal/anthropic"
	"github.com/winkai/studio-gateway/internal/credentials"
	"github.com/winkai/studio-gateway/internal/domain"
	"github.com/winkai/studio-gateway/internal/google"
	"github.com/winkai/studio-gateway/internal/openai"
	"github.com/winkai/studio-gateway/internal/probe"
	"github.com/winkai/studio-gateway/internal/vertex"
)

// Adapter is the dialect-neutral surface every provider implements.
// StreamChat returns a channel that carries zero or more content and usage
// events followed by exactly one done event, then closes.
type Adapter interface {
	Name() string
	StreamChat(ctx context.Context, msgs []domain.Message, model string, opts *domain.GenerationOptions) (<-chan domain.Event, error)
	ListModels(ctx context.Context) ([]domain.ModelInfo, error)
}

// Option configures the gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithHTTPClient sets the HTTP client handed to every adapter.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		g.httpClient = client
	}
}

// WithTokenProvider attaches the delegated-authorization token source used
// by the Vertex adapter.
func WithTokenProvider(tp vertex.TokenProvider) Option {
	return func(g *Gateway) {
		g.tokens = tp
	}
}

// Gateway routes canonical requests to provider adapters.
type Gateway struct {
	resolver   *credentials.Resolver
	tokens     vertex.TokenProvider
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.Mutex
	cache map[string]Adapter
}

// New creates a gateway over the given credential resolver.
func New(resolver *credentials.Resolver, opts ...Option) *Gateway {
	g := &Gateway{
		resolver:   resolver,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
		cache:      make(map[string]Adapter),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// StreamChat resolves credentials for the provider, decides the mode, and
// forwards the request. The returned channel follows the canonical event
// contract; construction and resolution failures are returned eagerly.
func (g *Gateway) StreamChat(ctx context.Context, provider domain.ProviderID, msgs []domain.Message, model string, cfg *domain.ProviderConfig, opts *domain.GenerationOptions) (<-chan domain.Event, error) {
	adapter, err := g.adapterFor(provider, cfg)
	if err != nil {
		return nil, err
	}

	// Copy so the caller's options are never mutated.
	var effective domain.GenerationOptions
	if opts != nil {
		effective = *opts
	}
	effective.Mode = DecideMode(model, opts)

	g.logger.Info("dispatching request",
		slog.String("request_id", uuid.NewString()),
		slog.String("provider", string(provider)),
		slog.String("model", model),
		slog.String("mode", string(effective.Mode)))

	return adapter.StreamChat(ctx, msgs, model, &effective)
}

// Chat drains StreamChat into a single result. An Err event aborts the
// drain and surfaces as the call's error.
func (g *Gateway) Chat(ctx context.Context, provider domain.ProviderID, msgs []domain.Message, model string, cfg *domain.ProviderConfig, opts *domain.GenerationOptions) (*domain.ChatResult, error) {
	events, err := g.StreamChat(ctx, provider, msgs, model, cfg, opts)
	if err != nil {
		return nil, err
	}

	var content strings.Builder
	result := &domain.ChatResult{Role: "assistant"}
	for ev := range events {
		if ev.Err != nil {
			return nil, ev.Err
		}
		switch ev.Type {
		case domain.EventContent:
			content.WriteString(ev.Content)
		case domain.EventUsage:
			result.Usage = ev.Usage
		}
	}
	result.Content = content.String()
	return result, nil
}

// ListModels enumerates the provider's models with resolved credentials.
func (g *Gateway) ListModels(ctx context.Context, provider domain.ProviderID, cfg *domain.ProviderConfig) ([]domain.ModelInfo, error) {
	adapter, err := g.adapterFor(provider, cfg)
	if err != nil {
		return nil, err
	}
	return adapter.ListModels(ctx)
}

// Probe checks connectivity for the provider. It never returns an error;
// every failure is folded into the result.
func (g *Gateway) Probe(ctx context.Context, provider domain.ProviderID, cfg *domain.ProviderConfig) *domain.ProbeResult {
	adapter, err := g.adapterFor(provider, cfg)
	if err != nil {
		return &domain.ProbeResult{Success: false, Error: err.Error()}
	}
	return probe.Run(ctx, provider, adapter, probe.WithLogger(g.logger))
}

// adapterFor returns a cached adapter for the resolved configuration,
// constructing one on first use. The key covers every resolved field so a
// credential or endpoint change produces a fresh adapter.
func (g *Gateway) adapterFor(provider domain.ProviderID, cfg *domain.ProviderConfig) (Adapter, error) {
	if !provider.Valid() {
		return nil, domain.ErrConfig("unknown provider: " + string(provider))
	}

	resolved := g.resolver.Resolve(provider, cfg)
	key := cacheKey(provider, resolved)

	g.mu.Lock()
	defer g.mu.Unlock()
	if adapter, ok := g.cache[key]; ok {
		return adapter, nil
	}

	adapter, err := g.build(provider, resolved)
	if err != nil {
		return nil, err
	}
	g.cache[key] = adapter
	return adapter, nil
}

func (g *Gateway) build(provider domain.ProviderID, cfg *domain.ProviderConfig) (Adapter, error) {
	switch provider {
	case domain.ProviderOpenAI, domain.ProviderCustom:
		return openai.New(string(provider), cfg,
			openai.WithHTTPClient(g.httpClient),
			openai.WithLogger(g.logger))
	case domain.ProviderAnthropic:
		return anthropic.New(cfg,
			anthropic.WithHTTPClient(g.httpClient),
			anthropic.WithLogger(g.logger))
	case domain.ProviderGoogle:
		return google.New(cfg,
			google.WithHTTPClient(g.httpClient),
			google.WithLogger(g.logger))
	case domain.ProviderVertex:
		return vertex.New(cfg,
			vertex.WithHTTPClient(g.httpClient),
			vertex.WithLogger(g.logger),
			vertex.WithTokenProvider(g.tokens))
	default:
		return nil, domain.ErrConfig("unknown provider: " + string(provider))
	}
}

func cacheKey(provider domain.ProviderID, cfg *domain.ProviderConfig) string {
	return strings.Join([]string{
		string(provider),
		cfg.APIKey,
		cfg.Endpoint,
		cfg.CORSProxyURL,
		cfg.ProjectID,
		cfg.Location,
	}, "\x00")
}
