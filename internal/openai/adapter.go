// Package openai implements the OpenAI-style wire dialect: SSE chat
// completion streaming with multi-part image content. The same adapter
// serves both the openai provider and any OpenAI-compatible custom
// endpoint, optionally routed through a CORS relay.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/winkai/studio-gateway/internal/credentials"
	"github.com/winkai/studio-gateway/internal/domain"
	"github.com/winkai/studio-gateway/internal/sse"
)

// Option configures the adapter.
type Option func(*Adapter)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Adapter) {
		a.httpClient = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// Adapter speaks the OpenAI chat completions dialect. It is an immutable
// per-configuration value; nothing in it is mutated after construction.
type Adapter struct {
	name       string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an adapter bound to a resolved provider config. The endpoint
// is mandatory; for the custom provider its absence is a configuration
// error raised here, before any network call.
func New(name string, cfg *domain.ProviderConfig, opts ...Option) (*Adapter, error) {
	if cfg.Endpoint == "" {
		return nil, domain.ErrConfig(fmt.Sprintf("%s: endpoint is not configured", name))
	}

	a := &Adapter{
		name:       name,
		apiKey:     cfg.APIKey,
		baseURL:    credentials.JoinRelay(cfg.CORSProxyURL, cfg.Endpoint),
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Name() string {
	return a.name
}

func (a *Adapter) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
}

// toAPIMessages converts canonical messages to the wire shape. Messages
// carrying images become multi-part content with one image_url part per
// image; the data URLs are passed through without re-encoding.
func toAPIMessages(msgs []domain.Message) []apiMessage {
	out := make([]apiMessage, 0, len(msgs))
	for _, m := range msgs {
		if len(m.Images) == 0 {
			out = append(out, apiMessage{Role: m.Role, Content: m.Content})
			continue
		}
		parts := []contentPart{{Type: "text", Text: m.Content}}
		for _, img := range m.Images {
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: img}})
		}
		out = append(out, apiMessage{Role: m.Role, Content: parts})
	}
	return out
}

// StreamChat opens a streaming completion and yields canonical events. The
// returned channel closes after the terminal done event or an error event.
func (a *Adapter) StreamChat(ctx context.Context, msgs []domain.Message, model string, opts *domain.GenerationOptions) (<-chan domain.Event, error) {
	if opts == nil {
		opts = &domain.GenerationOptions{}
	}

	apiReq := &chatRequest{
		Model:         model,
		Messages:      toAPIMessages(msgs),
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
		MaxTokens:     opts.MaxTokens,
	}
	if opts.Temperature > 0 {
		apiReq.Temperature = &opts.Temperature
	}

	body, err := a.post(ctx, a.baseURL+"/chat/completions", apiReq)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.Event)
	go a.consumeStream(ctx, body, out)
	return out, nil
}

func (a *Adapter) consumeStream(ctx context.Context, body io.ReadCloser, out chan<- domain.Event) {
	defer close(out)

	var usage *domain.Usage
	finishReason := ""

	for result := range sse.Events(ctx, body) {
		if result.Err != nil {
			domain.Emit(ctx, out, domain.Event{Err: domain.ErrNetwork(result.Err.Error()).WithProvider(domain.ProviderID(a.name))})
			return
		}

		var c chunk
		if err := json.Unmarshal(result.Event.Data, &c); err != nil {
			// A single malformed frame must not abort a healthy stream.
			a.logger.Warn("skipping malformed stream frame",
				slog.String("provider", a.name),
				slog.String("error", err.Error()))
			continue
		}

		if c.Usage != nil {
			usage = &domain.Usage{
				PromptTokens:     c.Usage.PromptTokens,
				CompletionTokens: c.Usage.CompletionTokens,
				TotalTokens:      c.Usage.TotalTokens,
			}
		}

		for _, choice := range c.Choices {
			if choice.Delta.Content != "" {
				if !domain.Emit(ctx, out, domain.ContentEvent(choice.Delta.Content)) {
					return
				}
			}
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
		}
	}

	if usage != nil {
		if !domain.Emit(ctx, out, domain.UsageEvent(usage)) {
			return
		}
	}
	if finishReason == "" {
		finishReason = "stop"
	}
	domain.Emit(ctx, out, domain.DoneEvent(finishReason))
}

// ListModels fetches the vendor model listing.
func (a *Adapter) ListModels(ctx context.Context) ([]domain.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	a.setHeaders(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, domain.ErrNetwork(err.Error()).WithProvider(domain.ProviderID(a.name))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ErrNetwork(fmt.Sprintf("failed to read response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.FromStatus(resp.StatusCode, string(respBody)).WithProvider(domain.ProviderID(a.name))
	}

	var list modelList
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model list: %w", err)
	}

	models := make([]domain.ModelInfo, len(list.Data))
	for i, m := range list.Data {
		models[i] = domain.ModelInfo{ID: m.ID, Name: m.ID}
	}
	return models, nil
}

// post issues the request and returns the open response body on 200, or
// the canonical error with status and raw body otherwise.
func (a *Adapter) post(ctx context.Context, url string, payload any) (io.ReadCloser, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	a.setHeaders(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, domain.ErrNetwork(err.Error()).WithProvider(domain.ProviderID(a.name))
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, domain.FromStatus(resp.StatusCode, string(respBody)).WithProvider(domain.ProviderID(a.name))
	}

	return resp.Body, nil
}
