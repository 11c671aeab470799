// Package anthropic implements the Anthropic messages dialect: the system
// turn travels in a dedicated field, image blocks precede text blocks, and
// the event-stream protocol is normalized into canonical events.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/winkai/studio-gateway/internal/codec"
	"github.com/winkai/studio-gateway/internal/domain"
	"github.com/winkai/studio-gateway/internal/sse"
)

const (
	apiVersion = "2023-06-01"

	// defaultMaxTokens applies when the caller leaves MaxTokens unset; the
	// messages API requires the field.
	defaultMaxTokens = 4096
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

// Adapter speaks the Anthropic messages dialect.
type Adapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates an adapter bound to a resolved provider config. The endpoint
// is expected pre-normalized: no trailing slash and no /v1 suffix, since
// the adapter appends its own version path.
func New(cfg *domain.ProviderConfig, opts ...Option) (*Adapter, error) {
	if cfg.Endpoint == "" {
		return nil, domain.ErrConfig("anthropic: endpoint is not configured")
	}
	a := &Adapter{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.Endpoint,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Name() string {
	return string(domain.ProviderAnthropic)
}

// toAPIRequest converts canonical messages. The first system message is
// extracted into the dedicated system field and never sent in the turn
// list; image parts are placed before the text part within each turn.
func toAPIRequest(msgs []domain.Message, model string, opts *domain.GenerationOptions) (*messagesRequest, error) {
	req := &messagesRequest{
		Model:     model,
		MaxTokens: defaultMaxTokens,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = &opts.Temperature
	}

	for _, m := range msgs {
		if m.Role == "system" {
			if req.System == "" {
				req.System = m.Content
			}
			continue
		}

		var blocks []contentBlock
		for _, img := range m.Images {
			src, err := codec.ParseDataURL(img)
			if err != nil {
				return nil, domain.ErrConfig(fmt.Sprintf("invalid image data URL: %v", err))
			}
			blocks = append(blocks, contentBlock{
				Type: "image",
				Source: &imageSource{
					Type:      "base64",
					MediaType: src.MediaType,
					Data:      src.Data,
				},
			})
		}
		blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})

		req.Messages = append(req.Messages, apiMessage{Role: m.Role, Content: blocks})
	}

	return req, nil
}

// StreamChat opens a streaming messages call and yields canonical events.
func (a *Adapter) StreamChat(ctx context.Context, msgs []domain.Message, model string, opts *domain.GenerationOptions) (<-chan domain.Event, error) {
	if opts == nil {
		opts = &domain.GenerationOptions{}
	}

	apiReq, err := toAPIRequest(msgs, model, opts)
	if err != nil {
		return nil, err
	}
	apiReq.Stream = true

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	a.setHeaders(httpReq)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.ErrNetwork(err.Error()).WithProvider(domain.ProviderAnthropic)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, domain.FromStatus(resp.StatusCode, string(respBody)).WithProvider(domain.ProviderAnthropic)
	}

	out := make(chan domain.Event)
	go a.consumeStream(ctx, resp.Body, out)
	return out, nil
}

func (a *Adapter) consumeStream(ctx context.Context, body io.ReadCloser, out chan<- domain.Event) {
	defer close(out)

	var inputTokens, outputTokens int
	stopReason := ""

	skip := func(event string, err error) {
		a.logger.Warn("skipping malformed stream frame",
			slog.String("provider", "anthropic"),
			slog.String("event", event),
			slog.String("error", err.Error()))
	}

	for result := range sse.Events(ctx, body) {
		if result.Err != nil {
			domain.Emit(ctx, out, domain.Event{Err: domain.ErrNetwork(result.Err.Error()).WithProvider(domain.ProviderAnthropic)})
			return
		}

		switch result.Event.Type {
		case "message_start":
			var ev messageStartEvent
			if err := json.Unmarshal(result.Event.Data, &ev); err != nil {
				skip("message_start", err)
				continue
			}
			inputTokens = ev.Message.Usage.InputTokens

		case "content_block_delta":
			var ev contentBlockDeltaEvent
			if err := json.Unmarshal(result.Event.Data, &ev); err != nil {
				skip("content_block_delta", err)
				continue
			}
			if ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
				if !domain.Emit(ctx, out, domain.ContentEvent(ev.Delta.Text)) {
					return
				}
			}

		case "message_delta":
			var ev messageDeltaEvent
			if err := json.Unmarshal(result.Event.Data, &ev); err != nil {
				skip("message_delta", err)
				continue
			}
			if ev.Usage != nil {
				outputTokens = ev.Usage.OutputTokens
			}
			if ev.Delta.StopReason != "" {
				stopReason = ev.Delta.StopReason
			}

		case "message_stop":
			if inputTokens > 0 || outputTokens > 0 {
				if !domain.Emit(ctx, out, domain.UsageEvent(&domain.Usage{
					PromptTokens:     inputTokens,
					CompletionTokens: outputTokens,
					TotalTokens:      inputTokens + outputTokens,
				})) {
					return
				}
			}
			if stopReason == "" {
				stopReason = "end_turn"
			}
			domain.Emit(ctx, out, domain.DoneEvent(stopReason))
			return

		case "ping", "content_block_start", "content_block_stop":
			continue

		case "error":
			domain.Emit(ctx, out, domain.Event{Err: domain.ErrVendor(string(result.Event.Data)).WithProvider(domain.ProviderAnthropic)})
			return
		}
	}

	// The vendor closed the stream without message_stop; still terminate.
	domain.Emit(ctx, out, domain.DoneEvent("end_turn"))
}

func (a *Adapter) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
}

// ListModels returns the hardcoded catalog. The models endpoint is not
// queried; see KnownModels.
func (a *Adapter) ListModels(ctx context.Context) ([]domain.ModelInfo, error) {
	return KnownModels(), nil
}

// KnownModels is the hardcoded model set used by the probe; the vendor
// exposes no unauthenticated model-list endpoint worth depending on.
func KnownModels() []domain.ModelInfo {
	return []domain.ModelInfo{
		{ID: "claude-sonnet-4-5", Name: "Claude Sonnet 4.5"},
		{ID: "claude-opus-4-1", Name: "Claude Opus 4.1"},
		{ID: "claude-haiku-4-5", Name: "Claude Haiku 4.5"},
		{ID: "claude-3-7-sonnet-latest", Name: "Claude 3.7 Sonnet"},
		{ID: "claude-3-5-haiku-latest", Name: "Claude 3.5 Haiku"},
	}
}
