// Package google implements the Generative Language (Gemini) dialect. A
// call is dispatched by mode: conversational calls stream over SSE, image
// and video generation are unary or long-running calls whose results are
// re-wrapped as displayable content so the caller's stream always reaches
// a terminal event.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/winkai/studio-gateway/internal/domain"
	"github.com/winkai/studio-gateway/internal/sse"
)

// pollInterval paces long-running video operation polling.
const pollInterval = 5 * time.Second

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

// WithPollInterval overrides the video polling cadence. Tests use this.
func WithPollInterval(d time.Duration) Option {
	return func(a *Adapter) {
		a.poll = d
	}
}

// Adapter speaks the Generative Language API with key auth.
type Adapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	poll       time.Duration
}

// New creates an adapter bound to a resolved provider config.
func New(cfg *domain.ProviderConfig, opts ...Option) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, domain.ErrConfig("google: API key is not configured")
	}
	if cfg.Endpoint == "" {
		return nil, domain.ErrConfig("google: endpoint is not configured")
	}
	a := &Adapter{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.Endpoint,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
		poll:       pollInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Name() string {
	return string(domain.ProviderGoogle)
}

// IsImagenModel reports whether the model uses the :predict call shape
// rather than :generateContent for image output.
func IsImagenModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "imagen")
}

// StreamChat dispatches by mode and yields canonical events.
func (a *Adapter) StreamChat(ctx context.Context, msgs []domain.Message, model string, opts *domain.GenerationOptions) (<-chan domain.Event, error) {
	if opts == nil {
		opts = &domain.GenerationOptions{}
	}

	switch opts.Mode {
	case domain.ModeImage:
		return a.generateImage(ctx, msgs, model, opts)
	case domain.ModeVideo:
		return a.generateVideo(ctx, msgs, model, opts)
	default:
		return a.streamConversation(ctx, msgs, model, opts)
	}
}

func (a *Adapter) modelURL(model, verb string) string {
	return fmt.Sprintf("%s/models/%s:%s?key=%s", a.baseURL, model, verb, a.apiKey)
}

func (a *Adapter) streamConversation(ctx context.Context, msgs []domain.Message, model string, opts *domain.GenerationOptions) (<-chan domain.Event, error) {
	apiReq, err := BuildGenerateRequest(msgs, opts)
	if err != nil {
		return nil, err
	}

	url := a.modelURL(model, "streamGenerateContent") + "&alt=sse"
	body, err := a.post(ctx, url, apiReq)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.Event)
	go a.consumeStream(ctx, body, out)
	return out, nil
}

func (a *Adapter) consumeStream(ctx context.Context, body io.ReadCloser, out chan<- domain.Event) {
	ConsumeGenerateStream(ctx, body, out, domain.ProviderGoogle, a.logger)
}

// ConsumeGenerateStream normalizes a streamGenerateContent SSE body into
// canonical events and closes out when the stream terminates or ctx is
// canceled. The vertex adapter shares this; both dialects stream the same
// frame shape.
func ConsumeGenerateStream(ctx context.Context, body io.ReadCloser, out chan<- domain.Event, provider domain.ProviderID, logger *slog.Logger) {
	defer close(out)

	var usage *domain.Usage
	finishReason := ""

	for result := range sse.Events(ctx, body) {
		if result.Err != nil {
			domain.Emit(ctx, out, domain.Event{Err: domain.ErrNetwork(result.Err.Error()).WithProvider(provider)})
			return
		}

		var frame GenerateContentResponse
		if err := json.Unmarshal(result.Event.Data, &frame); err != nil {
			logger.Warn("skipping malformed stream frame",
				slog.String("provider", string(provider)),
				slog.String("error", err.Error()))
			continue
		}

		if frame.UsageMetadata != nil {
			usage = &domain.Usage{
				PromptTokens:     frame.UsageMetadata.PromptTokenCount,
				CompletionTokens: frame.UsageMetadata.CandidatesTokenCount,
				TotalTokens:      frame.UsageMetadata.TotalTokenCount,
			}
		}

		for _, cand := range frame.Candidates {
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					if !domain.Emit(ctx, out, domain.ContentEvent(part.Text)) {
						return
					}
				}
			}
			if cand.FinishReason != "" {
				finishReason = cand.FinishReason
			}
		}
	}

	if usage != nil {
		if !domain.Emit(ctx, out, domain.UsageEvent(usage)) {
			return
		}
	}
	if finishReason == "" {
		finishReason = "STOP"
	}
	domain.Emit(ctx, out, domain.DoneEvent(finishReason))
}

// generateImage issues a single unary call. Failures in this branch are
// converted into readable content followed by done; the stream never ends
// without a terminal event.
func (a *Adapter) generateImage(ctx context.Context, msgs []domain.Message, model string, opts *domain.GenerationOptions) (<-chan domain.Event, error) {
	out := make(chan domain.Event, 2)

	go func() {
		defer close(out)

		content, err := a.imageContent(ctx, msgs, model, opts)
		if err != nil {
			content = fmt.Sprintf("Image generation failed: %v", err)
		}
		out <- domain.ContentEvent(content)
		out <- domain.DoneEvent("stop")
	}()

	return out, nil
}

func (a *Adapter) imageContent(ctx context.Context, msgs []domain.Message, model string, opts *domain.GenerationOptions) (string, error) {
	if IsImagenModel(model) {
		apiReq := BuildImagenPredict(Prompt(msgs), opts)
		var resp PredictResponse
		if err := a.postJSON(ctx, a.modelURL(model, "predict"), apiReq, &resp); err != nil {
			return "", err
		}
		return RenderPredictImage(&resp), nil
	}

	apiReq, err := BuildGenerateRequest(msgs, opts)
	if err != nil {
		return "", err
	}
	if apiReq.GenerationConfig == nil {
		apiReq.GenerationConfig = &GenerationConfig{}
	}
	apiReq.GenerationConfig.ResponseModalities = []string{"TEXT", "IMAGE"}

	var resp GenerateContentResponse
	if err := a.postJSON(ctx, a.modelURL(model, "generateContent"), apiReq, &resp); err != nil {
		return "", err
	}
	return RenderGeneratedImage(&resp), nil
}

// generateVideo starts a long-running operation and polls it to
// completion. Like the image branch, all failures terminate the stream
// with content + done.
func (a *Adapter) generateVideo(ctx context.Context, msgs []domain.Message, model string, opts *domain.GenerationOptions) (<-chan domain.Event, error) {
	out := make(chan domain.Event, 2)

	go func() {
		defer close(out)

		content, err := a.videoContent(ctx, msgs, model, opts)
		if err != nil {
			content = fmt.Sprintf("Video generation failed: %v", err)
		}
		out <- domain.ContentEvent(content)
		out <- domain.DoneEvent("stop")
	}()

	return out, nil
}

func (a *Adapter) videoContent(ctx context.Context, msgs []domain.Message, model string, opts *domain.GenerationOptions) (string, error) {
	apiReq, err := BuildVideoPredict(Prompt(msgs), opts)
	if err != nil {
		return "", err
	}

	var op Operation
	if err := a.postJSON(ctx, a.modelURL(model, "predictLongRunning"), apiReq, &op); err != nil {
		return "", err
	}

	raw, err := a.pollOperation(ctx, &op)
	if err != nil {
		return "", err
	}
	return RenderVideo(&op, raw), nil
}

// pollOperation refreshes op until done. The final raw body is returned
// for surfacing unrecognized response shapes.
func (a *Adapter) pollOperation(ctx context.Context, op *Operation) (string, error) {
	var raw []byte
	for !op.Done {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(a.poll):
		}

		url := fmt.Sprintf("%s/%s?key=%s", a.baseURL, op.Name, a.apiKey)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", err
		}
		resp, err := a.httpClient.Do(req)
		if err != nil {
			return "", domain.ErrNetwork(err.Error()).WithProvider(domain.ProviderGoogle)
		}
		raw, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return "", domain.ErrNetwork(err.Error())
		}
		if resp.StatusCode != http.StatusOK {
			return "", domain.FromStatus(resp.StatusCode, string(raw)).WithProvider(domain.ProviderGoogle)
		}

		*op = Operation{}
		if err := json.Unmarshal(raw, op); err != nil {
			return "", fmt.Errorf("failed to unmarshal operation: %w", err)
		}
	}
	return string(raw), nil
}

// ListModels fetches the vendor model listing.
func (a *Adapter) ListModels(ctx context.Context) ([]domain.ModelInfo, error) {
	url := fmt.Sprintf("%s/models?key=%s", a.baseURL, a.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, domain.ErrNetwork(err.Error()).WithProvider(domain.ProviderGoogle)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ErrNetwork(fmt.Sprintf("failed to read response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.FromStatus(resp.StatusCode, string(respBody)).WithProvider(domain.ProviderGoogle)
	}

	var list ModelsListResponse
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model list: %w", err)
	}

	models := make([]domain.ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		id := strings.TrimPrefix(m.Name, "models/")
		name := m.DisplayName
		if name == "" {
			name = id
		}
		models = append(models, domain.ModelInfo{ID: id, Name: name})
	}
	return models, nil
}

// postJSON posts and decodes a unary response.
func (a *Adapter) postJSON(ctx context.Context, url string, payload, result any) error {
	body, err := a.post(ctx, url, payload)
	if err != nil {
		return err
	}
	defer body.Close()

	respBody, err := io.ReadAll(body)
	if err != nil {
		return domain.ErrNetwork(fmt.Sprintf("failed to read response: %v", err))
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// post issues the request and returns the open body on 200, or the
// canonical error with status and raw body otherwise.
func (a *Adapter) post(ctx context.Context, url string, payload any) (io.ReadCloser, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, domain.ErrNetwork(err.Error()).WithProvider(domain.ProviderGoogle)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, domain.FromStatus(resp.StatusCode, string(respBody)).WithProvider(domain.ProviderGoogle)
	}

	return resp.Body, nil
}
