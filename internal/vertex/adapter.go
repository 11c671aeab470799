// Package vertex implements the Vertex AI REST dialect: the same wire
// shapes as the Generative Language API routed through the regional
// aiplatform host, authenticated with a delegated OAuth token when one is
// available and a static key otherwise. A 404 in a non-default region is
// retried once against the default region; a successful retry pins the
// region for the adapter's lifetime.
package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/winkai/studio-gateway/internal/domain"
	"github.com/winkai/studio-gateway/internal/google"
)

const (
	// DefaultLocation is the canonical fallback region.
	DefaultLocation = "us-central1"

	pollInterval = 5 * time.Second
)

// TokenProvider supplies the current delegated bearer token, or "" when
// the user must re-authenticate.
type TokenProvider interface {
	CurrentToken() string
}

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

// WithTokenProvider attaches the delegated-authorization token source.
func WithTokenProvider(tp TokenProvider) Option {
	return func(a *Adapter) {
		a.tokens = tp
	}
}

// WithPollInterval overrides the video polling cadence. Tests use this.
func WithPollInterval(d time.Duration) Option {
	return func(a *Adapter) {
		a.poll = d
	}
}

// Adapter speaks the Vertex AI REST dialect for one project. The pinned
// region is the only mutable state and survives across calls for the
// adapter's lifetime.
type Adapter struct {
	projectID  string
	location   string
	endpoint   string // overrides host construction when set
	apiKey     string
	tokens     TokenProvider
	httpClient *http.Client
	logger     *slog.Logger
	poll       time.Duration

	mu     sync.Mutex
	pinned string
}

// New creates an adapter bound to a resolved provider config. The project
// ID is mandatory before any Vertex call can succeed.
func New(cfg *domain.ProviderConfig, opts ...Option) (*Adapter, error) {
	if cfg.ProjectID == "" {
		return nil, domain.ErrConfig("vertex: project ID is not configured")
	}

	a := &Adapter{
		projectID:  cfg.ProjectID,
		location:   cfg.Location,
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
		poll:       pollInterval,
	}
	if a.location == "" {
		a.location = DefaultLocation
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Name() string {
	return string(domain.ProviderVertex)
}

// effectiveLocation returns the pinned region when a fallback has
// succeeded, else the configured region.
func (a *Adapter) effectiveLocation() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pinned != "" {
		return a.pinned
	}
	return a.location
}

func (a *Adapter) pin(loc string) {
	a.mu.Lock()
	a.pinned = loc
	a.mu.Unlock()
}

func (a *Adapter) baseFor(loc string) string {
	if a.endpoint != "" {
		return a.endpoint
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", loc)
}

func (a *Adapter) modelURL(loc, model, verb string) string {
	return fmt.Sprintf("%s/projects/%s/locations/%s/publishers/google/models/%s:%s",
		a.baseFor(loc), a.projectID, loc, model, verb)
}

func (a *Adapter) setAuth(req *http.Request) error {
	if a.tokens != nil {
		if tok := a.tokens.CurrentToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
			return nil
		}
	}
	if a.apiKey != "" {
		req.Header.Set("x-goog-api-key", a.apiKey)
		return nil
	}
	return domain.ErrConfig("vertex: no credentials available; sign in or configure an API key")
}

// doRegion issues one request built for the given region and returns the
// response without status interpretation.
func (a *Adapter) doRegion(ctx context.Context, method, url string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := a.setAuth(req); err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, domain.ErrNetwork(err.Error()).WithProvider(domain.ProviderVertex)
	}
	return resp, nil
}

// doWithFallback issues the request in the effective region and, on a 404
// outside the default region, retries exactly once against the default
// region. A successful retry pins the default region for subsequent calls.
// On success the open response is returned; on failure the canonical error
// embeds the status and raw body.
func (a *Adapter) doWithFallback(ctx context.Context, method string, urlFor func(loc string) string, payload []byte) (*http.Response, error) {
	loc := a.effectiveLocation()

	resp, err := a.doRegion(ctx, method, urlFor(loc), payload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && loc != DefaultLocation {
		a.logger.Warn("model not found in configured region, retrying default region",
			slog.String("region", loc),
			slog.String("fallback", DefaultLocation))

		retry, err := a.doRegion(ctx, method, urlFor(DefaultLocation), payload)
		if err != nil {
			return nil, err
		}
		if retry.StatusCode == http.StatusOK {
			a.pin(DefaultLocation)
			return retry, nil
		}
		retryBody, _ := io.ReadAll(retry.Body)
		retry.Body.Close()
		return nil, domain.FromStatus(retry.StatusCode, string(retryBody)).WithProvider(domain.ProviderVertex)
	}

	return nil, domain.FromStatus(resp.StatusCode, string(respBody)).WithProvider(domain.ProviderVertex)
}

// StreamChat dispatches by mode, mirroring the Generative Language
// adapter over REST with bearer auth.
func (a *Adapter) StreamChat(ctx context.Context, msgs []domain.Message, model string, opts *domain.GenerationOptions) (<-chan domain.Event, error) {
	if opts == nil {
		opts = &domain.GenerationOptions{}
	}

	switch opts.Mode {
	case domain.ModeImage:
		return a.generateMedia(ctx, msgs, model, opts, a.imageContent)
	case domain.ModeVideo:
		return a.generateMedia(ctx, msgs, model, opts, a.videoContent)
	default:
		return a.streamConversation(ctx, msgs, model, opts)
	}
}

func (a *Adapter) streamConversation(ctx context.Context, msgs []domain.Message, model string, opts *domain.GenerationOptions) (<-chan domain.Event, error) {
	apiReq, err := google.BuildGenerateRequest(msgs, opts)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := a.doWithFallback(ctx, http.MethodPost, func(loc string) string {
		return a.modelURL(loc, model, "streamGenerateContent") + "?alt=sse"
	}, payload)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.Event)
	go google.ConsumeGenerateStream(ctx, resp.Body, out, domain.ProviderVertex, a.logger)
	return out, nil
}

type mediaFunc func(ctx context.Context, msgs []domain.Message, model string, opts *domain.GenerationOptions) (string, error)

// generateMedia runs a unary media branch; failures become readable
// content so the stream always reaches a terminal event.
func (a *Adapter) generateMedia(ctx context.Context, msgs []domain.Message, model string, opts *domain.GenerationOptions, fn mediaFunc) (<-chan domain.Event, error) {
	out := make(chan domain.Event, 2)

	go func() {
		defer close(out)

		content, err := fn(ctx, msgs, model, opts)
		if err != nil {
			content = fmt.Sprintf("Generation failed: %v", err)
		}
		out <- domain.ContentEvent(content)
		out <- domain.DoneEvent("stop")
	}()

	return out, nil
}

func (a *Adapter) imageContent(ctx context.Context, msgs []domain.Message, model string, opts *domain.GenerationOptions) (string, error) {
	if google.IsImagenModel(model) {
		apiReq := google.BuildImagenPredict(google.Prompt(msgs), opts)
		var resp google.PredictResponse
		if err := a.callUnary(ctx, model, "predict", apiReq, &resp); err != nil {
			return "", err
		}
		return google.RenderPredictImage(&resp), nil
	}

	apiReq, err := google.BuildGenerateRequest(msgs, opts)
	if err != nil {
		return "", err
	}
	if apiReq.GenerationConfig == nil {
		apiReq.GenerationConfig = &google.GenerationConfig{}
	}
	apiReq.GenerationConfig.ResponseModalities = []string{"TEXT", "IMAGE"}

	var resp google.GenerateContentResponse
	if err := a.callUnary(ctx, model, "generateContent", apiReq, &resp); err != nil {
		return "", err
	}
	return google.RenderGeneratedImage(&resp), nil
}

func (a *Adapter) videoContent(ctx context.Context, msgs []domain.Message, model string, opts *domain.GenerationOptions) (string, error) {
	apiReq, err := google.BuildVideoPredict(google.Prompt(msgs), opts)
	if err != nil {
		return "", err
	}

	var op google.Operation
	if err := a.callUnary(ctx, model, "predictLongRunning", apiReq, &op); err != nil {
		return "", err
	}

	raw, err := a.pollOperation(ctx, &op)
	if err != nil {
		return "", err
	}
	return google.RenderVideo(&op, raw), nil
}

func (a *Adapter) callUnary(ctx context.Context, model, verb string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := a.doWithFallback(ctx, http.MethodPost, func(loc string) string {
		return a.modelURL(loc, model, verb)
	}, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ErrNetwork(fmt.Sprintf("failed to read response: %v", err))
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (a *Adapter) pollOperation(ctx context.Context, op *google.Operation) (string, error) {
	var raw []byte
	for !op.Done {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(a.poll):
		}

		loc := a.effectiveLocation()
		url := fmt.Sprintf("%s/%s", a.baseFor(loc), op.Name)
		resp, err := a.doRegion(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", err
		}
		raw, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return "", domain.ErrNetwork(err.Error())
		}
		if resp.StatusCode != http.StatusOK {
			return "", domain.FromStatus(resp.StatusCode, string(raw)).WithProvider(domain.ProviderVertex)
		}

		*op = google.Operation{}
		if err := json.Unmarshal(raw, op); err != nil {
			return "", fmt.Errorf("failed to unmarshal operation: %w", err)
		}
	}
	return string(raw), nil
}

// ListModels enumerates publisher models, falling back through the region
// logic like every other call.
func (a *Adapter) ListModels(ctx context.Context) ([]domain.ModelInfo, error) {
	resp, err := a.doWithFallback(ctx, http.MethodGet, func(loc string) string {
		return fmt.Sprintf("%s/publishers/google/models", a.baseFor(loc))
	}, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ErrNetwork(fmt.Sprintf("failed to read response: %v", err))
	}

	var list struct {
		PublisherModels []struct {
			Name        string `json:"name"`
			VersionID   string `json:"versionId,omitempty"`
			DisplayName string `json:"displayName,omitempty"`
		} `json:"publisherModels"`
	}
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model list: %w", err)
	}

	models := make([]domain.ModelInfo, 0, len(list.PublisherModels))
	for _, m := range list.PublisherModels {
		id := m.Name
		if idx := strings.LastIndex(id, "/"); idx >= 0 {
			id = id[idx+1:]
		}
		name := m.DisplayName
		if name == "" {
			name = id
		}
		models = append(models, domain.ModelInfo{ID: id, Name: name})
	}
	return models, nil
}
