// Package oauth manages the single delegated Google authorization used by
// the Vertex adapter: one bearer token's acquisition, expiry tracking, and
// revocation. The token source is the one piece of intentionally shared
// mutable state in the gateway.
package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/winkai/studio-gateway/internal/domain"
)

const (
	authURL   = "https://accounts.google.com/o/oauth2/auth"
	tokenURL  = "https://oauth2.googleapis.com/token"
	revokeURL = "https://oauth2.googleapis.com/revoke"

	// expiryMargin is the safety window before nominal expiry during which
	// a token is already treated as invalid.
	expiryMargin = 5 * time.Minute

	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
)

// ConsentFlow runs one interactive user authorization and returns the
// resulting token. Implementations must respect ctx cancellation.
type ConsentFlow func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)

// Option configures the token source.
type Option func(*TokenSource)

// WithConsentFlow replaces the interactive consent flow.
func WithConsentFlow(flow ConsentFlow) Option {
	return func(ts *TokenSource) {
		ts.consent = flow
	}
}

// WithHTTPClient sets the client used for revocation calls.
func WithHTTPClient(client *http.Client) Option {
	return func(ts *TokenSource) {
		ts.httpClient = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ts *TokenSource) {
		ts.logger = logger
	}
}

// WithClock overrides the time source. Tests use this to step across the
// expiry margin.
func WithClock(now func() time.Time) Option {
	return func(ts *TokenSource) {
		ts.now = now
	}
}

// TokenSource holds at most one bearer token for the configured OAuth
// client. Concurrent RequestToken callers are serialized behind a single
// in-flight consent flow and all observe the same outcome.
type TokenSource struct {
	cfg        *oauth2.Config
	consent    ConsentFlow
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	token   *oauth2.Token
	pending chan struct{} // non-nil while a consent flow is in flight
	flowTok *oauth2.Token
	flowErr error
}

// New creates a token source for the given OAuth client ID. An empty
// clientID is not an error: the source initializes but every RequestToken
// fails with a config error ("not available" is the steady state).
func New(clientID, clientSecret string, opts ...Option) *TokenSource {
	ts := &TokenSource{
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
		now:        time.Now,
	}
	if clientID != "" {
		ts.cfg = &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
			Scopes:       []string{cloudPlatformScope},
		}
	}
	for _, opt := range opts {
		opt(ts)
	}
	if ts.consent == nil {
		ts.consent = func(ctx context.Context, _ *oauth2.Config) (*oauth2.Token, error) {
			return nil, domain.ErrConsent("no interactive consent flow configured")
		}
	}
	return ts
}

// Configured reports whether an OAuth client ID is available.
func (ts *TokenSource) Configured() bool {
	return ts.cfg != nil
}

func (ts *TokenSource) validLocked(tok *oauth2.Token) bool {
	return tok != nil && tok.AccessToken != "" && ts.now().Before(tok.Expiry.Add(-expiryMargin))
}

// CurrentToken returns the access token if it is still valid by the expiry
// margin, else "". Callers must treat "" as "must re-authenticate".
func (ts *TokenSource) CurrentToken() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.validLocked(ts.token) {
		return ts.token.AccessToken
	}
	return ""
}

// RequestToken returns a valid token, running the interactive consent flow
// if none exists. At most one consent prompt is ever open: concurrent
// callers wait on the in-flight flow and share its outcome.
func (ts *TokenSource) RequestToken(ctx context.Context) (string, error) {
	if ts.cfg == nil {
		return "", domain.ErrConfig("oauth client ID is not configured")
	}

	ts.mu.Lock()
	if ts.validLocked(ts.token) {
		tok := ts.token.AccessToken
		ts.mu.Unlock()
		return tok, nil
	}

	if ts.pending != nil {
		// Another caller owns the consent flow; wait for its outcome.
		done := ts.pending
		ts.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		ts.mu.Lock()
		tok, err := ts.flowTok, ts.flowErr
		ts.mu.Unlock()
		if err != nil {
			return "", err
		}
		return tok.AccessToken, nil
	}

	done := make(chan struct{})
	ts.pending = done
	ts.mu.Unlock()

	tok, err := ts.consent(ctx, ts.cfg)
	if err != nil && !isAPIError(err) {
		err = domain.ErrConsent(fmt.Sprintf("consent flow failed: %v", err))
	}
	if err == nil && tok == nil {
		err = domain.ErrConsent("consent flow returned no token")
	}

	ts.mu.Lock()
	ts.flowTok, ts.flowErr = tok, err
	if err == nil {
		ts.token = tok
	}
	ts.pending = nil
	close(done)
	ts.mu.Unlock()

	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Revoke performs best-effort remote revocation and unconditionally clears
// the local token regardless of the remote outcome.
func (ts *TokenSource) Revoke(ctx context.Context) {
	ts.mu.Lock()
	tok := ts.token
	ts.token = nil
	ts.mu.Unlock()

	if tok == nil || tok.AccessToken == "" {
		return
	}

	form := url.Values{"token": {tok.AccessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		ts.logger.Warn("token revocation failed", slog.String("error", err.Error()))
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		ts.logger.Warn("token revocation rejected", slog.Int("status", resp.StatusCode))
	}
}

func isAPIError(err error) bool {
	_, ok := err.(*domain.APIError)
	return ok
}
