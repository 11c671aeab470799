// Package credentials resolves the effective API key, endpoint, and project
// settings for a provider call. Precedence, highest first: deployment config,
// caller-supplied config, persisted user settings.
package credentials

import (
	"strings"

	"github.com/winkai/studio-gateway/internal/config"
	"github.com/winkai/studio-gateway/internal/domain"
)

// Default endpoints per wire dialect.
const (
	DefaultOpenAIEndpoint    = "https://api.openai.com/v1"
	DefaultAnthropicEndpoint = "https://api.anthropic.com"
	DefaultGoogleEndpoint    = "https://generativelanguage.googleapis.com/v1beta"
)

// SettingsSource reads persisted user settings. A nil source is treated as
// an empty store.
type SettingsSource interface {
	Get(provider domain.ProviderID, key string) (string, error)
}

// Resolver builds per-call ProviderConfig bundles. It has no mutable state
// of its own; every method is a pure function of the deployment config and
// the settings source.
type Resolver struct {
	deploy   *config.Config
	settings SettingsSource
}

// New creates a resolver. settings may be nil.
func New(deploy *config.Config, settings SettingsSource) *Resolver {
	if deploy == nil {
		deploy = &config.Config{}
	}
	return &Resolver{deploy: deploy, settings: settings}
}

func (r *Resolver) stored(p domain.ProviderID, key string) string {
	if r.settings == nil {
		return ""
	}
	// A read failure degrades to "not set"; absence of a key is never fatal
	// at resolution time.
	v, err := r.settings.Get(p, key)
	if err != nil {
		return ""
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ResolveKey returns the effective API key for the provider, or "" when no
// source has one. An empty key is legitimate for the custom provider.
func (r *Resolver) ResolveKey(p domain.ProviderID) string {
	return firstNonEmpty(r.deployKey(p), r.stored(p, "api_key"))
}

func (r *Resolver) deployKey(p domain.ProviderID) string {
	switch p {
	case domain.ProviderOpenAI:
		return r.deploy.OpenAI.APIKey
	case domain.ProviderAnthropic:
		return r.deploy.Anthropic.APIKey
	case domain.ProviderGoogle:
		return r.deploy.Google.APIKey
	case domain.ProviderVertex:
		return r.deploy.Vertex.APIKey
	case domain.ProviderCustom:
		return r.deploy.Custom.APIKey
	}
	return ""
}

func (r *Resolver) deployEndpoint(p domain.ProviderID) string {
	switch p {
	case domain.ProviderOpenAI:
		return r.deploy.OpenAI.Endpoint
	case domain.ProviderAnthropic:
		return r.deploy.Anthropic.Endpoint
	case domain.ProviderGoogle:
		return r.deploy.Google.Endpoint
	case domain.ProviderVertex:
		return r.deploy.Vertex.Endpoint
	case domain.ProviderCustom:
		return r.deploy.Custom.Endpoint
	}
	return ""
}

// ResolveEndpoint returns the effective, normalized endpoint for the
// provider, falling back to the dialect default. The custom and vertex
// providers have no default; "" means no endpoint was configured.
func (r *Resolver) ResolveEndpoint(p domain.ProviderID) string {
	raw := firstNonEmpty(r.deployEndpoint(p), r.stored(p, "endpoint"), defaultEndpoint(p))
	return r.NormalizeEndpoint(p, raw)
}

func defaultEndpoint(p domain.ProviderID) string {
	switch p {
	case domain.ProviderOpenAI:
		return DefaultOpenAIEndpoint
	case domain.ProviderAnthropic:
		return DefaultAnthropicEndpoint
	case domain.ProviderGoogle:
		return DefaultGoogleEndpoint
	}
	return ""
}

// APIType returns the wire dialect for a provider.
func APIType(p domain.ProviderID) domain.APIType {
	switch p {
	case domain.ProviderAnthropic:
		return domain.APITypeAnthropic
	case domain.ProviderGoogle, domain.ProviderVertex:
		return domain.APITypeGoogle
	default:
		return domain.APITypeOpenAI
	}
}

// NormalizeEndpoint strips trailing slashes. For the Anthropic dialect it
// additionally strips a trailing /v1 segment, since the client appends its
// own version path and double-appending must be prevented. The function is
// idempotent.
func (r *Resolver) NormalizeEndpoint(p domain.ProviderID, raw string) string {
	e := strings.TrimRight(raw, "/")
	if APIType(p) == domain.APITypeAnthropic {
		e = strings.TrimSuffix(e, "/v1")
		e = strings.TrimRight(e, "/")
	}
	return e
}

// JoinRelay concatenates a CORS relay prefix and an endpoint with exactly
// one separating slash, regardless of how either side is written.
func JoinRelay(relay, endpoint string) string {
	if relay == "" {
		return endpoint
	}
	return strings.TrimRight(relay, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

// Resolve builds the immutable per-call bundle for a provider. caller may
// be nil; its fields sit between deployment config and persisted settings
// in precedence.
func (r *Resolver) Resolve(p domain.ProviderID, caller *domain.ProviderConfig) *domain.ProviderConfig {
	if caller == nil {
		caller = &domain.ProviderConfig{}
	}

	cfg := &domain.ProviderConfig{
		APIType: APIType(p),
		APIKey:  firstNonEmpty(r.deployKey(p), caller.APIKey, r.stored(p, "api_key")),
	}

	endpoint := firstNonEmpty(
		r.deployEndpoint(p),
		caller.Endpoint,
		r.stored(p, "endpoint"),
		defaultEndpoint(p),
	)
	cfg.Endpoint = r.NormalizeEndpoint(p, endpoint)

	switch p {
	case domain.ProviderCustom:
		cfg.CORSProxyURL = firstNonEmpty(
			r.deploy.Custom.CORSProxyURL,
			caller.CORSProxyURL,
			r.stored(p, "cors_proxy_url"),
		)
	case domain.ProviderVertex:
		cfg.ProjectID = firstNonEmpty(
			r.deploy.Vertex.ProjectID,
			caller.ProjectID,
			r.stored(p, "project_id"),
		)
		cfg.Location = firstNonEmpty(
			r.deploy.Vertex.Location,
			caller.Location,
			r.stored(p, "location"),
		)
	}

	return cfg
}
