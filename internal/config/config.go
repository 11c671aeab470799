// Package config loads deployment configuration: an optional YAML file
// overlaid by WINK_-prefixed environment variables. Values set here are
// immutable for the process lifetime and win unconditionally over anything
// the user persisted in settings.
package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig   `koanf:"server"`
	OpenAI    ProviderConfig `koanf:"openai"`
	Anthropic ProviderConfig `koanf:"anthropic"`
	Google    ProviderConfig `koanf:"google"`
	Vertex    VertexConfig   `koanf:"vertex"`
	Custom    CustomConfig   `koanf:"custom"`
	OAuth     OAuthConfig    `koanf:"oauth"`
	Relay     RelayConfig    `koanf:"relay"`
	Settings  SettingsConfig `koanf:"settings"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

// ProviderConfig holds the deployment-injected key and endpoint override
// for one provider.
type ProviderConfig struct {
	APIKey   string `koanf:"api_key"`
	Endpoint string `koanf:"endpoint"`
}

// VertexConfig extends the provider config with the project identifier and
// region. ProjectID is the one mandatory field before any Vertex call.
type VertexConfig struct {
	APIKey    string `koanf:"api_key"`
	Endpoint  string `koanf:"endpoint"`
	ProjectID string `koanf:"project_id"`
	Location  string `koanf:"location"`
}

// CustomConfig configures the OpenAI-compatible custom provider. Endpoint
// is mandatory for the provider to be usable; CORSProxyURL is an optional
// relay prefix prepended to every request URL.
type CustomConfig struct {
	APIKey       string `koanf:"api_key"`
	Endpoint     string `koanf:"endpoint"`
	CORSProxyURL string `koanf:"cors_proxy_url"`
}

// OAuthConfig identifies the OAuth client used for delegated Google
// authorization. An empty ClientID leaves the token source permanently
// unable to issue tokens, which is a steady state rather than an error.
type OAuthConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	RedirectURL  string `koanf:"redirect_url"`
}

// RelayConfig names the single fixed upstream the CORS relay forwards to.
type RelayConfig struct {
	Upstream string `koanf:"upstream"`
}

type SettingsConfig struct {
	Path string `koanf:"path"`
}

// Load reads the optional YAML file at path (skipped when absent), then
// overlays environment variables. WINK_VERTEX_PROJECT_ID maps to
// vertex.project_id and so on.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	// Only the first underscore becomes a separator, so
	// WINK_VERTEX_PROJECT_ID maps to vertex.project_id.
	if err := k.Load(env.Provider("WINK_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "WINK_")), "_", ".", 1)
	}), nil); err != nil {
		return nil, err
	}

	// Defaults
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("vertex.location") {
		k.Set("vertex.location", "us-central1")
	}
	if !k.Exists("settings.path") {
		k.Set("settings.path", "winkai.db")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
