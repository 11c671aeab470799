// Package domain defines the canonical types shared by every provider
// adapter: the request shapes handed to an adapter and the event stream it
// yields back.
package domain

import (
	"context"
	"time"
)

// ProviderID identifies which credential rules and adapter handle a call.
type ProviderID string

const (
	ProviderOpenAI    ProviderID = "openai"
	ProviderAnthropic ProviderID = "anthropic"
	ProviderGoogle    ProviderID = "google"
	ProviderVertex    ProviderID = "vertex"
	ProviderCustom    ProviderID = "custom"
)

// Valid reports whether the ID names a known provider.
func (p ProviderID) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderVertex, ProviderCustom:
		return true
	}
	return false
}

// APIType identifies the wire dialect a provider speaks.
type APIType string

const (
	APITypeOpenAI    APIType = "openai"
	APITypeAnthropic APIType = "anthropic"
	APITypeGoogle    APIType = "google"
)

// Message is one turn of a conversation. Images, when present, are data
// URLs (`data:<mime>;base64,...`) and are passed to adapters as-is.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ProviderConfig is the resolved, per-call credential bundle. It is built
// fresh for every call and never mutated after construction.
type ProviderConfig struct {
	APIKey       string  `json:"api_key,omitempty"`
	Endpoint     string  `json:"endpoint,omitempty"`
	APIType      APIType `json:"api_type,omitempty"`
	CORSProxyURL string  `json:"cors_proxy_url,omitempty"`
	ProjectID    string  `json:"project_id,omitempty"`
	Location     string  `json:"location,omitempty"`
}

// Mode selects which vendor call shape an adapter uses.
type Mode string

const (
	ModeChat  Mode = "chat"
	ModeImage Mode = "image"
	ModeVideo Mode = "video"
)

// ImageParams carries image-generation parameters.
type ImageParams struct {
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
}

// VideoParams carries video-generation parameters. ReferenceImage, when
// set, is a data URL used as the first frame.
type VideoParams struct {
	AspectRatio    string `json:"aspect_ratio,omitempty"`
	Resolution     string `json:"resolution,omitempty"`
	DurationSecs   int    `json:"duration_secs,omitempty"`
	WithAudio      bool   `json:"with_audio,omitempty"`
	ReferenceImage string `json:"reference_image,omitempty"`
}

// GenerationOptions is the read-only option set for one adapter call.
// Mode, when set, overrides model-name inference.
type GenerationOptions struct {
	Temperature  float64      `json:"temperature,omitempty"`
	MaxTokens    int          `json:"max_tokens,omitempty"`
	EnableSearch bool         `json:"enable_search,omitempty"`
	Mode         Mode         `json:"mode,omitempty"`
	Image        *ImageParams `json:"image,omitempty"`
	Video        *VideoParams `json:"video,omitempty"`
}

// Usage reports token consumption for a completed call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// EventType tags a canonical stream event.
type EventType string

const (
	EventContent EventType = "content"
	EventUsage   EventType = "usage"
	EventDone    EventType = "done"
)

// Event is the only thing adapters may emit. A healthy stream is zero or
// more content/usage events followed by exactly one done event, after which
// the channel closes. An event carrying Err terminates the stream in place
// of done.
type Event struct {
	Type    EventType `json:"type"`
	Content string    `json:"content,omitempty"`
	Usage   *Usage    `json:"usage,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Err     error     `json:"-"`
}

// ContentEvent builds a content event.
func ContentEvent(text string) Event {
	return Event{Type: EventContent, Content: text}
}

// UsageEvent builds a usage event.
func UsageEvent(u *Usage) Event {
	return Event{Type: EventUsage, Usage: u}
}

// DoneEvent builds the terminal event for a stream.
func DoneEvent(reason string) Event {
	return Event{Type: EventDone, Reason: reason}
}

// Emit delivers ev to out unless ctx is canceled first, and reports
// whether the event was delivered. Producers must stop emitting once
// this returns false; a consumer that abandoned the channel never
// strands a goroutine on the send.
func Emit(ctx context.Context, out chan<- Event, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// ChatResult is the eager form of a drained stream.
type ChatResult struct {
	Content string `json:"content"`
	Role    string `json:"role"`
	Usage   *Usage `json:"usage,omitempty"`
}

// ModelInfo is one entry in a provider's model listing.
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProbeResult is the outcome of a connectivity probe. The probe entry point
// always returns a ProbeResult, never an error.
type ProbeResult struct {
	Success      bool          `json:"success"`
	ResponseTime time.Duration `json:"response_time"`
	Models       []ModelInfo   `json:"models,omitempty"`
	Message      string        `json:"message,omitempty"`
	Error        string        `json:"error,omitempty"`
}
