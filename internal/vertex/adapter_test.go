package vertex

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/winkai/studio-gateway/internal/domain"
)

type staticToken string

func (s staticToken) CurrentToken() string { return string(s) }

func streamBody(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"ok\"}]},\"finishReason\":\"STOP\"}]}\n\n")
}

func drain(t *testing.T, events <-chan domain.Event) []domain.Event {
	t.Helper()
	var got []domain.Event
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
		got = append(got, ev)
	}
	return got
}

func TestNewRequiresProjectID(t *testing.T) {
	_, err := New(&domain.ProviderConfig{Location: "us-central1"})
	if err == nil {
		t.Fatal("expected config error")
	}
	apiErr, ok := err.(*domain.APIError)
	if !ok || apiErr.Type != domain.ErrorTypeConfig {
		t.Errorf("error = %v, want config error", err)
	}
}

func TestRegionFallbackAndPinning(t *testing.T) {
	var europeCalls, centralCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/locations/europe-west4/"):
			europeCalls++
			http.Error(w, `{"error":{"code":404,"message":"model not found"}}`, http.StatusNotFound)
		case strings.Contains(r.URL.Path, "/locations/us-central1/"):
			centralCalls++
			streamBody(w)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a, err := New(&domain.ProviderConfig{
		ProjectID: "proj-1",
		Location:  "europe-west4",
		Endpoint:  srv.URL,
		APIKey:    "vk",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	msgs := []domain.Message{{Role: "user", Content: "hi"}}

	events, err := a.StreamChat(context.Background(), msgs, "gemini-2.5-flash", nil)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	drain(t, events)

	if europeCalls != 1 || centralCalls != 1 {
		t.Fatalf("calls = %d europe, %d central; want exactly one each", europeCalls, centralCalls)
	}

	// The successful fallback pins the region; the second call skips the
	// configured region entirely.
	events, err = a.StreamChat(context.Background(), msgs, "gemini-2.5-flash", nil)
	if err != nil {
		t.Fatalf("second StreamChat: %v", err)
	}
	drain(t, events)

	if europeCalls != 1 {
		t.Errorf("europe calls = %d after pinning, want 1", europeCalls)
	}
	if centralCalls != 2 {
		t.Errorf("central calls = %d, want 2", centralCalls)
	}
}

func TestNoSecondFallbackFromDefaultRegion(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error":{"code":404}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	a, err := New(&domain.ProviderConfig{
		ProjectID: "proj-1",
		Location:  "us-central1",
		Endpoint:  srv.URL,
		APIKey:    "vk",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = a.StreamChat(context.Background(), []domain.Message{{Role: "user", Content: "hi"}}, "gemini-2.5-flash", nil)
	if err == nil {
		t.Fatal("expected not-found error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry from the default region)", calls)
	}
	apiErr, ok := err.(*domain.APIError)
	if !ok || apiErr.Type != domain.ErrorTypeNotFound {
		t.Errorf("error = %v, want not_found", err)
	}
}

func TestAuthPrefersToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "" {
			t.Errorf("x-goog-api-key = %q, want unset when a token exists", got)
		}
		streamBody(w)
	}))
	defer srv.Close()

	a, err := New(&domain.ProviderConfig{ProjectID: "proj-1", Endpoint: srv.URL, APIKey: "vk"},
		WithTokenProvider(staticToken("tok-1")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events, err := a.StreamChat(context.Background(), []domain.Message{{Role: "user", Content: "hi"}}, "gemini-2.5-flash", nil)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	drain(t, events)
}

func TestAuthFallsBackToKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-goog-api-key"); got != "vk" {
			t.Errorf("x-goog-api-key = %q", got)
		}
		streamBody(w)
	}))
	defer srv.Close()

	// An expired token source yields "", which falls through to the key.
	a, err := New(&domain.ProviderConfig{ProjectID: "proj-1", Endpoint: srv.URL, APIKey: "vk"},
		WithTokenProvider(staticToken("")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events, err := a.StreamChat(context.Background(), []domain.Message{{Role: "user", Content: "hi"}}, "gemini-2.5-flash", nil)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	drain(t, events)
}

func TestNoCredentialsIsConfigError(t *testing.T) {
	a, err := New(&domain.ProviderConfig{ProjectID: "proj-1", Endpoint: "http://unused.invalid"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = a.StreamChat(context.Background(), []domain.Message{{Role: "user", Content: "hi"}}, "gemini-2.5-flash", nil)
	apiErr, ok := err.(*domain.APIError)
	if !ok || apiErr.Type != domain.ErrorTypeConfig {
		t.Errorf("error = %v, want config error before any network call", err)
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/publishers/google/models") {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"publisherModels":[{"name":"publishers/google/models/gemini-2.5-pro","displayName":"Gemini 2.5 Pro"}]}`)
	}))
	defer srv.Close()

	a, err := New(&domain.ProviderConfig{ProjectID: "proj-1", Endpoint: srv.URL, APIKey: "vk"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	models, err := a.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 1 || models[0].ID != "gemini-2.5-pro" || models[0].Name != "Gemini 2.5 Pro" {
		t.Errorf("models = %+v", models)
	}
}
