package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/winkai/studio-gateway/internal/domain"
	"github.com/winkai/studio-gateway/internal/testutil"
)

func sseServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func collect(t *testing.T, events <-chan domain.Event) []domain.Event {
	t.Helper()
	var got []domain.Event
	for ev := range events {
		got = append(got, ev)
	}
	return got
}

func TestStreamChatDeltas(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"He"}}]}`,
		`{"choices":[{"delta":{"content":"llo"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	})
	defer srv.Close()

	a, err := New("openai", &domain.ProviderConfig{APIKey: "sk-test", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events, err := a.StreamChat(context.Background(), []domain.Message{{Role: "user", Content: "hi"}}, "gpt-4o-mini", nil)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	got := collect(t, events)

	want := []domain.Event{
		{Type: domain.EventContent, Content: "He"},
		{Type: domain.EventContent, Content: "llo"},
		{Type: domain.EventDone, Reason: "stop"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].Type != want[i].Type || got[i].Content != want[i].Content || got[i].Reason != want[i].Reason {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestStreamChatUsage(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"hi"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`{"choices":[],"usage":{"prompt_tokens":5,"completion_tokens":1,"total_tokens":6}}`,
	})
	defer srv.Close()

	a, err := New("openai", &domain.ProviderConfig{APIKey: "sk-test", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events, err := a.StreamChat(context.Background(), []domain.Message{{Role: "user", Content: "hi"}}, "gpt-4o-mini", nil)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	got := collect(t, events)

	if len(got) != 3 {
		t.Fatalf("got %d events: %+v", len(got), got)
	}
	if got[1].Type != domain.EventUsage || got[1].Usage == nil || got[1].Usage.TotalTokens != 6 {
		t.Errorf("expected usage event before done, got %+v", got[1])
	}
	if got[2].Type != domain.EventDone {
		t.Errorf("expected terminal done event, got %+v", got[2])
	}
}

func TestStreamChatSkipsMalformedFrames(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"ok"}}]}`,
		`{not json`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	})
	defer srv.Close()

	a, err := New("openai", &domain.ProviderConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events, err := a.StreamChat(context.Background(), []domain.Message{{Role: "user", Content: "hi"}}, "gpt-4o-mini", nil)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	got := collect(t, events)

	if len(got) != 2 {
		t.Fatalf("got %d events, want content+done: %+v", len(got), got)
	}
	if got[0].Content != "ok" || got[1].Type != domain.EventDone {
		t.Errorf("unexpected events: %+v", got)
	}
}

func TestStreamChatVendorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	a, err := New("openai", &domain.ProviderConfig{APIKey: "bad", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = a.StreamChat(context.Background(), []domain.Message{{Role: "user", Content: "hi"}}, "gpt-4o-mini", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*domain.APIError)
	if !ok {
		t.Fatalf("expected *domain.APIError, got %T", err)
	}
	if apiErr.Type != domain.ErrorTypeAuthentication || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("error = %+v, want authentication with status 401", apiErr)
	}
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New("custom", &domain.ProviderConfig{APIKey: "k"})
	if err == nil {
		t.Fatal("expected config error for missing endpoint")
	}
	apiErr, ok := err.(*domain.APIError)
	if !ok || apiErr.Type != domain.ErrorTypeConfig {
		t.Errorf("error = %v, want config error", err)
	}
}

func TestNewAppliesRelayPrefix(t *testing.T) {
	a, err := New("custom", &domain.ProviderConfig{
		Endpoint:     "https://api.example.com",
		CORSProxyURL: "https://relay.example/",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.baseURL != "https://relay.example/https://api.example.com" {
		t.Errorf("baseURL = %q", a.baseURL)
	}
}

func TestToAPIMessagesImages(t *testing.T) {
	msgs := []domain.Message{
		{Role: "user", Content: "what is this", Images: []string{"data:image/png;base64,QUJD"}},
	}
	out := toAPIMessages(msgs)
	if len(out) != 1 {
		t.Fatalf("got %d messages", len(out))
	}

	parts, ok := out[0].Content.([]contentPart)
	if !ok {
		t.Fatalf("content is %T, want parts", out[0].Content)
	}
	if len(parts) != 2 || parts[0].Type != "text" || parts[1].Type != "image_url" {
		t.Errorf("unexpected parts: %+v", parts)
	}
	if parts[1].ImageURL.URL != "data:image/png;base64,QUJD" {
		t.Errorf("image URL not passed through: %q", parts[1].ImageURL.URL)
	}

	// Round-trips through JSON as the vendor expects.
	raw, err := json.Marshal(out[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) == "" {
		t.Fatal("empty payload")
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `{"data":[{"id":"gpt-4o-mini"},{"id":"gpt-4o"}]}`)
	}))
	defer srv.Close()

	a, err := New("openai", &domain.ProviderConfig{APIKey: "sk-test", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	models, err := a.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 || models[0].ID != "gpt-4o-mini" {
		t.Errorf("models = %+v", models)
	}
}

func TestListModelsRecorded(t *testing.T) {
	rec, cleanup := testutil.NewRecorder(t, "models")
	defer cleanup()

	a, err := New("openai",
		&domain.ProviderConfig{APIKey: "sk-test", Endpoint: "https://api.openai.com/v1"},
		WithHTTPClient(testutil.HTTPClient(rec)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	models, err := a.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 3 || models[0].ID != "gpt-4o-mini" {
		t.Errorf("models = %+v", models)
	}
}

func TestStreamChatAbandonedConsumer(t *testing.T) {
	frames := make([]string, 0, 51)
	for i := 0; i < 50; i++ {
		frames = append(frames, `{"choices":[{"delta":{"content":"x"}}]}`)
	}
	frames = append(frames, `{"choices":[{"delta":{},"finish_reason":"stop"}]}`)
	srv := sseServer(t, frames)
	defer srv.Close()

	// Keep-alive would park idle transport and server goroutines past the
	// deadline below; disable it so the count can return to baseline.
	client := srv.Client()
	client.Transport.(*http.Transport).DisableKeepAlives = true

	a, err := New("openai",
		&domain.ProviderConfig{APIKey: "sk-test", Endpoint: srv.URL},
		WithHTTPClient(client))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	before := runtime.NumGoroutine()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := a.StreamChat(ctx, []domain.Message{{Role: "user", Content: "hi"}}, "gpt-4o-mini", nil)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	// Read one event, then walk away without draining the rest.
	<-events
	cancel()

	// The producer goroutines must unwind once the context is canceled.
	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines leaked after abandoning the stream: %d, started with %d",
				runtime.NumGoroutine(), before)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
