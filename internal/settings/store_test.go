package settings

import (
	"path/filepath"
	"testing"

	"github.com/winkai/studio-gateway/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetGet(t *testing.T) {
	s := newTestStore(t)

	if err := s.Set(domain.ProviderOpenAI, KeyAPIKey, "sk-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := s.Get(domain.ProviderOpenAI, KeyAPIKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "sk-1" {
		t.Errorf("Get = %q, want sk-1", got)
	}
}

func TestGetMissingIsEmpty(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Get(domain.ProviderAnthropic, KeyEndpoint)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "" {
		t.Errorf("Get = %q, want empty for missing key", got)
	}
}

func TestSetOverwrites(t *testing.T) {
	s := newTestStore(t)

	if err := s.Set(domain.ProviderVertex, KeyProjectID, "old"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(domain.ProviderVertex, KeyProjectID, "new"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, _ := s.Get(domain.ProviderVertex, KeyProjectID)
	if got != "new" {
		t.Errorf("Get = %q, want new", got)
	}
}

func TestKeysScopedByProvider(t *testing.T) {
	s := newTestStore(t)

	s.Set(domain.ProviderOpenAI, KeyAPIKey, "openai-key")
	s.Set(domain.ProviderCustom, KeyAPIKey, "custom-key")

	if got, _ := s.Get(domain.ProviderOpenAI, KeyAPIKey); got != "openai-key" {
		t.Errorf("openai key = %q", got)
	}
	if got, _ := s.Get(domain.ProviderCustom, KeyAPIKey); got != "custom-key" {
		t.Errorf("custom key = %q", got)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	s.Set(domain.ProviderGoogle, KeyAPIKey, "g-key")
	if err := s.Delete(domain.ProviderGoogle, KeyAPIKey); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	got, err := s.Get(domain.ProviderGoogle, KeyAPIKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "" {
		t.Errorf("Get = %q after delete", got)
	}

	// Deleting an absent key is not an error.
	if err := s.Delete(domain.ProviderGoogle, KeyAPIKey); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}
