// Package settings is the SQLite-backed key/value store for user-persisted
// provider settings. It is the lowest-precedence credential source: values
// here lose to caller-supplied config and to deployment config.
package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/winkai/studio-gateway/internal/domain"
)

// Well-known setting keys.
const (
	KeyAPIKey       = "api_key"
	KeyEndpoint     = "endpoint"
	KeyCORSProxyURL = "cors_proxy_url"
	KeyProjectID    = "project_id"
	KeyLocation     = "location"
)

// Store persists per-provider settings.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the settings database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS provider_settings (
		provider TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (provider, key)
	)`)
	return err
}

// Get returns the stored value for (provider, key), or "" when absent.
func (s *Store) Get(provider domain.ProviderID, key string) (string, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM provider_settings WHERE provider = ? AND key = ?`,
		string(provider), key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s/%s: %w", provider, key, err)
	}
	return value, nil
}

// Set stores a value for (provider, key), replacing any previous value.
func (s *Store) Set(provider domain.ProviderID, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO provider_settings (provider, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(provider, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		string(provider), key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write setting %s/%s: %w", provider, key, err)
	}
	return nil
}

// Delete removes a stored value. Deleting an absent key is not an error.
func (s *Store) Delete(provider domain.ProviderID, key string) error {
	_, err := s.db.Exec(
		`DELETE FROM provider_settings WHERE provider = ? AND key = ?`,
		string(provider), key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s/%s: %w", provider, key, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
