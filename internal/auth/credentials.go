package auth

import (
	"fmt"
	"time"
)

const credentialsKey = "credentials"

// TokenSet is the credential set of the installation.
// An empty RefreshToken means the set cannot be renewed and re-authentication is required on expiry.
type TokenSet struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Memento is the durable scope the credentials are kept in.
type Memento interface {
	Get(key string, value any) (bool, error)
	Update(key string, value any) error
	Delete(key string) error
}

// CredentialStore persists the token set. It holds no logic beyond load and save.
type CredentialStore struct {
	memento Memento
}

// NewCredentialStore creates a credential store over the given memento.
func NewCredentialStore(memento Memento) *CredentialStore {
	return &CredentialStore{memento: memento}
}

// Load returns the stored token set, or nil when none is stored.
func (c *CredentialStore) Load() (*TokenSet, error) {
	var token TokenSet
	found, err := c.memento.Get(credentialsKey, &token)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if !found || token.AccessToken == "" {
		return nil, nil
	}
	return &token, nil
}

// Save replaces the stored token set.
func (c *CredentialStore) Save(token *TokenSet) error {
	if err := c.memento.Update(credentialsKey, token); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// Clear removes the stored token set.
func (c *CredentialStore) Clear() error {
	if err := c.memento.Delete(credentialsKey); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}
