// Package auth provides API-key verification and access-token management
// for the chat relay's own HTTP surface.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// AccessTokenLifetime is how long issued access tokens stay valid.
const AccessTokenLifetime = 30 * 24 * time.Hour

// Service manages issued access tokens.
type Service struct {
	isAuthenticated bool
	accessTokens    map[string]AccessToken
	mutex           sync.RWMutex
}

// AccessToken represents an issued token; only its hash is stored.
type AccessToken struct {
	ID        string
	UserID    uint64
	Hash      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewService creates and returns a new instance of the Service struct.
func NewService() *Service {
	return &Service{
		accessTokens: make(map[string]AccessToken),
	}
}

// GetStatus returns the authentication status of the service.
func (s *Service) GetStatus() string {
	if s.isAuthenticated {
		return "Authenticated"
	}
	return "Not Authenticated"
}

// Authenticate sets the service's authentication status to true if not already authenticated.
func (s *Service) Authenticate() error {
	if s.isAuthenticated {
		return errors.New("already authenticated")
	}
	s.isAuthenticated = true
	return nil
}

// VerifyAppAPIKey checks a key against the VALID_API_KEYS environment
// variable, a comma-separated list of keys accepted by this relay. Setting
// DISABLE_AUTH to "true" or "1" bypasses verification entirely.
func VerifyAppAPIKey(apiKey string) bool {
	if disableAuth := os.Getenv("DISABLE_AUTH"); disableAuth == "true" || disableAuth == "1" {
		return true
	}

	validKeys := os.Getenv("VALID_API_KEYS")
	if validKeys == "" {
		return false
	}

	for _, key := range strings.Split(validKeys, ",") {
		if apiKey == strings.TrimSpace(key) {
			return true
		}
	}
	return false
}

// GenerateAccessToken creates a new access token for a user and returns the
// plaintext token. The stored record keeps only its hash.
func (s *Service) GenerateAccessToken(userID uint64) (string, error) {
	token := RandomToken()
	id := fmt.Sprintf("tok_%s", RandomToken()[:10])

	s.mutex.Lock()
	s.accessTokens[id] = AccessToken{
		ID:        id,
		UserID:    userID,
		Hash:      HashAccessToken(token),
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(AccessTokenLifetime),
	}
	s.mutex.Unlock()

	return token, nil
}

// VerifyAccessToken checks if an access token is valid for the user.
func (s *Service) VerifyAccessToken(token string, userID uint64) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tokenHash := HashAccessToken(token)
	for _, stored := range s.accessTokens {
		if stored.UserID == userID && stored.Hash == tokenHash {
			return time.Now().Before(stored.ExpiresAt)
		}
	}
	return false
}

// RandomToken generates a random token for authentication.
func RandomToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}

// HashAccessToken hashes an access token using SHA-256.
func HashAccessToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return "$sha256$" + base64.URLEncoding.EncodeToString(hash[:])
}
