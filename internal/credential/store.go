package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"

	"rulemate/internal/config"
)

// DefaultTokenKey is the keyring key holding the OAuth token.
const DefaultTokenKey = "gmail-oauth-token"

// ErrNoToken is returned when no token has been stored yet.
var ErrNoToken = errors.New("no stored token")

// TokenStore persists an OAuth token between runs.
type TokenStore interface {
	Load() (*oauth2.Token, error)
	Save(token *oauth2.Token) error
}

// OpenKeyring opens the system keyring with the configured backends.
func OpenKeyring(cfg config.CredentialConfig) (keyring.Keyring, error) {
	backends := make([]keyring.BackendType, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		backends = append(backends, keyring.BackendType(strings.TrimSpace(b)))
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              cfg.ServiceName,
		AllowedBackends:          backends,
		FileDir:                  cfg.FileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(cfg.FilePassword),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// KeyringStore keeps the token as JSON under one keyring key.
type KeyringStore struct {
	ring keyring.Keyring
	key  string
}

// NewKeyringStore creates a store on ring. An empty key uses DefaultTokenKey.
func NewKeyringStore(ring keyring.Keyring, key string) *KeyringStore {
	if key == "" {
		key = DefaultTokenKey
	}
	return &KeyringStore{ring: ring, key: key}
}

// Load implements TokenStore.
func (s *KeyringStore) Load() (*oauth2.Token, error) {
	item, err := s.ring.Get(s.key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("getting credential %q: %w", s.key, err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(item.Data, &token); err != nil {
		return nil, fmt.Errorf("decoding credential %q: %w", s.key, err)
	}
	return &token, nil
}

// Save implements TokenStore.
func (s *KeyringStore) Save(token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding credential %q: %w", s.key, err)
	}

	err = s.ring.Set(keyring.Item{
		Key:         s.key,
		Data:        data,
		Label:       "rulemate Gmail token",
		Description: "OAuth2 token used by rulemate",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", s.key, err)
	}
	return nil
}
