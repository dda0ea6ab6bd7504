// Package credential supplies valid OAuth2 tokens for the Gmail mailbox.
package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
)

// GmailScopes are the scopes needed to read and modify messages and labels.
var GmailScopes = []string{gmail.GmailModifyScope}

// Provider loads the stored token, refreshes it when it expires and writes
// every new access token back to the store.
type Provider struct {
	oauth        *oauth2.Config
	store        TokenStore
	refreshToken string
	log          logrus.FieldLogger
}

// NewProvider creates a provider. refreshToken seeds the store when it holds
// no token yet.
func NewProvider(oauth *oauth2.Config, store TokenStore, refreshToken string, log logrus.FieldLogger) *Provider {
	return &Provider{oauth: oauth, store: store, refreshToken: refreshToken, log: log}
}

// TokenSource returns a token source for scopes that persists refreshed
// tokens.
func (p *Provider) TokenSource(ctx context.Context, scopes ...string) (oauth2.TokenSource, error) {
	token, err := p.store.Load()
	switch {
	case errors.Is(err, ErrNoToken):
		if p.refreshToken == "" {
			return nil, fmt.Errorf("no stored credential and no refresh token configured; run tools/get_token.go first")
		}
		p.log.Info("Seeding credential from configured refresh token")
		token = &oauth2.Token{RefreshToken: p.refreshToken}
	case err != nil:
		return nil, err
	}

	cfg := *p.oauth
	if len(scopes) > 0 {
		cfg.Scopes = scopes
	}

	return &persistingTokenSource{
		src:     cfg.TokenSource(ctx, token),
		current: token,
		store:   p.store,
		log:     p.log,
	}, nil
}

// ValidToken returns a token that is valid now, refreshing it if needed.
func (p *Provider) ValidToken(ctx context.Context, scopes ...string) (*oauth2.Token, error) {
	ts, err := p.TokenSource(ctx, scopes...)
	if err != nil {
		return nil, err
	}
	token, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain valid token: %w", err)
	}
	return token, nil
}

type persistingTokenSource struct {
	src   oauth2.TokenSource
	store TokenStore
	log   logrus.FieldLogger

	mu      sync.Mutex
	current *oauth2.Token
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.store.Save(t); err != nil {
			s.log.WithError(err).Error("Failed to persist refreshed token")
		} else {
			s.log.WithField("expiry", t.Expiry).Debug("Persisted refreshed token")
		}
	}
	return t, nil
}
