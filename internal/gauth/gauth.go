// Copyright (c) 2026 Mina Ibrahim
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gauth manages the Gmail OAuth credential. The token lives at
// exactly one path, resolved at startup; there is no multi-location
// probing or credential copying at runtime.
package gauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/minaibrahim89/tradingview-signal-generator/internal/config"
	"github.com/minaibrahim89/tradingview-signal-generator/internal/gmail"
)

// Manager owns the OAuth client configuration and the persisted token.
type Manager struct {
	config    *oauth2.Config
	tokenPath string

	mu sync.Mutex // serialises token file writes
}

// NewManager builds a manager from the Gmail section of the config.
func NewManager(cfg config.GmailConfig) *Manager {
	return &Manager{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.ReadonlyScope},
		},
		tokenPath: cfg.TokenPath,
	}
}

// Configured reports whether an OAuth client id and secret are present.
func (m *Manager) Configured() bool {
	return m.config.ClientID != "" && m.config.ClientSecret != ""
}

// Authorized reports whether a stored token exists and parses.
func (m *Manager) Authorized() bool {
	_, err := m.Token()
	return err == nil
}

// TokenPath returns the configured token location.
func (m *Manager) TokenPath() string {
	return m.tokenPath
}

// Token loads the persisted token.
func (m *Manager) Token() (*oauth2.Token, error) {
	data, err := os.ReadFile(m.tokenPath)
	if err != nil {
		return nil, fmt.Errorf("read token %s: %w", m.tokenPath, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token %s: %w", m.tokenPath, err)
	}
	return &tok, nil
}

// SaveToken persists a token to the configured path.
func (m *Manager) SaveToken(tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := os.WriteFile(m.tokenPath, data, 0o600); err != nil {
		return fmt.Errorf("write token %s: %w", m.tokenPath, err)
	}
	return nil
}

// Reset removes the stored token, forcing re-authorization.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token %s: %w", m.tokenPath, err)
	}
	return nil
}

// AuthCodeURL builds the consent URL for the given state token. Offline
// access is requested so a refresh token comes back.
func (m *Manager) AuthCodeURL(state string) string {
	return m.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange swaps an authorization code for a token and persists it.
func (m *Manager) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := m.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	if err := m.SaveToken(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// Client returns an HTTP client that authorizes requests with the stored
// token, refreshing it as needed and persisting refreshed tokens.
func (m *Manager) Client(ctx context.Context) (*http.Client, error) {
	tok, err := m.Token()
	if err != nil {
		return nil, err
	}

	src := &persistingTokenSource{
		mgr:     m,
		src:     m.config.TokenSource(ctx, tok),
		current: tok,
	}
	return oauth2.NewClient(ctx, src), nil
}

// persistingTokenSource writes refreshed tokens back to disk so a
// restart does not lose them.
type persistingTokenSource struct {
	mgr     *Manager
	src     oauth2.TokenSource
	mu      sync.Mutex
	current *oauth2.Token
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	refreshed := s.current == nil || s.current.AccessToken != tok.AccessToken
	s.current = tok
	s.mu.Unlock()

	if refreshed {
		if err := s.mgr.SaveToken(tok); err != nil {
			slog.Error("failed to persist refreshed token", "error", err)
		}
	}
	return tok, nil
}
