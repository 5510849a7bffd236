// Package auth supplies bearer tokens for the remote store and guards
// the local HTTP surface. Token acquisition (OAuth flows, refresh) lives
// outside this process; we only consume whatever token the environment
// hands us.
package auth

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrNoToken means no credential is currently available. Sync treats it
// like an unauthorized remote: defer silently, keep local state intact.
var ErrNoToken = errors.New("auth: no access token available")

// TokenProvider yields the current bearer token for the remote store.
type TokenProvider interface {
	// GetAccessToken returns a token or ErrNoToken.
	GetAccessToken() (string, error)
	// IsAvailable reports whether a token can be produced right now
	// without performing any network work.
	IsAvailable() bool
}

// Static holds a fixed token, mainly for tests and dry runs.
type Static struct {
	Token string
}

func (s Static) GetAccessToken() (string, error) {
	if s.Token == "" {
		return "", ErrNoToken
	}
	return s.Token, nil
}

func (s Static) IsAvailable() bool { return s.Token != "" }

// EnvProvider reads the token from an environment variable on every
// call, so an external refresher can rotate it without restarting us.
type EnvProvider struct {
	Var string

	mu   sync.Mutex
	last string
}

// NewEnvProvider defaults to CHATSYNC_ACCESS_TOKEN.
func NewEnvProvider(envVar string) *EnvProvider {
	if envVar == "" {
		envVar = "CHATSYNC_ACCESS_TOKEN"
	}
	return &EnvProvider{Var: envVar}
}

func (p *EnvProvider) GetAccessToken() (string, error) {
	tok := strings.TrimSpace(os.Getenv(p.Var))
	if tok == "" {
		return "", ErrNoToken
	}
	p.mu.Lock()
	p.last = tok
	p.mu.Unlock()
	return tok, nil
}

func (p *EnvProvider) IsAvailable() bool {
	return strings.TrimSpace(os.Getenv(p.Var)) != ""
}
