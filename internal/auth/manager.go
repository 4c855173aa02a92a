// Package auth acquires, applies, refreshes and revokes credentials for
// connectors. One Manager owns the credentials of every registered
// connector, keyed by connector id; scheme-specific behaviour lives in
// handlers selected from core.AuthScheme.
package auth

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/nairaflow/connect/internal/core"
)

// TokenKind distinguishes the tokens a credential set may hold.
type TokenKind int

const (
	TokenAccess TokenKind = iota
	TokenRefresh
	TokenID
	TokenAPIKey
	TokenSession
	TokenCustom
)

func (k TokenKind) String() string {
	switch k {
	case TokenAccess:
		return "access"
	case TokenRefresh:
		return "refresh"
	case TokenID:
		return "id"
	case TokenAPIKey:
		return "api_key"
	case TokenSession:
		return "session"
	default:
		return "custom"
	}
}

// Token is one credential artifact with its lifecycle timestamps.
type Token struct {
	Kind          TokenKind  `json:"kind"`
	Value         string     `json:"value"`
	IssuedAt      time.Time  `json:"issued_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Scope         string     `json:"scope,omitempty"`
	ParentRefresh string     `json:"parent_refresh,omitempty"`
}

// Expired reports whether the token has an expiry in the past.
func (t *Token) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// Credentials is the full credential state for one connector. Produced by
// Authenticate, mutated only by Refresh, destroyed by Revoke.
type Credentials struct {
	Scheme    core.AuthScheme      `json:"scheme"`
	Config    map[string]any       `json:"-"`
	Tokens    map[TokenKind]*Token `json:"tokens"`
	ExpiresAt *time.Time           `json:"expires_at,omitempty"`
}

func (c *Credentials) token(kind TokenKind) *Token {
	if c.Tokens == nil {
		return nil
	}
	return c.Tokens[kind]
}

func (c *Credentials) setToken(t *Token) {
	if c.Tokens == nil {
		c.Tokens = make(map[TokenKind]*Token)
	}
	c.Tokens[t.Kind] = t
}

// clone copies the credentials deeply enough that a refresh can mutate the
// copy while readers keep using the original.
func (c *Credentials) clone() *Credentials {
	cp := *c
	cp.Tokens = make(map[TokenKind]*Token, len(c.Tokens))
	for kind, t := range c.Tokens {
		tc := *t
		cp.Tokens[kind] = &tc
	}
	return &cp
}

// schemeHandler implements one authentication scheme.
type schemeHandler interface {
	// authenticate converts an auth config into credentials.
	authenticate(ctx context.Context, cfg map[string]any) (*Credentials, error)
	// apply mutates the given header/query copies with credential material.
	apply(c *Credentials, headers, query map[string]string) error
	// refresh renews the credentials in place. The second return reports
	// whether the manager should fall back to a full re-authentication.
	refresh(ctx context.Context, c *Credentials) (ok bool, reauth bool, err error)
}

// Manager owns per-connector credentials.
type Manager struct {
	mu       sync.RWMutex
	creds    map[string]*Credentials
	handlers map[core.AuthScheme]schemeHandler
	catalog  []ProviderSpec
	logger   *log.Logger

	now func() time.Time
}

// NewManager creates a manager with all built-in scheme handlers and the
// provider catalog seeded. httpClient is used for token endpoints; nil gets
// a 30s-timeout default.
func NewManager(httpClient *http.Client) *Manager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	m := &Manager{
		creds:  make(map[string]*Credentials),
		logger: log.New(log.Writer(), "[AUTH] ", log.LstdFlags),
		now:    time.Now,
	}
	m.handlers = map[core.AuthScheme]schemeHandler{
		core.AuthNone:        noneHandler{},
		core.AuthBasic:       basicHandler{},
		core.AuthAPIKey:      apiKeyHandler{},
		core.AuthOAuth2:      &oauth2Handler{client: httpClient, now: func() time.Time { return m.now() }},
		core.AuthJWT:         &jwtHandler{now: func() time.Time { return m.now() }},
		core.AuthSAML:        samlHandler{},
		core.AuthCustomToken: customTokenHandler{},
	}
	m.catalog = builtinProviders()
	return m
}

// Authenticate converts authConfig into credentials for connectorID and
// stores them, replacing any previous credentials.
func (m *Manager) Authenticate(ctx context.Context, connectorID string, scheme core.AuthScheme, authConfig map[string]any) (*Credentials, error) {
	h, ok := m.handlers[scheme]
	if !ok {
		return nil, core.NewError(core.KindAuth, "auth.authenticate", fmt.Sprintf("unsupported scheme %s", scheme))
	}

	creds, err := h.authenticate(ctx, authConfig)
	if err != nil {
		return nil, err
	}
	creds.Scheme = scheme
	creds.Config = authConfig

	m.mu.Lock()
	m.creds[connectorID] = creds
	m.mu.Unlock()

	m.logger.Printf("authenticated connector %s scheme=%s", connectorID, scheme)
	return creds, nil
}

// Apply returns copies of headers and query augmented with the connector's
// credential material. The inputs are never mutated.
func (m *Manager) Apply(connectorID string, headers, query map[string]string) (map[string]string, map[string]string, error) {
	h := copyMap(headers)
	q := copyMap(query)

	m.mu.RLock()
	creds, ok := m.creds[connectorID]
	m.mu.RUnlock()
	if !ok {
		return h, q, core.NewError(core.KindAuth, "auth.apply", fmt.Sprintf("no credentials for connector %s", connectorID))
	}

	handler := m.handlers[creds.Scheme]
	if err := handler.apply(creds, h, q); err != nil {
		return h, q, err
	}
	return h, q, nil
}

// Refresh renews the connector's credentials. Schemes without a refresh path
// are re-authenticated from their stored config. The token round trip runs on
// a private copy without the lock, so Apply and IsValid are never blocked
// behind a slow token endpoint.
func (m *Manager) Refresh(ctx context.Context, connectorID string) (bool, error) {
	m.mu.RLock()
	orig, ok := m.creds[connectorID]
	m.mu.RUnlock()
	if !ok {
		return false, core.NewError(core.KindAuth, "auth.refresh", fmt.Sprintf("no credentials for connector %s", connectorID))
	}

	handler := m.handlers[orig.Scheme]

	fresh := orig.clone()
	ok2, reauth, err := handler.refresh(ctx, fresh)
	if err != nil {
		return false, err
	}
	if !ok2 {
		if !reauth {
			return false, nil
		}
		fresh, err = handler.authenticate(ctx, orig.Config)
		if err != nil {
			return false, err
		}
		fresh.Scheme = orig.Scheme
		fresh.Config = orig.Config
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds[connectorID] != orig {
		// Revoked or re-authenticated while the round trip was in flight;
		// the newer state wins.
		return false, nil
	}
	m.creds[connectorID] = fresh
	return true, nil
}

// IsValid reports whether the connector has credentials and none of them
// have expired.
func (m *Manager) IsValid(connectorID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	creds, ok := m.creds[connectorID]
	if !ok {
		return false
	}
	now := m.now()
	if creds.ExpiresAt != nil && now.After(*creds.ExpiresAt) {
		return false
	}
	for _, t := range creds.Tokens {
		if t.Expired(now) {
			return false
		}
	}
	return true
}

// Revoke destroys the connector's credentials.
func (m *Manager) Revoke(connectorID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creds[connectorID]; ok {
		delete(m.creds, connectorID)
		m.logger.Printf("revoked credentials for connector %s", connectorID)
	}
}

// Credentials returns the stored credentials for a connector, or nil.
func (m *Manager) Credentials(connectorID string) *Credentials {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds[connectorID]
}

// Providers returns the provider catalog entries matching the scheme, or all
// entries when scheme is nil.
func (m *Manager) Providers(scheme *core.AuthScheme) []ProviderSpec {
	out := make([]ProviderSpec, 0, len(m.catalog))
	for _, p := range m.catalog {
		if scheme == nil || p.Scheme == *scheme {
			out = append(out, p)
		}
	}
	return out
}

// --- shared helpers ---

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cfgString(cfg map[string]any, key, fallback string) string {
	if cfg == nil {
		return fallback
	}
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
