package auth

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/nairaflow/connect/internal/core"
)

// noneHandler is the pass-through scheme.
type noneHandler struct{}

func (noneHandler) authenticate(context.Context, map[string]any) (*Credentials, error) {
	return &Credentials{}, nil
}

func (noneHandler) apply(*Credentials, map[string]string, map[string]string) error { return nil }

func (noneHandler) refresh(context.Context, *Credentials) (bool, bool, error) {
	return true, false, nil
}

// basicHandler encodes user:pass once and re-encodes on refresh.
type basicHandler struct{}

func (basicHandler) authenticate(_ context.Context, cfg map[string]any) (*Credentials, error) {
	user := cfgString(cfg, "username", "")
	pass := cfgString(cfg, "password", "")
	if user == "" {
		return nil, core.NewError(core.KindAuth, "auth.basic", "username is required")
	}
	c := &Credentials{}
	c.setToken(&Token{
		Kind:     TokenCustom,
		Value:    base64.StdEncoding.EncodeToString([]byte(user + ":" + pass)),
		IssuedAt: time.Now(),
	})
	return c, nil
}

func (basicHandler) apply(c *Credentials, headers, _ map[string]string) error {
	t := c.token(TokenCustom)
	if t == nil {
		return core.NewError(core.KindAuth, "auth.basic", "no encoded credentials")
	}
	headers["Authorization"] = "Basic " + t.Value
	return nil
}

func (h basicHandler) refresh(ctx context.Context, c *Credentials) (bool, bool, error) {
	fresh, err := h.authenticate(ctx, c.Config)
	if err != nil {
		return false, false, err
	}
	c.Tokens = fresh.Tokens
	return true, false, nil
}

// apiKeyHandler stores the key plus where to put it (header or query).
type apiKeyHandler struct{}

func (apiKeyHandler) authenticate(_ context.Context, cfg map[string]any) (*Credentials, error) {
	key := cfgString(cfg, "api_key", cfgString(cfg, "key", ""))
	if key == "" {
		return nil, core.NewError(core.KindAuth, "auth.apikey", "api_key is required")
	}
	c := &Credentials{}
	c.setToken(&Token{Kind: TokenAPIKey, Value: key, IssuedAt: time.Now()})
	return c, nil
}

func (apiKeyHandler) apply(c *Credentials, headers, query map[string]string) error {
	t := c.token(TokenAPIKey)
	if t == nil {
		return core.NewError(core.KindAuth, "auth.apikey", "no api key stored")
	}
	if cfgString(c.Config, "location", "header") == "query" {
		query[cfgString(c.Config, "param_name", "api_key")] = t.Value
		return nil
	}
	headers[cfgString(c.Config, "header_name", "X-API-Key")] = t.Value
	return nil
}

func (apiKeyHandler) refresh(context.Context, *Credentials) (bool, bool, error) {
	// API keys do not rotate here.
	return true, false, nil
}

// samlHandler stores an externally obtained assertion verbatim.
type samlHandler struct{}

func (samlHandler) authenticate(_ context.Context, cfg map[string]any) (*Credentials, error) {
	assertion := cfgString(cfg, "assertion", "")
	if assertion == "" {
		return nil, core.NewError(core.KindAuth, "auth.saml", "assertion is required")
	}
	c := &Credentials{}
	c.setToken(&Token{Kind: TokenSession, Value: assertion, IssuedAt: time.Now()})
	return c, nil
}

func (samlHandler) apply(c *Credentials, headers, _ map[string]string) error {
	t := c.token(TokenSession)
	if t == nil {
		return core.NewError(core.KindAuth, "auth.saml", "no assertion stored")
	}
	headers["Authorization"] = "SAML " + t.Value
	return nil
}

func (samlHandler) refresh(context.Context, *Credentials) (bool, bool, error) {
	return false, true, nil // re-authenticate with a fresh assertion
}

// customTokenHandler applies an opaque token under a configurable header.
type customTokenHandler struct{}

func (customTokenHandler) authenticate(_ context.Context, cfg map[string]any) (*Credentials, error) {
	token := cfgString(cfg, "token", "")
	if token == "" {
		return nil, core.NewError(core.KindAuth, "auth.custom", "token is required")
	}
	c := &Credentials{}
	c.setToken(&Token{Kind: TokenCustom, Value: token, IssuedAt: time.Now()})
	return c, nil
}

func (customTokenHandler) apply(c *Credentials, headers, _ map[string]string) error {
	t := c.token(TokenCustom)
	if t == nil {
		return core.NewError(core.KindAuth, "auth.custom", "no token stored")
	}
	header := cfgString(c.Config, "header_name", "Authorization")
	prefix := cfgString(c.Config, "prefix", "Bearer")
	if prefix != "" {
		headers[header] = prefix + " " + t.Value
	} else {
		headers[header] = t.Value
	}
	return nil
}

func (customTokenHandler) refresh(context.Context, *Credentials) (bool, bool, error) {
	return false, true, nil
}
