package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nairaflow/connect/internal/core"
)

// jwtHandler operates in two modes. Verify mode stores a supplied token:
// tokens that do not parse as JWTs are rejected; structurally valid tokens
// whose signature cannot be checked (no secret supplied) are accepted
// opaquely with their exp claim recorded. Issue mode signs the supplied
// payload with the supplied secret (HS256 by default), iat=now, exp=now+1h.
type jwtHandler struct {
	now func() time.Time
}

const issuedTokenTTL = time.Hour

func (h *jwtHandler) authenticate(_ context.Context, cfg map[string]any) (*Credentials, error) {
	if supplied := cfgString(cfg, "token", ""); supplied != "" {
		return h.verifyMode(cfg, supplied)
	}
	return h.issueMode(cfg)
}

func (h *jwtHandler) verifyMode(cfg map[string]any, supplied string) (*Credentials, error) {
	now := h.now()
	secret := cfgString(cfg, "secret", "")

	var claims jwt.MapClaims
	if secret != "" {
		parsed, err := jwt.ParseWithClaims(supplied, jwt.MapClaims{}, func(t *jwt.Token) (any, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
		if err != nil {
			return nil, core.WrapError(core.KindAuth, "auth.jwt", "token verification failed", err)
		}
		claims = parsed.Claims.(jwt.MapClaims)
	} else {
		// No key material: accept opaquely but require JWT structure.
		parsed, _, err := jwt.NewParser().ParseUnverified(supplied, jwt.MapClaims{})
		if err != nil {
			return nil, core.WrapError(core.KindAuth, "auth.jwt", "token is not a decodable JWT", err)
		}
		claims = parsed.Claims.(jwt.MapClaims)
	}

	creds := &Credentials{Config: cfg}
	token := &Token{Kind: TokenAccess, Value: supplied, IssuedAt: now}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		e := exp.Time
		token.ExpiresAt = &e
		creds.ExpiresAt = &e
	}
	creds.setToken(token)
	return creds, nil
}

func (h *jwtHandler) issueMode(cfg map[string]any) (*Credentials, error) {
	secret := cfgString(cfg, "secret", "")
	if secret == "" {
		return nil, core.NewError(core.KindAuth, "auth.jwt", "secret is required to issue a token")
	}

	alg := cfgString(cfg, "algorithm", "HS256")
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return nil, core.NewError(core.KindAuth, "auth.jwt", fmt.Sprintf("unsupported signing algorithm %s", alg))
	}

	now := h.now()
	exp := now.Add(issuedTokenTTL)
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": exp.Unix(),
	}
	if payload, ok := cfg["payload"].(map[string]any); ok {
		for k, v := range payload {
			if k == "iat" || k == "exp" {
				continue
			}
			claims[k] = v
		}
	}

	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		return nil, core.WrapError(core.KindAuth, "auth.jwt", "signing token", err)
	}

	creds := &Credentials{Config: cfg, ExpiresAt: &exp}
	creds.setToken(&Token{Kind: TokenAccess, Value: signed, IssuedAt: now, ExpiresAt: &exp})
	return creds, nil
}

func (h *jwtHandler) apply(c *Credentials, headers, _ map[string]string) error {
	t := c.token(TokenAccess)
	if t == nil {
		return core.NewError(core.KindAuth, "auth.jwt", "no token stored")
	}
	headers["Authorization"] = "Bearer " + t.Value
	return nil
}

func (h *jwtHandler) refresh(_ context.Context, c *Credentials) (bool, bool, error) {
	if cfgString(c.Config, "secret", "") == "" || cfgString(c.Config, "token", "") != "" {
		// Verify-mode tokens cannot be re-minted locally.
		return false, true, nil
	}
	fresh, err := h.issueMode(c.Config)
	if err != nil {
		return false, false, err
	}
	c.Tokens = fresh.Tokens
	c.ExpiresAt = fresh.ExpiresAt
	return true, false, nil
}
