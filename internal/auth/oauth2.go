package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nairaflow/connect/internal/core"
)

// expirySkew is subtracted from the advertised token lifetime so tokens are
// refreshed before the upstream clock says they died.
const expirySkew = 60 * time.Second

// oauth2Handler implements the client_credentials, authorization_code and
// refresh_token grants against a standard token endpoint. Browser redirect
// flows are out of scope; an authorization code, when used, is supplied
// pre-obtained in the auth config.
type oauth2Handler struct {
	client *http.Client
	now    func() time.Time
}

type tokenEndpointResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

func (h *oauth2Handler) authenticate(ctx context.Context, cfg map[string]any) (*Credentials, error) {
	tokenURL := cfgString(cfg, "token_url", "")
	if tokenURL == "" {
		return nil, core.NewError(core.KindAuth, "auth.oauth2", "token_url is required")
	}

	grant := cfgString(cfg, "grant_type", "client_credentials")
	form := url.Values{}
	form.Set("grant_type", grant)
	form.Set("client_id", cfgString(cfg, "client_id", ""))
	form.Set("client_secret", cfgString(cfg, "client_secret", ""))
	if scope := cfgString(cfg, "scope", ""); scope != "" {
		form.Set("scope", scope)
	}
	switch grant {
	case "authorization_code":
		form.Set("code", cfgString(cfg, "code", ""))
		form.Set("redirect_uri", cfgString(cfg, "redirect_uri", ""))
	case "refresh_token":
		form.Set("refresh_token", cfgString(cfg, "refresh_token", ""))
	}

	return h.requestToken(ctx, tokenURL, form, cfg)
}

func (h *oauth2Handler) requestToken(ctx context.Context, tokenURL string, form url.Values, cfg map[string]any) (*Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, core.WrapError(core.KindAuth, "auth.oauth2", "building token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.KindConnection, "auth.oauth2", "token endpoint unreachable", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, core.NewError(core.KindAuth, "auth.oauth2",
			fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var tr tokenEndpointResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, core.WrapError(core.KindProtocol, "auth.oauth2", "decoding token response", err)
	}
	if tr.AccessToken == "" {
		return nil, core.NewError(core.KindAuth, "auth.oauth2", "token response missing access_token")
	}

	now := h.now()
	creds := &Credentials{Config: cfg}
	access := &Token{Kind: TokenAccess, Value: tr.AccessToken, IssuedAt: now, Scope: tr.Scope}
	if tr.ExpiresIn > 0 {
		exp := now.Add(time.Duration(tr.ExpiresIn)*time.Second - expirySkew)
		access.ExpiresAt = &exp
		creds.ExpiresAt = &exp
	}
	if tr.RefreshToken != "" {
		creds.setToken(&Token{Kind: TokenRefresh, Value: tr.RefreshToken, IssuedAt: now})
		access.ParentRefresh = tr.RefreshToken
	}
	creds.setToken(access)
	return creds, nil
}

func (h *oauth2Handler) apply(c *Credentials, headers, _ map[string]string) error {
	t := c.token(TokenAccess)
	if t == nil {
		return core.NewError(core.KindAuth, "auth.oauth2", "no access token stored")
	}
	headers["Authorization"] = "Bearer " + t.Value
	return nil
}

func (h *oauth2Handler) refresh(ctx context.Context, c *Credentials) (bool, bool, error) {
	rt := c.token(TokenRefresh)
	if rt == nil {
		// No refresh token: re-run the original grant.
		return false, true, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", rt.Value)
	form.Set("client_id", cfgString(c.Config, "client_id", ""))
	form.Set("client_secret", cfgString(c.Config, "client_secret", ""))

	fresh, err := h.requestToken(ctx, cfgString(c.Config, "token_url", ""), form, c.Config)
	if err != nil {
		return false, false, err
	}
	// Keep the previous refresh token when the server does not rotate it.
	if fresh.token(TokenRefresh) == nil {
		fresh.setToken(rt)
	}
	c.Tokens = fresh.Tokens
	c.ExpiresAt = fresh.ExpiresAt
	return true, false, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
