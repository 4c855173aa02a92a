package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nairaflow/connect/internal/core"
)

func TestBasicScheme(t *testing.T) {
	m := NewManager(nil)
	_, err := m.Authenticate(context.Background(), "conn-1", core.AuthBasic, map[string]any{
		"username": "ade",
		"password": "s3cret",
	})
	require.NoError(t, err)

	headers, _, err := m.Apply("conn-1", map[string]string{"Accept": "application/json"}, nil)
	require.NoError(t, err)
	// base64("ade:s3cret")
	assert.Equal(t, "Basic YWRlOnMzY3JldA==", headers["Authorization"])
	assert.Equal(t, "application/json", headers["Accept"])
	assert.True(t, m.IsValid("conn-1"))
}

func TestAPIKeyScheme_HeaderAndQuery(t *testing.T) {
	m := NewManager(nil)

	_, err := m.Authenticate(context.Background(), "hdr", core.AuthAPIKey, map[string]any{
		"api_key": "pk_live_123",
	})
	require.NoError(t, err)
	headers, _, err := m.Apply("hdr", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "pk_live_123", headers["X-API-Key"])

	_, err = m.Authenticate(context.Background(), "qry", core.AuthAPIKey, map[string]any{
		"api_key":    "pk_live_456",
		"location":   "query",
		"param_name": "apikey",
	})
	require.NoError(t, err)
	_, query, err := m.Apply("qry", nil, map[string]string{"page": "1"})
	require.NoError(t, err)
	assert.Equal(t, "pk_live_456", query["apikey"])
	assert.Equal(t, "1", query["page"])
}

func TestApply_DoesNotMutateInputs(t *testing.T) {
	m := NewManager(nil)
	_, err := m.Authenticate(context.Background(), "c", core.AuthAPIKey, map[string]any{"api_key": "k"})
	require.NoError(t, err)

	in := map[string]string{"Accept": "text/xml"}
	out, _, err := m.Apply("c", in, nil)
	require.NoError(t, err)
	assert.NotContains(t, in, "X-API-Key")
	assert.Contains(t, out, "X-API-Key")
}

func TestOAuth2_ClientCredentialsAndRefresh(t *testing.T) {
	var grants []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		grants = append(grants, r.FormValue("grant_type"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		resp := map[string]any{
			"access_token": "tok-" + r.FormValue("grant_type"),
			"token_type":   "Bearer",
			"expires_in":   3600,
		}
		if r.FormValue("grant_type") == "client_credentials" {
			resp["refresh_token"] = "rft-1"
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	m := NewManager(srv.Client())
	creds, err := m.Authenticate(context.Background(), "erp", core.AuthOAuth2, map[string]any{
		"token_url":     srv.URL,
		"client_id":     "cid",
		"client_secret": "csec",
	})
	require.NoError(t, err)
	require.NotNil(t, creds.ExpiresAt)
	// Expiry carries the 60s skew.
	assert.WithinDuration(t, time.Now().Add(3600*time.Second-expirySkew), *creds.ExpiresAt, 5*time.Second)

	headers, _, err := m.Apply("erp", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-client_credentials", headers["Authorization"])

	ok, err := m.Refresh(context.Background(), "erp")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"client_credentials", "refresh_token"}, grants)

	headers, _, err = m.Apply("erp", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-refresh_token", headers["Authorization"])
}

func TestOAuth2_NonOKIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewManager(srv.Client())
	_, err := m.Authenticate(context.Background(), "erp", core.AuthOAuth2, map[string]any{
		"token_url": srv.URL,
		"client_id": "cid",
	})
	require.Error(t, err)
	assert.Equal(t, core.KindAuth, core.KindOf(err))
}

func TestJWT_IssueMode(t *testing.T) {
	m := NewManager(nil)
	creds, err := m.Authenticate(context.Background(), "svc", core.AuthJWT, map[string]any{
		"secret":  "hmac-secret",
		"payload": map[string]any{"sub": "org-42"},
	})
	require.NoError(t, err)

	headers, _, err := m.Apply("svc", nil, nil)
	require.NoError(t, err)
	signed := headers["Authorization"]
	require.True(t, len(signed) > len("Bearer "))

	parsed, err := jwt.Parse(signed[len("Bearer "):], func(tk *jwt.Token) (any, error) {
		return []byte("hmac-secret"), nil
	})
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "org-42", claims["sub"])
	require.NotNil(t, creds.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *creds.ExpiresAt, 5*time.Second)
}

func TestJWT_VerifyModeRejectsGarbage(t *testing.T) {
	m := NewManager(nil)
	_, err := m.Authenticate(context.Background(), "svc", core.AuthJWT, map[string]any{
		"token": "not-a-jwt",
	})
	require.Error(t, err)
	assert.Equal(t, core.KindAuth, core.KindOf(err))
}

func TestJWT_VerifyModeAcceptsUnverifiable(t *testing.T) {
	// A structurally valid token signed with a key we do not hold.
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "x",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("someone-elses-secret"))
	require.NoError(t, err)

	m := NewManager(nil)
	creds, err := m.Authenticate(context.Background(), "svc", core.AuthJWT, map[string]any{
		"token": signed,
	})
	require.NoError(t, err)
	require.NotNil(t, creds.ExpiresAt, "exp claim must be recorded")
	assert.True(t, m.IsValid("svc"))
}

func TestSAMLAndCustomToken(t *testing.T) {
	m := NewManager(nil)

	_, err := m.Authenticate(context.Background(), "gov", core.AuthSAML, map[string]any{
		"assertion": "PHNhbWw+",
	})
	require.NoError(t, err)
	headers, _, err := m.Apply("gov", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "SAML PHNhbWw+", headers["Authorization"])

	_, err = m.Authenticate(context.Background(), "firs", core.AuthCustomToken, map[string]any{
		"token":       "tk_99",
		"header_name": "X-FIRS-Token",
		"prefix":      "",
	})
	require.NoError(t, err)
	headers, _, err = m.Apply("firs", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "tk_99", headers["X-FIRS-Token"])
}

// gatedRefreshHandler parks refresh calls on a channel so tests can observe
// manager behaviour while a token round trip is in flight.
type gatedRefreshHandler struct {
	started chan struct{}
	release chan struct{}
}

func (h *gatedRefreshHandler) authenticate(ctx context.Context, cfg map[string]any) (*Credentials, error) {
	return &Credentials{Tokens: map[TokenKind]*Token{
		TokenCustom: {Kind: TokenCustom, Value: "v1"},
	}}, nil
}

func (h *gatedRefreshHandler) apply(c *Credentials, headers, query map[string]string) error {
	headers["X-Token"] = c.token(TokenCustom).Value
	return nil
}

func (h *gatedRefreshHandler) refresh(ctx context.Context, c *Credentials) (bool, bool, error) {
	close(h.started)
	<-h.release
	c.setToken(&Token{Kind: TokenCustom, Value: "v2"})
	return true, false, nil
}

func TestRefresh_DoesNotBlockApply(t *testing.T) {
	m := NewManager(nil)
	h := &gatedRefreshHandler{started: make(chan struct{}), release: make(chan struct{})}
	m.handlers[core.AuthCustomToken] = h

	_, err := m.Authenticate(context.Background(), "c", core.AuthCustomToken, nil)
	require.NoError(t, err)

	type outcome struct {
		renewed bool
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		renewed, err := m.Refresh(context.Background(), "c")
		done <- outcome{renewed, err}
	}()
	<-h.started

	// The old credentials stay usable while the round trip is in flight.
	headers, _, err := m.Apply("c", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", headers["X-Token"])
	assert.True(t, m.IsValid("c"))

	close(h.release)
	out := <-done
	require.NoError(t, out.err)
	assert.True(t, out.renewed)

	headers, _, err = m.Apply("c", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "v2", headers["X-Token"])
}

func TestRefresh_RevokeDuringRoundTripWins(t *testing.T) {
	m := NewManager(nil)
	h := &gatedRefreshHandler{started: make(chan struct{}), release: make(chan struct{})}
	m.handlers[core.AuthCustomToken] = h

	_, err := m.Authenticate(context.Background(), "c", core.AuthCustomToken, nil)
	require.NoError(t, err)

	done := make(chan bool, 1)
	go func() {
		renewed, err := m.Refresh(context.Background(), "c")
		assert.NoError(t, err)
		done <- renewed
	}()
	<-h.started

	m.Revoke("c")
	close(h.release)

	assert.False(t, <-done, "renewal is dropped after a concurrent revoke")
	assert.False(t, m.IsValid("c"))
}

func TestIsValid_ExpiredToken(t *testing.T) {
	m := NewManager(nil)
	_, err := m.Authenticate(context.Background(), "c", core.AuthBasic, map[string]any{
		"username": "u", "password": "p",
	})
	require.NoError(t, err)

	past := time.Now().Add(-time.Minute)
	m.Credentials("c").ExpiresAt = &past
	assert.False(t, m.IsValid("c"))
}

func TestRevoke(t *testing.T) {
	m := NewManager(nil)
	_, err := m.Authenticate(context.Background(), "c", core.AuthBasic, map[string]any{
		"username": "u", "password": "p",
	})
	require.NoError(t, err)

	m.Revoke("c")
	assert.False(t, m.IsValid("c"))
	_, _, err = m.Apply("c", nil, nil)
	assert.Error(t, err)
}

func TestProviderCatalog(t *testing.T) {
	m := NewManager(nil)
	all := m.Providers(nil)
	assert.GreaterOrEqual(t, len(all), 10)

	scheme := core.AuthOAuth2
	oauth := m.Providers(&scheme)
	require.Len(t, oauth, 3)
	variants := map[string]bool{}
	for _, p := range oauth {
		variants[p.Variant] = true
	}
	assert.True(t, variants["client_credentials"])
	assert.True(t, variants["authorization_code"])
	assert.True(t, variants["refresh_token"])
}
