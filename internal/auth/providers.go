package auth

import "github.com/nairaflow/connect/internal/core"

// ProviderSpec describes one authentication scheme variant and the wire
// protocols it applies to. The catalog drives template validation in the
// factory and powers discovery UIs upstream.
type ProviderSpec struct {
	ID             string          `json:"id"`
	Scheme         core.AuthScheme `json:"scheme"`
	Variant        string          `json:"variant"`
	Protocols      []core.Protocol `json:"protocols"`
	RequiredFields []string        `json:"required_fields"`
	Description    string          `json:"description"`
}

func builtinProviders() []ProviderSpec {
	all := []core.Protocol{
		core.ProtocolREST, core.ProtocolSOAP, core.ProtocolGraphQL,
		core.ProtocolOData, core.ProtocolJSONRPC, core.ProtocolXMLRPC,
	}
	httpish := []core.Protocol{core.ProtocolREST, core.ProtocolGraphQL, core.ProtocolOData, core.ProtocolJSONRPC}

	return []ProviderSpec{
		{
			ID:          "none",
			Scheme:      core.AuthNone,
			Variant:     "none",
			Protocols:   all,
			Description: "No authentication; open or network-gated endpoints.",
		},
		{
			ID:             "basic",
			Scheme:         core.AuthBasic,
			Variant:        "username_password",
			Protocols:      all,
			RequiredFields: []string{"username", "password"},
			Description:    "HTTP Basic authentication.",
		},
		{
			ID:             "api_key_header",
			Scheme:         core.AuthAPIKey,
			Variant:        "header",
			Protocols:      httpish,
			RequiredFields: []string{"api_key"},
			Description:    "Static API key sent as a request header (default X-API-Key).",
		},
		{
			ID:             "api_key_query",
			Scheme:         core.AuthAPIKey,
			Variant:        "query",
			Protocols:      []core.Protocol{core.ProtocolREST, core.ProtocolOData},
			RequiredFields: []string{"api_key"},
			Description:    "Static API key sent as a query parameter (default api_key).",
		},
		{
			ID:             "oauth2_client_credentials",
			Scheme:         core.AuthOAuth2,
			Variant:        "client_credentials",
			Protocols:      httpish,
			RequiredFields: []string{"token_url", "client_id", "client_secret"},
			Description:    "OAuth2 machine-to-machine grant.",
		},
		{
			ID:             "oauth2_authorization_code",
			Scheme:         core.AuthOAuth2,
			Variant:        "authorization_code",
			Protocols:      httpish,
			RequiredFields: []string{"token_url", "client_id", "client_secret", "code", "redirect_uri"},
			Description:    "OAuth2 code exchange; the code is obtained out of band.",
		},
		{
			ID:             "oauth2_refresh",
			Scheme:         core.AuthOAuth2,
			Variant:        "refresh_token",
			Protocols:      httpish,
			RequiredFields: []string{"token_url", "client_id", "client_secret", "refresh_token"},
			Description:    "OAuth2 bootstrap from a long-lived refresh token.",
		},
		{
			ID:             "jwt_verify",
			Scheme:         core.AuthJWT,
			Variant:        "verify",
			Protocols:      httpish,
			RequiredFields: []string{"token"},
			Description:    "Externally issued JWT, applied as a bearer token.",
		},
		{
			ID:             "jwt_issue",
			Scheme:         core.AuthJWT,
			Variant:        "issue",
			Protocols:      httpish,
			RequiredFields: []string{"secret", "payload"},
			Description:    "Locally issued HS256 JWT signed with a shared secret.",
		},
		{
			ID:             "saml_assertion",
			Scheme:         core.AuthSAML,
			Variant:        "assertion_passthrough",
			Protocols:      []core.Protocol{core.ProtocolREST, core.ProtocolSOAP},
			RequiredFields: []string{"assertion"},
			Description:    "Pre-obtained SAML assertion passed through verbatim.",
		},
		{
			ID:             "custom_token",
			Scheme:         core.AuthCustomToken,
			Variant:        "static_token",
			Protocols:      all,
			RequiredFields: []string{"token"},
			Description:    "Opaque token under a configurable header and prefix.",
		},
	}
}
