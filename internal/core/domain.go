// Package core defines the shared domain model of the connector framework:
// connector configuration, requests/responses, transactions, and the error
// taxonomy every other package builds on.
package core

import (
	"fmt"
	"time"
)

// ConnectorKind classifies the external system a connector talks to.
type ConnectorKind int

const (
	KindGeneric ConnectorKind = iota
	KindERP
	KindCRM
	KindAccounting
	KindPOS
	KindEcommerce
	KindBanking
	KindPayment
	KindForex
	KindGovernment
)

func (k ConnectorKind) String() string {
	switch k {
	case KindERP:
		return "erp"
	case KindCRM:
		return "crm"
	case KindAccounting:
		return "accounting"
	case KindPOS:
		return "pos"
	case KindEcommerce:
		return "ecommerce"
	case KindBanking:
		return "banking"
	case KindPayment:
		return "payment"
	case KindForex:
		return "forex"
	case KindGovernment:
		return "government"
	default:
		return "generic"
	}
}

// Protocol identifies the wire protocol an adapter speaks.
type Protocol int

const (
	ProtocolREST Protocol = iota
	ProtocolSOAP
	ProtocolGraphQL
	ProtocolOData
	ProtocolJSONRPC
	ProtocolXMLRPC
	ProtocolCustom
)

func (p Protocol) String() string {
	switch p {
	case ProtocolREST:
		return "rest"
	case ProtocolSOAP:
		return "soap"
	case ProtocolGraphQL:
		return "graphql"
	case ProtocolOData:
		return "odata"
	case ProtocolJSONRPC:
		return "jsonrpc"
	case ProtocolXMLRPC:
		return "xmlrpc"
	default:
		return "custom"
	}
}

// AuthScheme identifies how requests to the external system are authenticated.
type AuthScheme int

const (
	AuthNone AuthScheme = iota
	AuthBasic
	AuthAPIKey
	AuthOAuth2
	AuthJWT
	AuthSAML
	AuthCustomToken
)

func (a AuthScheme) String() string {
	switch a {
	case AuthBasic:
		return "basic"
	case AuthAPIKey:
		return "api_key"
	case AuthOAuth2:
		return "oauth2"
	case AuthJWT:
		return "jwt"
	case AuthSAML:
		return "saml"
	case AuthCustomToken:
		return "custom_token"
	default:
		return "none"
	}
}

// DataFormat is the body encoding used by REST-style adapters.
type DataFormat int

const (
	FormatJSON DataFormat = iota
	FormatXML
	FormatCSV
	FormatForm
	FormatBinary
)

func (f DataFormat) String() string {
	switch f {
	case FormatXML:
		return "xml"
	case FormatCSV:
		return "csv"
	case FormatForm:
		return "form"
	case FormatBinary:
		return "binary"
	default:
		return "json"
	}
}

// RetryPolicy bounds adapter-level retries for connection failures.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	Backoff     time.Duration `json:"backoff_ms"`
}

// ConnectorConfig is the immutable description of one connector instance.
// It is produced by the factory (template defaults merged with overrides)
// and never mutated afterwards.
type ConnectorConfig struct {
	ConnectorID string        `json:"connector_id"`
	Name        string        `json:"name"`
	Kind        ConnectorKind `json:"kind"`
	Protocol    Protocol      `json:"protocol"`
	AuthScheme  AuthScheme    `json:"auth_scheme"`

	BaseURL        string            `json:"base_url"`
	Endpoints      map[string]string `json:"endpoints"`
	DefaultHeaders map[string]string `json:"default_headers"`
	AuthConfig     map[string]any    `json:"auth_config"`

	Timeout            time.Duration  `json:"timeout_ms"`
	Retry              RetryPolicy    `json:"retry"`
	RateLimitPerMinute int            `json:"rate_limit_per_minute"`
	BatchSize          int            `json:"batch_size"`
	SSLVerify          bool           `json:"ssl_verify"`
	DataFormat         DataFormat     `json:"data_format"`
	Settings           map[string]any `json:"settings"`

	Metadata map[string]string `json:"metadata"`
}

// Endpoint resolves a named endpoint key to its path. The empty string is
// returned when the key is not mapped; callers fall back to raw paths.
func (c *ConnectorConfig) Endpoint(key string) string {
	if c.Endpoints == nil {
		return ""
	}
	return c.Endpoints[key]
}

// Validate checks the minimum fields every adapter needs.
func (c *ConnectorConfig) Validate() error {
	if c.ConnectorID == "" {
		return NewError(KindConfig, "config", "connector_id is required")
	}
	if c.BaseURL == "" && c.Protocol != ProtocolCustom {
		return NewError(KindConfig, "config", fmt.Sprintf("connector %s: base_url is required", c.ConnectorID))
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 1
	}
	return nil
}

// ConnectorRequest describes one outbound operation against the external
// system, protocol details resolved by the adapter.
type ConnectorRequest struct {
	Operation string            `json:"operation"`
	Endpoint  string            `json:"endpoint"` // endpoint key or raw path
	Method    string            `json:"method"`
	Body      any               `json:"body,omitempty"`
	Query     map[string]string `json:"query,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Timeout   time.Duration     `json:"timeout_ms,omitempty"`
	Retry     bool              `json:"retry_on_failure"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
}

// Meta reads a string value from the request metadata map.
func (r *ConnectorRequest) Meta(key string) string {
	if r.Metadata == nil {
		return ""
	}
	if v, ok := r.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// ConnectorResponse is the uniform result of an adapter execution. Protocol
// failures surface here with Success=false; only transport-level problems
// become Go errors.
type ConnectorResponse struct {
	StatusCode     int               `json:"status_code"`
	Body           any               `json:"body,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Success        bool              `json:"success"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	ResponseTimeMs float64           `json:"response_time_ms"`
	RequestID      string            `json:"request_id"`
}

// FailedResponse builds a failed response with the given status and message.
func FailedResponse(status int, requestID, msg string) *ConnectorResponse {
	return &ConnectorResponse{
		StatusCode:   status,
		Success:      false,
		ErrorMessage: msg,
		RequestID:    requestID,
	}
}
