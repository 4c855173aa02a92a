// Package protocol contains the wire adapters that turn a ConnectorRequest
// into protocol-specific traffic: REST, SOAP 1.1, GraphQL, OData v2/v4,
// JSON-RPC 2.0 and XML-RPC. Adapters share one capability set and are
// selected from ConnectorConfig.Protocol through a registry populated at
// process start.
package protocol

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nairaflow/connect/internal/auth"
	"github.com/nairaflow/connect/internal/core"
)

// Adapter is the uniform capability set every protocol implementation
// provides. Execute never returns a Go error for upstream-reported failures
// (HTTP >= 400, SOAP Fault, GraphQL errors, RPC error objects); those become
// responses with Success=false. Errors are reserved for local failures such
// as unreachable hosts, context cancellation and encoding problems.
type Adapter interface {
	Open(ctx context.Context) error
	Authenticate(ctx context.Context) error
	Test(ctx context.Context) error
	Execute(ctx context.Context, req *core.ConnectorRequest) (*core.ConnectorResponse, error)
	Close(ctx context.Context) error
}

// Factory constructs an adapter for one connector.
type Factory func(cfg *core.ConnectorConfig, authMgr *auth.Manager) (Adapter, error)

// ============================================================================
// ADAPTER REGISTRY
// ============================================================================

var (
	registryMu sync.RWMutex
	registry   = map[core.Protocol]Factory{}
)

// Register binds a protocol tag to an adapter factory. Later registrations
// replace earlier ones, which tests use to install fakes.
func Register(p core.Protocol, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p] = f
}

// New builds the adapter for cfg.Protocol.
func New(cfg *core.ConnectorConfig, authMgr *auth.Manager) (Adapter, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Protocol]
	registryMu.RUnlock()
	if !ok {
		return nil, core.NewError(core.KindConfig, "protocol.new",
			fmt.Sprintf("no adapter registered for protocol %s", cfg.Protocol))
	}
	return f(cfg, authMgr)
}

// Supported returns the protocols with a registered adapter.
func Supported() []core.Protocol {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]core.Protocol, 0, len(registry))
	for p := range registry {
		out = append(out, p)
	}
	return out
}

func init() {
	Register(core.ProtocolREST, func(cfg *core.ConnectorConfig, a *auth.Manager) (Adapter, error) {
		return NewRESTAdapter(cfg, a), nil
	})
	Register(core.ProtocolSOAP, func(cfg *core.ConnectorConfig, a *auth.Manager) (Adapter, error) {
		return NewSOAPAdapter(cfg, a), nil
	})
	Register(core.ProtocolGraphQL, func(cfg *core.ConnectorConfig, a *auth.Manager) (Adapter, error) {
		return NewGraphQLAdapter(cfg, a), nil
	})
	Register(core.ProtocolOData, func(cfg *core.ConnectorConfig, a *auth.Manager) (Adapter, error) {
		return NewODataAdapter(cfg, a), nil
	})
	Register(core.ProtocolJSONRPC, func(cfg *core.ConnectorConfig, a *auth.Manager) (Adapter, error) {
		return NewJSONRPCAdapter(cfg, a), nil
	})
	Register(core.ProtocolXMLRPC, func(cfg *core.ConnectorConfig, a *auth.Manager) (Adapter, error) {
		return NewXMLRPCAdapter(cfg, a), nil
	})
}

// ============================================================================
// SHARED HTTP PLUMBING
// ============================================================================

// httpBase carries the state every HTTP-borne adapter needs: the connector
// config, an auth manager handle and a TLS-configured client.
type httpBase struct {
	cfg    *core.ConnectorConfig
	auth   *auth.Manager
	client *http.Client
	opened bool
}

func newHTTPBase(cfg *core.ConnectorConfig, authMgr *auth.Manager) httpBase {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 8,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: !cfg.SSLVerify},
	}
	return httpBase{
		cfg:  cfg,
		auth: authMgr,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// authenticate runs the manager flow for this connector when a scheme is set.
func (b *httpBase) authenticate(ctx context.Context) error {
	if b.cfg.AuthScheme == core.AuthNone || b.auth == nil {
		return nil
	}
	_, err := b.auth.Authenticate(ctx, b.cfg.ConnectorID, b.cfg.AuthScheme, b.cfg.AuthConfig)
	return err
}

// applyAuth merges default headers, per-request headers and credential
// material into final header/query maps. Inputs are not mutated.
func (b *httpBase) applyAuth(req *core.ConnectorRequest) (map[string]string, map[string]string, error) {
	headers := make(map[string]string, len(b.cfg.DefaultHeaders)+len(req.Headers))
	for k, v := range b.cfg.DefaultHeaders {
		headers[k] = v
	}
	for k, v := range req.Headers {
		headers[k] = v
	}
	query := make(map[string]string, len(req.Query))
	for k, v := range req.Query {
		query[k] = v
	}
	if b.cfg.AuthScheme == core.AuthNone || b.auth == nil {
		return headers, query, nil
	}
	return b.auth.Apply(b.cfg.ConnectorID, headers, query)
}

// resolvePath turns a request endpoint into a path: the endpoint map is
// consulted first, then the value is used verbatim as a path.
func (b *httpBase) resolvePath(req *core.ConnectorRequest) string {
	if p := b.cfg.Endpoint(req.Endpoint); p != "" {
		return p
	}
	return req.Endpoint
}

func joinURL(base, path string) string {
	if path == "" {
		return base
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func setHeaders(r *http.Request, headers map[string]string) {
	for k, v := range headers {
		r.Header.Set(k, v)
	}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
