// Package connector hosts the runtime that turns an adapter, an auth
// manager handle and a circuit breaker into a governed connector: every
// execute is breaker-admitted, rate-limited, authenticated, deadline-bounded
// and metered.
package connector

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nairaflow/connect/internal/auth"
	"github.com/nairaflow/connect/internal/circuitbreaker"
	"github.com/nairaflow/connect/internal/core"
	"github.com/nairaflow/connect/internal/protocol"
)

// Status is the connector-level health classification derived from the
// recent success rate.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusAuthenticated
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusAuthenticated:
		return "authenticated"
	case StatusError:
		return "error"
	default:
		return "disconnected"
	}
}

// Metrics are the pure in-memory aggregates for one connector.
type Metrics struct {
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	AvgResponseMs      float64   `json:"avg_response_ms"`
	PeakResponseMs     float64   `json:"peak_response_ms"`
	ErrorRatePercent   float64   `json:"error_rate_percent"`
	RequestsPerMinute  int       `json:"requests_per_minute"`
	LastRequestAt      time.Time `json:"last_request_at"`
}

// Health is the point-in-time health snapshot execute maintains.
type Health struct {
	ConnectorID  string                `json:"connector_id"`
	Status       Status                `json:"status"`
	SuccessRate  float64               `json:"success_rate_percent"`
	BreakerState circuitbreaker.State  `json:"breaker_state"`
	CheckedAt    time.Time             `json:"checked_at"`
}

// Notifier receives the outcome of every execute. The health monitor wires
// one in; the runtime never references the monitor directly.
type Notifier func(connectorID string, success bool, responseMs float64)

// Runtime is one live connector. It exclusively owns its adapter, breaker
// and metrics; all mutation is serialized under mu.
type Runtime struct {
	cfg     *core.ConnectorConfig
	adapter protocol.Adapter
	auth    *auth.Manager
	breaker *circuitbreaker.HybridBreaker
	logger  *log.Logger

	mu            sync.Mutex
	metrics       Metrics
	status        Status
	requestTimes  []time.Time // rate limiter window
	authenticated bool
	initialized   bool

	notify Notifier
	now    func() time.Time
}

// Option tweaks runtime construction.
type Option func(*Runtime)

// WithNotifier installs an execute-outcome notifier.
func WithNotifier(n Notifier) Option {
	return func(r *Runtime) { r.notify = n }
}

// WithBreakerConfig replaces the default breaker configuration.
func WithBreakerConfig(cfg *circuitbreaker.Config) Option {
	return func(r *Runtime) {
		cfg.Name = r.cfg.ConnectorID
		r.breaker = circuitbreaker.New(cfg)
	}
}

// New builds a runtime for the config. The adapter comes from the protocol
// registry; authMgr may be nil for unauthenticated connectors.
func New(cfg *core.ConnectorConfig, authMgr *auth.Manager, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	adapter, err := protocol.New(cfg, authMgr)
	if err != nil {
		return nil, err
	}

	bcfg := circuitbreaker.DefaultConfig(cfg.ConnectorID)
	r := &Runtime{
		cfg:     cfg,
		adapter: adapter,
		auth:    authMgr,
		breaker: circuitbreaker.New(bcfg),
		logger:  log.New(log.Writer(), "[CONNECTOR] ", log.LstdFlags),
		status:  StatusDisconnected,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ID returns the connector id.
func (r *Runtime) ID() string { return r.cfg.ConnectorID }

// Config returns the immutable connector config.
func (r *Runtime) Config() *core.ConnectorConfig { return r.cfg }

// Breaker exposes the connector's circuit breaker for inspection and
// operator maintenance actions.
func (r *Runtime) Breaker() *circuitbreaker.HybridBreaker { return r.breaker }

// Initialize opens the adapter session and authenticates when a scheme is
// configured.
func (r *Runtime) Initialize(ctx context.Context) error {
	r.mu.Lock()
	if r.initialized {
		r.mu.Unlock()
		return nil
	}
	r.status = StatusConnecting
	r.mu.Unlock()

	if err := r.adapter.Open(ctx); err != nil {
		r.setStatus(StatusError)
		return err
	}
	if r.cfg.AuthScheme != core.AuthNone {
		if err := r.adapter.Authenticate(ctx); err != nil {
			r.setStatus(StatusError)
			return err
		}
		r.mu.Lock()
		r.authenticated = true
		r.mu.Unlock()
	}

	r.mu.Lock()
	r.initialized = true
	r.status = StatusConnected
	r.mu.Unlock()
	r.logger.Printf("connector %s initialized (%s/%s)", r.cfg.ConnectorID, r.cfg.Protocol, r.cfg.AuthScheme)
	return nil
}

// Execute runs one request through the full governance pipeline.
func (r *Runtime) Execute(ctx context.Context, req *core.ConnectorRequest) (*core.ConnectorResponse, error) {
	requestID := uuid.NewString()
	axis := axisOf(req)

	// 1. Circuit breaker admission.
	if err := r.breaker.Allow(axis, callContext(req)); err != nil {
		resp := core.FailedResponse(http.StatusServiceUnavailable, requestID, err.Error())
		r.record(resp, false)
		return resp, nil
	}

	// 2. Local rate limit. Rejections are surfaced but never recorded as
	// breaker failures.
	if !r.admitRate() {
		resp := core.FailedResponse(http.StatusTooManyRequests, requestID,
			fmt.Sprintf("rate limit of %d requests/minute exceeded", r.cfg.RateLimitPerMinute))
		r.record(resp, false)
		return resp, nil
	}

	// 3. Credentials.
	if err := r.ensureAuthenticated(ctx); err != nil {
		r.breaker.RecordFailure(axis, "auth")
		resp := core.FailedResponse(http.StatusUnauthorized, requestID, err.Error())
		r.record(resp, false)
		return resp, nil
	}

	// 4. Deadline-bounded adapter call.
	callCtx, cancel := r.boundContext(ctx, req)
	defer cancel()

	start := r.now()
	resp, err := r.adapter.Execute(callCtx, req)
	if err != nil {
		failureType, status := classifyFailure(err, callCtx)
		r.breaker.RecordFailure(axis, failureType)
		resp = core.FailedResponse(status, requestID, err.Error())
		resp.ResponseTimeMs = float64(r.now().Sub(start).Microseconds()) / 1000.0
		r.record(resp, false)
		return resp, nil
	}

	if resp.Success {
		r.breaker.RecordSuccess(axis)
	} else if resp.StatusCode == http.StatusTooManyRequests {
		// Upstream throttling is backpressure, not breaker-worthy failure.
	} else {
		r.breaker.RecordFailure(axis, "protocol")
	}
	r.record(resp, resp.Success)
	return resp, nil
}

// ============================================================================
// CRUDL + BATCH
// ============================================================================

// Create inserts a record of the given resource type.
func (r *Runtime) Create(ctx context.Context, resource string, data any) (*core.ConnectorResponse, error) {
	return r.Execute(ctx, &core.ConnectorRequest{
		Operation: "create_" + resource,
		Endpoint:  r.endpointFor("create", resource),
		Method:    http.MethodPost,
		Body:      data,
		Retry:     true,
	})
}

// Read fetches one record by id.
func (r *Runtime) Read(ctx context.Context, resource, id string) (*core.ConnectorResponse, error) {
	return r.Execute(ctx, &core.ConnectorRequest{
		Operation: "read_" + resource,
		Endpoint:  joinPath(r.endpointFor("read", resource), id),
		Method:    http.MethodGet,
		Retry:     true,
	})
}

// Update modifies one record by id.
func (r *Runtime) Update(ctx context.Context, resource, id string, data any) (*core.ConnectorResponse, error) {
	return r.Execute(ctx, &core.ConnectorRequest{
		Operation: "update_" + resource,
		Endpoint:  joinPath(r.endpointFor("update", resource), id),
		Method:    http.MethodPut,
		Body:      data,
		Retry:     true,
	})
}

// Delete removes one record by id.
func (r *Runtime) Delete(ctx context.Context, resource, id string) (*core.ConnectorResponse, error) {
	return r.Execute(ctx, &core.ConnectorRequest{
		Operation: "delete_" + resource,
		Endpoint:  joinPath(r.endpointFor("delete", resource), id),
		Method:    http.MethodDelete,
	})
}

// List fetches records matching the query.
func (r *Runtime) List(ctx context.Context, resource string, query map[string]string) (*core.ConnectorResponse, error) {
	return r.Execute(ctx, &core.ConnectorRequest{
		Operation: "list_" + resource,
		Endpoint:  r.endpointFor("list", resource),
		Method:    http.MethodGet,
		Query:     query,
		Retry:     true,
	})
}

// Batch executes requests serially, pausing 100ms after every batch_size
// calls. One failure never aborts the batch.
func (r *Runtime) Batch(ctx context.Context, reqs []*core.ConnectorRequest) ([]*core.ConnectorResponse, error) {
	size := r.cfg.BatchSize
	if size <= 0 {
		size = 10
	}
	out := make([]*core.ConnectorResponse, 0, len(reqs))
	for i, req := range reqs {
		if i > 0 && i%size == 0 {
			select {
			case <-ctx.Done():
				return out, core.WrapError(core.KindTimeout, "connector.batch", "cancelled between batches", ctx.Err())
			case <-time.After(100 * time.Millisecond):
			}
		}
		resp, err := r.Execute(ctx, req)
		if err != nil {
			return out, err
		}
		out = append(out, resp)
	}
	return out, nil
}

// ============================================================================
// OBSERVABILITY + LIFECYCLE
// ============================================================================

// Metrics returns a copy of the current aggregates.
func (r *Runtime) Metrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.metrics
	m.RequestsPerMinute = len(r.pruneWindowLocked(r.now()))
	return m
}

// Health derives the health snapshot from the recent success rate.
func (r *Runtime) Health() Health {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Health{
		ConnectorID:  r.cfg.ConnectorID,
		Status:       r.status,
		SuccessRate:  r.successRateLocked(),
		BreakerState: r.breaker.State(),
		CheckedAt:    r.now(),
	}
}

// Disconnect closes the adapter session and revokes credentials. Safe to
// call repeatedly.
func (r *Runtime) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	wasInitialized := r.initialized
	r.initialized = false
	r.authenticated = false
	r.status = StatusDisconnected
	r.mu.Unlock()

	if !wasInitialized {
		return nil
	}
	if r.auth != nil {
		r.auth.Revoke(r.cfg.ConnectorID)
	}
	return r.adapter.Close(ctx)
}

// TestConnection probes the upstream without touching metrics.
func (r *Runtime) TestConnection(ctx context.Context) error {
	return r.adapter.Test(ctx)
}

// ============================================================================
// INTERNALS
// ============================================================================

// admitRate admits iff fewer than rate_limit_per_minute requests ran in the
// last 60 seconds, appending the admission timestamp. A zero limit disables
// limiting.
func (r *Runtime) admitRate() bool {
	if r.cfg.RateLimitPerMinute <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.requestTimes = r.pruneWindowLocked(now)
	if len(r.requestTimes) >= r.cfg.RateLimitPerMinute {
		return false
	}
	r.requestTimes = append(r.requestTimes, now)
	return true
}

func (r *Runtime) pruneWindowLocked(now time.Time) []time.Time {
	cutoff := now.Add(-time.Minute)
	kept := r.requestTimes[:0]
	for _, ts := range r.requestTimes {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

func (r *Runtime) ensureAuthenticated(ctx context.Context) error {
	if r.cfg.AuthScheme == core.AuthNone || r.auth == nil {
		return nil
	}
	r.mu.Lock()
	valid := r.authenticated && r.auth.IsValid(r.cfg.ConnectorID)
	r.mu.Unlock()
	if valid {
		return nil
	}
	if err := r.adapter.Authenticate(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	r.authenticated = true
	r.mu.Unlock()
	return nil
}

// boundContext applies the effective deadline min(request timeout, connector
// timeout, breaker deadline).
func (r *Runtime) boundContext(ctx context.Context, req *core.ConnectorRequest) (context.Context, context.CancelFunc) {
	timeout := r.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if req.Timeout > 0 && req.Timeout < timeout {
		timeout = req.Timeout
	}
	timeout = r.breaker.Deadline(timeout)
	return context.WithTimeout(ctx, timeout)
}

// record folds one response into metrics, health and the notifier.
func (r *Runtime) record(resp *core.ConnectorResponse, success bool) {
	r.mu.Lock()
	m := &r.metrics
	m.TotalRequests++
	if success {
		m.SuccessfulRequests++
	} else {
		m.FailedRequests++
	}
	if resp.ResponseTimeMs > 0 {
		// Incremental mean keeps the aggregate O(1) per request.
		m.AvgResponseMs += (resp.ResponseTimeMs - m.AvgResponseMs) / float64(m.TotalRequests)
		if resp.ResponseTimeMs > m.PeakResponseMs {
			m.PeakResponseMs = resp.ResponseTimeMs
		}
	}
	m.ErrorRatePercent = 100 * float64(m.FailedRequests) / float64(m.TotalRequests)
	m.LastRequestAt = r.now()

	rate := r.successRateLocked()
	switch {
	case rate >= 95:
		r.status = StatusConnected
	case rate >= 80:
		r.status = StatusAuthenticated
	default:
		r.status = StatusError
	}
	notify := r.notify
	id := r.cfg.ConnectorID
	ms := resp.ResponseTimeMs
	r.mu.Unlock()

	if notify != nil {
		notify(id, success, ms)
	}
}

func (r *Runtime) successRateLocked() float64 {
	if r.metrics.TotalRequests == 0 {
		return 100
	}
	return 100 * float64(r.metrics.SuccessfulRequests) / float64(r.metrics.TotalRequests)
}

func (r *Runtime) setStatus(s Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

// endpointFor resolves the path for an operation: the specific
// "<op>_<resource>" mapping wins, then the bare resource key, then a literal
// /<resource> path.
func (r *Runtime) endpointFor(op, resource string) string {
	if p := r.cfg.Endpoint(op + "_" + resource); p != "" {
		return p
	}
	if p := r.cfg.Endpoint(resource); p != "" {
		return p
	}
	return "/" + resource
}

func joinPath(endpoint, id string) string {
	if id == "" {
		return endpoint
	}
	return strings.TrimRight(endpoint, "/") + "/" + id
}

// axisOf maps the request's operation class onto a breaker axis.
func axisOf(req *core.ConnectorRequest) circuitbreaker.Axis {
	switch strings.ToLower(req.Meta("operation_class")) {
	case "si":
		return circuitbreaker.AxisSI
	case "app":
		return circuitbreaker.AxisAPP
	case "domain":
		return circuitbreaker.AxisDomain
	default:
		return circuitbreaker.AxisHybrid
	}
}

func callContext(req *core.ConnectorRequest) map[string]string {
	ctx := map[string]string{"operation": req.Operation, "endpoint": req.Endpoint}
	for k, v := range req.Metadata {
		if s, ok := v.(string); ok {
			ctx[k] = s
		}
	}
	return ctx
}

// classifyFailure maps an adapter error onto a breaker failure type and an
// HTTP-equivalent status for the failed response.
func classifyFailure(err error, ctx context.Context) (string, int) {
	if ctx.Err() != nil {
		return "timeout", http.StatusGatewayTimeout
	}
	switch core.KindOf(err) {
	case core.KindTimeout:
		return "timeout", http.StatusGatewayTimeout
	case core.KindAuth:
		return "auth", http.StatusUnauthorized
	case core.KindProtocol, core.KindValidation:
		return "protocol", http.StatusBadGateway
	default:
		return "connection", http.StatusBadGateway
	}
}
