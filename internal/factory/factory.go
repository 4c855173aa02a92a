// Package factory instantiates connectors from templates and owns the
// registry of live connectors. Templates are closed records: creation
// validates required fields and rejects unknown override keys.
package factory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nairaflow/connect/internal/auth"
	"github.com/nairaflow/connect/internal/connector"
	"github.com/nairaflow/connect/internal/core"
)

// Template describes how to build a connector for one upstream product.
type Template struct {
	ID          string
	Name        string
	Description string

	Kind       core.ConnectorKind
	Protocol   core.Protocol
	AuthScheme core.AuthScheme

	BaseURL        string
	Endpoints      map[string]string
	DefaultHeaders map[string]string

	// RequiredFields name the override keys creation must receive, either
	// top-level or inside auth_config.
	RequiredFields  []string
	DefaultSettings map[string]any

	Timeout            time.Duration
	RateLimitPerMinute int
	BatchSize          int
	DataFormat         core.DataFormat
	SSLVerify          bool
}

// allowedOverrideKeys is the closed set of keys accepted by
// CreateConnectorConfig; anything else is a config error.
var allowedOverrideKeys = map[string]bool{
	"connector_id": true, "name": true, "base_url": true,
	"auth_config": true, "endpoints": true, "default_headers": true,
	"settings": true, "timeout_ms": true, "rate_limit_per_minute": true,
	"batch_size": true, "ssl_verify": true,
}

// Factory owns templates and live connectors.
type Factory struct {
	mu         sync.RWMutex
	templates  map[string]*Template
	connectors map[string]*connector.Runtime

	auth     *auth.Manager
	logger   *log.Logger
	runtimeO []connector.Option
}

// NewFactory builds an empty factory. Runtime options are applied to every
// connector it creates, which is how the health monitor's notifier and
// custom breaker configs are wired in.
func NewFactory(authMgr *auth.Manager, opts ...connector.Option) *Factory {
	return &Factory{
		templates:  make(map[string]*Template),
		connectors: make(map[string]*connector.Runtime),
		auth:       authMgr,
		logger:     log.New(log.Writer(), "[FACTORY] ", log.LstdFlags),
		runtimeO:   opts,
	}
}

// RegisterTemplate adds or replaces a template.
func (f *Factory) RegisterTemplate(t *Template) error {
	if t.ID == "" {
		return core.NewError(core.KindConfig, "factory.template", "template id is required")
	}
	f.mu.Lock()
	f.templates[t.ID] = t
	f.mu.Unlock()
	return nil
}

// Template returns a registered template, or nil.
func (f *Factory) Template(id string) *Template {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.templates[id]
}

// TemplateIDs lists registered template ids, sorted.
func (f *Factory) TemplateIDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(f.templates))
	for id := range f.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CreateConnectorConfig merges template defaults with overrides into a
// ConnectorConfig. Required fields must appear in the overrides (top-level
// or in auth_config); unknown override keys are rejected.
func (f *Factory) CreateConnectorConfig(templateID string, overrides map[string]any) (*core.ConnectorConfig, error) {
	t := f.Template(templateID)
	if t == nil {
		return nil, core.NewError(core.KindConfig, "factory.create_config",
			fmt.Sprintf("unknown template %s", templateID))
	}

	for key := range overrides {
		if !allowedOverrideKeys[key] {
			return nil, core.NewError(core.KindConfig, "factory.create_config",
				fmt.Sprintf("unknown override key %q for template %s", key, templateID))
		}
	}

	authConfig, _ := overrides["auth_config"].(map[string]any)
	for _, field := range t.RequiredFields {
		if _, ok := overrides[field]; ok {
			continue
		}
		if _, ok := authConfig[field]; ok {
			continue
		}
		return nil, core.NewError(core.KindConfig, "factory.create_config",
			fmt.Sprintf("template %s: required field %q missing", templateID, field))
	}

	cfg := &core.ConnectorConfig{
		ConnectorID:        stringOr(overrides, "connector_id", templateID+"-"+uuid.NewString()[:8]),
		Name:               stringOr(overrides, "name", t.Name),
		Kind:               t.Kind,
		Protocol:           t.Protocol,
		AuthScheme:         t.AuthScheme,
		BaseURL:            stringOr(overrides, "base_url", t.BaseURL),
		Endpoints:          mergeStringMaps(t.Endpoints, stringMapAt(overrides, "endpoints")),
		DefaultHeaders:     mergeStringMaps(t.DefaultHeaders, stringMapAt(overrides, "default_headers")),
		AuthConfig:         authConfig,
		Timeout:            t.Timeout,
		RateLimitPerMinute: intOr(overrides, "rate_limit_per_minute", t.RateLimitPerMinute),
		BatchSize:          intOr(overrides, "batch_size", t.BatchSize),
		SSLVerify:          boolOr(overrides, "ssl_verify", t.SSLVerify),
		DataFormat:         t.DataFormat,
		Settings:           mergeAnyMaps(t.DefaultSettings, anyMapAt(overrides, "settings")),
		Metadata: map[string]string{
			"template_id":   t.ID,
			"template_name": t.Name,
		},
	}
	if ms, ok := overrides["timeout_ms"].(int); ok && ms > 0 {
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CreateConnector builds a runtime for the config, optionally initializes
// it, and registers it.
func (f *Factory) CreateConnector(ctx context.Context, cfg *core.ConnectorConfig, autoInit bool) (*connector.Runtime, error) {
	f.mu.RLock()
	_, exists := f.connectors[cfg.ConnectorID]
	f.mu.RUnlock()
	if exists {
		return nil, core.NewError(core.KindConfig, "factory.create",
			fmt.Sprintf("connector %s already registered", cfg.ConnectorID))
	}

	r, err := connector.New(cfg, f.auth, f.runtimeO...)
	if err != nil {
		return nil, err
	}
	if autoInit {
		if err := r.Initialize(ctx); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	f.connectors[cfg.ConnectorID] = r
	f.mu.Unlock()
	f.logger.Printf("created connector %s from template %s", cfg.ConnectorID, cfg.Metadata["template_id"])
	return r, nil
}

// Connector returns a live connector by id, or nil.
func (f *Factory) Connector(id string) *connector.Runtime {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connectors[id]
}

// ConnectorIDs lists live connector ids, sorted.
func (f *Factory) ConnectorIDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(f.connectors))
	for id := range f.connectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DestroyConnector disconnects and unregisters one connector.
func (f *Factory) DestroyConnector(ctx context.Context, id string) error {
	f.mu.Lock()
	r, ok := f.connectors[id]
	delete(f.connectors, id)
	f.mu.Unlock()
	if !ok {
		return core.NewError(core.KindConfig, "factory.destroy", fmt.Sprintf("unknown connector %s", id))
	}
	return r.Disconnect(ctx)
}

// BulkSpec is one entry of a bulk creation request.
type BulkSpec struct {
	TemplateID string
	Overrides  map[string]any
	AutoInit   bool
}

// BulkResult reports per-entry outcomes of BulkCreate.
type BulkResult struct {
	Successful []string          `json:"successful"`
	Failed     map[string]string `json:"failed"`
	Total      int               `json:"total"`
}

// BulkCreate runs serial creation; one failure never aborts the rest.
func (f *Factory) BulkCreate(ctx context.Context, specs []BulkSpec) BulkResult {
	out := BulkResult{Failed: map[string]string{}, Total: len(specs)}
	for i, spec := range specs {
		cfg, err := f.CreateConnectorConfig(spec.TemplateID, spec.Overrides)
		if err != nil {
			out.Failed[fmt.Sprintf("%s[%d]", spec.TemplateID, i)] = err.Error()
			continue
		}
		if _, err := f.CreateConnector(ctx, cfg, spec.AutoInit); err != nil {
			out.Failed[cfg.ConnectorID] = err.Error()
			continue
		}
		out.Successful = append(out.Successful, cfg.ConnectorID)
	}
	return out
}

// HealthReport aggregates per-connector health.
type HealthReport struct {
	Healthy   []string                    `json:"healthy"`
	Unhealthy []string                    `json:"unhealthy"`
	Details   map[string]connector.Health `json:"details"`
}

// HealthCheckAll snapshots every live connector's health concurrently.
func (f *Factory) HealthCheckAll(ctx context.Context) HealthReport {
	f.mu.RLock()
	live := make([]*connector.Runtime, 0, len(f.connectors))
	for _, r := range f.connectors {
		live = append(live, r)
	}
	f.mu.RUnlock()

	var reportMu sync.Mutex
	report := HealthReport{Details: make(map[string]connector.Health, len(live))}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, r := range live {
		r := r
		g.Go(func() error {
			h := r.Health()
			reportMu.Lock()
			report.Details[r.ID()] = h
			if h.Status == connector.StatusError || h.Status == connector.StatusDisconnected {
				report.Unhealthy = append(report.Unhealthy, r.ID())
			} else {
				report.Healthy = append(report.Healthy, r.ID())
			}
			reportMu.Unlock()
			return nil
		})
	}
	g.Wait()
	sort.Strings(report.Healthy)
	sort.Strings(report.Unhealthy)
	return report
}

// TestResult is the verdict of a throwaway connection test.
type TestResult struct {
	Success        bool    `json:"success"`
	ResponseTimeMs float64 `json:"response_time_ms"`
	Error          string  `json:"error,omitempty"`
}

// TestConnection builds a throwaway connector from the template, probes the
// upstream, and tears it down without registering anything.
func (f *Factory) TestConnection(ctx context.Context, templateID string, overrides map[string]any) (*TestResult, error) {
	cfg, err := f.CreateConnectorConfig(templateID, overrides)
	if err != nil {
		return nil, err
	}
	r, err := connector.New(cfg, f.auth)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := r.Initialize(ctx); err != nil {
		return &TestResult{Success: false, Error: err.Error()}, nil
	}
	defer r.Disconnect(ctx)

	if err := r.TestConnection(ctx); err != nil {
		return &TestResult{
			Success:        false,
			ResponseTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
			Error:          err.Error(),
		}, nil
	}
	return &TestResult{
		Success:        true,
		ResponseTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}

// ============================================================================
// OVERRIDE HELPERS
// ============================================================================

func stringOr(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func intOr(m map[string]any, key string, fallback int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

func boolOr(m map[string]any, key string, fallback bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return fallback
}

func stringMapAt(m map[string]any, key string) map[string]string {
	switch v := m[key].(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, item := range v {
			out[k] = fmt.Sprintf("%v", item)
		}
		return out
	}
	return nil
}

func anyMapAt(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

func mergeStringMaps(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func mergeAnyMaps(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
