// Package health runs scheduled health checks, aggregates per-connector
// statistics from execute outcomes, evaluates alert conditions and keeps a
// bounded metric log. It never holds a reference to a connector: outcomes
// arrive through Observe or the probe channel.
package health

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CheckStatus is the verdict of one health check run.
type CheckStatus int

const (
	StatusUnknown CheckStatus = iota
	StatusHealthy
	StatusDegraded
	StatusUnhealthy
)

func (s CheckStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// CheckFunc performs one health probe. It must honour ctx.
type CheckFunc func(ctx context.Context) CheckStatus

// HealthCheck is one scheduled probe.
type HealthCheck struct {
	Name     string
	Check    CheckFunc
	Interval time.Duration
	Timeout  time.Duration
	Critical bool

	mu                  sync.Mutex
	lastRun             time.Time
	lastStatus          CheckStatus
	consecutiveFailures int
}

// Status returns the most recent verdict.
func (h *HealthCheck) Status() CheckStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastStatus
}

// ConsecutiveFailures returns the current failure streak.
func (h *HealthCheck) ConsecutiveFailures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.consecutiveFailures
}

// BreakerState is the simple connector-level breaker the monitor keeps,
// gating inclusion of a connector by external callers. It is deliberately
// coarser than the hybrid breaker inside the runtime.
type BreakerState struct {
	State            string        `json:"state"` // closed, open, half_open
	FailureCount     int           `json:"failure_count"`
	LastFailureTime  time.Time     `json:"last_failure_time"`
	NextAttemptTime  time.Time     `json:"next_attempt_time"`
	FailureThreshold int           `json:"failure_threshold"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout"`
}

// ConnectorStats aggregates the observed outcomes of one connector.
type ConnectorStats struct {
	ConnectorID    string       `json:"connector_id"`
	TotalRequests  int64        `json:"total_requests"`
	Successful     int64        `json:"successful"`
	Failed         int64        `json:"failed"`
	AvgResponseMs  float64      `json:"avg_response_ms"`
	ErrorRate      float64      `json:"error_rate_percent"`
	ThroughputRPS  float64      `json:"throughput_rps"`
	UptimeStart    time.Time    `json:"uptime_start"`
	CurrentStatus  CheckStatus  `json:"current_status"`
	Breaker        BreakerState `json:"circuit_breaker"`

	recent []time.Time // request timestamps for the 60s throughput window
}

// MetricType classifies a recorded metric sample.
type MetricType int

const (
	MetricCounter MetricType = iota
	MetricGauge
	MetricHistogram
	MetricTimer
)

// Metric is one sample in the bounded FIFO.
type Metric struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Type      MetricType        `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// AlertSeverity ranks alerts.
type AlertSeverity int

const (
	SeverityInfo AlertSeverity = iota
	SeverityWarning
	SeverityCritical
)

func (s AlertSeverity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "info"
	}
}

// AlertCondition is a pure predicate over the current stats set.
type AlertCondition func(stats map[string]ConnectorStats) bool

// Alert is one registered alerting rule.
type Alert struct {
	Name      string
	Condition AlertCondition
	Severity  AlertSeverity
	Message   string
	Cooldown  time.Duration

	mu            sync.Mutex
	active        bool
	lastTriggered time.Time
}

// Active reports whether the alert condition currently holds.
func (a *Alert) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// AlertHandler receives fired alerts. Handlers run in registration order.
type AlertHandler func(alert *Alert)

// ProbeResult is one execute outcome pushed into the monitor.
type ProbeResult struct {
	ConnectorID string
	Success     bool
	ResponseMs  float64
}

const defaultMaxMetrics = 10000

// Monitor owns checks, stats, alerts and the metric log.
type Monitor struct {
	mu       sync.Mutex
	checks   map[string]*HealthCheck
	stats    map[string]*ConnectorStats
	alerts   []*Alert
	handlers []AlertHandler
	metrics  []Metric

	maxMetrics int
	probes     chan ProbeResult
	stop       chan struct{}
	wg         sync.WaitGroup
	started    bool
	logger     *log.Logger
	now        func() time.Time

	prom *promCollectors
}

type promCollectors struct {
	requests   *prometheus.CounterVec
	responseMs *prometheus.HistogramVec
	up         *prometheus.GaugeVec
}

// Option tweaks monitor construction.
type Option func(*Monitor)

// WithMaxMetrics bounds the metric FIFO.
func WithMaxMetrics(n int) Option {
	return func(m *Monitor) { m.maxMetrics = n }
}

// WithRegisterer installs prometheus collectors on the given registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Monitor) {
		factory := promauto.With(reg)
		m.prom = &promCollectors{
			requests: factory.NewCounterVec(prometheus.CounterOpts{
				Name: "connect_requests_total",
				Help: "Connector requests observed by the health monitor.",
			}, []string{"connector_id", "outcome"}),
			responseMs: factory.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "connect_response_ms",
				Help:    "Connector response times in milliseconds.",
				Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
			}, []string{"connector_id"}),
			up: factory.NewGaugeVec(prometheus.GaugeOpts{
				Name: "connect_connector_up",
				Help: "1 when the connector-level breaker is closed.",
			}, []string{"connector_id"}),
		}
	}
}

// NewMonitor builds an idle monitor; Start launches the schedulers.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		checks:     make(map[string]*HealthCheck),
		stats:      make(map[string]*ConnectorStats),
		maxMetrics: defaultMaxMetrics,
		probes:     make(chan ProbeResult, 256),
		logger:     log.New(log.Writer(), "[HEALTH] ", log.LstdFlags),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ============================================================================
// REGISTRATION
// ============================================================================

// RegisterCheck adds a scheduled check. Registration after Start takes
// effect on the next Start.
func (m *Monitor) RegisterCheck(c *HealthCheck) {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	m.mu.Lock()
	m.checks[c.Name] = c
	m.mu.Unlock()
}

// RegisterAlert appends an alerting rule; evaluation order is registration
// order.
func (m *Monitor) RegisterAlert(a *Alert) {
	if a.Cooldown <= 0 {
		a.Cooldown = 5 * time.Minute
	}
	m.mu.Lock()
	m.alerts = append(m.alerts, a)
	m.mu.Unlock()
}

// RegisterHandler appends an alert handler.
func (m *Monitor) RegisterHandler(h AlertHandler) {
	m.mu.Lock()
	m.handlers = append(m.handlers, h)
	m.mu.Unlock()
}

// TrackConnector starts aggregating stats for a connector, with the given
// breaker thresholds.
func (m *Monitor) TrackConnector(connectorID string, failureThreshold int, recoveryTimeout time.Duration) {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	m.mu.Lock()
	m.stats[connectorID] = &ConnectorStats{
		ConnectorID:   connectorID,
		UptimeStart:   m.now(),
		CurrentStatus: StatusUnknown,
		Breaker: BreakerState{
			State:            "closed",
			FailureThreshold: failureThreshold,
			RecoveryTimeout:  recoveryTimeout,
		},
	}
	m.mu.Unlock()
}

// ============================================================================
// OBSERVATION INTAKE
// ============================================================================

// Intake returns the channel execute outcomes can be pushed into. The
// monitor drains it while started.
func (m *Monitor) Intake() chan<- ProbeResult { return m.probes }

// Observe folds one execute outcome into the connector's stats. It has the
// shape of the runtime's notifier, so it can be wired directly.
func (m *Monitor) Observe(connectorID string, success bool, responseMs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observeLocked(ProbeResult{ConnectorID: connectorID, Success: success, ResponseMs: responseMs})
}

func (m *Monitor) observeLocked(p ProbeResult) {
	s, ok := m.stats[p.ConnectorID]
	if !ok {
		s = &ConnectorStats{
			ConnectorID:   p.ConnectorID,
			UptimeStart:   m.now(),
			CurrentStatus: StatusUnknown,
			Breaker: BreakerState{
				State:            "closed",
				FailureThreshold: 5,
				RecoveryTimeout:  30 * time.Second,
			},
		}
		m.stats[p.ConnectorID] = s
	}

	now := m.now()
	s.TotalRequests++
	if p.Success {
		s.Successful++
	} else {
		s.Failed++
	}
	if p.ResponseMs > 0 {
		s.AvgResponseMs += (p.ResponseMs - s.AvgResponseMs) / float64(s.TotalRequests)
	}
	s.ErrorRate = 100 * float64(s.Failed) / float64(s.TotalRequests)

	// 60s throughput window.
	cutoff := now.Add(-time.Minute)
	kept := s.recent[:0]
	for _, ts := range s.recent {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	s.recent = append(kept, now)
	s.ThroughputRPS = float64(len(s.recent)) / 60.0

	m.stepBreaker(s, p.Success, now)

	switch {
	case s.ErrorRate < 5:
		s.CurrentStatus = StatusHealthy
	case s.ErrorRate < 20:
		s.CurrentStatus = StatusDegraded
	default:
		s.CurrentStatus = StatusUnhealthy
	}

	if m.prom != nil {
		outcome := "success"
		if !p.Success {
			outcome = "failure"
		}
		m.prom.requests.WithLabelValues(p.ConnectorID, outcome).Inc()
		if p.ResponseMs > 0 {
			m.prom.responseMs.WithLabelValues(p.ConnectorID).Observe(p.ResponseMs)
		}
		upValue := 0.0
		if s.Breaker.State == "closed" {
			upValue = 1.0
		}
		m.prom.up.WithLabelValues(p.ConnectorID).Set(upValue)
	}
}

// stepBreaker advances the simple connector-level breaker.
func (m *Monitor) stepBreaker(s *ConnectorStats, success bool, now time.Time) {
	b := &s.Breaker
	if b.State == "open" && !now.Before(b.NextAttemptTime) {
		b.State = "half_open"
	}

	if success {
		if b.State == "half_open" {
			m.logger.Printf("connector %s breaker half_open -> closed", s.ConnectorID)
		}
		b.State = "closed"
		b.FailureCount = 0
		return
	}

	b.FailureCount++
	b.LastFailureTime = now
	if b.State == "half_open" || b.FailureCount >= b.FailureThreshold {
		if b.State != "open" {
			m.logger.Printf("connector %s breaker %s -> open (%d failures)", s.ConnectorID, b.State, b.FailureCount)
		}
		b.State = "open"
		b.NextAttemptTime = now.Add(b.RecoveryTimeout)
	}
}

// Stats returns a copy of one connector's stats.
func (m *Monitor) Stats(connectorID string) (ConnectorStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[connectorID]
	if !ok {
		return ConnectorStats{}, false
	}
	out := *s
	out.recent = nil
	return out, true
}

// AllStats returns a copy of every connector's stats.
func (m *Monitor) AllStats() map[string]ConnectorStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statsCopyLocked()
}

func (m *Monitor) statsCopyLocked() map[string]ConnectorStats {
	out := make(map[string]ConnectorStats, len(m.stats))
	for id, s := range m.stats {
		c := *s
		c.recent = nil
		out[id] = c
	}
	return out
}

// ============================================================================
// METRIC LOG
// ============================================================================

// RecordMetric appends one sample to the bounded FIFO.
func (m *Monitor) RecordMetric(name string, value float64, typ MetricType, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.metrics) >= m.maxMetrics {
		// Drop the oldest sample.
		m.metrics = m.metrics[1:]
	}
	m.metrics = append(m.metrics, Metric{
		Name:      name,
		Value:     value,
		Type:      typ,
		Timestamp: m.now(),
		Tags:      tags,
	})
}

// Metrics returns a copy of the metric log, oldest first.
func (m *Monitor) Metrics() []Metric {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Metric, len(m.metrics))
	copy(out, m.metrics)
	return out
}

// ============================================================================
// SCHEDULER
// ============================================================================

// Start launches the check schedulers and the probe drain. Stop (or ctx
// cancellation) shuts them down.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.stop = make(chan struct{})
	checks := make([]*HealthCheck, 0, len(m.checks))
	for _, c := range m.checks {
		checks = append(checks, c)
	}
	stop := m.stop
	m.mu.Unlock()

	for _, c := range checks {
		c := c
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			ticker := time.NewTicker(c.Interval)
			defer ticker.Stop()
			m.runCheck(ctx, c)
			for {
				select {
				case <-ctx.Done():
					return
				case <-stop:
					return
				case <-ticker.C:
					m.runCheck(ctx, c)
				}
			}
		}()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case p := <-m.probes:
				m.mu.Lock()
				m.observeLocked(p)
				m.mu.Unlock()
			}
		}
	}()
}

// Stop shuts the schedulers down and waits for them.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	close(m.stop)
	m.mu.Unlock()
	m.wg.Wait()
}

// runCheck executes one probe under its own timeout, then evaluates alerts.
// Check timeouts never cascade into connector deadlines.
func (m *Monitor) runCheck(ctx context.Context, c *HealthCheck) {
	checkCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	done := make(chan CheckStatus, 1)
	go func() { done <- c.Check(checkCtx) }()

	var status CheckStatus
	select {
	case status = <-done:
	case <-checkCtx.Done():
		status = StatusUnhealthy
	}

	c.mu.Lock()
	c.lastRun = m.now()
	c.lastStatus = status
	if status == StatusUnhealthy {
		c.consecutiveFailures++
	} else {
		c.consecutiveFailures = 0
	}
	c.mu.Unlock()

	m.EvaluateAlerts()
}

// ============================================================================
// ALERTS + OVERALL HEALTH
// ============================================================================

// EvaluateAlerts runs every alert condition against the current stats,
// firing handlers for newly active alerts (honouring cooldown) and logging
// active-to-cleared transitions.
func (m *Monitor) EvaluateAlerts() {
	m.mu.Lock()
	stats := m.statsCopyLocked()
	alerts := make([]*Alert, len(m.alerts))
	copy(alerts, m.alerts)
	handlers := make([]AlertHandler, len(m.handlers))
	copy(handlers, m.handlers)
	now := m.now()
	m.mu.Unlock()

	for _, a := range alerts {
		holds := a.Condition(stats)

		a.mu.Lock()
		fire := false
		switch {
		case holds && !a.active:
			a.active = true
			if now.Sub(a.lastTriggered) >= a.Cooldown {
				a.lastTriggered = now
				fire = true
			}
		case !holds && a.active:
			a.active = false
			m.logger.Printf("alert %s cleared", a.Name)
		}
		a.mu.Unlock()

		if fire {
			m.logger.Printf("alert %s fired (%s): %s", a.Name, a.Severity, a.Message)
			for _, h := range handlers {
				h(a)
			}
		}
	}
}

// Overall derives system health from the registered checks: any critical
// unhealthy check makes the system unhealthy; any unhealthy or degraded
// check degrades it; otherwise it is healthy.
func (m *Monitor) Overall() CheckStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	overall := StatusHealthy
	for _, c := range m.checks {
		status := c.Status()
		if status == StatusUnhealthy && c.Critical {
			return StatusUnhealthy
		}
		if status == StatusUnhealthy || status == StatusDegraded {
			overall = StatusDegraded
		}
	}
	return overall
}
