// Package circuitbreaker implements the hybrid circuit breaker protecting
// connector calls. Unlike a classic three-state breaker it tracks failures
// on four axes (SI, APP, Hybrid, Domain), each with its own sliding window
// and threshold, and adds degraded and maintenance states on top of the
// Closed/Open/HalfOpen machine.
package circuitbreaker

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Axis is the operation class a protected call is tagged with.
type Axis int

const (
	AxisSI Axis = iota
	AxisAPP
	AxisHybrid
	AxisDomain
)

func (a Axis) String() string {
	switch a {
	case AxisSI:
		return "si"
	case AxisAPP:
		return "app"
	case AxisHybrid:
		return "hybrid"
	case AxisDomain:
		return "domain"
	default:
		return "unknown"
	}
}

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
	StateSIDegraded
	StateAPPDegraded
	StateHybridDegraded
	StateDomainIsolated
	StateMaintenance
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateSIDegraded:
		return "SI_DEGRADED"
	case StateAPPDegraded:
		return "APP_DEGRADED"
	case StateHybridDegraded:
		return "HYBRID_DEGRADED"
	case StateDomainIsolated:
		return "DOMAIN_ISOLATED"
	case StateMaintenance:
		return "MAINTENANCE"
	default:
		return "UNKNOWN"
	}
}

func degradedStateFor(a Axis) State {
	switch a {
	case AxisSI:
		return StateSIDegraded
	case AxisAPP:
		return StateAPPDegraded
	case AxisHybrid:
		return StateHybridDegraded
	default:
		return StateDomainIsolated
	}
}

// Common rejection errors.
var (
	ErrCircuitOpen    = errors.New("circuit breaker is open")
	ErrAxisDegraded   = errors.New("circuit breaker axis is degraded")
	ErrDomainIsolated = errors.New("circuit breaker has isolated this domain")
	ErrMaintenance    = errors.New("circuit breaker is in maintenance mode")
	ErrTooManyProbes  = errors.New("too many probe calls in half-open state")
)

// Config holds breaker configuration. One breaker governs one connector.
type Config struct {
	// Name identifies the breaker, usually the connector id.
	Name string

	// AxisThresholds is the in-window failure count that degrades each axis.
	AxisThresholds map[Axis]int

	// TimeWindow bounds the sliding failure windows.
	TimeWindow time.Duration

	// RecoveryTimeout is how long after the last failure an Open breaker
	// probes HalfOpen, and how long a degraded axis waits before closing.
	RecoveryTimeout time.Duration

	// HalfOpenMaxCalls is the number of successful probes required to close.
	HalfOpenMaxCalls int

	// Timeout is the breaker-level deadline applied to protected calls.
	Timeout time.Duration

	// DomainIndicators are substrings matched against call context values;
	// a match marks the call as belonging to the isolated domain.
	DomainIndicators []string

	// OnStateChange is invoked after every transition.
	OnStateChange func(name string, from, to State, reason string)
}

// DefaultConfig returns thresholds suitable for a typical connector.
func DefaultConfig(name string) *Config {
	return &Config{
		Name: name,
		AxisThresholds: map[Axis]int{
			AxisSI:     5,
			AxisAPP:    5,
			AxisHybrid: 5,
			AxisDomain: 3,
		},
		TimeWindow:       60 * time.Second,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenMaxCalls: 3,
		Timeout:          30 * time.Second,
		OnStateChange: func(name string, from, to State, reason string) {
			log.Printf("[Breaker:%s] %s -> %s (%s)", name, from, to, reason)
		},
	}
}

// Observation is one entry of the breaker's transition log.
type Observation struct {
	Time   time.Time `json:"time"`
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason"`
}

// Snapshot is a point-in-time copy of breaker state for monitors.
type Snapshot struct {
	Name             string        `json:"name"`
	State            State         `json:"state"`
	AxisFailures     map[Axis]int  `json:"axis_failures"`
	TotalFailures    int64         `json:"total_failures"`
	TotalSuccesses   int64         `json:"total_successes"`
	LastFailureTime  time.Time     `json:"last_failure_time"`
	LastStateChange  time.Time     `json:"last_state_change"`
	HalfOpenSuccess  int           `json:"half_open_success_count"`
	Observations     []Observation `json:"observations"`
	AvgFailureGapSec float64       `json:"avg_failure_gap_sec"`
}

// HybridBreaker is the multi-axis breaker. All state is guarded by mu;
// transitions are totally ordered per breaker.
type HybridBreaker struct {
	cfg *Config

	mu              sync.Mutex
	state           State
	windows         map[Axis][]time.Time
	lastStateChange time.Time
	lastFailureTime time.Time
	halfOpenSuccess int
	totalFailures   int64
	totalSuccesses  int64
	observations    []Observation

	now func() time.Time
}

// New creates a hybrid breaker from cfg (nil gets defaults).
func New(cfg *Config) *HybridBreaker {
	if cfg == nil {
		cfg = DefaultConfig("default")
	}
	if cfg.AxisThresholds == nil {
		cfg.AxisThresholds = DefaultConfig(cfg.Name).AxisThresholds
	}
	if cfg.TimeWindow <= 0 {
		cfg.TimeWindow = 60 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 3
	}
	b := &HybridBreaker{
		cfg:     cfg,
		state:   StateClosed,
		windows: make(map[Axis][]time.Time, 4),
		now:     time.Now,
	}
	b.lastStateChange = b.now()
	return b
}

// Name returns the breaker name.
func (b *HybridBreaker) Name() string { return b.cfg.Name }

// State returns the current state.
func (b *HybridBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Deadline returns the effective deadline for a protected call:
// min(callTimeout, breaker timeout). Zero values are treated as unbounded.
func (b *HybridBreaker) Deadline(callTimeout time.Duration) time.Duration {
	bt := b.cfg.Timeout
	switch {
	case bt <= 0:
		return callTimeout
	case callTimeout <= 0:
		return bt
	case callTimeout < bt:
		return callTimeout
	default:
		return bt
	}
}

// Allow decides whether a call of the given axis may proceed. callContext is
// only consulted in Domain-Isolated state, where values are substring-matched
// against the configured domain indicators.
func (b *HybridBreaker) Allow(axis Axis, callContext map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.pruneWindows(now)

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if now.Sub(b.lastFailureTime) >= b.cfg.RecoveryTimeout {
			b.setState(StateHalfOpen, now, "recovery timeout elapsed, probing")
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		if b.halfOpenSuccess < b.cfg.HalfOpenMaxCalls {
			return nil
		}
		return ErrTooManyProbes

	case StateSIDegraded, StateAPPDegraded, StateHybridDegraded:
		if degradedStateFor(axis) == b.state {
			return ErrAxisDegraded
		}
		return nil

	case StateDomainIsolated:
		if b.matchesDomain(callContext) {
			return ErrDomainIsolated
		}
		return nil

	case StateMaintenance:
		return ErrMaintenance
	}
	return nil
}

// RecordFailure records a failure of the given axis. failureType names the
// failure class ("timeout", "connection", "protocol", ...) for the log.
func (b *HybridBreaker) RecordFailure(axis Axis, failureType string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.pruneWindows(now)
	b.windows[axis] = append(b.windows[axis], now)
	b.lastFailureTime = now
	b.totalFailures++

	// Maintenance is entered and left by operator calls only. Failures from
	// calls admitted before EnterMaintenance are counted but never transition.
	if b.state == StateMaintenance {
		return
	}

	reasonSuffix := fmt.Sprintf("axis=%s type=%s", axis, failureType)

	// Transition precedence: domain isolation, axis degradation, overall
	// breach, half-open probe failure.
	if len(b.windows[AxisDomain]) >= b.threshold(AxisDomain) {
		b.setState(StateDomainIsolated, now, "domain failure threshold breached; "+reasonSuffix)
		return
	}
	if len(b.windows[axis]) >= b.threshold(axis) {
		b.setState(degradedStateFor(axis), now, fmt.Sprintf("%s failure threshold breached; %s", axis, reasonSuffix))
		return
	}
	if b.windowSum() >= b.maxThreshold() {
		b.setState(StateOpen, now, "overall failure threshold breached; "+reasonSuffix)
		return
	}
	if b.state == StateHalfOpen {
		b.setState(StateOpen, now, "failure during half-open probe; "+reasonSuffix)
	}
}

// RecordSuccess records a successful call of the given axis.
func (b *HybridBreaker) RecordSuccess(axis Axis) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.totalSuccesses++

	switch b.state {
	case StateHalfOpen:
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.cfg.HalfOpenMaxCalls {
			b.resetWindows()
			b.setState(StateClosed, now, "half-open probes succeeded")
		}
	case StateSIDegraded, StateAPPDegraded, StateHybridDegraded, StateDomainIsolated:
		if now.Sub(b.lastFailureTime) >= b.cfg.RecoveryTimeout {
			b.resetWindows()
			b.setState(StateClosed, now, "degraded axis recovered")
		}
	}
}

// EnterMaintenance switches the breaker to maintenance. Operator action only.
func (b *HybridBreaker) EnterMaintenance(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateMaintenance, b.now(), "maintenance: "+reason)
}

// ExitMaintenance returns the breaker to Closed. Operator action only.
func (b *HybridBreaker) ExitMaintenance() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateMaintenance {
		return
	}
	b.resetWindows()
	b.setState(StateClosed, b.now(), "maintenance ended")
}

// Snapshot copies the breaker state for external observers.
func (b *HybridBreaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	axisFailures := make(map[Axis]int, len(b.windows))
	for a, w := range b.windows {
		axisFailures[a] = len(w)
	}
	obs := make([]Observation, len(b.observations))
	copy(obs, b.observations)

	return Snapshot{
		Name:            b.cfg.Name,
		State:           b.state,
		AxisFailures:    axisFailures,
		TotalFailures:   b.totalFailures,
		TotalSuccesses:  b.totalSuccesses,
		LastFailureTime: b.lastFailureTime,
		LastStateChange: b.lastStateChange,
		HalfOpenSuccess: b.halfOpenSuccess,
		Observations:    obs,
	}
}

// --- internal ---

func (b *HybridBreaker) threshold(a Axis) int {
	if t, ok := b.cfg.AxisThresholds[a]; ok && t > 0 {
		return t
	}
	return int(^uint(0) >> 1) // unset axis never trips on its own
}

func (b *HybridBreaker) maxThreshold() int {
	max := 1
	for _, t := range b.cfg.AxisThresholds {
		if t > max {
			max = t
		}
	}
	return max
}

func (b *HybridBreaker) windowSum() int {
	sum := 0
	for _, w := range b.windows {
		sum += len(w)
	}
	return sum
}

func (b *HybridBreaker) pruneWindows(now time.Time) {
	cutoff := now.Add(-b.cfg.TimeWindow)
	for a, w := range b.windows {
		kept := w[:0]
		for _, t := range w {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		b.windows[a] = kept
	}
}

func (b *HybridBreaker) resetWindows() {
	for a := range b.windows {
		b.windows[a] = nil
	}
	b.halfOpenSuccess = 0
}

func (b *HybridBreaker) matchesDomain(callContext map[string]string) bool {
	if len(b.cfg.DomainIndicators) == 0 {
		return true
	}
	for _, v := range callContext {
		lv := strings.ToLower(v)
		for _, ind := range b.cfg.DomainIndicators {
			if strings.Contains(lv, strings.ToLower(ind)) {
				return true
			}
		}
	}
	return false
}

func (b *HybridBreaker) setState(s State, now time.Time, reason string) {
	if b.state == s {
		return
	}
	prev := b.state
	b.state = s
	b.lastStateChange = now
	if s == StateHalfOpen {
		b.halfOpenSuccess = 0
	}
	b.observations = append(b.observations, Observation{Time: now, From: prev, To: s, Reason: reason})
	if len(b.observations) > 256 {
		b.observations = b.observations[len(b.observations)-256:]
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, prev, s, reason)
	}
}
