package classify

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType classifies usage events.
type EventType int

const (
	EventClassification EventType = iota
	EventAPICall
	EventCacheHit
	EventCacheMiss
	EventRuleFallback
	EventFeedback
	EventCost
	EventTime
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventClassification:
		return "classification"
	case EventAPICall:
		return "api_call"
	case EventCacheHit:
		return "cache_hit"
	case EventCacheMiss:
		return "cache_miss"
	case EventRuleFallback:
		return "rule_fallback"
	case EventFeedback:
		return "feedback"
	case EventCost:
		return "cost"
	case EventTime:
		return "time"
	default:
		return "error"
	}
}

// Event is one usage record.
type Event struct {
	ID               string         `json:"id"`
	Type             EventType      `json:"type"`
	UserID           string         `json:"user_id"`
	OrgID            string         `json:"org_id"`
	RequestID        string         `json:"request_id"`
	Tier             Tier           `json:"tier"`
	Confidence       float64        `json:"confidence"`
	IsBusinessIncome *bool          `json:"is_business_income,omitempty"`
	CostNGN          float64        `json:"cost_ngn"`
	TokensUsed       int            `json:"tokens_used"`
	ProcessingMs     float64        `json:"processing_ms"`
	CacheHit         bool           `json:"cache_hit"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
}

const defaultMaxEvents = 100000

// Tracker keeps an append-ordered in-memory usage log, trimming the oldest
// half when full.
type Tracker struct {
	mu        sync.Mutex
	events    []Event
	maxEvents int
	now       func() time.Time
}

// NewTracker builds a tracker. maxEvents <= 0 selects the default bound.
func NewTracker(maxEvents int) *Tracker {
	if maxEvents <= 0 {
		maxEvents = defaultMaxEvents
	}
	return &Tracker{maxEvents: maxEvents, now: time.Now}
}

// Record appends one event, assigning id and timestamp when absent.
func (t *Tracker) Record(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = t.now()
	}
	if len(t.events) >= t.maxEvents {
		keep := len(t.events) / 2
		t.events = append(t.events[:0:0], t.events[len(t.events)-keep:]...)
	}
	t.events = append(t.events, e)
}

// Events returns a copy of the log in append order.
func (t *Tracker) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Summary aggregates the usage log.
type Summary struct {
	Volume           int            `json:"volume"`
	TierDistribution map[string]int `json:"tier_distribution"`
	MeanMs           float64        `json:"mean_ms"`
	MedianMs         float64        `json:"median_ms"`
	P95Ms            float64        `json:"p95_ms"`
	CacheHitRate     float64        `json:"cache_hit_rate"`
	TotalCostNGN     float64        `json:"total_cost_ngn"`
	BusinessRatio    float64        `json:"business_ratio"`
	AgreementRate    float64        `json:"agreement_rate"`
	ErrorRate        float64        `json:"error_rate"`
}

// Aggregate computes the on-demand usage summary over classification events.
func (t *Tracker) Aggregate() Summary {
	events := t.Events()

	s := Summary{TierDistribution: map[string]int{}}
	var times []float64
	var classifications, hits, business, verdicts int
	var confirms, feedbacks, errors int

	for _, e := range events {
		switch e.Type {
		case EventClassification:
			classifications++
			s.TierDistribution[e.Tier.String()]++
			s.TotalCostNGN += e.CostNGN
			times = append(times, e.ProcessingMs)
			if e.CacheHit {
				hits++
			}
			if e.IsBusinessIncome != nil {
				verdicts++
				if *e.IsBusinessIncome {
					business++
				}
			}
		case EventFeedback:
			feedbacks++
			if agreed, ok := e.Metadata["was_correct"].(bool); ok && agreed {
				confirms++
			}
		case EventError:
			errors++
		}
	}

	s.Volume = classifications
	if classifications > 0 {
		s.CacheHitRate = float64(hits) / float64(classifications)
		s.ErrorRate = float64(errors) / float64(classifications)
	}
	if verdicts > 0 {
		s.BusinessRatio = float64(business) / float64(verdicts)
	}
	if feedbacks > 0 {
		s.AgreementRate = float64(confirms) / float64(feedbacks)
	}
	if len(times) > 0 {
		sort.Float64s(times)
		total := 0.0
		for _, v := range times {
			total += v
		}
		s.MeanMs = total / float64(len(times))
		s.MedianMs = percentile(times, 0.5)
		s.P95Ms = percentile(times, 0.95)
	}
	return s
}

// percentile reads the p-th percentile from a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
