package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "timebank"

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeForbidden = "forbidden"
	OutcomeRejected  = "rejected"
)

// Collectors groups the client metrics. A nil *Collectors is valid and
// records nothing.
type Collectors struct {
	actions  *prometheus.CounterVec
	requests *prometheus.HistogramVec
	polls    *prometheus.CounterVec
}

// New builds the collectors and registers them on reg when reg is not nil.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "actions_total",
			Help:      "Handshake page actions by outcome.",
		}, []string{"action", "outcome"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Backend round-trip latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "polls_total",
			Help:      "Chat poll iterations by outcome.",
		}, []string{"outcome"}),
	}
	if reg == nil {
		return c, nil
	}
	for _, col := range []prometheus.Collector{c.actions, c.requests, c.polls} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("metrics: register: %w", err)
		}
	}
	return c, nil
}

func (c *Collectors) Action(action, outcome string) {
	if c == nil {
		return
	}
	c.actions.WithLabelValues(action, outcome).Inc()
}

func (c *Collectors) Request(endpoint string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (c *Collectors) Poll(outcome string) {
	if c == nil {
		return
	}
	c.polls.WithLabelValues(outcome).Inc()
}

// WriteText dumps every family gathered by g in the text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("metrics: write: %w", err)
		}
	}
	return nil
}
