package event

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver records one counter per event type, labeled by
// session phase, for operators scraping the engine's /metrics
// endpoint.
type PrometheusObserver struct {
	counter *prometheus.CounterVec
}

// NewPrometheusObserver registers (or reuses, if already registered) a
// aiworkflow_events_total counter vector on reg.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiworkflow_events_total",
			Help: "Count of AI workflow engine events by type and phase.",
		},
		[]string{"event_type", "phase"},
	)

	if err := reg.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if ok := prometheusAlreadyRegistered(err, &already); ok {
			counter = already.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, fmt.Errorf("register event counter: %w", err)
		}
	}

	return &PrometheusObserver{counter: counter}, nil
}

func prometheusAlreadyRegistered(err error, target *prometheus.AlreadyRegisteredError) bool {
	are, ok := err.(prometheus.AlreadyRegisteredError)
	if !ok {
		return false
	}
	*target = are
	return true
}

// Notify implements Observer.
func (p *PrometheusObserver) Notify(e Event) {
	p.counter.WithLabelValues(string(e.Type), string(e.Phase)).Inc()
}

// NATSObserver publishes events as JSON to a JetStream subject, for
// deployments that run the engine alongside a broader NATS-based event
// backbone. Publish failures are logged, never propagated — Emitter
// already isolates observer failures, but NATSObserver double-guards
// so a dropped connection never surfaces as a panic.
type NATSObserver struct {
	js      nats.JetStreamContext
	subject string
	logger  *slog.Logger
}

// NewNATSObserver wraps js, publishing every notified event to
// subject.
func NewNATSObserver(js nats.JetStreamContext, subject string, logger *slog.Logger) *NATSObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSObserver{js: js, subject: subject, logger: logger}
}

// Notify implements Observer.
func (n *NATSObserver) Notify(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		n.logger.Error("marshal event for NATS publish", "error", err, "event_type", e.Type)
		return
	}
	if _, err := n.js.Publish(n.subject, payload); err != nil {
		n.logger.Error("publish event to NATS", "error", err, "subject", n.subject, "event_type", e.Type)
	}
}
