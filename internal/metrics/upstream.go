package metrics

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Upstream holds the CRD search API request metrics of one client.
// A nil *Upstream records nothing.
type Upstream struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	responseBytes prometheus.Histogram
}

// NewUpstream creates unregistered upstream collectors.
func NewUpstream() *Upstream {
	return &Upstream{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crd",
			Name:      "upstream_requests_total",
			Help:      "Total number of requests sent to the CRD search API",
		}, []string{"status"}), // "ok" / "error"
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crd",
			Name:      "upstream_request_duration_seconds",
			Help:      "CRD search API request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crd",
			Name:      "upstream_errors_total",
			Help:      "Total CRD search API transport errors",
		}, []string{"error_type"}), // "timeout" / "canceled" / "network" / "read" / "charset"
		responseBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crd",
			Name:      "upstream_response_bytes",
			Help:      "Size of CRD search API response bodies",
			Buckets:   prometheus.ExponentialBuckets(512, 4, 8),
		}),
	}
}

// Register registers the collectors on reg. Collectors already registered
// by another client are shared.
func (u *Upstream) Register(reg prometheus.Registerer) error {
	if err := RegisterOrReuse(reg, &u.requests); err != nil {
		return err
	}
	if err := RegisterOrReuse(reg, &u.duration); err != nil {
		return err
	}
	if err := RegisterOrReuse(reg, &u.errors); err != nil {
		return err
	}
	return RegisterOrReuse(reg, &u.responseBytes)
}

// ObserveOK records a response body of n bytes received after d.
func (u *Upstream) ObserveOK(d time.Duration, n int) {
	if u == nil {
		return
	}
	u.requests.WithLabelValues("ok").Inc()
	u.duration.WithLabelValues("ok").Observe(d.Seconds())
	u.responseBytes.Observe(float64(n))
}

// ObserveError records a failed request.
func (u *Upstream) ObserveError(errType string, d time.Duration) {
	if u == nil {
		return
	}
	u.requests.WithLabelValues("error").Inc()
	u.duration.WithLabelValues("error").Observe(d.Seconds())
	u.errors.WithLabelValues(errType).Inc()
}

// RegisterOrReuse registers *c on reg, or replaces *c with the identical
// collector already registered there.
func RegisterOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return fmt.Errorf("register metric: %w", err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return fmt.Errorf("metric already registered with incompatible type: %T", are.ExistingCollector)
	}
	*c = existing
	return nil
}

// ResolvedOutcomesTotal counts gateway response bodies by classification.
var ResolvedOutcomesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crd",
		Name:      "resolved_outcomes_total",
		Help:      "Response bodies by classification",
	},
	[]string{"outcome"}, // "success" / "service_error" / "parse_error"
)

var registerGateway sync.Once

// RegisterGatewayMetrics registers the gateway outcome counter on the
// default registry. Safe to call more than once.
func RegisterGatewayMetrics() {
	registerGateway.Do(func() {
		prometheus.MustRegister(ResolvedOutcomesTotal)
	})
}
