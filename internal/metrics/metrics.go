// Package metrics counts service operations and their failures.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the counting surface the container and resource services use.
type Metrics interface {
	IncOperation(component, operation string)
	IncError(component, operation, code string)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncOperation(string, string)     {}
func (Noop) IncError(string, string, string) {}

// Prom implements Metrics backed by Prometheus counters.
type Prom struct {
	operations *prometheus.CounterVec
	errors     *prometheus.CounterVec
	once       sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Operations by component and name",
		}, []string{"component", "operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Failed operations by component, name and error code",
		}, []string{"component", "operation", "code"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.operations, p.errors)
	})
}

func (p *Prom) IncOperation(component, operation string) {
	p.operations.WithLabelValues(component, operation).Inc()
}

func (p *Prom) IncError(component, operation, code string) {
	p.errors.WithLabelValues(component, operation, code).Inc()
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
