// Package metrics exposes the gateway's Prometheus metrics and the server
// that serves them.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Metrics holds the gateway collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

func NewMetrics(namespace string) (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of key operations by outcome",
			},
			[]string{"op", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Key operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.OperationsTotal,
		m.OperationDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveOp records one finished operation.
func (m *Metrics) ObserveOp(op, outcome string, took time.Duration) {
	m.OperationsTotal.WithLabelValues(op, outcome).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(took.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type MetricsServer struct {
	*Metrics
	srv *http.Server
}

// New creates the metrics and a server exposing them on addr at /metrics.
func New(namespace, addr string) (*MetricsServer, error) {
	m, err := NewMetrics(namespace)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	return &MetricsServer{
		Metrics: m,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *MetricsServer) ListenAndServe() error {
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve serves the metrics on an already bound listener.
func (s *MetricsServer) Serve(ln net.Listener) error {
	err := s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
