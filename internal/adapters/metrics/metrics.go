// Package metrics exports run progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/dropship/internal/app"
	"github.com/bft-labs/dropship/internal/domain"
	"github.com/bft-labs/dropship/internal/ports"
)

const namespace = "dropship"

// Emitter implements app.EventEmitter by updating Prometheus collectors.
type Emitter struct {
	registry *prometheus.Registry
	entries  *prometheus.CounterVec
	chunks   *prometheus.CounterVec
	attempts *prometheus.CounterVec
	phase    prometheus.Gauge
}

// NewEmitter creates an emitter with its own registry.
func NewEmitter() *Emitter {
	e := &Emitter{
		registry: prometheus.NewRegistry(),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_total",
			Help:      "Distribution entries by final result.",
		}, []string{"result"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Chunks by final status.",
		}, []string{"result"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submit_attempts_total",
			Help:      "Chunk submission attempts by error kind.",
		}, []string{"kind"}),
		phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase",
			Help:      "Current run phase (0=Init ... 7=Failed).",
		}),
	}
	e.registry.MustRegister(e.entries, e.chunks, e.attempts, e.phase)
	return e
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Emitter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func (e *Emitter) OnPhaseChange(_, current app.Phase, _ string) {
	e.phase.Set(float64(current))
}

func (e *Emitter) OnChunkOutcome(o domain.ChunkOutcome) {
	e.chunks.WithLabelValues(string(o.Status)).Inc()
	e.entries.WithLabelValues(string(o.Status)).Add(float64(o.Size))
}

func (e *Emitter) OnEntriesSkipped(skipped []domain.Skipped) {
	e.entries.WithLabelValues("skipped").Add(float64(len(skipped)))
}

func (e *Emitter) OnSubmitAttempt(_ int, kind domain.ErrorKind) {
	e.attempts.WithLabelValues(kind.String()).Inc()
}

// Serve exposes /metrics on addr until ctx is done.
func (e *Emitter) Serve(ctx context.Context, addr string, logger ports.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", ports.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

var _ app.EventEmitter = (*Emitter)(nil)
