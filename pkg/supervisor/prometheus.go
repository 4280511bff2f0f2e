package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PrometheusMetrics implements MetricsCollector on a private registry.
type PrometheusMetrics struct {
	stateTransitions *prometheus.CounterVec
	state            prometheus.Gauge
	forks            prometheus.Counter
	respawns         prometheus.Counter
	flameouts        prometheus.Counter
	liveWorkers      prometheus.Gauge

	registry *prometheus.Registry
}

func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	if namespace == "" {
		namespace = "combo"
	}

	pm := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
	}

	pm.stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "master_state_transitions_total",
			Help:      "Total number of master state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	pm.state = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "master_state",
			Help:      "Current master state as its numeric code",
		},
	)

	pm.forks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_forks_total",
			Help:      "Total number of worker processes started",
		},
	)

	pm.respawns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_respawns_total",
			Help:      "Total number of workers started to replace an exited one",
		},
	)

	pm.flameouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_flameouts_total",
			Help:      "Total number of abnormal worker exits",
		},
	)

	pm.liveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_live",
			Help:      "Number of workers currently tracked by the master",
		},
	)

	pm.registry.MustRegister(
		pm.stateTransitions,
		pm.state,
		pm.forks,
		pm.respawns,
		pm.flameouts,
		pm.liveWorkers,
	)

	return pm
}

func (pm *PrometheusMetrics) ControllerState(from, to ControllerState) {
	pm.stateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	pm.state.Set(float64(to))
}

func (pm *PrometheusMetrics) WorkerForked() {
	pm.forks.Inc()
}

func (pm *PrometheusMetrics) WorkerRespawned() {
	pm.respawns.Inc()
}

func (pm *PrometheusMetrics) WorkerFlameout() {
	pm.flameouts.Inc()
}

func (pm *PrometheusMetrics) LiveWorkers(n int) {
	pm.liveWorkers.Set(float64(n))
}

func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

// serveMetrics 在 addr 上提供 /metrics，ctx 结束时关闭
func serveMetrics(ctx context.Context, addr string, pm *PrometheusMetrics, log *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", pm.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infof("Serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("Metrics server failed: %v", err)
	}
}
