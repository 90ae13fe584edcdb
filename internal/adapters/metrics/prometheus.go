// Package metrics exporta a atividade do limitador para o Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/JeanGrijp/request-guard/internal/core/domain"
	"github.com/JeanGrijp/request-guard/internal/core/ports"
)

// StatsSource feeds the gauges; the limiter service satisfies it.
type StatsSource interface {
	Stats(ctx context.Context) (domain.SecurityStats, error)
}

type PrometheusMetrics struct {
	registry   *prometheus.Registry
	decisions  *prometheus.CounterVec
	blocks     *prometheus.CounterVec
	violations *prometheus.CounterVec
	sweeps     prometheus.Counter
	swept      *prometheus.CounterVec
}

var _ ports.Metrics = (*PrometheusMetrics)(nil)

func NewPrometheusMetrics(namespace string, registry *prometheus.Registry) *PrometheusMetrics {
	if namespace == "" {
		namespace = "request_guard"
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		registry: registry,
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Rate limit decisions by limiter prefix and outcome",
		}, []string{"prefix", "outcome"}),
		blocks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocklist_changes_total",
			Help:      "Blocklist changes by action",
		}, []string{"action"}),
		violations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threat_violations_total",
			Help:      "Recorded threat violations by reason",
		}, []string{"reason"}),
		sweeps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Completed cleanup sweeps",
		}),
		swept: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_entries_total",
			Help:      "Entries removed or released by cleanup sweeps",
		}, []string{"kind"}),
	}
}

// RegisterStatsGauges adds gauges that read the current snapshot on scrape.
func (m *PrometheusMetrics) RegisterStatsGauges(namespace string, source StatsSource) {
	if namespace == "" {
		namespace = "request_guard"
	}
	factory := promauto.With(m.registry)
	read := func(pick func(domain.SecurityStats) int) func() float64 {
		return func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			stats, err := source.Stats(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("stats gauge read failed")
				return 0
			}
			return float64(pick(stats))
		}
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_rate_limits",
		Help:      "Rate limit windows currently open",
	}, read(func(s domain.SecurityStats) int { return s.ActiveRateLimits }))
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_threats",
		Help:      "IPs with a threat entry",
	}, read(func(s domain.SecurityStats) int { return s.TrackedThreats }))
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "blocked_ips",
		Help:      "IPs currently blocked",
	}, read(func(s domain.SecurityStats) int { return s.BlockedCount }))
}

func (m *PrometheusMetrics) ObserveDecision(prefix string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.decisions.WithLabelValues(prefix, outcome).Inc()
}

func (m *PrometheusMetrics) ObserveBlock(action string) {
	m.blocks.WithLabelValues(action).Inc()
}

func (m *PrometheusMetrics) ObserveViolation(reason string) {
	m.violations.WithLabelValues(reasonLabel(reason)).Inc()
}

func (m *PrometheusMetrics) ObserveSweep(result domain.SweepResult) {
	m.sweeps.Inc()
	m.swept.WithLabelValues("rate_limit").Add(float64(result.ExpiredRateLimits))
	m.swept.WithLabelValues("threat").Add(float64(result.ExpiredThreats))
	m.swept.WithLabelValues("unblock").Add(float64(result.Unblocked))
}

func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// reasonLabel keeps label cardinality bounded: "suspicious_path:/.env"
// becomes "suspicious_path".
func reasonLabel(reason string) string {
	kind, _, _ := strings.Cut(reason, ":")
	return kind
}
