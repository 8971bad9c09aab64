package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "arbmon"

var (
	QuotesTotal            = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "quotes_total", Help: "Quotes received by venue"}, []string{"venue"})
	StreamConnectsTotal    = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "stream_connects_total", Help: "Quote stream (re)connects by venue"}, []string{"venue"})
	StreamErrorsTotal      = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "stream_errors_total", Help: "Quote stream failures by venue"}, []string{"venue"})
	ComputationErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "computation_errors_total", Help: "Metric computations skipped on invalid numbers"})
	ClockSkewMs            = prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: "clock_skew_ms", Help: "Local minus venue clock in ms"}, []string{"venue"})
	ClockLatencyMs         = prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: "clock_latency_ms", Help: "Half round trip to the venue time endpoint in ms"}, []string{"venue"})
	RelationsMonitored     = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "relations_monitored", Help: "Relations discovered and tracked"})
	RefreshLatencyMs       = prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "refresh_latency_ms", Help: "Time to rank and publish one leaderboard", Buckets: prometheus.ExponentialBuckets(0.1, 2, 14)})
	BestMetric             = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "best_metric", Help: "Ranking metric of the current leader"})
	PublishErrorsTotal     = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "publish_errors_total", Help: "Leaderboard publish failures by sink"}, []string{"sink"})
)

// All lists the collectors of this package.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		QuotesTotal, StreamConnectsTotal, StreamErrorsTotal, ComputationErrorsTotal,
		ClockSkewMs, ClockLatencyMs, RelationsMonitored, RefreshLatencyMs, BestMetric,
		PublishErrorsTotal,
	}
}

// Init registers everything on a fresh registry together with the Go and
// process collectors.
func Init(logger zerolog.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := append(All(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, c := range toRegister {
		if err := reg.Register(c); err != nil {
			logger.Warn().Err(err).Msg("metric registration failed")
		}
	}
	logger.Debug().Int("collectors", len(toRegister)).Msg("prometheus metrics initialized")
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
