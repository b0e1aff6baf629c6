// Package telemetry provides Prometheus metrics, OpenTelemetry tracing setup,
// and correlation-id aware logging helpers for the polling clients.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	CacheHits        *prometheus.CounterVec // partition label: users|streams|channels
	CacheMisses      *prometheus.CounterVec
	TokenExchanges   prometheus.Counter
	TokenValidations prometheus.Counter
	UpstreamRequests *prometheus.CounterVec // provider label: twitch|youtube
	UpstreamFailures *prometheus.CounterVec

	// Histograms (seconds)
	UpstreamDuration prometheus.ObserverVec
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streampoll_cache_hits_total", Help: "TTL cache hits"}, []string{"partition"})
		CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streampoll_cache_misses_total", Help: "TTL cache misses (absent or stale)"}, []string{"partition"})
		TokenExchanges = promauto.NewCounter(prometheus.CounterOpts{Name: "streampoll_token_exchanges_total", Help: "Client-credentials token exchanges performed"})
		TokenValidations = promauto.NewCounter(prometheus.CounterOpts{Name: "streampoll_token_validations_total", Help: "Remote token validation calls performed"})
		UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streampoll_upstream_requests_total", Help: "Upstream API requests issued"}, []string{"provider"})
		UpstreamFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streampoll_upstream_failures_total", Help: "Upstream API requests that failed"}, []string{"provider"})
		UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "streampoll_upstream_duration_seconds", Help: "Upstream request duration seconds", Buckets: prometheus.DefBuckets}, []string{"provider"})
	})
}

// CountCacheHit increments the hit counter for a partition if metrics are initialized.
func CountCacheHit(partition string) {
	if CacheHits != nil {
		CacheHits.WithLabelValues(partition).Inc()
	}
}

// CountCacheMiss increments the miss counter for a partition if metrics are initialized.
func CountCacheMiss(partition string) {
	if CacheMisses != nil {
		CacheMisses.WithLabelValues(partition).Inc()
	}
}

// CountTokenExchange records one client-credentials exchange.
func CountTokenExchange() {
	if TokenExchanges != nil {
		TokenExchanges.Inc()
	}
}

// CountTokenValidation records one remote validation call.
func CountTokenValidation() {
	if TokenValidations != nil {
		TokenValidations.Inc()
	}
}

// CountUpstream records one upstream request and, when failed is true, one failure.
func CountUpstream(provider string, failed bool) {
	if UpstreamRequests != nil {
		UpstreamRequests.WithLabelValues(provider).Inc()
	}
	if failed && UpstreamFailures != nil {
		UpstreamFailures.WithLabelValues(provider).Inc()
	}
}

// TimeUpstream measures fn and records its duration under the provider label.
func TimeUpstream(provider string, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if UpstreamDuration != nil {
		UpstreamDuration.WithLabelValues(provider).Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// EnsureCorrelation returns a context carrying a correlation id, generating a
// fresh uuid when the context has none.
func EnsureCorrelation(ctx context.Context) context.Context {
	if GetCorrelation(ctx) != "" {
		return ctx
	}
	return WithCorrelation(ctx, uuid.New().String())
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns logger with a corr attribute if a correlation id is present.
func LoggerWithCorr(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if id := GetCorrelation(ctx); id != "" {
		return logger.With(slog.String("corr", id))
	}
	return logger
}
