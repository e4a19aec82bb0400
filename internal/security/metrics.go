package security

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// StoreLatency can be used by store implementations to record operation latency.
	StoreLatency *prometheus.HistogramVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// OnlineUsers tracks the number of users with a live connection.
	OnlineUsers prometheus.Gauge

	// EventsDispatchedTotal counts events handed to a live connection.
	EventsDispatchedTotal *prometheus.CounterVec

	// EventsDroppedTotal counts events whose delivery to a live connection failed.
	EventsDroppedTotal *prometheus.CounterVec

	// RateLimitedTotal counts requests rejected by the send rate limiter.
	RateLimitedTotal prometheus.Counter
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable expansion.
// Label values may not contain commas. Returns nil for an empty string.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := pair[:idx], pair[idx+1:]
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics with the given constant labels.
// Must be called before starting the HTTP server or any store/cache initialization
// that records metrics. Safe to call multiple times; only the first call registers.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		initMetricsInner(constLabels)
	})
}

func initMetricsInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
	f := promauto.With(reg)

	httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_service_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_service_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	StoreLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_service_store_latency_seconds",
			Help:    "Store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CacheHitsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "chat_service_cache_hits_total",
		Help: "Total user cache hits",
	})

	CacheMissesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "chat_service_cache_misses_total",
		Help: "Total user cache misses",
	})

	OnlineUsers = f.NewGauge(prometheus.GaugeOpts{
		Name: "chat_service_online_users",
		Help: "Number of users with a live connection",
	})

	EventsDispatchedTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_service_events_dispatched_total",
			Help: "Events delivered to a live connection",
		},
		[]string{"event"},
	)

	EventsDroppedTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_service_events_dropped_total",
			Help: "Events whose delivery to a live connection failed",
		},
		[]string{"event"},
	)

	RateLimitedTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "chat_service_rate_limited_total",
		Help: "Requests rejected by the send rate limiter",
	})
}

// The Record helpers are no-ops until InitMetrics has run, so packages that
// emit metrics can be unit tested without a registry.

// RecordCacheLookup counts hits and misses of a user cache lookup.
func RecordCacheLookup(hits, misses int) {
	if CacheHitsTotal == nil {
		return
	}
	CacheHitsTotal.Add(float64(hits))
	CacheMissesTotal.Add(float64(misses))
}

// SetOnlineUsers records the size of the presence registry.
func SetOnlineUsers(n int) {
	if OnlineUsers != nil {
		OnlineUsers.Set(float64(n))
	}
}

// RecordEventDispatched counts a delivered event.
func RecordEventDispatched(event string) {
	if EventsDispatchedTotal != nil {
		EventsDispatchedTotal.WithLabelValues(event).Inc()
	}
}

// RecordEventDropped counts a failed delivery.
func RecordEventDropped(event string) {
	if EventsDroppedTotal != nil {
		EventsDroppedTotal.WithLabelValues(event).Inc()
	}
}

// RecordRateLimited counts a send rejected by the rate limiter.
func RecordRateLimited() {
	if RateLimitedTotal != nil {
		RateLimitedTotal.Inc()
	}
}

// MetricsMiddleware records HTTP request metrics for Prometheus.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		httpRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method).Observe(duration.Seconds())
	}
}
