package monitoring

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HttpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "status"},
	)

	HttpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	RelationOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relation_operations_total",
			Help: "Follow/unfollow operations by result (changed, noop, invalid, not_found, error)",
		},
		[]string{"op", "result"},
	)

	ActiveListeners = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relation_active_listeners",
			Help: "Number of live follower/following subscriptions",
		},
		[]string{"kind"},
	)

	FeedBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feed_build_duration_seconds",
			Help:    "Duration of feed aggregation passes",
			Buckets: prometheus.DefBuckets,
		},
	)

	FeedFetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_fetch_failures_total",
			Help: "Per-item fetch failures tolerated during feed aggregation",
		},
		[]string{"stage"},
	)

	OutboxDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_total",
			Help: "Outbox events processed by the relay",
		},
		[]string{"event", "result"},
	)
)

var registerOnce sync.Once

// Register 注册全部指标，重复调用无副作用
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			HttpRequestsTotal,
			HttpRequestDuration,
			RelationOps,
			ActiveListeners,
			FeedBuildDuration,
			FeedFetchFailures,
			OutboxDispatched,
		)
	})
}
