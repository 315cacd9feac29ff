package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "treemap_upstream_requests_total",
		Help: "Boundary API requests by dataset and outcome",
	}, []string{"dataset", "outcome"})
	UpstreamDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "treemap_upstream_duration_ms",
		Help:    "Boundary API call duration in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 200, 500, 1000, 2500, 5000},
	}, []string{"dataset"})
	ResponseCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "treemap_response_cache_total",
		Help: "Geocoding response cache lookups by result (hit, miss)",
	}, []string{"result"})
	TrackerUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "treemap_tracker_updates_total",
		Help: "Location updates seen by the district tracker, by gate outcome",
	}, []string{"outcome"})
	TrackerLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "treemap_tracker_lookups_total",
		Help: "District lookups issued by the tracker, by result",
	}, []string{"result"})
	OverlayFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "treemap_overlay_fetches_total",
		Help: "Boundary overlay fetches by level and result",
	}, []string{"level", "result"})
	PostsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "treemap_posts_created_total",
		Help: "Total posts created",
	})
)

func init() {
	prometheus.MustRegister(UpstreamRequestsTotal)
	prometheus.MustRegister(UpstreamDurationMs)
	prometheus.MustRegister(ResponseCacheTotal)
	prometheus.MustRegister(TrackerUpdatesTotal)
	prometheus.MustRegister(TrackerLookupsTotal)
	prometheus.MustRegister(OverlayFetchesTotal)
	prometheus.MustRegister(PostsCreatedTotal)
}
