package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// collectorSet holds every domain collector. It stays nil until
// InitRegistry runs; all recording functions tolerate that.
type collectorSet struct {
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	eventsDelivered  prometheus.Counter
	eventsDropped    prometheus.Counter
	eventSubscribers prometheus.Gauge

	recycledBlobs prometheus.Counter
	revision      prometheus.Gauge
}

var c *collectorSet

func initCollectors(reg *prometheus.Registry) {
	c = &collectorSet{
		httpRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "csync_http_requests_total",
				Help: "HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		),
		httpDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "csync_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		eventsDelivered: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "csync_events_delivered_total",
				Help: "Events handed to subscriber buffers",
			},
		),
		eventsDropped: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "csync_events_dropped_total",
				Help: "Events evicted from full subscriber buffers",
			},
		),
		eventSubscribers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "csync_event_subscribers",
				Help: "Currently attached event subscribers",
			},
		),
		recycledBlobs: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "csync_recycled_blobs_total",
				Help: "Blobs deleted by the recycler",
			},
		),
		revision: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "csync_revision",
				Help: "Process-wide revision counter",
			},
		),
	}
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// EventDelivered counts an event placed into a subscriber buffer.
func EventDelivered() {
	if c == nil {
		return
	}
	c.eventsDelivered.Inc()
}

// EventDropped counts an event lost to a full subscriber buffer.
func EventDropped() {
	if c == nil {
		return
	}
	c.eventsDropped.Inc()
}

// SetEventSubscribers records the current subscriber count.
func SetEventSubscribers(n int) {
	if c == nil {
		return
	}
	c.eventSubscribers.Set(float64(n))
}

// AddRecycledBlobs counts rows deleted by the recycler.
func AddRecycledBlobs(n int64) {
	if c == nil {
		return
	}
	c.recycledBlobs.Add(float64(n))
}

// SetRevision mirrors the revision register.
func SetRevision(rev uint64) {
	if c == nil {
		return
	}
	c.revision.Set(float64(rev))
}
