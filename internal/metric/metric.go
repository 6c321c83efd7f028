// Package metric exposes the pipeline's Prometheus instrumentation.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesReceived counts raw sensor messages handed to the pipeline.
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parking_ingest_messages_received_total",
		Help: "Raw sensor messages accepted onto the ingest queue.",
	})

	// MessagesDropped counts deliveries dropped because the queue was full
	// or the pipeline was not running.
	MessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parking_ingest_messages_dropped_total",
		Help: "Sensor messages dropped at the transport handoff.",
	})

	// MessagesRejected counts messages discarded by validation, by reason.
	MessagesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parking_ingest_messages_rejected_total",
		Help: "Sensor messages discarded by the decoder/validator.",
	}, []string{"reason"})

	// FlushSpotsApplied counts per-spot updates applied during flushes.
	FlushSpotsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parking_flush_spots_applied_total",
		Help: "Spot updates applied to the store and cache during flushes.",
	})

	// FlushSpotsFailed counts per-spot updates skipped due to errors.
	FlushSpotsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parking_flush_spots_failed_total",
		Help: "Spot updates skipped during flushes because of errors.",
	})

	// ViewportCacheHits counts viewport queries served from the cache.
	ViewportCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parking_viewport_cache_hits_total",
		Help: "Viewport queries answered from the Redis mirror.",
	})

	// ViewportCacheMisses counts viewport queries that fell back to the store.
	ViewportCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parking_viewport_cache_misses_total",
		Help: "Viewport queries that fell back to the durable store.",
	})

	// BroadcastClients tracks currently connected websocket subscribers.
	BroadcastClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parking_broadcast_clients",
		Help: "Currently connected live-update subscribers.",
	})
)
