// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quickshare_rooms_created_total",
		Help: "Rooms created.",
	})
	RoomsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quickshare_rooms_deleted_total",
		Help: "Rooms deleted, by cause (explicit, lazy, sweep).",
	}, []string{"cause"})
	CodeCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quickshare_room_code_collisions_total",
		Help: "Generated room codes that collided with an existing room.",
	})
	ContentUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quickshare_content_updates_total",
		Help: "Committed content overwrites.",
	})
	AttachmentsUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quickshare_attachments_uploaded_total",
		Help: "Attachments stored.",
	})
	AttachmentBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quickshare_attachment_bytes_total",
		Help: "Bytes written to the blob store.",
	})
	CompensationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quickshare_compensation_failures_total",
		Help: "Tolerated cleanup failures that may leave orphaned data.",
	}, []string{"op"})
	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quickshare_feed_subscribers",
		Help: "Live change feed subscriptions on this instance.",
	})
	FeedEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quickshare_feed_evicted_subscribers_total",
		Help: "Subscriptions closed because their queue was full.",
	})
	FeedPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quickshare_feed_events_published_total",
		Help: "Change events published, by entity and change.",
	}, []string{"entity", "change"})
	OrphansRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quickshare_reaper_orphan_blobs_removed_total",
		Help: "Blobs removed by orphan reconciliation.",
	})
	DanglingRoomsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quickshare_reaper_dangling_rooms_purged_total",
		Help: "Expired room codes whose leftover attachment rows were purged by reconciliation.",
	})
)
