package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	WebhookEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total webhook deliveries received",
		},
	)

	WebhookEventsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_rejected_total",
			Help: "Webhook deliveries rejected before dispatch",
		},
		[]string{"reason"}, // unauthorized | bad_signature | bad_payload | missing_config
	)

	WebhookEventsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_events_failed_total",
			Help: "Webhook deliveries that failed during dispatch",
		},
	)

	WebhookEventsIgnoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_events_ignored_total",
			Help: "Webhook deliveries with an unrecognized event type",
		},
	)

	WebhookProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_processing_duration_seconds",
			Help:    "Duration of webhook verification plus dispatch",
			Buckets: prometheus.DefBuckets,
		},
	)

	InventoryAlertsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_alerts_created_total",
			Help: "Stock shortfall alerts created",
		},
	)

	SyncEventsPublishedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_events_published_total",
			Help: "Normalized sync events published to Kafka",
		},
	)

	SyncEventsProjectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_events_projected_total",
			Help: "Sync events applied to the status read cache",
		},
	)
)

func Register() {
	prometheus.MustRegister(
		WebhookEventsTotal,
		WebhookEventsRejectedTotal,
		WebhookEventsFailedTotal,
		WebhookEventsIgnoredTotal,
		WebhookProcessingDuration,
		InventoryAlertsCreatedTotal,
		SyncEventsPublishedTotal,
		SyncEventsProjectedTotal,
	)
}
