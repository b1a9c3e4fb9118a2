package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all hub-level metrics (not component-specific)
type Metrics struct {
	// Ingestion and fan-out metrics
	MessagesReceived       prometheus.Counter
	NotificationsDelivered prometheus.Counter
	DeliveryFailures       prometheus.Counter
	ListenersPruned        prometheus.Counter
	QueueDepth             prometheus.Gauge
	ListenersActive        prometheus.Gauge

	// Data source metrics
	SourceState    prometheus.Gauge
	SourceSwitches *prometheus.CounterVec

	// Derived signal and sink metrics
	LocationsSynthesized prometheus.Counter
	SinkRecords          prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all hub metrics
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vehiclehub",
				Subsystem: "pipeline",
				Name:      "messages_received_total",
				Help:      "Total number of raw measurements ingested from the data source",
			},
		),

		NotificationsDelivered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vehiclehub",
				Subsystem: "pipeline",
				Name:      "notifications_delivered_total",
				Help:      "Total number of measurement notifications delivered to listeners",
			},
		),

		DeliveryFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vehiclehub",
				Subsystem: "pipeline",
				Name:      "delivery_failures_total",
				Help:      "Total number of failed listener deliveries",
			},
		),

		ListenersPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vehiclehub",
				Subsystem: "pipeline",
				Name:      "listeners_pruned_total",
				Help:      "Total number of listeners dropped after irrecoverable delivery failures",
			},
		),

		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "vehiclehub",
				Subsystem: "pipeline",
				Name:      "notification_queue_depth",
				Help:      "Current number of pending names on the notification queue",
			},
		),

		ListenersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "vehiclehub",
				Subsystem: "pipeline",
				Name:      "listeners_active",
				Help:      "Current number of registered listeners across all measurement names",
			},
		),

		SourceState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "vehiclehub",
				Subsystem: "source",
				Name:      "state",
				Help:      "Data source lifecycle state (0=idle, 1=starting, 2=running, 3=stopping)",
			},
		),

		SourceSwitches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vehiclehub",
				Subsystem: "source",
				Name:      "switches_total",
				Help:      "Total number of data source switches by source identifier",
			},
			[]string{"identifier"},
		),

		LocationsSynthesized: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vehiclehub",
				Subsystem: "location",
				Name:      "synthesized_total",
				Help:      "Total number of synthesized location fixes forwarded to the reporter",
			},
		),

		SinkRecords: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vehiclehub",
				Subsystem: "sink",
				Name:      "records_total",
				Help:      "Total number of raw measurements forwarded to the recording sink",
			},
		),
	}
}
