// Package metrics owns the prometheus collectors for the synchronization
// core. Collectors hang off an explicit Metrics struct registered on an
// injected registry; there are no package-level globals.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the coordinator and transport update.
type Metrics struct {
	MessagesQueued    *prometheus.CounterVec
	MessagesDelivered *prometheus.CounterVec
	DeliveryFailures  prometheus.Counter
	SnapshotSyncs     prometheus.Counter
	SnapshotRejects   prometheus.Counter
	Reconnects        prometheus.Counter
	Disconnects       prometheus.Counter
	DevicesOnline     prometheus.Gauge
	DevicesKnown      prometheus.Gauge
	QueueDepth        prometheus.Gauge
	DrainDuration     prometheus.Histogram
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensorhub",
			Name:      "messages_queued_total",
			Help:      "Outbound messages enqueued, by priority band.",
		}, []string{"priority"}),
		MessagesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensorhub",
			Name:      "messages_delivered_total",
			Help:      "Outbound messages handed to the transport, by priority band.",
		}, []string{"priority"}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensorhub",
			Name:      "delivery_failures_total",
			Help:      "Send attempts the transport reported as failed.",
		}),
		SnapshotSyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensorhub",
			Name:      "snapshot_syncs_total",
			Help:      "Session snapshots accepted from devices.",
		}),
		SnapshotRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensorhub",
			Name:      "snapshot_rejects_total",
			Help:      "Session snapshots rejected as structurally invalid.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensorhub",
			Name:      "device_reconnects_total",
			Help:      "Offline-to-online transitions detected.",
		}),
		Disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensorhub",
			Name:      "device_disconnects_total",
			Help:      "Online-to-offline transitions recorded.",
		}),
		DevicesOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensorhub",
			Name:      "devices_online",
			Help:      "Devices currently marked connected.",
		}),
		DevicesKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensorhub",
			Name:      "devices_known",
			Help:      "Devices ever registered this process.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensorhub",
			Name:      "outbound_queue_depth",
			Help:      "Pending outbound messages across all devices.",
		}),
		DrainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sensorhub",
			Name:      "queue_drain_seconds",
			Help:      "Wall time of post-reconnect queue drains.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}

	reg.MustRegister(
		m.MessagesQueued,
		m.MessagesDelivered,
		m.DeliveryFailures,
		m.SnapshotSyncs,
		m.SnapshotRejects,
		m.Reconnects,
		m.Disconnects,
		m.DevicesOnline,
		m.DevicesKnown,
		m.QueueDepth,
		m.DrainDuration,
	)
	return m
}
