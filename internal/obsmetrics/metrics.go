// Package obsmetrics declares the Prometheus instruments cmd/toroniagent
// exposes, grouped as package-level vars.
package obsmetrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// BackpressureEvents counts every time a writer detected an active
	// reader would be overrun by the next write.
	BackpressureEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "toroni_backpressure_events_total",
		Help: "Number of times a writer detected backpressure from an active reader.",
	})

	// NotificationsSent counts notifier.Send calls made by async writers.
	NotificationsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "toroni_notifications_sent_total",
		Help: "Number of reader-wakeup notifications sent.",
	})

	// ExpiredReaderEvents counts ReadExpiredPosition results across every
	// reader.
	ExpiredReaderEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "toroni_expired_reader_events_total",
		Help: "Number of reads that found the reader's position expired.",
	})

	// TopicDispatches counts messages delivered to a ChannelReader
	// handler, labeled by channel.
	TopicDispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "toroni_topic_dispatches_total",
		Help: "Number of messages dispatched to channel reader handlers.",
	}, []string{"channel"})

	// ActiveReaderRange is the current [min, max) reader-slot range a
	// writer scans for backpressure.
	ActiveReaderRange = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "toroni_active_reader_range",
		Help: "Current active reader-slot range bound (min or max).",
	}, []string{"bound"})

	// WriteBatchSize histograms how many staged messages each async
	// writer drain pass writes in one go.
	WriteBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "toroni_write_batch_size",
		Help:    "Number of messages written per async writer drain pass.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)

// MustRegisterAll registers every instrument in this package against reg.
func MustRegisterAll(reg prometheus.Registerer) {
	reg.MustRegister(
		BackpressureEvents,
		NotificationsSent,
		ExpiredReaderEvents,
		TopicDispatches,
		ActiveReaderRange,
		WriteBatchSize,
	)
}
