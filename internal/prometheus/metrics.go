package prometheus

import "github.com/prometheus/client_golang/prometheus"

const (
	sessionDurationBucketStart  = 5.0
	sessionDurationBucketFactor = 2.0
	sessionDurationBucketCount  = 10
)

const (
	consultationBucketStart  = 0.5
	consultationBucketFactor = 2.0
	consultationBucketCount  = 9
)

const (
	directoryBucketStart  = 0.005
	directoryBucketFactor = 2.0
	directoryBucketCount  = 10
)

const (
	kafkaLatencyBucketStart  = 0.01
	kafkaLatencyBucketFactor = 2.5
	kafkaLatencyBucketCount  = 12
)

var SessionDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "call_session_duration_seconds",
		Help: "Time from caller joining to the session being closed",
		Buckets: prometheus.ExponentialBuckets(
			sessionDurationBucketStart,
			sessionDurationBucketFactor,
			sessionDurationBucketCount,
		),
	},
	[]string{"outcome"},
)

var ConsultationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "consultation_duration_seconds",
		Help: "Time from dialing an employee to the consultation outcome",
		Buckets: prometheus.ExponentialBuckets(
			consultationBucketStart,
			consultationBucketFactor,
			consultationBucketCount,
		),
	},
	[]string{"outcome"},
)

var DirectoryLookupDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "directory_lookup_duration_seconds",
		Help: "Time taken by employee directory lookups",
		Buckets: prometheus.ExponentialBuckets(
			directoryBucketStart,
			directoryBucketFactor,
			directoryBucketCount,
		),
	},
	[]string{"result"},
)

var KafkaMessageLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "kafka_message_latency_seconds",
		Help: "Time taken from telephony event production to consumption",
		Buckets: prometheus.ExponentialBuckets(
			kafkaLatencyBucketStart,
			kafkaLatencyBucketFactor,
			kafkaLatencyBucketCount,
		),
	},
	[]string{"event"},
)

var ActiveSessions = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "call_sessions_active",
		Help: "Call sessions currently being handled",
	},
)

var RejectedSessions = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "call_sessions_rejected_total",
		Help: "Inbound calls that could not be scheduled on the session pool",
	},
)

var ReconciliationEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reconciliation_events_total",
		Help: "Failed writes flagged for reconciliation and their replays",
	},
	[]string{"kind", "stage"},
)

var NotificationDeliveries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Message and transfer notifications by channel and result",
	},
	[]string{"channel", "result"},
)

func init() {
	prometheus.MustRegister(SessionDuration)
	prometheus.MustRegister(ConsultationDuration)
	prometheus.MustRegister(DirectoryLookupDuration)
	prometheus.MustRegister(KafkaMessageLatency)
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(RejectedSessions)
	prometheus.MustRegister(ReconciliationEvents)
	prometheus.MustRegister(NotificationDeliveries)
}
