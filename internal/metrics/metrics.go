package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kube_rca_ingest"

var (
	eventsIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ingested_total",
			Help:      "Log events accepted by the ingestion API and published to the queue.",
		},
	)

	admissionRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_rejected_total",
			Help:      "Ingestion requests rejected before enqueueing, partitioned by reason.",
		},
		[]string{"reason"},
	)

	messagesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Queue messages handled by the processor, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	processingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_seconds",
			Help:      "Time spent processing a single queue message.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	postProcessingFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "post_processing_failures_total",
			Help:      "Best-effort post-processing step failures, partitioned by step.",
		},
		[]string{"step"},
	)

	webhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook delivery results after retries.",
		},
		[]string{"result"},
	)

	deadLetteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_lettered_total",
			Help:      "Messages that exhausted redelivery and were recorded as failed log events.",
		},
	)

	sweptEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_events_total",
			Help:      "Log events removed by the sweepers, partitioned by job.",
		},
		[]string{"job"},
	)
)

// Register attaches collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		eventsIngestedTotal,
		admissionRejectedTotal,
		messagesProcessedTotal,
		processingDurationSeconds,
		postProcessingFailuresTotal,
		webhookDeliveriesTotal,
		deadLetteredTotal,
		sweptEventsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func EventsIngested(n int) {
	eventsIngestedTotal.Add(float64(n))
}

func AdmissionRejected(reason string) {
	admissionRejectedTotal.WithLabelValues(reason).Inc()
}

func ObserveProcessing(duration time.Duration, outcome string) {
	messagesProcessedTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	processingDurationSeconds.Observe(duration.Seconds())
}

func PostProcessingFailed(step string) {
	postProcessingFailuresTotal.WithLabelValues(step).Inc()
}

func WebhookDelivered(ok bool) {
	result := "delivered"
	if !ok {
		result = "abandoned"
	}
	webhookDeliveriesTotal.WithLabelValues(result).Inc()
}

func DeadLettered() {
	deadLetteredTotal.Inc()
}

func EventsSwept(job string, n int) {
	sweptEventsTotal.WithLabelValues(job).Add(float64(n))
}
