package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// dispatchBatches counts dispatch calls by outcome: ok, rate_limited,
	// group_not_found, person_not_found, no_recipients, invalid, error.
	dispatchBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_dispatch_batches_total",
			Help: "Dispatch batches by outcome.",
		},
		[]string{"outcome"},
	)

	// messagesTotal counts per-recipient send outcomes.
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_messages_total",
			Help: "Per-recipient sends by recipient role and result.",
		},
		[]string{"role", "result"},
	)

	// recordWriteFailures counts delivery records lost after the provider
	// call, by the status they would have had.
	recordWriteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_delivery_record_write_failures_total",
			Help: "Delivery records that could not be persisted after a send attempt.",
		},
		[]string{"status"},
	)

	providerSendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notify_provider_send_duration_seconds",
			Help:    "Duration of single provider send calls in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
	)

	// callbacksTotal counts status callbacks by result: applied, noop,
	// unknown_ref, invalid_signature, malformed, error.
	callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_callbacks_total",
			Help: "Provider status callbacks by result.",
		},
		[]string{"result"},
	)

	rateWindowSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_rate_window_size",
			Help: "Successful sends inside the current one-hour window.",
		},
	)

	costTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_cost_total",
			Help: "Accumulated provider cost of successful sends.",
		},
	)
)

func init() {
	prometheus.MustRegister(dispatchBatches, messagesTotal, recordWriteFailures, providerSendDuration, callbacksTotal, rateWindowSize, costTotal)
}

// outcomeLabel maps a batch error to its dispatch outcome label.
func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	switch KindOf(err) {
	case KindRateLimitExceeded:
		return "rate_limited"
	case KindGroupNotFound:
		return "group_not_found"
	case KindPersonNotFound:
		return "person_not_found"
	case KindNoEligibleRecipients:
		return "no_recipients"
	case KindInvalidRequest:
		return "invalid"
	}
	return "error"
}
