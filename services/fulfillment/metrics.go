package fulfillment

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

const instrumentation = "giveaway-fulfillment/services/fulfillment"

var (
	claimsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_claims_processed_total",
		Help: "Leased claims processed by the pending loop, by result.",
	}, []string{"result"})

	offersPolled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_offers_polled_total",
		Help: "Sent offers checked by the poller, by outcome.",
	}, []string{"outcome"})

	tickDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fulfillment_tick_duration_seconds",
		Help:    "Duration of one scheduler tick.",
		Buckets: prometheus.DefBuckets,
	}, []string{"loop"})
)

func init() {
	prometheus.MustRegister(claimsProcessed, offersPolled, tickDuration)
}

var tracer = otel.Tracer(instrumentation)

// transitions counts terminal claim transitions through the otel meter provider.
var transitions = newTransitionCounter()

func newTransitionCounter() metric.Int64Counter {
	c, err := otel.Meter(instrumentation).Int64Counter("fulfillment.claim.transitions",
		metric.WithDescription("Claims moved to a terminal state."))
	if err != nil {
		zap.L().Warn("[Fulfillment] failed to create transition counter", zap.Error(err))
		c, _ = noop.NewMeterProvider().Meter(instrumentation).Int64Counter("fulfillment.claim.transitions")
	}
	return c
}
