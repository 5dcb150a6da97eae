package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric names, shared with the query service.
const (
	MetricRequestsTotal  = "relay_llm_requests_total"
	MetricTokensTotal    = "relay_llm_tokens_total"
	MetricModelCalls     = "relay_model_calls_total"
	MetricCallDuration   = "relay_model_call_duration_seconds"
	MetricGateInFlight   = "relay_gate_in_flight"
	MetricGateWait       = "relay_gate_wait_seconds"
	MetricDeliveries     = "relay_deliveries_total"
	MetricNavigation     = "relay_navigation_total"
	metricRequestLatency = "relay_llm_request_duration_seconds"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	callsTotal      *prometheus.CounterVec
	callDuration    *prometheus.HistogramVec
	gateInFlight    prometheus.Gauge
	gateWait        prometheus.Histogram
	deliveries      *prometheus.CounterVec
	navigation      *prometheus.CounterVec
}

// NewPrometheusRecorder registers the relay metrics with reg. A nil reg uses the
// default Prometheus registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRequestsTotal,
				Help: "Total number of provider requests by model, status and error type",
			},
			[]string{"model", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricTokensTotal,
				Help: "Total number of tokens used in provider requests",
			},
			[]string{"model", "type"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricRequestLatency,
				Help:    "Duration of single provider requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricModelCalls,
				Help: "Gated model calls by model and outcome",
			},
			[]string{"model", "outcome"},
		),
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricCallDuration,
				Help:    "Duration of gated model calls including retries",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90, 120},
			},
			[]string{"model"},
		),
		gateInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: MetricGateInFlight,
			Help: "Model calls currently holding a gate slot",
		}),
		gateWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricGateWait,
			Help:    "Time spent waiting for a gate slot",
			Buckets: prometheus.DefBuckets,
		}),
		deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricDeliveries,
				Help: "Delivery attempts by fallback tier and result",
			},
			[]string{"tier", "result"},
		),
		navigation: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricNavigation,
				Help: "Pager navigation events by action and result",
			},
			[]string{"action", "result"},
		),
	}
}

// ObserveRequest records metrics for a single provider request.
func (p *PrometheusRecorder) ObserveRequest(model string, promptTokens, completionTokens int, success bool, errorType string, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.requestsTotal.WithLabelValues(model, status, errorType).Inc()

	if success {
		p.tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	p.requestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// ObserveModelCall records the outcome of a gated call.
func (p *PrometheusRecorder) ObserveModelCall(model, outcome string, duration time.Duration) {
	p.callsTotal.WithLabelValues(model, outcome).Inc()
	p.callDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// ObserveGateWait records time spent waiting for a slot.
func (p *PrometheusRecorder) ObserveGateWait(duration time.Duration) {
	p.gateWait.Observe(duration.Seconds())
}

// SetGateInFlight reports the number of occupied slots.
func (p *PrometheusRecorder) SetGateInFlight(n int) {
	p.gateInFlight.Set(float64(n))
}

// IncDelivery counts a delivery attempt.
func (p *PrometheusRecorder) IncDelivery(tier, result string) {
	p.deliveries.WithLabelValues(tier, result).Inc()
}

// IncNavigation counts a navigation event.
func (p *PrometheusRecorder) IncNavigation(action, result string) {
	p.navigation.WithLabelValues(action, result).Inc()
}
