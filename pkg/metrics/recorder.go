// Package metrics records relay and model call metrics, serves them for scraping,
// and queries them back from Prometheus.
package metrics

import "time"

// Delivery tiers reported by the delivery adapter.
const (
	TierPrimary = "primary"
	TierPlain   = "plain"
	TierToggled = "toggled"
)

// Recorder defines the interface for recording relay metrics.
type Recorder interface {
	// ObserveRequest records one provider request (a single attempt inside the gate).
	ObserveRequest(model string, promptTokens, completionTokens int, success bool, errorType string, duration time.Duration)

	// ObserveModelCall records the final outcome of a gated call, retries included.
	ObserveModelCall(model, outcome string, duration time.Duration)

	// ObserveGateWait records time spent waiting for a model call slot.
	ObserveGateWait(duration time.Duration)

	// SetGateInFlight reports the number of calls currently holding a slot.
	SetGateInFlight(n int)

	// IncDelivery counts a delivery attempt at the given fallback tier.
	IncDelivery(tier, result string)

	// IncNavigation counts a navigation event.
	IncNavigation(action, result string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(_ string, _, _ int, _ bool, _ string, _ time.Duration) {}

// ObserveModelCall does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveModelCall(_, _ string, _ time.Duration) {}

// ObserveGateWait does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveGateWait(_ time.Duration) {}

// SetGateInFlight does nothing in the no-op recorder.
func (n *NoopRecorder) SetGateInFlight(_ int) {}

// IncDelivery does nothing in the no-op recorder.
func (n *NoopRecorder) IncDelivery(_, _ string) {}

// IncNavigation does nothing in the no-op recorder.
func (n *NoopRecorder) IncNavigation(_, _ string) {}
