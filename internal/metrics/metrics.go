package metrics

import "time"

// Metric names recorded by the engine.
const (
	ProviderRequest  = "provider_request"
	ProviderError    = "provider_error"
	SupportRefresh   = "support_refresh"
	SupportStale     = "support_stale"
	QuoteAttempt     = "quote_attempt"
	QuoteFailure     = "quote_failure"
	FlowTransition   = "flow_transition"
	DeeplinkRejected = "deeplink_rejected"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
