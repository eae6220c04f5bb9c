package messaging

import "github.com/codewandler/stream-go/core/metrics"

// Outcome labels reported by DispatchMetrics.MessageResolved.
const (
	OutcomeAck     = "ack"
	OutcomeFail    = "fail"
	OutcomeTimeout = "timeout"
	OutcomeClosed  = "closed"
)

// DispatchMetrics instruments the dispatcher and its ack tracker.
// All methods are thread-safe.
type DispatchMetrics interface {
	MessageSent(stream string)
	SendFailed(stream string)
	MessageRetried(stream string)
	MessageResolved(stream string, outcome string)
	// AckDuration starts when a tracked message is first sent and is observed
	// on resolution.
	AckDuration(stream string) metrics.Timer
	PendingAcks(tracker string, count int)
}

type nopDispatchMetrics struct{}

func (nopDispatchMetrics) MessageSent(string)               {}
func (nopDispatchMetrics) SendFailed(string)                {}
func (nopDispatchMetrics) MessageRetried(string)            {}
func (nopDispatchMetrics) MessageResolved(string, string)   {}
func (nopDispatchMetrics) AckDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopDispatchMetrics) PendingAcks(string, int)          {}

func NopDispatchMetrics() DispatchMetrics { return nopDispatchMetrics{} }
