package feeder

// Metrics instruments a feeder. All methods are thread-safe.
type Metrics interface {
	Emitted(feeder string)
	// Rejected counts emits refused because the feed queue was full.
	Rejected(feeder string)
	InFlight(feeder string, count int)
	// Resolved counts terminal outcomes: "ack", "fail" or "timeout".
	Resolved(feeder string, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) Emitted(string)          {}
func (nopMetrics) Rejected(string)         {}
func (nopMetrics) InFlight(string, int)    {}
func (nopMetrics) Resolved(string, string) {}

func NopMetrics() Metrics { return nopMetrics{} }
