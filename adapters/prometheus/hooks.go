package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/stream-go/core/hooks"
	"github.com/codewandler/stream-go/core/messaging"
)

// Hook event labels.
const (
	EventReceived = "received"
	EventAck      = "ack"
	EventFail     = "fail"
	EventEmit     = "emit"
	EventTimeout  = "timeout"
)

// HookMetrics counts message lifecycle events observed through hooks.
type HookMetrics struct {
	inputEvents  *prometheus.CounterVec
	outputEvents *prometheus.CounterVec
}

func NewHookMetrics(reg prometheus.Registerer) *HookMetrics {
	m := &HookMetrics{
		inputEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strm_input_events_total",
			Help: "Total number of input events by component",
		}, []string{"component", "event"}),

		outputEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strm_output_events_total",
			Help: "Total number of output events by component",
		}, []string{"component", "event"}),
	}
	reg.MustRegister(m.inputEvents, m.outputEvents)
	return m
}

// Input returns an input hook counting under component.
func (m *HookMetrics) Input(component string) hooks.InputHook {
	return &inputHook{
		received: m.inputEvents.WithLabelValues(component, EventReceived),
		ack:      m.inputEvents.WithLabelValues(component, EventAck),
		fail:     m.inputEvents.WithLabelValues(component, EventFail),
	}
}

// Output returns an output hook counting under component.
func (m *HookMetrics) Output(component string) hooks.OutputHook {
	return &outputHook{
		emit:    m.outputEvents.WithLabelValues(component, EventEmit),
		acked:   m.outputEvents.WithLabelValues(component, EventAck),
		failed:  m.outputEvents.WithLabelValues(component, EventFail),
		timeout: m.outputEvents.WithLabelValues(component, EventTimeout),
	}
}

type inputHook struct {
	received, ack, fail prometheus.Counter
}

func (h *inputHook) Received(messaging.MessageID) { h.received.Inc() }
func (h *inputHook) Ack(messaging.MessageID)      { h.ack.Inc() }
func (h *inputHook) Fail(messaging.MessageID)     { h.fail.Inc() }

type outputHook struct {
	emit, acked, failed, timeout prometheus.Counter
}

func (h *outputHook) Emit(messaging.MessageID)     { h.emit.Inc() }
func (h *outputHook) Acked(messaging.MessageID)    { h.acked.Inc() }
func (h *outputHook) Failed(messaging.MessageID)   { h.failed.Inc() }
func (h *outputHook) TimedOut(messaging.MessageID) { h.timeout.Inc() }
