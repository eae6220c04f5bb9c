package transport

import "strings"

// Headers with this prefix are owned by the runtime and may not be set by
// callers of Request.
const reservedHeaderPrefix = "x-strm-internal"

type EnvelopeOption func(*Envelope)

func WithHeader(key, value string) EnvelopeOption {
	return func(e *Envelope) {
		if e.Headers == nil {
			e.Headers = make(map[string]string)
		}
		e.Headers[key] = value
	}
}

type Envelope struct {
	Address string            `json:"address"`
	Type    string            `json:"type"`
	Data    []byte            `json:"data,omitempty"`
	ReplyTo string            `json:"reply_to,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

func NewEnvelope(address, msgType string, data []byte, opts ...EnvelopeOption) Envelope {
	e := Envelope{Address: address, Type: msgType, Data: data}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func (e Envelope) GetHeader(key string) (string, bool) {
	if e.Headers == nil {
		return "", false
	}
	v, ok := e.Headers[key]
	return v, ok
}

func (e Envelope) Header(key string) string {
	v, _ := e.GetHeader(key)
	return v
}

func (e Envelope) Validate() error {
	if e.Address == "" {
		return ErrAddressRequired
	}
	for k := range e.Headers {
		if strings.HasPrefix(k, reservedHeaderPrefix) {
			return ErrReservedHeader
		}
	}
	return nil
}
