package messaging

import (
	"encoding/json"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/stream-go/core/transport"
)

// Envelope types used on the wire.
const (
	TypeMessage = "strm.message"
	TypeAck     = "strm.ack"
	TypeFail    = "strm.fail"
)

const (
	headerPrefix = "x-strm-"
	headerID     = headerPrefix + "id"
	headerAckTo  = headerPrefix + "ack-to"
	headerStream = headerPrefix + "stream"
	headerKey    = headerPrefix + "key"
	headerFrom   = headerPrefix + "from"
	headerReason = headerPrefix + "reason"
)

// MessageID correlates a message with its eventual outcome. Retries reuse it.
type MessageID string

func NewMessageID() MessageID {
	return MessageID(gonanoid.Must())
}

func (id MessageID) String() string { return string(id) }

// Message is an immutable payload plus routing metadata. Connections receive
// a copy; the Dispatcher sets AckTo for tracked dispatches only.
type Message struct {
	ID      MessageID
	Stream  string
	Key     string
	Data    []byte
	Headers map[string]string
	AckTo   string
}

// NewJSONMessage encodes v as the payload of a message on stream.
func NewJSONMessage(stream string, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Stream: stream, Data: data}, nil
}

// Decode unmarshals the JSON payload of msg.
func Decode[T any](msg Message) (out T, err error) {
	err = json.Unmarshal(msg.Data, &out)
	return
}

// Tracked reports whether the sender waits for an outcome.
func (m Message) Tracked() bool { return m.AckTo != "" }

// Envelope encodes m for delivery to address.
func (m Message) Envelope(address string) transport.Envelope {
	headers := make(map[string]string, len(m.Headers)+4)
	for k, v := range m.Headers {
		headers[k] = v
	}
	headers[headerID] = string(m.ID)
	if m.Stream != "" {
		headers[headerStream] = m.Stream
	}
	if m.Key != "" {
		headers[headerKey] = m.Key
	}
	if m.AckTo != "" {
		headers[headerAckTo] = m.AckTo
	}
	return transport.Envelope{
		Address: address,
		Type:    TypeMessage,
		Data:    m.Data,
		Headers: headers,
	}
}

// MessageFromEnvelope is the inverse of Message.Envelope.
func MessageFromEnvelope(env transport.Envelope) Message {
	m := Message{Data: env.Data}
	for k, v := range env.Headers {
		switch k {
		case headerID:
			m.ID = MessageID(v)
		case headerStream:
			m.Stream = v
		case headerKey:
			m.Key = v
		case headerAckTo:
			m.AckTo = v
		default:
			if strings.HasPrefix(k, headerPrefix) {
				continue
			}
			if m.Headers == nil {
				m.Headers = map[string]string{}
			}
			m.Headers[k] = v
		}
	}
	return m
}

// AckEnvelope builds the envelope a receiver at address from publishes to
// acknowledge msg.
func AckEnvelope(msg Message, from string) transport.Envelope {
	return transport.NewEnvelope(msg.AckTo, TypeAck, nil,
		transport.WithHeader(headerID, string(msg.ID)),
		transport.WithHeader(headerFrom, from),
	)
}

// FailEnvelope builds the envelope a receiver publishes to fail msg.
func FailEnvelope(msg Message, from, reason string) transport.Envelope {
	return transport.NewEnvelope(msg.AckTo, TypeFail, nil,
		transport.WithHeader(headerID, string(msg.ID)),
		transport.WithHeader(headerFrom, from),
		transport.WithHeader(headerReason, reason),
	)
}
