package cluster

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/codewandler/stream-go/core/topology"
	"github.com/codewandler/stream-go/ports/kv"
)

// Envelope types of the control plane protocol.
const (
	OpProbe          = "cluster.probe"
	OpRemoteDeploy   = "cluster.deploy"
	OpRemoteUndeploy = "cluster.undeploy"
	OpGet            = "cluster.get"
	OpMapGet         = "cluster.map.get"
	OpMapPut         = "cluster.map.put"
	OpMapDelete      = "cluster.map.delete"
	OpMapKeys        = "cluster.map.keys"

	// opNodeUndeploy is sent between grid members to undeploy a network on
	// the node that owns it.
	opNodeUndeploy = "cluster.node.undeploy"
)

type (
	probeResponse struct {
		Scope  Scope  `json:"scope"`
		NodeID string `json:"node_id,omitempty"`
	}

	deployRequest struct {
		Network *topology.Network `json:"network"`
	}

	nameRequest struct {
		Name string `json:"name"`
	}

	mapRequest struct {
		Map   string        `json:"map"`
		Key   string        `json:"key,omitempty"`
		Entry *kv.Entry     `json:"entry,omitempty"`
		TTL   time.Duration `json:"ttl,omitempty"`
	}
)

// reply is the body of every control plane response. Application errors
// travel inside the reply so transport failures stay distinguishable.
type reply struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Code  string          `json:"code,omitempty"`
	Error string          `json:"error,omitempty"`
}

var errorCodes = []struct {
	code string
	err  error
}{
	{"exists", ErrNetworkExists},
	{"not_found", ErrNetworkNotFound},
	{"in_progress", ErrOperationInProgress},
	{"invalid", ErrInvalidNetwork},
	{"unknown_main", ErrUnknownMain},
	{"kv_not_found", kv.ErrNotFound},
	{"unexpected_op", ErrUnexpectedOperation},
}

func encodeReply(v any, err error) ([]byte, error) {
	if err != nil {
		r := reply{Code: "internal", Error: err.Error()}
		for _, c := range errorCodes {
			if errors.Is(err, c.err) {
				r.Code = c.code
				break
			}
		}
		return json.Marshal(r)
	}
	var r reply
	if v != nil {
		data, mErr := json.Marshal(v)
		if mErr != nil {
			return nil, mErr
		}
		r.Data = data
	}
	return json.Marshal(r)
}

// remoteError carries an error reported by the other side. It unwraps to the
// matching sentinel so errors.Is works across the wire.
type remoteError struct {
	msg      string
	sentinel error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.sentinel }

func decodeReply(b []byte, out any) error {
	var r reply
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	if r.Code != "" {
		e := &remoteError{msg: r.Error}
		for _, c := range errorCodes {
			if c.code == r.Code {
				e.sentinel = c.err
				break
			}
		}
		return e
	}
	if out == nil || len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, out)
}
