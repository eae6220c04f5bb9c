package input

import "errors"

var (
	ErrAlreadySettled   = errors.New("delivery already acked or failed")
	ErrCollectorClosed  = errors.New("input collector closed")
	ErrAddressRequired  = errors.New("instance address is required")
	ErrTransportMissing = errors.New("transport is required")
)
