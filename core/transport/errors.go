package transport

import "errors"

var (
	ErrTransportClosed = errors.New("transport closed")
	ErrNoResponders    = errors.New("no responders for address")
	ErrAddressRequired = errors.New("address is required")
	ErrHandlerTimeout  = errors.New("handler exceeded deadline")
	ErrReservedHeader  = errors.New("cannot set reserved header")
)
