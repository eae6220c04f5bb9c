package feeder

import "errors"

var (
	ErrFeedQueueFull      = errors.New("feed queue full")
	ErrFeederClosed       = errors.New("feeder closed")
	ErrDispatcherRequired = errors.New("dispatcher is required")
	ErrAlreadyStarted     = errors.New("feeder already started")
)
