package app

import "errors"

var (
	ErrRuntimeClosed  = errors.New("runtime closed")
	ErrUnknownOutput  = errors.New("unknown output stream")
	ErrCustomDeployer = errors.New("runtime uses a custom deployer")
	ErrInstanceClosed = errors.New("instance closed")
)
