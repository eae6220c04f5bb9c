package cluster

import (
	"errors"
	"fmt"
)

var (
	ErrNetworkExists           = errors.New("network already deployed")
	ErrNetworkNotFound         = errors.New("network not deployed")
	ErrOperationInProgress     = errors.New("another operation on this network is in progress")
	ErrOrchestratorUnavailable = errors.New("orchestrator unavailable")
	ErrUnknownScope            = errors.New("unknown cluster scope")
	ErrClusterNotStarted       = errors.New("cluster not started")
	ErrClusterStopped          = errors.New("cluster stopped")
	ErrManagerClosed           = errors.New("cluster manager closed")
	ErrResolverClosed          = errors.New("cluster resolver closed")

	ErrTransportRequired = errors.New("transport is required")
	ErrGridRequired      = errors.New("data grid is required")
	ErrDeployerRequired  = errors.New("deployer is required")

	ErrUnknownMain         = errors.New("no component registered for main")
	ErrDeploymentNotFound  = errors.New("deployment not found")
	ErrInvalidNetwork      = errors.New("invalid network")
	ErrUnexpectedOperation = errors.New("unexpected operation")
)

// ResolutionError reports that the scope probe failed for a reason other than
// the absence of a responder.
type ResolutionError struct {
	Address string
	Err     error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve cluster scope at %q: %v", e.Address, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// DeploymentError reports a rejected deploy or undeploy.
type DeploymentError struct {
	Network string
	Op      string
	Err     error
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("%s network %q: %v", e.Op, e.Network, e.Err)
}

func (e *DeploymentError) Unwrap() error { return e.Err }

func deployError(op, network string, err error) error {
	if err == nil {
		return nil
	}
	var de *DeploymentError
	if errors.As(err, &de) {
		return err
	}
	return &DeploymentError{Network: network, Op: op, Err: err}
}

// ConfigurationError reports an invalid or incomplete cluster configuration.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("cluster config %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
