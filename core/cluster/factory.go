package cluster

import (
	"fmt"
	"log/slog"

	"github.com/codewandler/stream-go/core/transport"
	"github.com/codewandler/stream-go/ports/grid"
)

// Factory builds the Cluster variant for a scope from the capabilities of the
// process. Missing capabilities surface as a *ConfigurationError.
type Factory struct {
	Transport transport.Transport
	// Grid is required for ScopeCluster.
	Grid     grid.Grid
	Deployer Deployer
	Log      *slog.Logger
	Metrics  ClusterMetrics
	// Orchestrated tunes orchestrated clusters; Address, Transport, Log and
	// Metrics are filled in by the factory.
	Orchestrated OrchestratedOptions
}

func (f *Factory) New(scope Scope, address string) (Cluster, error) {
	switch scope {
	case ScopeLocal:
		if f.Deployer == nil {
			return nil, &ConfigurationError{Field: "deployer", Err: ErrDeployerRequired}
		}
		return NewLocalCluster(LocalOptions{
			Address:  address,
			Deployer: f.Deployer,
			Log:      f.Log,
			Metrics:  f.Metrics,
		})

	case ScopeCluster:
		switch {
		case f.Grid == nil:
			return nil, &ConfigurationError{Field: "grid", Err: ErrGridRequired}
		case f.Transport == nil:
			return nil, &ConfigurationError{Field: "transport", Err: ErrTransportRequired}
		case f.Deployer == nil:
			return nil, &ConfigurationError{Field: "deployer", Err: ErrDeployerRequired}
		}
		return NewGridCluster(GridOptions{
			Address:   address,
			Grid:      f.Grid,
			Transport: f.Transport,
			Deployer:  f.Deployer,
			Log:       f.Log,
			Metrics:   f.Metrics,
		})

	case ScopeOrchestrated:
		if f.Transport == nil {
			return nil, &ConfigurationError{Field: "transport", Err: ErrTransportRequired}
		}
		opts := f.Orchestrated
		opts.Address = address
		opts.Transport = f.Transport
		opts.Log = f.Log
		opts.Metrics = f.Metrics
		return NewOrchestratedCluster(opts)

	default:
		return nil, &ConfigurationError{Field: "scope", Err: fmt.Errorf("%w: %q", ErrUnknownScope, string(scope))}
	}
}
