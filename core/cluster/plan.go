package cluster

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/codewandler/stream-go/core/input"
	"github.com/codewandler/stream-go/core/topology"
)

// InstanceAddress returns the address of the index-th instance of a component.
func InstanceAddress(network, component string, index int) string {
	return fmt.Sprintf("%s.%s.%d", network, component, index)
}

// Plan expands a network into its instances. Outputs with the same stream
// are merged; the first connection decides the routing.
func Plan(net *topology.Network) ([]Instance, error) {
	if err := net.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNetwork, err)
	}

	addresses := make(map[string][]string, len(net.Components))
	for _, c := range net.Components {
		for i := range c.InstanceCount() {
			addresses[c.Name] = append(addresses[c.Name], InstanceAddress(net.Name, c.Name, i))
		}
	}

	var out []Instance
	for _, c := range deployOrder(net) {
		var inputs []string
		for _, conn := range net.ConnectionsTo(c.Name) {
			if !slices.Contains(inputs, conn.TargetPort()) {
				inputs = append(inputs, conn.TargetPort())
			}
		}

		var outputs []Output
		for _, conn := range net.ConnectionsFrom(c.Name) {
			var targets []string
			for _, addr := range addresses[conn.Target] {
				targets = append(targets, input.PortAddress(addr, conn.TargetPort()))
			}
			idx := slices.IndexFunc(outputs, func(o Output) bool { return o.Stream == conn.Stream })
			if idx < 0 {
				outputs = append(outputs, Output{Stream: conn.Stream, Routing: conn.Routing, Targets: targets})
				continue
			}
			outputs[idx].Targets = append(outputs[idx].Targets, targets...)
		}

		for i, addr := range addresses[c.Name] {
			out = append(out, Instance{
				Network:   net.Name,
				Component: c.Name,
				Main:      c.Main,
				Index:     i,
				Address:   addr,
				Config:    maps.Clone(c.Config),
				Inputs:    slices.Clone(inputs),
				Outputs:   cloneOutputs(outputs),
			})
		}
	}
	return out, nil
}

// deployOrder lists components so that every target precedes its sources,
// letting inputs subscribe before anything sends to them. On a cycle the
// first declared member goes last.
func deployOrder(net *topology.Network) []topology.Component {
	byName := make(map[string]topology.Component, len(net.Components))
	for _, c := range net.Components {
		byName[c.Name] = c
	}
	seen := make(map[string]bool, len(net.Components))
	out := make([]topology.Component, 0, len(net.Components))
	var visit func(c topology.Component)
	visit = func(c topology.Component) {
		if seen[c.Name] {
			return
		}
		seen[c.Name] = true
		for _, conn := range net.ConnectionsFrom(c.Name) {
			visit(byName[conn.Target])
		}
		out = append(out, c)
	}
	for _, c := range net.Components {
		visit(c)
	}
	return out
}

func cloneOutputs(in []Output) []Output {
	out := make([]Output, len(in))
	for i, o := range in {
		o.Targets = slices.Clone(o.Targets)
		out[i] = o
	}
	return out
}

// deployInstances deploys every instance or none: on the first failure the
// instances already deployed are undeployed again.
func deployInstances(ctx context.Context, d Deployer, net *topology.Network, insts []Instance) (map[string]DeploymentID, error) {
	deployed := make(map[string]DeploymentID, len(insts))
	for _, inst := range insts {
		id, err := d.Deploy(ctx, inst)
		if err != nil {
			if rbErr := undeployInstances(context.WithoutCancel(ctx), d, net, deployed); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
			return nil, fmt.Errorf("deploy %s: %w", inst.Address, err)
		}
		deployed[inst.Address] = id
	}
	return deployed, nil
}

// undeployInstances stops deployments in reverse plan order so sources stop
// before their targets. Addresses unknown to net go last, sorted.
func undeployInstances(ctx context.Context, d Deployer, net *topology.Network, deployments map[string]DeploymentID) error {
	var errs []error
	for _, addr := range undeployOrder(net, deployments) {
		if err := d.Undeploy(ctx, deployments[addr]); err != nil {
			errs = append(errs, fmt.Errorf("undeploy %s: %w", addr, err))
		}
	}
	return errors.Join(errs...)
}

func undeployOrder(net *topology.Network, deployments map[string]DeploymentID) []string {
	rest := maps.Clone(deployments)
	var order []string
	if net != nil {
		if insts, err := Plan(net); err == nil {
			for _, inst := range slices.Backward(insts) {
				if _, ok := rest[inst.Address]; ok {
					order = append(order, inst.Address)
					delete(rest, inst.Address)
				}
			}
		}
	}
	return append(order, slices.Sorted(maps.Keys(rest))...)
}
