// Package topology describes a network: a graph of component instances and
// the named streams connecting them.
package topology

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrNameRequired      = errors.New("network name is required")
	ErrNoComponents      = errors.New("network has no components")
	ErrDuplicateName     = errors.New("duplicate component name")
	ErrUnknownComponent  = errors.New("connection references unknown component")
	ErrInvalidComponent  = errors.New("invalid component")
	ErrInvalidConnection = errors.New("invalid connection")
)

// Component is a deployable unit. Main names the factory that creates its
// instances.
type Component struct {
	Name      string         `yaml:"name" json:"name"`
	Main      string         `yaml:"main" json:"main"`
	Instances int            `yaml:"instances,omitempty" json:"instances,omitempty"`
	Config    map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// InstanceCount returns the number of instances to deploy; at least one.
func (c Component) InstanceCount() int {
	if c.Instances < 1 {
		return 1
	}
	return c.Instances
}

// Connection routes the output stream of Source into the input port of
// Target. An empty Port means the port is named after the stream.
type Connection struct {
	Source string `yaml:"source" json:"source"`
	Stream string `yaml:"stream" json:"stream"`
	Target string `yaml:"target" json:"target"`
	Port   string `yaml:"port,omitempty" json:"port,omitempty"`
	// Routing selects the dispatcher policy, see messaging.NewRouter.
	Routing string `yaml:"routing,omitempty" json:"routing,omitempty"`
}

func (c Connection) TargetPort() string {
	if c.Port == "" {
		return c.Stream
	}
	return c.Port
}

type Network struct {
	Name string `yaml:"name" json:"name"`
	// Cluster optionally names the cluster address the network belongs to.
	Cluster     string       `yaml:"cluster,omitempty" json:"cluster,omitempty"`
	Components  []Component  `yaml:"components" json:"components"`
	Connections []Connection `yaml:"connections,omitempty" json:"connections,omitempty"`
}

func (n *Network) Validate() error {
	if n.Name == "" {
		return ErrNameRequired
	}
	if len(n.Components) == 0 {
		return fmt.Errorf("%s: %w", n.Name, ErrNoComponents)
	}
	names := make(map[string]struct{}, len(n.Components))
	for _, c := range n.Components {
		if c.Name == "" || c.Main == "" {
			return fmt.Errorf("%s: %w: name and main are required", n.Name, ErrInvalidComponent)
		}
		if c.Instances < 0 {
			return fmt.Errorf("%s: %w: %s has negative instances", n.Name, ErrInvalidComponent, c.Name)
		}
		if _, dup := names[c.Name]; dup {
			return fmt.Errorf("%s: %w: %s", n.Name, ErrDuplicateName, c.Name)
		}
		names[c.Name] = struct{}{}
	}
	for _, conn := range n.Connections {
		if conn.Stream == "" {
			return fmt.Errorf("%s: %w: stream is required", n.Name, ErrInvalidConnection)
		}
		for _, ref := range []string{conn.Source, conn.Target} {
			if _, ok := names[ref]; !ok {
				return fmt.Errorf("%s: %w: %q", n.Name, ErrUnknownComponent, ref)
			}
		}
	}
	return nil
}

func (n *Network) Component(name string) (Component, bool) {
	for _, c := range n.Components {
		if c.Name == name {
			return c, true
		}
	}
	return Component{}, false
}

// ConnectionsFrom returns the connections whose source is component.
func (n *Network) ConnectionsFrom(component string) []Connection {
	var out []Connection
	for _, c := range n.Connections {
		if c.Source == component {
			out = append(out, c)
		}
	}
	return out
}

// ConnectionsTo returns the connections whose target is component.
func (n *Network) ConnectionsTo(component string) []Connection {
	var out []Connection
	for _, c := range n.Connections {
		if c.Target == component {
			out = append(out, c)
		}
	}
	return out
}

// Parse decodes and validates a YAML network definition.
func Parse(data []byte) (*Network, error) {
	var n Network
	if err := yaml.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("parse network: %w", err)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

func LoadFile(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
