package cluster

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultAddress is the rendezvous address probed for a control plane and
// served by it.
const DefaultAddress = "__CLUSTER__"

// Config binds a cluster address to a scope. An empty Scope is resolved at
// runtime.
type Config struct {
	Address string `yaml:"address" json:"address"`
	Scope   Scope  `yaml:"scope,omitempty" json:"scope,omitempty"`
}

func (c Config) WithDefaults() Config {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	return c
}

func (c Config) Validate() error {
	if c.Scope != ScopeUnset && !c.Scope.Valid() {
		return &ConfigurationError{Field: "scope", Err: fmt.Errorf("%w: %q", ErrUnknownScope, string(c.Scope))}
	}
	return nil
}

// ParseConfig decodes a YAML cluster config. Unknown scopes are reported as
// a *ConfigurationError.
func ParseConfig(data []byte) (Config, error) {
	var raw struct {
		Address string `yaml:"address"`
		Scope   string `yaml:"scope"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, &ConfigurationError{Field: "document", Err: err}
	}
	scope, err := ParseScope(raw.Scope)
	if err != nil {
		return Config{}, &ConfigurationError{Field: "scope", Err: err}
	}
	return Config{Address: raw.Address, Scope: scope}.WithDefaults(), nil
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(data)
}
