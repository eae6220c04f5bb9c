package cluster

import (
	"fmt"
	"strings"
)

type Scope string

const (
	// ScopeUnset asks the resolver to detect the scope.
	ScopeUnset        Scope = ""
	ScopeLocal        Scope = "local"
	ScopeCluster      Scope = "cluster"
	ScopeOrchestrated Scope = "orchestrated"
)

func (s Scope) String() string {
	if s == ScopeUnset {
		return "auto"
	}
	return string(s)
}

func (s Scope) Valid() bool {
	switch s {
	case ScopeLocal, ScopeCluster, ScopeOrchestrated:
		return true
	}
	return false
}

// ParseScope accepts the scope names case-insensitively. "xync" is an alias
// for orchestrated and the empty string or "auto" yield ScopeUnset.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ScopeUnset, nil
	case "local":
		return ScopeLocal, nil
	case "cluster":
		return ScopeCluster, nil
	case "orchestrated", "xync":
		return ScopeOrchestrated, nil
	default:
		return ScopeUnset, fmt.Errorf("%w: %q", ErrUnknownScope, s)
	}
}

func (s *Scope) UnmarshalText(b []byte) error {
	parsed, err := ParseScope(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Scope) MarshalText() ([]byte, error) { return []byte(s), nil }
