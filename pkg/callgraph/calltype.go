package callgraph

import (
	"fmt"
	"strings"
)

// CallType classifies how a caller reaches a callee.
type CallType uint8

const (
	// Direct is a plain call or function reference.
	Direct CallType = iota
	// Delegate forwards to another implementation of the same operation.
	Delegate
	// Pipeline is a call made through an iterator or combinator chain.
	Pipeline
	// Async is a call made inside a spawned task or async block.
	Async
	// Callback passes the callee as a value to be invoked later.
	Callback
	// ObserverDispatch reaches the callee by iterating registered listeners.
	ObserverDispatch
)

var callTypeNames = [...]string{
	Direct:           "direct",
	Delegate:         "delegate",
	Pipeline:         "pipeline",
	Async:            "async",
	Callback:         "callback",
	ObserverDispatch: "observer_dispatch",
}

func (c CallType) String() string {
	if int(c) < len(callTypeNames) {
		return callTypeNames[c]
	}
	return fmt.Sprintf("call_type(%d)", c)
}

// ParseCallType converts a name back into a CallType.
func ParseCallType(s string) (CallType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range callTypeNames {
		if name == s {
			return CallType(i), nil
		}
	}
	return Direct, fmt.Errorf("unknown call type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c CallType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CallType) UnmarshalText(b []byte) error {
	ct, err := ParseCallType(string(b))
	if err != nil {
		return err
	}
	*c = ct
	return nil
}
