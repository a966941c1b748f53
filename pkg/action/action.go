package action

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// Action is one of the four operation kinds a driver may support.
// Each action occupies a distinct bit.
type Action uint8

const (
	// Push is a fire-and-forget command that returns an acknowledgement flag.
	Push Action = 1
	// Wait marks a driver that produces data for the client without being asked.
	Wait Action = 2
	// Request is a synchronous call that returns a result.
	Request Action = 4
	// Reply marks a driver that sends asynchronous replies to earlier calls.
	Reply Action = 8
)

// All lists every action in bit order.
var All = []Action{Push, Wait, Request, Reply}

// ErrInvalidAction indicates an unrecognized action name or value.
var ErrInvalidAction = errors.New("invalid action")

// Parse maps a lowercase action name to its Action.
func Parse(name string) (Action, error) {
	switch name {
	case "push":
		return Push, nil
	case "wait":
		return Wait, nil
	case "request":
		return Request, nil
	case "reply":
		return Reply, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidAction, name)
	}
}

// IsValid returns true if a is one of the four defined actions.
func (a Action) IsValid() bool {
	switch a {
	case Push, Wait, Request, Reply:
		return true
	default:
		return false
	}
}

// String returns the lowercase wire name of the action.
func (a Action) String() string {
	switch a {
	case Push:
		return "push"
	case Wait:
		return "wait"
	case Request:
		return "request"
	case Reply:
		return "reply"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	if !a.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAction, uint8(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Mask is a set of actions, one bit per action.
type Mask uint8

// Pack folds distinct actions into a mask with XOR.
// Since every action owns a disjoint bit this is lossless. Repeating an
// action would cancel its bit, so Pack panics when it sees one twice.
func Pack(actions ...Action) Mask {
	var m Mask
	for _, a := range actions {
		if !a.IsValid() {
			panic(fmt.Sprintf("action: pack of invalid action %d", uint8(a)))
		}
		if m.Contains(a) {
			panic(fmt.Sprintf("action: %s packed twice", a))
		}
		m ^= Mask(a)
	}
	return m
}

// Contains reports whether a is in the mask.
// The selected bit is shifted down by log2(a) so the test yields 0 or 1.
func (m Mask) Contains(a Action) bool {
	if !a.IsValid() {
		return false
	}
	shift := bits.TrailingZeros8(uint8(a))
	return (uint8(m)&uint8(a))>>shift == 1
}

// ContainsAny reports whether at least one of the actions is in the mask.
func (m Mask) ContainsAny(actions ...Action) bool {
	for _, a := range actions {
		if m.Contains(a) {
			return true
		}
	}
	return false
}

// Union returns the set of actions present in either mask.
func (m Mask) Union(other Mask) Mask {
	return m | other
}

// SubsetOf reports whether every action of m is also in other.
func (m Mask) SubsetOf(other Mask) bool {
	return m&^other == 0
}

// IsEmpty returns true if no action is set.
func (m Mask) IsEmpty() bool {
	return m&Mask(Push|Wait|Request|Reply) == 0
}

// Actions returns the actions in the mask in bit order.
func (m Mask) Actions() []Action {
	out := make([]Action, 0, len(All))
	for _, a := range All {
		if m.Contains(a) {
			out = append(out, a)
		}
	}
	return out
}

// String returns the comma separated action names, e.g. "push,request".
func (m Mask) String() string {
	acts := m.Actions()
	if len(acts) == 0 {
		return "none"
	}
	names := make([]string, len(acts))
	for i, a := range acts {
		names[i] = a.String()
	}
	return strings.Join(names, ",")
}

// ParseMask parses a comma separated list of action names.
// Whitespace around names is ignored. An empty string yields an empty mask.
func ParseMask(s string) (Mask, error) {
	var m Mask
	if strings.TrimSpace(s) == "" || s == "none" {
		return m, nil
	}
	for _, part := range strings.Split(s, ",") {
		a, err := Parse(strings.TrimSpace(part))
		if err != nil {
			return 0, err
		}
		if m.Contains(a) {
			return 0, fmt.Errorf("%w: %q listed twice", ErrInvalidAction, a.String())
		}
		m ^= Mask(a)
	}
	return m, nil
}

// MarshalText implements encoding.TextMarshaler.
func (m Mask) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mask) UnmarshalText(text []byte) error {
	parsed, err := ParseMask(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
