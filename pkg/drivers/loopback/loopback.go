// Package loopback provides a simulated driver that echoes requests and
// turns pushed transmissions into produced data. It exercises every path of
// the middleware without hardware.
package loopback

import (
	"github.com/armish/fireplace/pkg/action"
	"github.com/armish/fireplace/pkg/module"
)

// Name is the registry name of the loopback module.
const Name = "loopback"

// Unit names.
const (
	UnitEcho      = "echo"
	UnitGenerator = "generator"
)

// Capabilities of the loopback module.
var Capabilities = action.Pack(action.Push, action.Request, action.Wait)

// New creates the loopback module. It takes no parameters.
func New(string) (*module.Module, error) {
	m := module.New(Name, Capabilities).
		MustRegisterUnit(UnitEcho, func() module.Unit { return NewEcho() }).
		MustRegisterUnit(UnitGenerator, func() module.Unit { return NewGenerator() })
	return m, nil
}
