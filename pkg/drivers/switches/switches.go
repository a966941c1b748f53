package switches

import (
	"github.com/armish/fireplace/pkg/action"
	"github.com/armish/fireplace/pkg/module"
)

// Name is the registry name of the switches module.
const Name = "switches"

// UnitCirculator is the circulator switch unit.
const UnitCirculator = "circulator_switch"

// Capabilities of the switches module.
var Capabilities = action.Pack(action.Request, action.Push)

// New creates the switches module. It takes no parameters.
func New(string) (*module.Module, error) {
	m := module.New(Name, Capabilities).
		MustRegisterUnit(UnitCirculator, func() module.Unit { return NewCirculator() })
	return m, nil
}
