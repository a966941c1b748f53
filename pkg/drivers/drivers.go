// Package drivers registers the simulated drivers shipped with fireplace.
package drivers

import (
	"github.com/armish/fireplace/pkg/drivers/loopback"
	"github.com/armish/fireplace/pkg/drivers/switches"
	"github.com/armish/fireplace/pkg/module"
)

// Register adds every bundled module to reg.
func Register(reg *module.Registry) error {
	if err := reg.Register(switches.Name, switches.New); err != nil {
		return err
	}
	return reg.Register(loopback.Name, loopback.New)
}

// NewRegistry returns a registry holding every bundled module.
func NewRegistry() *module.Registry {
	reg := module.NewRegistry()
	if err := Register(reg); err != nil {
		panic(err)
	}
	return reg
}
