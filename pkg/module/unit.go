package module

import (
	"context"
	"errors"

	"github.com/armish/fireplace/pkg/action"
	"github.com/armish/fireplace/pkg/buffer"
	"github.com/armish/fireplace/pkg/wire"
)

// Errors returned by modules and the manager.
var (
	// ErrNotReady indicates a forwarding call while no module is loaded.
	ErrNotReady = errors.New("not ready")

	// ErrNothingLoaded indicates a forwarding call while the module has no unit.
	ErrNothingLoaded = errors.New("nothing loaded")

	// ErrModuleNotFound indicates an unknown module name.
	ErrModuleNotFound = errors.New("module not found")

	// ErrUnitNotFound indicates an unknown processing unit name.
	ErrUnitNotFound = errors.New("driver not found")

	// ErrDuplicate indicates a name registered twice.
	ErrDuplicate = errors.New("already registered")

	// ErrCapabilityMismatch indicates a unit declaring actions its module cannot host.
	ErrCapabilityMismatch = errors.New("unit capabilities exceed module capabilities")

	// ErrNotProducer indicates an async-capable unit without a production loop.
	ErrNotProducer = errors.New("unit does not implement Producer")
)

// Unit is a processing unit: the driver a module hosts.
//
// HandleRequest and HandlePush may be called concurrently with Produce but
// never concurrently with Configure or Close.
type Unit interface {
	// Configure applies the unit parameter string. It is called once,
	// right after construction.
	Configure(params string) error

	// HandleRequest serves a REQUEST action. Unknown methods fail with
	// wire.ErrMalformedInput.
	HandleRequest(ctx context.Context, req *wire.Request) (*wire.Response, error)

	// HandlePush serves a PUSH action.
	HandlePush(ctx context.Context, req *wire.Request) (bool, error)
}

// Producer is implemented by units that emit data asynchronously.
// Produce is called in a loop until ctx is done. It should block
// internally, for example on a receive timeout, rather than return
// immediately when there is nothing to emit.
type Producer interface {
	Produce(ctx context.Context, queue *buffer.Queue) error
}

// Capable is implemented by units that declare their own capabilities.
// The declared mask must be a subset of the hosting module's mask.
type Capable interface {
	Capabilities() action.Mask
}

// UnitFactory constructs a fresh, unconfigured unit.
type UnitFactory func() Unit

// BaseUnit can be embedded by units that only implement some actions.
// Every method reports wire.ErrMalformedInput.
type BaseUnit struct{}

// Configure accepts any parameters.
func (BaseUnit) Configure(string) error { return nil }

// HandleRequest rejects every request.
func (BaseUnit) HandleRequest(context.Context, *wire.Request) (*wire.Response, error) {
	return nil, wire.ErrMalformedInput
}

// HandlePush rejects every push.
func (BaseUnit) HandlePush(context.Context, *wire.Request) (bool, error) {
	return false, wire.ErrMalformedInput
}

// Compile-time interface satisfaction check.
var _ Unit = BaseUnit{}
