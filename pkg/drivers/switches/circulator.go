package switches

import (
	"context"
	"flag"
	"fmt"
	"net/netip"
	"sync"

	"github.com/armish/fireplace/pkg/config"
	"github.com/armish/fireplace/pkg/module"
	"github.com/armish/fireplace/pkg/wire"
)

// Chirality is the rotation sense of a circulator.
type Chirality uint8

const (
	// CCW routes a port to its predecessor. It is the power-on state.
	CCW Chirality = iota
	// CW routes a port to its successor.
	CW
)

func (c Chirality) String() string {
	switch c {
	case CW:
		return "cw"
	case CCW:
		return "ccw"
	default:
		return fmt.Sprintf("Chirality(%d)", uint8(c))
	}
}

// Request and push methods.
const (
	MethodGetState     = "get_state"
	MethodGetChirality = "get_chirality"
	MethodConfigure    = "configure"
)

// Circulator simulates a circulator switch with a fixed number of ports.
//
// Parameters:
//
//	-p <count>    number of ports (required, at least 2)
//	-e <address>  management address of the device (optional)
type Circulator struct {
	mu      sync.Mutex
	ports   uint64
	address netip.Addr
	state   Chirality
}

// NewCirculator creates an unconfigured circulator.
func NewCirculator() *Circulator {
	return &Circulator{state: CCW}
}

// Configure parses the unit parameters.
func (c *Circulator) Configure(params string) error {
	fs := flag.NewFlagSet(UnitCirculator, flag.ContinueOnError)
	ports := fs.Uint64("p", 0, "port count")
	address := fs.String("e", "", "device address")

	if _, err := config.ParseParams(fs, params); err != nil {
		return err
	}
	if err := config.RequireFlags(fs, "p"); err != nil {
		return err
	}
	if *ports < 2 {
		return fmt.Errorf("%w: %s: port count %d (want at least 2)", config.ErrInvalid, UnitCirculator, *ports)
	}

	var addr netip.Addr
	if *address != "" {
		parsed, err := netip.ParseAddr(*address)
		if err != nil {
			return fmt.Errorf("%w: %s: address: %v", config.ErrInvalid, UnitCirculator, err)
		}
		addr = parsed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ports = *ports
	c.address = addr
	c.state = CCW
	return nil
}

// HandleRequest serves get_state and get_chirality.
func (c *Circulator) HandleRequest(_ context.Context, req *wire.Request) (*wire.Response, error) {
	switch req.Method {
	case MethodGetState:
		in, out, err := portPair(req)
		if err != nil {
			return nil, err
		}
		return wire.NewResponse(c.State(in, out)), nil

	case MethodGetChirality:
		return wire.NewResponse(c.Chirality().String()), nil

	default:
		return nil, fmt.Errorf("%w: unknown request %q", wire.ErrMalformedInput, req.Method)
	}
}

// HandlePush serves configure.
func (c *Circulator) HandlePush(_ context.Context, req *wire.Request) (bool, error) {
	if req.Method != MethodConfigure {
		return false, fmt.Errorf("%w: unknown push %q", wire.ErrMalformedInput, req.Method)
	}
	in, out, err := portPair(req)
	if err != nil {
		return false, err
	}
	return c.Set(in, out), nil
}

// State reports whether the circulator currently routes in to out.
// Port indices are not range checked.
func (c *Circulator) State(in, out uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == c.required(in, out)
}

// Set switches the circulator so that in routes to out. It fails for ports
// outside the configured range.
func (c *Circulator) Set(in, out uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if in >= c.ports || out >= c.ports {
		return false
	}
	c.state = c.required(in, out)
	return true
}

// Chirality returns the current rotation sense.
func (c *Circulator) Chirality() Chirality {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ports returns the configured port count.
func (c *Circulator) Ports() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ports
}

// Address returns the configured device address, if any.
func (c *Circulator) Address() netip.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// required returns the chirality that routes in to out. The last port is
// routed clockwise regardless of out.
func (c *Circulator) required(in, out uint64) Chirality {
	if in+1 == out || in+1 == c.ports {
		return CW
	}
	return CCW
}

func portPair(req *wire.Request) (uint64, uint64, error) {
	in, err := req.ParamUint(0)
	if err != nil {
		return 0, 0, err
	}
	out, err := req.ParamUint(1)
	if err != nil {
		return 0, 0, err
	}
	return in, out, nil
}

var _ module.Unit = (*Circulator)(nil)
