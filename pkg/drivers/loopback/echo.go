package loopback

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/armish/fireplace/pkg/buffer"
	"github.com/armish/fireplace/pkg/config"
	"github.com/armish/fireplace/pkg/module"
	"github.com/armish/fireplace/pkg/wire"
)

// Echo methods.
const (
	MethodEcho    = "echo"
	MethodPending = "pending"
	MethodTx      = "tx"
)

// Default Echo parameters.
const (
	DefaultCapacity = 1024
	DefaultTick     = 50 * time.Millisecond
)

// Echo answers requests with their first parameter and emits pushed
// transmissions on the outbound stream.
//
// Parameters:
//
//	-capacity <n>   transmissions held before tx is refused (default 1024)
//	-tick <dur>     receive timeout of the production loop (default 50ms)
type Echo struct {
	tick    time.Duration
	pending chan buffer.Item
}

// NewEcho creates an unconfigured echo unit.
func NewEcho() *Echo {
	return &Echo{}
}

// Configure parses the unit parameters.
func (e *Echo) Configure(params string) error {
	fs := flag.NewFlagSet(UnitEcho, flag.ContinueOnError)
	capacity := fs.Int("capacity", DefaultCapacity, "pending transmissions")
	tick := fs.Duration("tick", DefaultTick, "production receive timeout")

	if _, err := config.ParseParams(fs, params); err != nil {
		return err
	}
	if *capacity < 1 {
		return fmt.Errorf("%w: %s: capacity %d", config.ErrInvalid, UnitEcho, *capacity)
	}
	if *tick <= 0 {
		return fmt.Errorf("%w: %s: tick %s", config.ErrInvalid, UnitEcho, *tick)
	}

	e.tick = *tick
	e.pending = make(chan buffer.Item, *capacity)
	return nil
}

// HandleRequest serves echo and pending.
func (e *Echo) HandleRequest(_ context.Context, req *wire.Request) (*wire.Response, error) {
	switch req.Method {
	case MethodEcho:
		if req.NumParams() == 0 {
			return nil, fmt.Errorf("%w: echo needs a parameter", wire.ErrMalformedInput)
		}
		var v any
		if err := json.Unmarshal(req.Parameters[0], &v); err != nil {
			return nil, fmt.Errorf("%w: parameter 0: %v", wire.ErrMalformedInput, err)
		}
		return wire.NewResponse(v), nil

	case MethodPending:
		return wire.NewResponse(len(e.pending)), nil

	default:
		return nil, fmt.Errorf("%w: unknown request %q", wire.ErrMalformedInput, req.Method)
	}
}

// HandlePush serves tx <payload> [params...]. It reports false when the
// pending buffer is full.
func (e *Echo) HandlePush(_ context.Context, req *wire.Request) (bool, error) {
	if req.Method != MethodTx {
		return false, fmt.Errorf("%w: unknown push %q", wire.ErrMalformedInput, req.Method)
	}
	payload, err := req.ParamString(0)
	if err != nil {
		return false, err
	}
	params := make([]string, 0, req.NumParams()-1)
	for i := 1; i < req.NumParams(); i++ {
		p, err := req.ParamString(i)
		if err != nil {
			return false, err
		}
		params = append(params, p)
	}

	select {
	case e.pending <- buffer.NewItem([]byte(payload), params...):
		return true, nil
	default:
		return false, nil
	}
}

// Produce moves pending transmissions into queue. It returns after one
// tick without work.
func (e *Echo) Produce(ctx context.Context, queue *buffer.Queue) error {
	timer := time.NewTimer(e.tick)
	defer timer.Stop()

	for {
		select {
		case item := <-e.pending:
			queue.Push(item)
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

var (
	_ module.Unit     = (*Echo)(nil)
	_ module.Producer = (*Echo)(nil)
)
