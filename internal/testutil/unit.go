// Package testutil provides test doubles shared by fireplace package tests.
package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/armish/fireplace/pkg/action"
	"github.com/armish/fireplace/pkg/buffer"
	"github.com/armish/fireplace/pkg/wire"
)

// MockUnit is a testify mock of module.Unit.
type MockUnit struct {
	mock.Mock
}

// Configure records the call.
func (m *MockUnit) Configure(params string) error {
	args := m.Called(params)
	return args.Error(0)
}

// HandleRequest records the call.
func (m *MockUnit) HandleRequest(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*wire.Response)
	return resp, args.Error(1)
}

// HandlePush records the call.
func (m *MockUnit) HandlePush(ctx context.Context, req *wire.Request) (bool, error) {
	args := m.Called(ctx, req)
	return args.Bool(0), args.Error(1)
}

// ProducerUnit is a unit with a production loop. Queued payloads are
// emitted one per Produce call; when nothing is queued Produce waits up to
// Tick for work.
type ProducerUnit struct {
	MockUnit

	// Tick bounds how long Produce waits for work (default 5ms).
	Tick time.Duration

	// Err, when set, is returned from every Produce call.
	Err error

	pending chan buffer.Item
	once    sync.Once

	calls   atomic.Int64
	active  atomic.Int64
	maxSeen atomic.Int64
	closed  atomic.Bool
}

func (p *ProducerUnit) init() {
	p.once.Do(func() {
		p.pending = make(chan buffer.Item, 4096)
	})
}

// Emit queues an item for the production loop.
func (p *ProducerUnit) Emit(item buffer.Item) {
	p.init()
	p.pending <- item
}

// Produce moves one queued item into queue.
func (p *ProducerUnit) Produce(ctx context.Context, queue *buffer.Queue) error {
	p.init()
	p.calls.Add(1)
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		seen := p.maxSeen.Load()
		if n <= seen || p.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if p.Err != nil {
		return p.Err
	}

	tick := p.Tick
	if tick <= 0 {
		tick = 5 * time.Millisecond
	}
	timer := time.NewTimer(tick)
	defer timer.Stop()

	select {
	case item := <-p.pending:
		queue.Push(item)
	case <-timer.C:
	case <-ctx.Done():
	}
	return nil
}

// Close marks the unit closed.
func (p *ProducerUnit) Close() error {
	p.closed.Store(true)
	return nil
}

// Calls returns the number of Produce calls.
func (p *ProducerUnit) Calls() int64 { return p.calls.Load() }

// Active returns the number of Produce calls in progress.
func (p *ProducerUnit) Active() int64 { return p.active.Load() }

// MaxConcurrent returns the largest number of concurrent Produce calls seen.
func (p *ProducerUnit) MaxConcurrent() int64 { return p.maxSeen.Load() }

// Closed reports whether Close was called.
func (p *ProducerUnit) Closed() bool { return p.closed.Load() }

// CapableProducer is a ProducerUnit that declares its own capabilities.
type CapableProducer struct {
	*ProducerUnit
	Caps action.Mask
}

// Capabilities reports Caps.
func (c CapableProducer) Capabilities() action.Mask {
	return c.Caps
}
