package module

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/looplab/fsm"

	"github.com/armish/fireplace/pkg/action"
	"github.com/armish/fireplace/pkg/buffer"
	"github.com/armish/fireplace/pkg/log"
	"github.com/armish/fireplace/pkg/metrics"
	"github.com/armish/fireplace/pkg/retry"
	"github.com/armish/fireplace/pkg/wire"
)

// Unit states.
const (
	StateUnloaded = "unloaded"
	StateLoaded   = "loaded"
)

const (
	eventLoad   = "load"
	eventUnload = "unload"
)

// Factory constructs a module from its parameter string.
type Factory func(params string) (*Module, error)

// Options carries the collaborators a Manager hands to the modules it loads.
type Options struct {
	// Logger receives operational logs (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger receives unit state events (optional).
	ProtocolLogger log.Logger

	// Metrics records load state and production errors (optional).
	Metrics *metrics.Metrics

	// Backoff paces the production loop after Produce fails.
	Backoff retry.Config
}

// production is a running Produce loop.
type production struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Module hosts at most one processing unit and owns the batching queue the
// unit produces into.
type Module struct {
	name   string
	caps   action.Mask
	params string
	queue  *buffer.Queue

	factories map[string]UnitFactory

	opts Options

	mu        sync.RWMutex
	state     *fsm.FSM
	unit      Unit
	unitName  string
	effective action.Mask
	producer  *production
}

// New creates a module that can host units declaring at most caps.
func New(name string, caps action.Mask) *Module {
	m := &Module{
		name:      name,
		caps:      caps,
		queue:     buffer.NewQueue(),
		factories: make(map[string]UnitFactory),
		opts:      Options{Logger: slog.Default()},
	}
	m.state = fsm.NewFSM(
		StateUnloaded,
		fsm.Events{
			{Name: eventLoad, Src: []string{StateUnloaded}, Dst: StateLoaded},
			{Name: eventUnload, Src: []string{StateLoaded}, Dst: StateUnloaded},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				m.logState(e.Src, e.Dst)
			},
		},
	)
	return m
}

// RegisterUnit makes a unit available under name. Registering a name twice
// fails with ErrDuplicate.
func (m *Module) RegisterUnit(name string, factory UnitFactory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.factories[name]; ok {
		return fmt.Errorf("%w: unit %q", ErrDuplicate, name)
	}
	m.factories[name] = factory
	return nil
}

// MustRegisterUnit is like RegisterUnit but panics on error.
func (m *Module) MustRegisterUnit(name string, factory UnitFactory) *Module {
	if err := m.RegisterUnit(name, factory); err != nil {
		panic(err)
	}
	return m
}

// Name returns the module name.
func (m *Module) Name() string {
	return m.name
}

// Params returns the module parameter string.
func (m *Module) Params() string {
	return m.params
}

// SetParams records the module parameter string.
func (m *Module) SetParams(params string) {
	m.params = params
}

// Units returns the registered unit names, sorted.
func (m *Module) Units() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.factories))
	for name := range m.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Queue returns the batching queue units produce into.
func (m *Module) Queue() *buffer.Queue {
	return m.queue
}

// attach installs the manager collaborators. It must be called before the
// first LoadUnit.
func (m *Module) attach(opts Options) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m.mu.Lock()
	m.opts = opts
	m.mu.Unlock()

	if opts.Metrics != nil {
		m.queue.OnPush(opts.Metrics.ItemQueued)
	}
}

// LoadUnit constructs, configures and starts the unit registered as name.
// It returns true when a unit was loaded by this call and false when a unit
// was already loaded.
//
// If the unit's capabilities contain REPLY or WAIT, one production goroutine
// is started that calls Produce until the unit is unloaded.
func (m *Module) LoadUnit(name, params string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Is(StateLoaded) {
		return false, nil
	}

	factory, ok := m.factories[name]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnitNotFound, name)
	}

	unit := factory()
	caps := m.caps
	if c, ok := unit.(Capable); ok {
		caps = c.Capabilities()
		if !caps.SubsetOf(m.caps) {
			closeUnit(unit)
			return false, fmt.Errorf("%w: unit %q declares %s, module %q hosts %s",
				ErrCapabilityMismatch, name, caps, m.name, m.caps)
		}
	}

	async := caps.ContainsAny(action.Reply, action.Wait)
	producer, isProducer := unit.(Producer)
	if async && !isProducer {
		closeUnit(unit)
		return false, fmt.Errorf("%w: %q", ErrNotProducer, name)
	}

	if err := unit.Configure(params); err != nil {
		closeUnit(unit)
		return false, fmt.Errorf("configure %q: %w", name, err)
	}

	m.unit = unit
	m.unitName = name
	m.effective = caps
	if err := m.state.Event(context.Background(), eventLoad); err != nil {
		m.unit, m.unitName, m.effective = nil, "", 0
		closeUnit(unit)
		return false, err
	}

	if async {
		ctx, cancel := context.WithCancel(context.Background())
		p := &production{cancel: cancel, done: make(chan struct{})}
		m.producer = p
		go m.produce(ctx, p.done, m.opts, name, producer)
	}

	m.opts.Metrics.UnitLoaded(m.name, name, true)
	m.opts.Logger.Info("unit loaded",
		"module", m.name,
		"unit", name,
		"capabilities", caps.String(),
		"producer", async)
	return true, nil
}

// UnloadUnit stops the production goroutine, waits for it to exit and
// releases the unit. It is a no-op when nothing is loaded.
func (m *Module) UnloadUnit() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Is(StateLoaded) {
		return
	}

	if p := m.producer; p != nil {
		p.cancel()
		<-p.done
		m.producer = nil
	}

	unit, name := m.unit, m.unitName
	closeUnit(unit)

	if err := m.state.Event(context.Background(), eventUnload); err != nil {
		m.opts.Logger.Warn("unit state transition failed", "module", m.name, "error", err)
	}
	m.unit = nil
	m.unitName = ""
	m.effective = 0

	m.opts.Metrics.UnitLoaded(m.name, name, false)
	m.opts.Logger.Info("unit unloaded", "module", m.name, "unit", name)
}

// IsUnitLoaded reports whether a unit is loaded.
func (m *Module) IsUnitLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Is(StateLoaded)
}

// State returns the unit state name.
func (m *Module) State() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Current()
}

// UnitName returns the loaded unit name, or "" when nothing is loaded.
func (m *Module) UnitName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unitName
}

// Producing reports whether a production goroutine is running.
func (m *Module) Producing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.producer != nil
}

// Capabilities returns the loaded unit's capabilities, or the module's
// declared capabilities when nothing is loaded.
func (m *Module) Capabilities() action.Mask {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.unit != nil {
		return m.effective
	}
	return m.caps
}

// Declared returns the capabilities fixed at construction.
func (m *Module) Declared() action.Mask {
	return m.caps
}

// HandleRequest forwards a REQUEST to the loaded unit.
func (m *Module) HandleRequest(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.unit == nil {
		return nil, ErrNothingLoaded
	}
	return m.unit.HandleRequest(ctx, req)
}

// HandlePush forwards a PUSH to the loaded unit.
func (m *Module) HandlePush(ctx context.Context, req *wire.Request) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.unit == nil {
		return false, ErrNothingLoaded
	}
	return m.unit.HandlePush(ctx, req)
}

// produce runs Produce until ctx is cancelled. It never takes the module
// lock, since UnloadUnit holds it while joining; the queue synchronizes
// itself.
func (m *Module) produce(ctx context.Context, done chan<- struct{}, opts Options, unit string, p Producer) {
	defer close(done)

	backoff := retry.New(opts.Backoff)
	for ctx.Err() == nil {
		err := p.Produce(ctx, m.queue)
		if err == nil {
			backoff.Reset()
			continue
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}

		delay := backoff.Next()
		opts.Metrics.ProductionError(m.name, unit)
		opts.Logger.Warn("production failed",
			"module", m.name,
			"unit", unit,
			"error", err,
			"retryIn", delay)
		if opts.ProtocolLogger != nil {
			event := log.NewErrorEvent("", log.LayerModule, err, "produce", false)
			event.Module = m.name
			event.Unit = unit
			log.Emit(opts.ProtocolLogger, event)
		}
		if retry.Sleep(ctx, delay) != nil {
			return
		}
	}
}

// logState is called from the state machine with m.mu held.
func (m *Module) logState(from, to string) {
	if m.opts.ProtocolLogger == nil {
		return
	}
	event := log.NewStateEvent("", log.StateEntityUnit, from, to, "")
	event.Module = m.name
	event.Unit = m.unitName
	log.Emit(m.opts.ProtocolLogger, event)
}

func closeUnit(u Unit) {
	if c, ok := u.(io.Closer); ok {
		_ = c.Close()
	}
}
