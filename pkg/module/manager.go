package module

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/armish/fireplace/pkg/action"
	"github.com/armish/fireplace/pkg/buffer"
	"github.com/armish/fireplace/pkg/wire"
)

// Listener is notified after a unit finished loading. It receives the
// module queue and the loaded unit's capabilities. An error returned by the
// listener is returned from Manager.LoadUnit.
type Listener func(queue *buffer.Queue, caps action.Mask) error

// Manager owns at most one loaded module and forwards requests to it.
type Manager struct {
	registry *Registry
	opts     Options

	mu     sync.RWMutex
	module *Module

	// listenerMu serializes listener registration with notification.
	listenerMu sync.Mutex
	listener   Listener
}

// NewManager creates a manager that loads modules from registry.
func NewManager(registry *Registry, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{registry: registry, opts: opts}
}

// SetListener registers the load listener, replacing any previous one.
func (m *Manager) SetListener(l Listener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listener = l
}

// ClearListener unregisters the load listener.
func (m *Manager) ClearListener() {
	m.SetListener(nil)
}

// LoadModule constructs the module registered as name. It is a no-op when a
// module is already loaded.
func (m *Manager) LoadModule(name, params string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.module != nil {
		return nil
	}

	factory, err := m.registry.Lookup(name)
	if err != nil {
		return err
	}
	mod, err := factory(params)
	if err != nil {
		return fmt.Errorf("load module %q: %w", name, err)
	}
	mod.SetParams(params)
	mod.attach(m.opts)
	m.module = mod

	m.opts.Logger.Info("module loaded", "module", mod.Name(), "capabilities", mod.Declared().String())
	return nil
}

// UnloadModule unloads the loaded unit, then the module. It is a no-op when
// no module is loaded.
func (m *Manager) UnloadModule() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.module == nil {
		return
	}
	m.module.UnloadUnit()
	m.opts.Logger.Info("module unloaded", "module", m.module.Name())
	m.module = nil
}

// LoadUnit loads a unit into the loaded module and, if the unit was not
// already loaded, notifies the listener. The listener runs outside the
// manager lock so it may call back into the manager. When the listener
// fails the unit is unloaded again.
func (m *Manager) LoadUnit(name, params string) error {
	m.mu.Lock()
	mod := m.module
	if mod == nil {
		m.mu.Unlock()
		return ErrNotReady
	}
	loaded, err := mod.LoadUnit(name, params)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if !loaded {
		return nil
	}

	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	if m.listener == nil {
		return nil
	}
	if err := m.listener(mod.Queue(), mod.Capabilities()); err != nil {
		mod.UnloadUnit()
		return fmt.Errorf("notify listener: %w", err)
	}
	return nil
}

// UnloadUnit unloads the unit of the loaded module.
func (m *Manager) UnloadUnit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.module == nil {
		return ErrNotReady
	}
	m.module.UnloadUnit()
	return nil
}

// HandleRequest forwards a REQUEST to the loaded module.
func (m *Manager) HandleRequest(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	mod := m.current()
	if mod == nil {
		return nil, ErrNotReady
	}
	return mod.HandleRequest(ctx, req)
}

// HandlePush forwards a PUSH to the loaded module.
func (m *Manager) HandlePush(ctx context.Context, req *wire.Request) (bool, error) {
	mod := m.current()
	if mod == nil {
		return false, ErrNotReady
	}
	return mod.HandlePush(ctx, req)
}

// IsModuleLoaded reports whether a module is loaded.
func (m *Manager) IsModuleLoaded() bool {
	return m.current() != nil
}

// IsUnitLoaded reports whether a unit is loaded.
func (m *Manager) IsUnitLoaded() bool {
	mod := m.current()
	return mod != nil && mod.IsUnitLoaded()
}

// Capabilities returns the capabilities of the loaded unit, or of the
// loaded module when no unit is loaded. It is empty without a module.
func (m *Manager) Capabilities() action.Mask {
	mod := m.current()
	if mod == nil {
		return 0
	}
	return mod.Capabilities()
}

// ModuleName returns the loaded module name, or "".
func (m *Manager) ModuleName() string {
	mod := m.current()
	if mod == nil {
		return ""
	}
	return mod.Name()
}

// UnitName returns the loaded unit name, or "".
func (m *Manager) UnitName() string {
	mod := m.current()
	if mod == nil {
		return ""
	}
	return mod.UnitName()
}

// Module returns the loaded module, or nil.
func (m *Manager) Module() *Module {
	return m.current()
}

func (m *Manager) current() *Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.module
}
