package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"golang.org/x/sync/errgroup"

	"github.com/armish/fireplace/pkg/action"
	"github.com/armish/fireplace/pkg/buffer"
	"github.com/armish/fireplace/pkg/log"
	"github.com/armish/fireplace/pkg/metrics"
	"github.com/armish/fireplace/pkg/module"
	"github.com/armish/fireplace/pkg/transport"
	"github.com/armish/fireplace/pkg/wire"
)

// Server errors.
var (
	// ErrRunning indicates Setup was called while workers are running.
	ErrRunning = errors.New("server running")

	// ErrEndpointRequired indicates a worker is needed for an endpoint that
	// was never set up.
	ErrEndpointRequired = errors.New("endpoint required")

	// ErrNilResult indicates a handler returned neither a response nor an error.
	ErrNilResult = errors.New("handler returned nil result")
)

// Server states.
const (
	StateStopped = "stopped"
	StateRunning = "running"
)

const (
	eventStart = "start"
	eventStop  = "stop"
)

// Dispatcher serves the actions received on the inbound endpoint.
type Dispatcher interface {
	HandleRequest(ctx context.Context, req *wire.Request) (*wire.Response, error)
	HandlePush(ctx context.Context, req *wire.Request) (bool, error)
}

// Manager is a Dispatcher that notifies a listener on unit loads.
// *module.Manager implements it.
type Manager interface {
	Dispatcher
	SetListener(l module.Listener)
	ClearListener()
}

// Server runs the network workers for the loaded unit. It is reconfigured
// through Notify every time a unit finishes loading: the running workers are
// stopped, then a sync worker is started if the unit serves REQUEST or PUSH
// and an async worker if it serves REPLY or WAIT.
type Server struct {
	manager Manager
	config  Config

	// mu serializes Setup, Notify and Stop.
	mu        sync.Mutex
	state     *fsm.FSM
	iEndpoint string
	oEndpoint string
	cancel    context.CancelFunc
	group     *errgroup.Group
	workers   []string

	// boundMu guards bound; workers report their addresses while mu is held.
	boundMu sync.RWMutex
	bound   map[string]string
}

// New creates a server dispatching to manager and registers it as the
// manager's listener.
func New(manager Manager, config Config) *Server {
	config.applyDefaults()
	s := &Server{
		manager: manager,
		config:  config,
		bound:   make(map[string]string),
	}
	s.state = fsm.NewFSM(
		StateStopped,
		fsm.Events{
			{Name: eventStart, Src: []string{StateStopped}, Dst: StateRunning},
			{Name: eventStop, Src: []string{StateRunning}, Dst: StateStopped},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.logState(log.StateEntityServer, e.Src, e.Dst, "")
			},
		},
	)
	manager.SetListener(s.Notify)
	return s
}

// Setup sets the inbound and outbound endpoints used by the next
// reconfiguration. Either may be empty when the unit does not need it.
func (s *Server) Setup(iEndpoint, oEndpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Is(StateRunning) {
		return ErrRunning
	}
	for _, ep := range []string{iEndpoint, oEndpoint} {
		if ep == "" {
			continue
		}
		if _, _, err := transport.ParseEndpoint(ep); err != nil {
			return err
		}
	}
	s.iEndpoint = iEndpoint
	s.oEndpoint = oEndpoint
	return nil
}

// Notify reconfigures the workers for a freshly loaded unit. It returns once
// every started worker has bound its endpoint. A bind failure is reported
// through OnFatal and returned.
func (s *Server) Notify(queue *buffer.Queue, caps action.Mask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	var targets []worker
	if caps.ContainsAny(action.Request, action.Push) {
		if s.iEndpoint == "" {
			return fmt.Errorf("%w: inbound endpoint for %s", ErrEndpointRequired, caps)
		}
		targets = append(targets, &syncWorker{server: s, endpoint: s.iEndpoint})
	}
	if caps.ContainsAny(action.Reply, action.Wait) {
		if s.oEndpoint == "" {
			return fmt.Errorf("%w: outbound endpoint for %s", ErrEndpointRequired, caps)
		}
		targets = append(targets, &asyncWorker{server: s, endpoint: s.oEndpoint, queue: queue})
	}
	s.config.Metrics.Reconfigured()
	if len(targets) == 0 {
		s.config.Logger.Warn("no workers for capabilities", "capabilities", caps.String())
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	ready := make(chan startResult, len(targets))
	for _, w := range targets {
		group.Go(func() error {
			return w.run(gctx, ready)
		})
	}

	// Start barrier: every worker reports exactly once.
	var startErr error
	names := make([]string, 0, len(targets))
	for range targets {
		r := <-ready
		if r.err != nil {
			startErr = errors.Join(startErr, r.err)
			continue
		}
		names = append(names, r.kind)
	}
	if startErr != nil {
		cancel()
		_ = group.Wait()
		s.clearBound()
		s.fatal(startErr)
		return startErr
	}

	s.cancel = cancel
	s.group = group
	s.workers = orderWorkers(names)
	if err := s.state.Event(context.Background(), eventStart); err != nil {
		s.config.Logger.Warn("server state transition failed", "error", err)
	}
	s.config.Logger.Info("workers started",
		"capabilities", caps.String(),
		"workers", s.workers)
	return nil
}

// Stop stops all workers and waits for them to exit. It is idempotent.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Close unregisters the server from its manager and stops it.
func (s *Server) Close() error {
	s.manager.ClearListener()
	s.Stop()
	return nil
}

func (s *Server) stopLocked() {
	if !s.state.Is(StateRunning) {
		return
	}

	s.cancel()
	if err := s.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		s.config.Logger.Debug("worker exited with error", "error", err)
	}
	s.cancel = nil
	s.group = nil
	s.workers = nil
	s.clearBound()

	if err := s.state.Event(context.Background(), eventStop); err != nil {
		s.config.Logger.Warn("server state transition failed", "error", err)
	}
	s.config.Logger.Info("workers stopped")
}

// Running reports whether workers are running.
func (s *Server) Running() bool {
	return s.state.Is(StateRunning)
}

// State returns the server state name.
func (s *Server) State() string {
	return s.state.Current()
}

// Workers returns the kinds of the running workers.
func (s *Server) Workers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.workers...)
}

// InboundEndpoint returns the endpoint the sync worker is bound to, or ""
// when it is not running. For ephemeral TCP ports it carries the real port.
func (s *Server) InboundEndpoint() string {
	return s.boundEndpoint(metrics.WorkerSync)
}

// OutboundEndpoint returns the endpoint the async worker is bound to, or ""
// when it is not running.
func (s *Server) OutboundEndpoint() string {
	return s.boundEndpoint(metrics.WorkerAsync)
}

func (s *Server) boundEndpoint(kind string) string {
	s.boundMu.RLock()
	defer s.boundMu.RUnlock()
	return s.bound[kind]
}

func (s *Server) setBound(kind, endpoint string) {
	s.boundMu.Lock()
	defer s.boundMu.Unlock()
	s.bound[kind] = endpoint
}

func (s *Server) clearBound() {
	s.boundMu.Lock()
	defer s.boundMu.Unlock()
	clear(s.bound)
}

// fatal reports an unrecoverable worker error.
func (s *Server) fatal(err error) {
	if s.config.ProtocolLogger != nil {
		log.Emit(s.config.ProtocolLogger, log.NewErrorEvent("", log.LayerTransport, err, "worker", true))
	}
	s.config.OnFatal(err)
}

func (s *Server) logState(entity log.StateEntity, from, to, reason string) {
	if s.config.ProtocolLogger == nil {
		return
	}
	log.Emit(s.config.ProtocolLogger, log.NewStateEvent("", entity, from, to, reason))
}

func (s *Server) socketOptions(recv, send time.Duration) transport.Options {
	return transport.Options{
		RecvTimeout:    recv,
		SendTimeout:    send,
		MaxMessageSize: s.config.MaxMessageSize,
		Logger:         s.config.ProtocolLogger,
	}
}

// orderWorkers puts sync before async regardless of start order.
func orderWorkers(names []string) []string {
	ordered := make([]string, 0, len(names))
	for _, kind := range []string{metrics.WorkerSync, metrics.WorkerAsync} {
		for _, n := range names {
			if n == kind {
				ordered = append(ordered, n)
			}
		}
	}
	return ordered
}
