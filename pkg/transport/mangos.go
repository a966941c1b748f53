package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pair"

	// Register inproc, ipc, tcp, tls and ws transports.
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/armish/fireplace/pkg/log"
)

// mangosSocket adapts a mangos pair socket to Socket.
type mangosSocket struct {
	sock     mangos.Socket
	endpoint string
	logger   log.Logger

	mu        sync.Mutex
	sessionID string
	remote    string
}

func newMangosSocket(endpoint string, opts Options) (*mangosSocket, error) {
	sock, err := pair.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create pair socket: %w", err)
	}

	maxSize := opts.MaxMessageSize
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	options := map[string]any{
		mangos.OptionMaxRecvSize: int(maxSize),
	}
	if opts.RecvTimeout > 0 {
		options[mangos.OptionRecvDeadline] = opts.RecvTimeout
	}
	if opts.SendTimeout > 0 {
		options[mangos.OptionSendDeadline] = opts.SendTimeout
	}
	for name, value := range options {
		if err := sock.SetOption(name, value); err != nil {
			_ = sock.Close()
			return nil, fmt.Errorf("failed to set %s: %w", name, err)
		}
	}

	s := &mangosSocket{
		sock:      sock,
		endpoint:  endpoint,
		logger:    opts.Logger,
		sessionID: uuid.New().String(),
	}
	sock.SetPipeEventHook(s.pipeEvent)
	return s, nil
}

func listenMangos(addr, endpoint string, opts Options) (*mangosSocket, error) {
	s, err := newMangosSocket(endpoint, opts)
	if err != nil {
		return nil, err
	}
	if err := s.sock.Listen(addr); err != nil {
		_ = s.sock.Close()
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	return s, nil
}

func dialMangos(addr, endpoint string, opts Options) (*mangosSocket, error) {
	s, err := newMangosSocket(endpoint, opts)
	if err != nil {
		return nil, err
	}
	dialOpts := map[string]any{mangos.OptionDialAsynch: true}
	if err := s.sock.DialOptions(addr, dialOpts); err != nil {
		_ = s.sock.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return s, nil
}

// pipeEvent tracks peer sessions. Each attached pipe starts a new session.
func (s *mangosSocket) pipeEvent(ev mangos.PipeEvent, p mangos.Pipe) {
	var state string
	switch ev {
	case mangos.PipeEventAttached:
		state = "attached"
		s.mu.Lock()
		s.sessionID = uuid.New().String()
		s.remote = p.Address()
		s.mu.Unlock()
	case mangos.PipeEventDetached:
		state = "detached"
	default:
		return
	}

	if s.logger == nil {
		return
	}
	sessionID, remote := s.session()
	event := log.NewStateEvent(sessionID, log.StateEntitySession, "", state, "")
	event.Endpoint = s.endpoint
	event.RemoteAddr = remote
	s.logger.Log(event)
}

func (s *mangosSocket) session() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID, s.remote
}

// Endpoint returns the endpoint as given to Listen or Dial.
func (s *mangosSocket) Endpoint() string {
	return s.endpoint
}

// Recv returns the next message from the peer.
func (s *mangosSocket) Recv() ([]byte, error) {
	data, err := s.sock.Recv()
	if err != nil {
		return nil, mapMangosError(err)
	}
	s.trace(log.DirectionIn, data)
	return data, nil
}

// Send hands one message to the peer.
func (s *mangosSocket) Send(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if err := s.sock.Send(data); err != nil {
		return mapMangosError(err)
	}
	s.trace(log.DirectionOut, data)
	return nil
}

// Close closes the underlying socket.
func (s *mangosSocket) Close() error {
	err := s.sock.Close()
	if errors.Is(err, mangos.ErrClosed) {
		return nil
	}
	return err
}

func (s *mangosSocket) trace(dir log.Direction, data []byte) {
	if s.logger == nil {
		return
	}
	sessionID, _ := s.session()
	s.logger.Log(log.NewFrameEvent(sessionID, s.endpoint, dir, len(data), data))
}

func mapMangosError(err error) error {
	switch {
	case errors.Is(err, mangos.ErrRecvTimeout), errors.Is(err, mangos.ErrSendTimeout):
		return ErrTimeout
	case errors.Is(err, mangos.ErrClosed):
		return ErrClosed
	case errors.Is(err, mangos.ErrTooLong):
		return fmt.Errorf("%w: %v", ErrMessageTooLarge, err)
	default:
		return err
	}
}

// Compile-time interface satisfaction check.
var _ Socket = (*mangosSocket)(nil)
