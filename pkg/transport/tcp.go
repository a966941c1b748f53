package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/armish/fireplace/pkg/log"
)

// inboxSize is the number of received frames buffered ahead of Recv.
const inboxSize = 64

// tcpPeer is the single connection attached to a tcpSocket.
type tcpPeer struct {
	id        string
	conn      net.Conn
	framer    *Framer
	closeOnce sync.Once
}

// inboundFrame is a received frame tagged with the peer that sent it.
type inboundFrame struct {
	peer *tcpPeer
	data []byte
}

func (p *tcpPeer) close() {
	p.closeOnce.Do(func() { _ = p.conn.Close() })
}

// tcpSocket is a PAIR socket over length-prefixed TCP frames.
// A listening socket accepts one peer at a time and refuses others until
// the current one leaves. A dialed socket owns exactly one connection.
type tcpSocket struct {
	endpoint string
	opts     Options
	ln       net.Listener

	// inbox is shared across successive peers of a listening socket; Recv
	// drops frames whose peer has left.
	inbox chan inboundFrame

	mu          sync.Mutex
	peer        *tcpPeer
	peerChanged chan struct{} // closed and replaced on attach

	// gone is closed when a dialed socket loses its connection.
	gone     chan struct{}
	goneOnce sync.Once

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newTCPSocket(endpoint string, opts Options) *tcpSocket {
	return &tcpSocket{
		endpoint:    endpoint,
		opts:        opts,
		inbox:       make(chan inboundFrame, inboxSize),
		peerChanged: make(chan struct{}),
		closed:      make(chan struct{}),
	}
}

func listenTCP(addr string, opts Options) (*tcpSocket, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	s := newTCPSocket("tcp://"+ln.Addr().String(), opts)
	s.ln = ln

	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

func dialTCP(ctx context.Context, addr string, opts Options) (*tcpSocket, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	s := newTCPSocket("tcp://"+addr, opts)
	s.gone = make(chan struct{})
	s.mu.Lock()
	s.attachLocked(conn)
	s.mu.Unlock()
	return s, nil
}

// Endpoint returns the bound or dialed endpoint.
func (s *tcpSocket) Endpoint() string {
	return s.endpoint
}

// Connected reports whether a peer is attached.
func (s *tcpSocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer != nil
}

// acceptLoop accepts incoming connections.
func (s *tcpSocket) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}

		s.mu.Lock()
		if s.isClosed() {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		if s.peer != nil {
			s.mu.Unlock()
			// Pair sockets serve one peer at a time.
			_ = conn.Close()
			continue
		}
		s.attachLocked(conn)
		s.mu.Unlock()
	}
}

func (s *tcpSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// attachLocked must be called with s.mu held.
func (s *tcpSocket) attachLocked(conn net.Conn) {
	peer := &tcpPeer{
		id:     uuid.New().String(),
		conn:   conn,
		framer: NewFramer(conn, s.opts.MaxMessageSize),
	}
	peer.framer.SetLogger(s.opts.Logger, peer.id, s.endpoint)

	s.peer = peer
	close(s.peerChanged)
	s.peerChanged = make(chan struct{})

	s.logSession(peer, "attached")

	s.wg.Add(1)
	go s.readLoop(peer)
}

func (s *tcpSocket) readLoop(peer *tcpPeer) {
	defer s.wg.Done()
	defer s.detach(peer)

	for {
		data, err := peer.framer.ReadFrame()
		if err != nil {
			return
		}
		select {
		case s.inbox <- inboundFrame{peer: peer, data: data}:
		case <-s.closed:
			return
		}
	}
}

func (s *tcpSocket) detach(peer *tcpPeer) {
	peer.close()

	s.mu.Lock()
	current := s.peer == peer
	if current {
		s.peer = nil
	}
	s.mu.Unlock()

	if current {
		s.logSession(peer, "detached")
	}
	if s.gone != nil {
		s.goneOnce.Do(func() { close(s.gone) })
	}
}

func (s *tcpSocket) logSession(peer *tcpPeer, state string) {
	if s.opts.Logger == nil {
		return
	}
	event := log.NewStateEvent(peer.id, log.StateEntitySession, "", state, "")
	event.Endpoint = s.endpoint
	event.RemoteAddr = peer.conn.RemoteAddr().String()
	s.opts.Logger.Log(event)
}

// Recv returns the next frame from the current peer. On a listening
// socket, frames left behind by a peer that has detached are discarded so
// that their replies never reach its successor.
func (s *tcpSocket) Recv() ([]byte, error) {
	timeout, stop := deadline(s.opts.RecvTimeout)
	defer stop()

	for {
		select {
		case frame := <-s.inbox:
			if s.stale(frame.peer) {
				continue
			}
			return frame.data, nil
		case <-s.closed:
			return nil, ErrClosed
		case <-s.gone:
			// Drain what arrived before the connection dropped.
			select {
			case frame := <-s.inbox:
				return frame.data, nil
			default:
				return nil, ErrPeerClosed
			}
		case <-timeout:
			return nil, ErrTimeout
		}
	}
}

// stale reports whether a frame from peer must be dropped. Only listening
// sockets change peers.
func (s *tcpSocket) stale(peer *tcpPeer) bool {
	if s.ln == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer != peer
}

// Send writes one frame to the peer, waiting for a peer to attach when
// none is present.
func (s *tcpSocket) Send(data []byte) error {
	timeout, stop := deadline(s.opts.SendTimeout)
	defer stop()

	var peer *tcpPeer
	for peer == nil {
		s.mu.Lock()
		peer = s.peer
		changed := s.peerChanged
		s.mu.Unlock()

		select {
		case <-s.closed:
			return ErrClosed
		default:
		}
		if peer != nil {
			break
		}
		if s.gone != nil {
			return ErrPeerClosed
		}

		select {
		case <-changed:
		case <-s.closed:
			return ErrClosed
		case <-timeout:
			return ErrTimeout
		}
	}

	if s.opts.SendTimeout > 0 {
		_ = peer.conn.SetWriteDeadline(time.Now().Add(s.opts.SendTimeout))
	}
	err := peer.framer.WriteFrame(data)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrMessageEmpty) || errors.Is(err, ErrMessageTooLarge) {
		return err
	}

	// A partially written frame would desynchronize the stream.
	s.detach(peer)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %v", ErrPeerClosed, err)
}

// Close stops accepting, drops the peer and waits for goroutines to exit.
func (s *tcpSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.ln != nil {
			err = s.ln.Close()
		}

		s.mu.Lock()
		peer := s.peer
		s.mu.Unlock()
		if peer != nil {
			peer.close()
		}

		s.wg.Wait()
	})
	return err
}

// Compile-time interface satisfaction check.
var _ Socket = (*tcpSocket)(nil)
