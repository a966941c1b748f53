package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/armish/fireplace/pkg/log"
)

// Socket errors.
var (
	// ErrTimeout indicates a Recv or Send deadline passed.
	ErrTimeout = errors.New("transport timeout")

	// ErrClosed indicates the socket was closed.
	ErrClosed = errors.New("socket closed")

	// ErrPeerClosed indicates the peer went away.
	ErrPeerClosed = errors.New("peer closed")

	// ErrUnsupportedScheme indicates an endpoint with an unknown scheme.
	ErrUnsupportedScheme = errors.New("unsupported endpoint scheme")

	// ErrInvalidEndpoint indicates an endpoint that cannot be parsed.
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)

// Endpoint schemes.
const (
	SchemeTCP    = "tcp"
	SchemeInproc = "inproc"
	SchemeIPC    = "ipc"
	SchemeWS     = "ws"
	SchemeNNTCP  = "nn+tcp"
)

// Socket is a point-to-point message socket with PAIR semantics.
type Socket interface {
	// Recv returns the next message. It fails with ErrTimeout when the
	// receive deadline passes.
	Recv() ([]byte, error)

	// Send sends one message to the peer. It fails with ErrTimeout when no
	// peer took the message before the send deadline.
	Send(data []byte) error

	// Endpoint returns the endpoint the socket is bound or connected to.
	// For listeners bound to an ephemeral port it carries the actual port.
	Endpoint() string

	// Close releases the socket. Blocked calls return ErrClosed.
	Close() error
}

// Options configures a socket.
type Options struct {
	// RecvTimeout bounds Recv. Zero blocks until a message arrives.
	RecvTimeout time.Duration

	// SendTimeout bounds Send. Zero blocks until the message is taken.
	SendTimeout time.Duration

	// MaxMessageSize limits inbound messages (default: DefaultMaxMessageSize).
	MaxMessageSize uint32

	// Logger receives frame and session events (optional).
	Logger log.Logger
}

// ParseEndpoint splits an endpoint into scheme and address.
func ParseEndpoint(endpoint string) (scheme, addr string, err error) {
	scheme, addr, ok := strings.Cut(endpoint, "://")
	if !ok || scheme == "" || addr == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}
	switch scheme {
	case SchemeTCP, SchemeInproc, SchemeIPC, SchemeWS, SchemeNNTCP:
		return scheme, addr, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}

// Listen binds a socket to endpoint.
func Listen(endpoint string, opts Options) (Socket, error) {
	scheme, addr, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if scheme == SchemeTCP {
		return listenTCP(addr, opts)
	}
	return listenMangos(mangosAddress(scheme, addr), endpoint, opts)
}

// Dial connects a socket to endpoint. For the native TCP transport the
// connection is made before Dial returns; mangos transports connect in the
// background and Send blocks until the peer is reachable.
func Dial(ctx context.Context, endpoint string, opts Options) (Socket, error) {
	scheme, addr, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if scheme == SchemeTCP {
		return dialTCP(ctx, addr, opts)
	}
	return dialMangos(mangosAddress(scheme, addr), endpoint, opts)
}

// IsTemporary reports whether err leaves the socket usable.
func IsTemporary(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrPeerClosed)
}

func mangosAddress(scheme, addr string) string {
	if scheme == SchemeNNTCP {
		return "tcp://" + addr
	}
	return scheme + "://" + addr
}

// deadline returns a channel that fires after d, or nil (never fires) for
// d <= 0, and a stop function.
func deadline(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTimer(d)
	return t.C, func() { t.Stop() }
}
