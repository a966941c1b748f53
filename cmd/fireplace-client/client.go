package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/armish/fireplace/pkg/action"
	"github.com/armish/fireplace/pkg/retry"
	"github.com/armish/fireplace/pkg/transport"
	"github.com/armish/fireplace/pkg/wire"
)

// dialAttempts bounds the connection attempts per endpoint.
const dialAttempts = 5

// Client talks to a fireplace server. Sockets are dialed on first use and
// redialed after a transport failure.
type Client struct {
	opts    transport.Options
	backoff *retry.Backoff

	mu       sync.Mutex
	inbound  string
	outbound string
	in       transport.Socket
	out      transport.Socket
}

// NewClient creates a client for the given endpoints. Either may be empty.
func NewClient(inbound, outbound string, timeout time.Duration, backoff retry.Config) *Client {
	return &Client{
		opts:     transport.Options{RecvTimeout: timeout, SendTimeout: timeout},
		backoff:  retry.New(backoff),
		inbound:  inbound,
		outbound: outbound,
	}
}

// SetEndpoints replaces the endpoints and drops open sockets.
func (c *Client) SetEndpoints(inbound, outbound string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	c.inbound, c.outbound = inbound, outbound
}

// Endpoints returns the configured endpoints.
func (c *Client) Endpoints() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inbound, c.outbound
}

// Call sends one request and waits for the response.
func (c *Client) Call(ctx context.Context, act action.Action, method string, params ...any) (*wire.Response, error) {
	req, err := wire.NewRequest(act, method, params...)
	if err != nil {
		return nil, err
	}
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sock, err := c.socketLocked(ctx, &c.in, c.inbound)
	if err != nil {
		return nil, err
	}
	if err := sock.Send(data); err != nil {
		c.dropLocked(&c.in, err)
		return nil, fmt.Errorf("send: %w", err)
	}
	reply, err := sock.Recv()
	if err != nil {
		// A late reply would pair with the next request.
		c.dropLocked(&c.in, transport.ErrClosed)
		return nil, fmt.Errorf("receive: %w", err)
	}
	return wire.DecodeResponse(reply)
}

// Next receives one produced payload from the outbound endpoint.
func (c *Client) Next(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sock, err := c.socketLocked(ctx, &c.out, c.outbound)
	if err != nil {
		return nil, err
	}
	data, err := sock.Recv()
	if err != nil {
		c.dropLocked(&c.out, err)
		return nil, err
	}
	return data, nil
}

// Close releases the sockets.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *Client) socketLocked(ctx context.Context, slot *transport.Socket, endpoint string) (transport.Socket, error) {
	if *slot != nil {
		return *slot, nil
	}
	if endpoint == "" {
		return nil, fmt.Errorf("no endpoint configured")
	}

	var sock transport.Socket
	err := retry.Do(ctx, c.backoff, dialAttempts, func(ctx context.Context) error {
		s, err := transport.Dial(ctx, endpoint, c.opts)
		if err != nil {
			return err
		}
		sock = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", endpoint, err)
	}
	*slot = sock
	return sock, nil
}

// dropLocked closes the socket unless err leaves it usable.
func (c *Client) dropLocked(slot *transport.Socket, err error) {
	if *slot == nil || transport.IsTemporary(err) {
		return
	}
	_ = (*slot).Close()
	*slot = nil
}

func (c *Client) closeLocked() {
	for _, slot := range []*transport.Socket{&c.in, &c.out} {
		if *slot != nil {
			_ = (*slot).Close()
			*slot = nil
		}
	}
}
