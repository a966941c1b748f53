// Package transport provides the point-to-point sockets used by the
// middleware workers.
//
// Every socket follows PAIR semantics: exactly one peer at a time, one
// message per Send, bounded Recv and Send timeouts. The endpoint scheme
// selects the implementation:
//
//	tcp://host:port        length-prefixed frames over TCP (native)
//	inproc://name          in-process mangos pair socket
//	ipc:///path/to/sock    mangos pair over a unix socket
//	ws://host:port/path    mangos pair over websocket
//	nn+tcp://host:port     mangos pair over the nanomsg SP TCP transport
//
// # Framing
//
// The native TCP transport prefixes every message with its length:
//
//	┌──────────────┬─────────────────────┐
//	│ length (4B)  │ payload (length B)  │
//	│ big-endian   │                     │
//	└──────────────┴─────────────────────┘
//
// # Timeouts
//
// Recv and Send return ErrTimeout when their deadline passes. A timeout is
// not fatal; workers use it to poll for shutdown. ErrPeerClosed reports a
// peer that went away; the listening side then waits for the next peer.
// ErrClosed is returned once the socket itself was closed.
package transport
