package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/armish/fireplace/pkg/action"
	"github.com/armish/fireplace/pkg/buffer"
	"github.com/armish/fireplace/pkg/log"
	"github.com/armish/fireplace/pkg/metrics"
	"github.com/armish/fireplace/pkg/transport"
	"github.com/armish/fireplace/pkg/wire"
)

// Drop reasons used as metric labels.
const (
	dropTimeout    = "timeout"
	dropPeerClosed = "peer_closed"
	dropEmpty      = "empty"
	dropTooLarge   = "too_large"
	dropShutdown   = "shutdown"
)

// startResult is what a worker reports to the start barrier.
type startResult struct {
	kind     string
	endpoint string
	err      error
}

type worker interface {
	// run binds the worker socket, reports exactly once on ready and then
	// serves until ctx is done. A non-nil return is a fatal error.
	run(ctx context.Context, ready chan<- startResult) error
}

// bind opens a listening socket and reports the outcome to the barrier.
func (s *Server) bind(kind, endpoint string, opts transport.Options, ready chan<- startResult) (transport.Socket, error) {
	sock, err := s.config.Listen(endpoint, opts)
	if err != nil {
		err = fmt.Errorf("%s worker: bind %s: %w", kind, endpoint, err)
		ready <- startResult{kind: kind, err: err}
		return nil, err
	}
	s.setBound(kind, sock.Endpoint())
	s.config.Metrics.WorkerStarted(kind)
	s.logState(log.StateEntityWorker, StateStopped, StateRunning, kind)
	s.config.Logger.Debug("worker bound", "worker", kind, "endpoint", sock.Endpoint())
	ready <- startResult{kind: kind, endpoint: sock.Endpoint()}
	return sock, nil
}

func (s *Server) unbind(kind string, sock transport.Socket) {
	_ = sock.Close()
	s.config.Metrics.WorkerStopped(kind)
	s.logState(log.StateEntityWorker, StateRunning, StateStopped, kind)
}

// dropReason classifies a send error that leaves the socket usable. It
// returns "" for errors that are fatal to the worker.
func dropReason(err error) string {
	switch {
	case errors.Is(err, transport.ErrTimeout):
		return dropTimeout
	case errors.Is(err, transport.ErrPeerClosed):
		return dropPeerClosed
	case errors.Is(err, transport.ErrMessageEmpty):
		return dropEmpty
	case errors.Is(err, transport.ErrMessageTooLarge):
		return dropTooLarge
	default:
		return ""
	}
}

// syncWorker serves REQUEST and PUSH actions on the inbound endpoint.
type syncWorker struct {
	server   *Server
	endpoint string
}

func (w *syncWorker) run(ctx context.Context, ready chan<- startResult) error {
	s := w.server
	cfg := s.config
	sock, err := s.bind(metrics.WorkerSync, w.endpoint,
		s.socketOptions(cfg.SyncRecvTimeout, cfg.SyncSendTimeout), ready)
	if err != nil {
		return err
	}
	defer s.unbind(metrics.WorkerSync, sock)
	endpoint := sock.Endpoint()

	for ctx.Err() == nil {
		data, err := sock.Recv()
		if err != nil {
			if transport.IsTemporary(err) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			err = fmt.Errorf("sync worker: receive: %w", err)
			s.fatal(err)
			return err
		}

		start := time.Now()
		resp, act, method, outcome, err := w.serve(ctx, endpoint, data)
		if err != nil {
			s.fatal(err)
			return err
		}

		out, err := wire.EncodeResponse(resp)
		if err != nil {
			// A result the encoder cannot represent is reported to the client.
			out, _ = wire.EncodeResponse(wire.ErrorResponse(err))
			outcome = metrics.OutcomeError
		}
		if err := sock.Send(out); err != nil {
			if reason := dropReason(err); reason != "" {
				cfg.Metrics.MessageDropped(metrics.WorkerSync, reason)
				cfg.Logger.Debug("response dropped", "reason", reason, "error", err)
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			err = fmt.Errorf("sync worker: send: %w", err)
			s.fatal(err)
			return err
		}

		elapsed := time.Since(start)
		cfg.Metrics.RequestHandled(actionLabel(act), outcome, elapsed.Seconds())
		if cfg.ProtocolLogger != nil {
			log.Emit(cfg.ProtocolLogger, log.NewResponseEvent("", endpoint, act, method, resp.Result, resp.Error, elapsed))
		}
	}
	return nil
}

// serve decodes and dispatches one request. Per-request failures become
// error responses; the returned error is fatal.
func (w *syncWorker) serve(ctx context.Context, endpoint string, data []byte) (*wire.Response, action.Action, string, string, error) {
	cfg := w.server.config
	dispatcher := w.server.manager

	req, err := wire.DecodeRequest(data)
	if err != nil {
		cfg.Logger.Debug("malformed request", "error", err)
		return wire.ErrorResponse(wire.ErrMalformedInput), 0, "", metrics.OutcomeMalformed, nil
	}
	if cfg.ProtocolLogger != nil {
		log.Emit(cfg.ProtocolLogger, log.NewRequestEvent("", endpoint, req.Action, req.Method, req.NumParams()))
	}

	switch req.Action {
	case action.Request:
		resp, err := dispatcher.HandleRequest(ctx, req)
		if err != nil {
			return errorResponse(err), req.Action, req.Method, errorOutcome(err), nil
		}
		if resp == nil {
			return nil, req.Action, req.Method, "", fmt.Errorf("%w: request %q", ErrNilResult, req.Method)
		}
		outcome := metrics.OutcomeOK
		if resp.Error {
			outcome = metrics.OutcomeError
		}
		return resp, req.Action, req.Method, outcome, nil

	case action.Push:
		ok, err := dispatcher.HandlePush(ctx, req)
		if err != nil {
			return errorResponse(err), req.Action, req.Method, errorOutcome(err), nil
		}
		return wire.NewResponse(ok), req.Action, req.Method, metrics.OutcomeOK, nil

	default:
		// WAIT and REPLY are served on the outbound endpoint only.
		return wire.ErrorResponse(wire.ErrMalformedInput), req.Action, req.Method, metrics.OutcomeMalformed, nil
	}
}

// errorResponse reports err to the client. Protocol errors are reported
// without their detail.
func errorResponse(err error) *wire.Response {
	if errors.Is(err, wire.ErrMalformedInput) {
		return wire.ErrorResponse(wire.ErrMalformedInput)
	}
	return wire.ErrorResponse(err)
}

func errorOutcome(err error) string {
	if errors.Is(err, wire.ErrMalformedInput) {
		return metrics.OutcomeMalformed
	}
	return metrics.OutcomeError
}

func actionLabel(a action.Action) string {
	if !a.IsValid() {
		return "unknown"
	}
	return a.String()
}

// asyncWorker forwards queue items on the outbound endpoint.
type asyncWorker struct {
	server   *Server
	endpoint string
	queue    *buffer.Queue
}

func (w *asyncWorker) run(ctx context.Context, ready chan<- startResult) error {
	s := w.server
	cfg := s.config
	sock, err := s.bind(metrics.WorkerAsync, w.endpoint,
		s.socketOptions(0, cfg.AsyncSendTimeout), ready)
	if err != nil {
		return err
	}
	defer s.unbind(metrics.WorkerAsync, sock)
	endpoint := sock.Endpoint()

	w.queue.SetThreshold(cfg.Threshold)
	timeouts := 0

	for ctx.Err() == nil {
		if !w.queue.WaitThreshold(ctx, cfg.AsyncWaitTimeout) {
			if ctx.Err() != nil {
				return nil
			}
			timeouts++
			if timeouts < cfg.MaxTimeouts {
				continue
			}
			cfg.Metrics.ForcedFlush()
		}
		timeouts = 0

		items := w.queue.PopAll()
		if len(items) == 0 {
			continue
		}
		sent, err := w.forward(ctx, sock, endpoint, items)
		cfg.Metrics.BatchForwarded(len(items), sent)
		if err != nil {
			s.fatal(err)
			return err
		}
	}
	return nil
}

// forward sends items in order. Items that cannot be delivered are dropped.
func (w *asyncWorker) forward(ctx context.Context, sock transport.Socket, endpoint string, items []buffer.Item) (int, error) {
	cfg := w.server.config
	sent := 0
	for i, item := range items {
		if ctx.Err() != nil {
			for range items[i:] {
				cfg.Metrics.MessageDropped(metrics.WorkerAsync, dropShutdown)
			}
			return sent, nil
		}

		err := sock.Send(item.Data())
		if err == nil {
			sent++
			if cfg.ProtocolLogger != nil {
				log.Emit(cfg.ProtocolLogger, log.NewItemEvent("", endpoint, len(item.Params())))
			}
			continue
		}
		if reason := dropReason(err); reason != "" {
			cfg.Metrics.MessageDropped(metrics.WorkerAsync, reason)
			cfg.Logger.Debug("item dropped", "reason", reason, "size", item.Len(), "error", err)
			continue
		}
		if ctx.Err() != nil {
			return sent, nil
		}
		return sent, fmt.Errorf("async worker: send: %w", err)
	}
	return sent, nil
}
