package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/armish/fireplace/pkg/config"
	"github.com/armish/fireplace/pkg/discovery"
	"github.com/armish/fireplace/pkg/drivers"
	"github.com/armish/fireplace/pkg/log"
	"github.com/armish/fireplace/pkg/metrics"
	"github.com/armish/fireplace/pkg/middleware"
	"github.com/armish/fireplace/pkg/module"
)

// shutdownTimeout bounds the metrics server shutdown.
const shutdownTimeout = 2 * time.Second

// started reports the bound endpoints once the server is serving.
type started func(inbound, outbound string)

// run starts the server and blocks until ctx is done or a worker fails.
func run(ctx context.Context, args []string, stderr io.Writer, onStarted started) error {
	fs := flag.NewFlagSet("fireplace", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := config.NewFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := flags.Resolve()
	if err != nil {
		return err
	}

	logger, err := cfg.Log.NewLogger(stderr)
	if err != nil {
		return err
	}

	protocol, closeProtocol, err := protocolLogger(cfg, logger)
	if err != nil {
		return err
	}
	defer closeProtocol()

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		_, stopMetrics, err := serveMetrics(cfg.Metrics.Addr, m, logger)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	manager := module.NewManager(drivers.NewRegistry(), module.Options{
		Logger:         logger,
		ProtocolLogger: protocol,
		Metrics:        m,
		Backoff:        cfg.Backoff,
	})

	fatal := make(chan error, 1)
	server := middleware.New(manager, middleware.Config{
		SyncRecvTimeout:  cfg.Server.SyncRecvTimeout,
		SyncSendTimeout:  cfg.Server.SyncSendTimeout,
		AsyncSendTimeout: cfg.Server.AsyncSendTimeout,
		AsyncWaitTimeout: cfg.Server.AsyncWaitTimeout,
		Threshold:        cfg.Server.Threshold,
		MaxTimeouts:      cfg.Server.MaxTimeouts,
		MaxMessageSize:   cfg.Server.MaxMessageSize,
		OnFatal: func(err error) {
			select {
			case fatal <- err:
			default:
			}
		},
		Logger:         logger,
		ProtocolLogger: protocol,
		Metrics:        m,
	})
	// Workers stop before the unit they dispatch to is released.
	defer manager.UnloadModule()
	defer func() { _ = server.Close() }()

	if err := server.Setup(cfg.Server.IEndpoint, cfg.Server.OEndpoint); err != nil {
		return err
	}
	if err := manager.LoadModule(cfg.Module.Name, cfg.Module.Params); err != nil {
		return err
	}
	if err := manager.LoadUnit(cfg.Unit.Name, cfg.Unit.Params); err != nil {
		return err
	}

	logger.Info("fireplace serving",
		"module", manager.ModuleName(),
		"unit", manager.UnitName(),
		"capabilities", manager.Capabilities().String(),
		"inbound", server.InboundEndpoint(),
		"outbound", server.OutboundEndpoint(),
		"workers", server.Workers())

	if cfg.Discovery.Advertise {
		adv := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
		info := &discovery.Info{
			Instance:     cfg.Discovery.Instance,
			Port:         cfg.Discovery.Port,
			IEndpoint:    server.InboundEndpoint(),
			OEndpoint:    server.OutboundEndpoint(),
			Module:       manager.ModuleName(),
			Unit:         manager.UnitName(),
			Capabilities: manager.Capabilities(),
		}
		if err := adv.Advertise(ctx, info); err != nil {
			logger.Warn("mDNS advertisement failed", "error", err)
		} else {
			logger.Info("advertising", "instance", discovery.InstanceName(info), "service", discovery.ServiceType)
			defer func() { _ = adv.Stop() }()
		}
	}

	if onStarted != nil {
		onStarted(server.InboundEndpoint(), server.OutboundEndpoint())
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-fatal:
		logger.Error("worker failed", "error", err)
		return err
	}
}

// protocolLogger builds the protocol capture chain. Events are written to the
// capture file when configured, and to the operational log at debug level.
func protocolLogger(cfg config.Config, logger *slog.Logger) (log.Logger, func(), error) {
	var loggers []log.Logger
	closeFn := func() {}

	if cfg.Log.Protocol != "" {
		file, err := log.NewFileLogger(cfg.Log.Protocol)
		if err != nil {
			return nil, nil, fmt.Errorf("protocol log: %w", err)
		}
		loggers = append(loggers, file)
		closeFn = func() { _ = file.Close() }
		logger.Info("protocol capture", "path", file.Path())
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		loggers = append(loggers, log.NewSlogAdapter(logger))
	}

	if len(loggers) == 0 {
		return nil, closeFn, nil
	}
	return log.NewMultiLogger(loggers...), closeFn, nil
}

// serveMetrics exposes /metrics on addr until the returned stop is called.
// It returns the bound address.
func serveMetrics(addr string, m *metrics.Metrics, logger *slog.Logger) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", ln.Addr().String())

	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
