// Command fireplace is the middleware server. It loads one module and one
// processing unit and serves them on the configured endpoints.
//
// Usage:
//
//	fireplace [flags]
//
// Flags:
//
//	-config string         Configuration file path (YAML)
//	-iendpoint, -i string  Inbound endpoint for requests and pushes
//	-oendpoint, -o string  Outbound endpoint for produced data
//	-mname, -m string      Module name
//	-mparam, -n string     Module parameter string
//	-puname, -t string     Processing unit name
//	-puparam, -u string    Processing unit parameter string
//	-threshold int         Queued items that release a batch (default 100)
//	-log-level string      Log level: debug, info, warn, error (default "info")
//	-log-format string     Log format: text, json (default "text")
//	-protocol-log string   Protocol capture file (CBOR)
//	-metrics-addr string   Prometheus listen address
//	-advertise             Advertise the server via mDNS
//
// Examples:
//
//	# Circulator switch on TCP
//	fireplace -i tcp://0.0.0.0:5555 -m switches -t circulator_switch -u "-p 4"
//
//	# Loopback driver with both endpoints and metrics
//	fireplace -i tcp://0.0.0.0:5555 -o tcp://0.0.0.0:5556 -m loopback -t echo \
//	    -metrics-addr :9090 -log-level debug
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr, nil); err != nil {
		fmt.Fprintf(os.Stderr, "fireplace: %v\n", err)
		os.Exit(1)
	}
}
