// Command fireplace-client is an interactive console for a fireplace server.
//
// Usage:
//
//	fireplace-client [flags]
//
// Flags:
//
//	-i string          Inbound endpoint of the server
//	-o string          Outbound endpoint of the server
//	-timeout duration  Receive and send timeout (default 2s)
//	-discover          Browse for servers before the first prompt
//
// Examples:
//
//	fireplace-client -i tcp://127.0.0.1:5555
//	fireplace> request get_state 0 1
//	fireplace> push configure 0 1
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/armish/fireplace/pkg/discovery"
	"github.com/armish/fireplace/pkg/retry"
)

func main() {
	inbound := flag.String("i", "", "Inbound endpoint of the server")
	outbound := flag.String("o", "", "Outbound endpoint of the server")
	timeout := flag.Duration("timeout", 2*time.Second, "Receive and send timeout")
	discover := flag.Bool("discover", false, "Browse for servers before the first prompt")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := NewClient(*inbound, *outbound, *timeout, retry.Config{Initial: 100 * time.Millisecond, Max: time.Second})
	defer client.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "fireplace> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	console := NewConsole(client, discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig()), rl.Stdout())
	if *discover {
		report(rl, console.Execute(ctx, "discover"))
	} else {
		console.printHelp()
	}

	for ctx.Err() == nil {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return
		}
		err = console.Execute(ctx, strings.TrimSpace(line))
		if errors.Is(err, errQuit) {
			fmt.Fprintln(rl.Stdout(), "Exiting...")
			return
		}
		report(rl, err)
	}
}

func report(rl *readline.Instance, err error) {
	if err != nil {
		fmt.Fprintf(rl.Stdout(), "error: %v\n", err)
	}
}
