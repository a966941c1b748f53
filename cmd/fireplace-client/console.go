package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/armish/fireplace/pkg/action"
	"github.com/armish/fireplace/pkg/config"
	"github.com/armish/fireplace/pkg/discovery"
)

// errQuit ends the console loop.
var errQuit = errors.New("quit")

// Browser finds servers on the network.
type Browser interface {
	Browse(ctx context.Context) ([]*discovery.Service, error)
}

// Console executes client commands and prints their results.
type Console struct {
	client  *Client
	browser Browser
	out     io.Writer

	found []*discovery.Service
}

// NewConsole creates a console printing to out.
func NewConsole(client *Client, browser Browser, out io.Writer) *Console {
	return &Console{client: client, browser: browser, out: out}
}

// Execute runs one command line. It returns errQuit for quit.
func (c *Console) Execute(ctx context.Context, line string) error {
	tokens, err := config.SplitParams(line)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(tokens[0]), tokens[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
		return nil
	case "request", "req", "r":
		return c.cmdCall(ctx, action.Request, args)
	case "push", "p":
		return c.cmdCall(ctx, action.Push, args)
	case "listen", "l":
		return c.cmdListen(ctx, args)
	case "discover", "d":
		return c.cmdDiscover(ctx)
	case "use":
		return c.cmdUse(args)
	case "endpoints", "ep":
		in, out := c.client.Endpoints()
		fmt.Fprintf(c.out, "inbound:  %s\noutbound: %s\n", orNone(in), orNone(out))
		return nil
	case "quit", "exit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Fireplace Client Commands:
  request <method> [params...]  - Send a REQUEST and print the result
  push <method> [params...]     - Send a PUSH and print whether it was accepted
  listen [count]                - Print produced payloads (default 1)
  discover                      - Browse the network for servers
  use <n>                       - Connect to the n-th discovered server
  endpoints                     - Show the configured endpoints
  quit                          - Exit

Parameters that parse as JSON (numbers, true, [1,2]) are sent as such,
anything else is sent as a string.`)
}

func (c *Console) cmdCall(ctx context.Context, act action.Action, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s <method> [params...]", act)
	}
	params := make([]any, len(args)-1)
	for i, arg := range args[1:] {
		params[i] = parseParam(arg)
	}

	resp, err := c.client.Call(ctx, act, args[0], params...)
	if err != nil {
		return err
	}
	result, err := json.Marshal(resp.Result)
	if err != nil {
		return err
	}
	if resp.Error {
		fmt.Fprintf(c.out, "error: %s\n", result)
		return nil
	}
	fmt.Fprintf(c.out, "%s\n", result)
	return nil
}

func (c *Console) cmdListen(ctx context.Context, args []string) error {
	count := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("listen: invalid count %q", args[0])
		}
		count = n
	}
	for i := 0; i < count; i++ {
		data, err := c.client.Next(ctx)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		fmt.Fprintf(c.out, "[%d] %s\n", i, data)
	}
	return nil
}

func (c *Console) cmdDiscover(ctx context.Context) error {
	if c.browser == nil {
		return fmt.Errorf("discovery is not available")
	}
	fmt.Fprintln(c.out, "Browsing for fireplace servers...")
	services, err := c.browser.Browse(ctx)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	c.found = services
	if len(services) == 0 {
		fmt.Fprintln(c.out, "No servers found.")
		return nil
	}
	for i, svc := range services {
		fmt.Fprintf(c.out, "  %d. %s  %s/%s [%s]\n", i, svc.Instance, svc.Module, svc.Unit, svc.Capabilities)
		fmt.Fprintf(c.out, "     in=%s out=%s\n", orNone(svc.InboundEndpoint()), orNone(svc.OutboundEndpoint()))
	}
	return nil
}

func (c *Console) cmdUse(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: use <n>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 || n >= len(c.found) {
		return fmt.Errorf("use: no discovered server %q", args[0])
	}
	svc := c.found[n]
	c.client.SetEndpoints(svc.InboundEndpoint(), svc.OutboundEndpoint())
	fmt.Fprintf(c.out, "Using %s\n", svc.Instance)
	return nil
}

// parseParam sends JSON literals as is and everything else as a string.
func parseParam(arg string) any {
	if json.Valid([]byte(arg)) {
		return json.RawMessage(arg)
	}
	return arg
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
