// Command fireplace-log views and analyzes fireplace protocol capture files.
//
// Capture files are written by fireplace when it runs with -protocol-log.
//
// Usage:
//
//	fireplace-log <command> [flags] <file.flog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSONL or CSV format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View only wire-layer events
//	fireplace-log view -layer wire capture.flog
//
//	# Export the responses of one session to CSV
//	fireplace-log export -format csv -session 1b9d6bcd -o out.csv capture.flog
//
//	# Keep only error events
//	fireplace-log filter -category error -o errors.flog capture.flog
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/armish/fireplace/cmd/fireplace-log/commands"
)

const usage = `fireplace-log - Fireplace Protocol Log Analyzer

Usage:
  fireplace-log <command> [flags] <file.flog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSONL or CSV format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "fireplace-log <command> -help" for more information about a command.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprint(stderr, usage)
		return 1
	}

	var err error
	switch cmd := args[0]; cmd {
	case "view":
		err = runView(args[1:], stdout, stderr)
	case "export":
		err = runExport(args[1:], stdout, stderr)
	case "filter":
		err = runFilter(args[1:], stdout, stderr)
	case "stats":
		err = runStats(args[1:], stdout, stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(stderr, usage)
		return 1
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

// errUsage marks errors already reported together with the usage text.
var errUsage = errors.New("usage")

func newFlagSet(name, synopsis string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "fireplace-log %s - %s\n\nUsage:\n  fireplace-log %s [flags] <file.flog>\n\nFlags:\n",
			name, synopsis, name)
		fs.PrintDefaults()
	}
	return fs
}

func addCriteria(fs *flag.FlagSet) *commands.Criteria {
	c := &commands.Criteria{}
	fs.StringVar(&c.SessionID, "session", "", "Filter by session ID")
	fs.StringVar(&c.Endpoint, "endpoint", "", "Filter by local endpoint")
	fs.StringVar(&c.Module, "module", "", "Filter by module name")
	fs.StringVar(&c.Unit, "unit", "", "Filter by processing unit name")
	fs.StringVar(&c.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&c.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&c.Layer, "layer", "", "Filter by layer (transport, wire, module)")
	fs.StringVar(&c.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&c.Category, "category", "", "Filter by category (message, state, error)")
	return c
}

// parseArgs parses args and returns the single log file path.
func parseArgs(fs *flag.FlagSet, args []string, stderr io.Writer) (string, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return "", err
		}
		return "", errUsage
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "Error: log file path required")
		fs.Usage()
		return "", errUsage
	}
	return fs.Arg(0), nil
}

func runView(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("view", "View log file in human-readable format", stderr)
	criteria := addCriteria(fs)

	path, err := parseArgs(fs, args, stderr)
	if err != nil {
		return err
	}
	filter, err := criteria.Filter()
	if err != nil {
		return err
	}
	return commands.RunView(path, filter, stdout)
}

func runExport(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("export", "Export log file to JSONL or CSV format", stderr)
	format := fs.String("format", commands.FormatJSONL, "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	criteria := addCriteria(fs)

	path, err := parseArgs(fs, args, stderr)
	if err != nil {
		return err
	}
	filter, err := criteria.Filter()
	if err != nil {
		return err
	}

	if *output == "" {
		return commands.RunExport(path, *format, filter, stdout)
	}
	f, err := os.Create(*output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := commands.RunExport(path, *format, filter, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runFilter(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("filter", "Filter log file and write to new file", stderr)
	output := fs.String("o", "", "Output file (required)")
	criteria := addCriteria(fs)

	path, err := parseArgs(fs, args, stderr)
	if err != nil {
		return err
	}
	if *output == "" {
		fmt.Fprintln(stderr, "Error: output file (-o) required")
		fs.Usage()
		return errUsage
	}
	filter, err := criteria.Filter()
	if err != nil {
		return err
	}

	count, err := commands.RunFilter(path, *output, filter)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Filtered %d events to %s\n", count, *output)
	return nil
}

func runStats(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("stats", "Show statistics about the log file", stderr)
	criteria := addCriteria(fs)

	path, err := parseArgs(fs, args, stderr)
	if err != nil {
		return err
	}
	filter, err := criteria.Filter()
	if err != nil {
		return err
	}
	return commands.RunStats(path, filter, stdout)
}
